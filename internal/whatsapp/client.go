// Package whatsapp sends messages and files through a gowa REST gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"orderbot_backend/platform/config"
	"orderbot_backend/platform/logger"
	"orderbot_backend/platform/phone"
)

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	region   string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Results struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	} `json:"results"`
}

// NewClient returns nil when no gateway URL is configured; a nil client
// accepts every send and does nothing.
func NewClient(cfg config.WhatsAppConfig, region string, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		region:   region,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

// SendMessage sends a text message to phoneNumber from the operator device
// identified by from and returns the gateway message id, if any.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, message, from string) (string, error) {
	if c == nil {
		return "", nil
	}

	to := c.recipient(phoneNumber)
	body, err := json.Marshal(gowaRequest{Phone: to, Message: message})
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	id, err := c.do(req, from)
	if err != nil {
		return "", err
	}
	c.log.Info("whatsapp sent via gowa", "phone", to)
	return id, nil
}

// SendFile uploads the file at path with an optional caption.
func (c *Client) SendFile(ctx context.Context, phoneNumber, path, caption, from string) (string, error) {
	if c == nil {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open attachment: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	to := c.recipient(phoneNumber)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("phone", to); err != nil {
		return "", err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return "", err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/file", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	id, err := c.do(req, from)
	if err != nil {
		return "", err
	}
	c.log.Info("whatsapp file sent via gowa", "phone", to, "file", filepath.Base(path))
	return id, nil
}

func (c *Client) do(req *http.Request, from string) (string, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if device := c.device(from); device != "" {
		req.Header.Set("X-Device-Id", device)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed gowaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", nil
	}
	return parsed.Results.MessageID, nil
}

func (c *Client) recipient(phoneNumber string) string {
	if strings.Contains(phoneNumber, "@") {
		return phoneNumber
	}
	return phone.Digits(phoneNumber, c.region)
}

// device prefers the configured device id; otherwise the operator's own
// number selects the device on multi-device gateways.
func (c *Client) device(from string) string {
	if c.deviceID != "" {
		return c.deviceID
	}
	if from == "" {
		return ""
	}
	return phone.Digits(from, c.region)
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
