package notification

import (
	"time"

	"orderbot_backend/internal/events"
	"orderbot_backend/internal/storage"
)

type orderConfirmedPayload struct {
	ClientCode  string        `json:"clientCode"`
	ClientName  string        `json:"clientName"`
	ClientPhone string        `json:"clientPhone"`
	OperatorID  int64         `json:"operatorId"`
	Lines       []payloadLine `json:"lines"`
	Files       []payloadFile `json:"files,omitempty"`
	ConfirmedAt time.Time     `json:"confirmedAt"`
}

// payloadFile points at an archived copy of the order document or spreadsheet.
type payloadFile struct {
	Key       string     `json:"key"`
	URL       string     `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type payloadLine struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

func toPayloadLines(e events.OrderConfirmed) []payloadLine {
	out := make([]payloadLine, 0, len(e.Lines))
	for _, l := range e.Lines {
		out = append(out, payloadLine{Code: l.Code, Quantity: l.Quantity})
	}
	return out
}

func toPayloadFiles(files []storage.PresignedURL) []payloadFile {
	if len(files) == 0 {
		return nil
	}
	out := make([]payloadFile, 0, len(files))
	for _, f := range files {
		pf := payloadFile{Key: f.FileKey, URL: f.URL}
		if f.URL != "" && !f.ExpiresAt.IsZero() {
			at := f.ExpiresAt
			pf.ExpiresAt = &at
		}
		out = append(out, pf)
	}
	return out
}
