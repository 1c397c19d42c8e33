// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// SchedulerConfig provides Redis and asynq settings for background work.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// LLMConfig provides settings for the OpenAI-compatible model endpoint.
type LLMConfig interface {
	GetLLMBaseURL() string
	GetLLMAPIKey() string
	GetLLMModel() string
	GetLLMTimeout() time.Duration
}

// UnattendedConfig provides the staleness window of the unattended scheduler.
type UnattendedConfig interface {
	GetUnattendedMinAge() time.Duration
	GetUnattendedMaxAge() time.Duration
	GetUnattendedTick() time.Duration
	GetUnattendedConcurrency() int
	GetUnattendedClientTimeout() time.Duration
}

// PipelineConfig provides settings for the order pipeline.
type PipelineConfig interface {
	GetHistoryWindow() int
	GetClientLockTTL() time.Duration
	GetLiveAutoReplyEnabled() bool
	GetExportDir() string
	GetCompanyName() string
}

// WhatsAppConfig provides settings for the gowa REST transport.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
	GetWhatsAppWebhookSecret() string
}

// EmailConfig provides settings for operator notifications.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketOrders() string
	IsMinIOEnabled() bool
}

// BrokerConfig provides settings for the RabbitMQ order event publisher.
type BrokerConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	GetAMQPRoutingKey() string
	IsBrokerEnabled() bool
}

// PhoneConfig provides the default region used to parse local numbers.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	CORSOrigins             []string
	DatabaseURL             string
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	LLMBaseURL              string
	LLMAPIKey               string
	LLMModel                string
	LLMTimeout              time.Duration
	HistoryWindow           int
	UnattendedMinAge        time.Duration
	UnattendedMaxAge        time.Duration
	UnattendedTick          time.Duration
	UnattendedConcurrency   int
	UnattendedClientTimeout time.Duration
	LiveAutoReplyEnabled    bool
	ClientLockTTL           time.Duration
	ExportDir               string
	CompanyName             string
	WhatsAppURL             string
	WhatsAppKey             string
	WhatsAppDeviceID        string
	WhatsAppWebhookSecret   string
	EmailEnabled            bool
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	EmailFromName           string
	EmailFromAddress        string
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketOrders       string
	AMQPURL                 string
	AMQPExchange            string
	AMQPRoutingKey          string
	PhoneDefaultRegion      string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// LLMConfig implementation
func (c *Config) GetLLMBaseURL() string          { return c.LLMBaseURL }
func (c *Config) GetLLMAPIKey() string           { return c.LLMAPIKey }
func (c *Config) GetLLMModel() string            { return c.LLMModel }
func (c *Config) GetLLMTimeout() time.Duration   { return c.LLMTimeout }

// UnattendedConfig implementation
func (c *Config) GetUnattendedMinAge() time.Duration        { return c.UnattendedMinAge }
func (c *Config) GetUnattendedMaxAge() time.Duration        { return c.UnattendedMaxAge }
func (c *Config) GetUnattendedTick() time.Duration          { return c.UnattendedTick }
func (c *Config) GetUnattendedConcurrency() int             { return c.UnattendedConcurrency }
func (c *Config) GetUnattendedClientTimeout() time.Duration { return c.UnattendedClientTimeout }

// PipelineConfig implementation
func (c *Config) GetHistoryWindow() int            { return c.HistoryWindow }
func (c *Config) GetClientLockTTL() time.Duration  { return c.ClientLockTTL }
func (c *Config) GetLiveAutoReplyEnabled() bool    { return c.LiveAutoReplyEnabled }
func (c *Config) GetExportDir() string             { return c.ExportDir }
func (c *Config) GetCompanyName() string           { return c.CompanyName }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string           { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string           { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string      { return c.WhatsAppDeviceID }
func (c *Config) GetWhatsAppWebhookSecret() string { return c.WhatsAppWebhookSecret }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string     { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string    { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string    { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool         { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketOrders() string { return c.MinioBucketOrders }
func (c *Config) IsMinIOEnabled() bool         { return c.MinIOEndpoint != "" }

// BrokerConfig implementation
func (c *Config) GetAMQPURL() string        { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string   { return c.AMQPExchange }
func (c *Config) GetAMQPRoutingKey() string { return c.AMQPRoutingKey }
func (c *Config) IsBrokerEnabled() bool     { return c.AMQPURL != "" }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "")),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "orderbot"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		LLMBaseURL:              getEnv("LLM_BASE_URL", getEnv("OLLAMA_URL", "http://localhost:11434/v1")),
		LLMAPIKey:               getEnv("LLM_API_KEY", ""),
		LLMModel:                getEnv("LLM_MODEL", "llama3"),
		LLMTimeout:              mustDuration(getEnv("LLM_TIMEOUT", "45s")),
		HistoryWindow:           mustInt(getEnv("HISTORY_WINDOW", "6")),
		UnattendedMinAge:        minutes(getEnv("UNATTENDED_MINUTES_MIN", "15")),
		UnattendedMaxAge:        minutes(getEnv("UNATTENDED_MINUTES_MAX", "30")),
		UnattendedTick:          mustDuration(getEnv("UNATTENDED_TICK", "60s")),
		UnattendedConcurrency:   mustInt(getEnv("UNATTENDED_CONCURRENCY", "4")),
		UnattendedClientTimeout: mustDuration(getEnv("UNATTENDED_CLIENT_TIMEOUT", "3m")),
		LiveAutoReplyEnabled:    strings.EqualFold(getEnv("LIVE_AUTOREPLY_ENABLED", "false"), "true"),
		ClientLockTTL:           mustDuration(getEnv("CLIENT_LOCK_TTL", "5m")),
		ExportDir:               getEnv("EXPORT_DIR", os.TempDir()),
		CompanyName:             getEnv("COMPANY_NAME", "Kapalua"),
		WhatsAppURL:             getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:             getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:        getEnv("WHATSAPP_DEVICE_ID", ""),
		WhatsAppWebhookSecret:   getEnv("WHATSAPP_WEBHOOK_SECRET", ""),
		EmailEnabled:            emailEnabled && smtpHost != "",
		SMTPHost:                smtpHost,
		SMTPPort:                mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		EmailFromName:           getEnv("EMAIL_FROM_NAME", "Asistente de pedidos"),
		EmailFromAddress:        getEnv("EMAIL_FROM_ADDRESS", ""),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketOrders:       getEnv("MINIO_BUCKET_ORDERS", "orders"),
		AMQPURL:                 getEnv("AMQP_URL", ""),
		AMQPExchange:            getEnv("AMQP_EXCHANGE", "orderbot.events"),
		AMQPRoutingKey:          getEnv("AMQP_ROUTING_KEY", "order.confirmed"),
		PhoneDefaultRegion:      getEnv("PHONE_DEFAULT_REGION", "ES"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.UnattendedMinAge < 0 || c.UnattendedMaxAge <= 0 {
		return fmt.Errorf("UNATTENDED_MINUTES_MIN and UNATTENDED_MINUTES_MAX must be positive")
	}
	if c.UnattendedMinAge > c.UnattendedMaxAge {
		return fmt.Errorf("UNATTENDED_MINUTES_MIN cannot exceed UNATTENDED_MINUTES_MAX")
	}
	if c.UnattendedTick <= 0 {
		return fmt.Errorf("UNATTENDED_TICK must be a positive duration")
	}
	if c.HistoryWindow < 1 {
		return fmt.Errorf("HISTORY_WINDOW must be at least 1")
	}
	if c.EmailEnabled && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func minutes(value string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return time.Duration(n) * time.Minute
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
