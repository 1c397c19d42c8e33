package email

import (
	"context"

	"orderbot_backend/platform/config"
)

// Attachment represents a file attachment for an email.
type Attachment struct {
	Content  []byte
	FileName string // e.g. "pedido_C001_20260302-1030.xlsx"
	MIMEType string
}

// OrderConfirmedEmail is what the operator needs to act on a confirmed order.
type OrderConfirmedEmail struct {
	OperatorName string
	ClientName   string
	ClientCode   string
	ClientPhone  string
	Lines        []OrderLine
}

type OrderLine struct {
	Code     string
	Quantity int
}

type Sender interface {
	SendOrderConfirmed(ctx context.Context, toEmail string, order OrderConfirmedEmail, attachments ...Attachment) error
}

// NewSender returns an SMTP sender, or a NoopSender when email is disabled.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

type NoopSender struct{}

func (NoopSender) SendOrderConfirmed(ctx context.Context, toEmail string, order OrderConfirmedEmail, attachments ...Attachment) error {
	return nil
}
