// Package mailer delivers templated notification emails.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/pkg/config"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Template Template
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the sender selected by MAIL_PROVIDER.
func New(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Provider) {
	case config.MailProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid mail provider")
		}
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromAddress), nil
	case config.MailProviderLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message envelope.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email not delivered (log provider)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", string(msg.Template)),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
