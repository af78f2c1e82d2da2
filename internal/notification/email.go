package notification

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/arthgyan/onboarding/internal/logging"
)

// SMTPConfig configures the email notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier delivers messages over SMTP.
type EmailNotifier struct {
	from   string
	sender mailSender
	logger *slog.Logger
}

// NewEmailNotifier builds an SMTP notifier.
func NewEmailNotifier(cfg SMTPConfig, logger *slog.Logger) *EmailNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailNotifier{
		from:   from,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// Send emails message.Body to message.Destination.
func (n *EmailNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", message.Destination)
	m.SetHeader("Subject", message.Subject)
	m.SetBody("text/plain", message.Body)

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if n.logger != nil {
		n.logger.InfoContext(ctx, "email sent",
			slog.String("kind", message.Kind),
			slog.String("destination", logging.MaskIdentifier(message.Destination)),
		)
	}
	return nil
}
