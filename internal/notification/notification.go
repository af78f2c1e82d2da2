package notification

import (
	"context"
	"log/slog"

	"github.com/arthgyan/onboarding/internal/logging"
)

const (
	// KindOTP carries a one-time code.
	KindOTP = "otp"
)

// Channel tells how a destination is reached.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Channel     Channel
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
// It stands in for the SMS gateway.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("channel", string(message.Channel)),
		slog.String("destination", logging.MaskIdentifier(message.Destination)),
		slog.String("body", message.Body),
	)
	return nil
}

// Router sends each message through the notifier for its channel. Email
// falls back to SMS when no email notifier is configured.
type Router struct {
	SMS   Notifier
	Email Notifier
}

// Send dispatches message by channel.
func (r Router) Send(ctx context.Context, message Message) error {
	if message.Channel == ChannelEmail && r.Email != nil {
		return r.Email.Send(ctx, message)
	}
	if r.SMS == nil {
		return nil
	}
	return r.SMS.Send(ctx, message)
}
