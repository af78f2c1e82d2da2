package notification

import (
	"context"
	"errors"
	"testing"

	"gopkg.in/gomail.v2"

	"github.com/arthgyan/onboarding/internal/logging"
)

type recordingNotifier struct {
	sent []Message
}

func (r *recordingNotifier) Send(_ context.Context, m Message) error {
	r.sent = append(r.sent, m)
	return nil
}

type fakeSender struct {
	messages []*gomail.Message
	err      error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.messages = append(f.messages, m...)
	return f.err
}

func TestRouterDispatchesByChannel(t *testing.T) {
	sms := &recordingNotifier{}
	email := &recordingNotifier{}
	router := Router{SMS: sms, Email: email}

	_ = router.Send(context.Background(), Message{Channel: ChannelSMS, Destination: "9876543210"})
	_ = router.Send(context.Background(), Message{Channel: ChannelEmail, Destination: "a@example.com"})

	if len(sms.sent) != 1 || sms.sent[0].Destination != "9876543210" {
		t.Fatalf("expected one sms, got %+v", sms.sent)
	}
	if len(email.sent) != 1 || email.sent[0].Destination != "a@example.com" {
		t.Fatalf("expected one email, got %+v", email.sent)
	}
}

func TestRouterFallsBackToSMSWithoutEmail(t *testing.T) {
	sms := &recordingNotifier{}
	router := Router{SMS: sms}

	if err := router.Send(context.Background(), Message{Channel: ChannelEmail, Destination: "a@example.com"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected fallback delivery, got %d", len(sms.sent))
	}
}

func TestEmailNotifierBuildsMessage(t *testing.T) {
	sender := &fakeSender{}
	n := &EmailNotifier{from: "noreply@arthgyan.com", sender: sender, logger: logging.Discard()}

	err := n.Send(context.Background(), Message{Kind: KindOTP, Channel: ChannelEmail, Destination: "a@example.com", Subject: "Your code", Body: "123456"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.messages))
	}
	m := sender.messages[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "a@example.com" {
		t.Fatalf("unexpected To header %v", got)
	}
	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "noreply@arthgyan.com" {
		t.Fatalf("unexpected From header %v", got)
	}
}

func TestEmailNotifierWrapsSendError(t *testing.T) {
	dialErr := errors.New("connection refused")
	n := &EmailNotifier{sender: &fakeSender{err: dialErr}}

	err := n.Send(context.Background(), Message{Destination: "a@example.com"})
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}

func TestLoggerNotifierNilSafe(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
