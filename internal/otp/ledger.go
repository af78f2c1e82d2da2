package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/logging"
	"github.com/arthgyan/onboarding/internal/notification"
	"github.com/arthgyan/onboarding/internal/subject"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultDigits = 6
)

// Options tunes a Ledger.
type Options struct {
	TTL       time.Duration
	Digits    int
	Generator Generator
	Now       func() time.Time
}

// Issued is the outcome of an issuance.
type Issued struct {
	Subject   subject.Subject
	Code      string
	ExpiresAt time.Time
	Created   bool
}

// Verified is the outcome of a successful verification.
type Verified struct {
	Subject subject.Subject
	HasPIN  bool
}

// Ledger issues one-time codes bound to subjects and verifies them.
type Ledger struct {
	repo     subject.Repository
	notifier notification.Notifier
	logger   *slog.Logger
	ttl      time.Duration
	digits   int
	generate Generator
	now      func() time.Time
}

// NewLedger builds a Ledger. Zero options take the defaults: 5 minute
// expiry, 6 digits, crypto/rand codes.
func NewLedger(repo subject.Repository, notifier notification.Notifier, logger *slog.Logger, opts Options) *Ledger {
	l := &Ledger{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		ttl:      opts.TTL,
		digits:   opts.Digits,
		generate: opts.Generator,
		now:      opts.Now,
	}
	if l.ttl <= 0 {
		l.ttl = defaultTTL
	}
	if l.digits <= 0 {
		l.digits = defaultDigits
	}
	if l.generate == nil {
		l.generate = RandomCode
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// IssueForRegistered issues a code for an existing subject. Unknown
// identifiers get apperr.ErrNotRegistered.
func (l *Ledger) IssueForRegistered(ctx context.Context, ident subject.Identifier, hints subject.Profile) (Issued, error) {
	subj, err := l.repo.FindByIdentifier(ctx, ident)
	if errors.Is(err, apperr.ErrNotFound) {
		return Issued{}, apperr.ErrNotRegistered
	}
	if err != nil {
		return Issued{}, err
	}
	return l.issue(ctx, ident, subj, false, hints)
}

// IssueForRegistration issues a code, creating the subject when the
// identifier is unknown.
func (l *Ledger) IssueForRegistration(ctx context.Context, ident subject.Identifier, hints subject.Profile) (Issued, error) {
	subj, created, err := l.findOrCreate(ctx, ident)
	if err != nil {
		return Issued{}, err
	}
	return l.issue(ctx, ident, subj, created, hints)
}

func (l *Ledger) findOrCreate(ctx context.Context, ident subject.Identifier) (subject.Subject, bool, error) {
	subj, err := l.repo.FindByIdentifier(ctx, ident)
	if err == nil {
		return subj, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return subject.Subject{}, false, err
	}

	now := l.now().UTC()
	subj = ident.Seed()
	subj.ID = uuid.NewString()
	subj.CreatedAt = now
	subj.UpdatedAt = now
	if err := l.repo.Create(ctx, subj); err != nil {
		if !errors.Is(err, apperr.ErrAlreadyRegistered) {
			return subject.Subject{}, false, err
		}
		// Created concurrently by another request.
		existing, findErr := l.repo.FindByIdentifier(ctx, ident)
		if findErr != nil {
			return subject.Subject{}, false, findErr
		}
		return existing, false, nil
	}
	return subj, true, nil
}

func (l *Ledger) issue(ctx context.Context, ident subject.Identifier, subj subject.Subject, created bool, hints subject.Profile) (Issued, error) {
	code, err := l.generate(l.digits)
	if err != nil {
		return Issued{}, err
	}
	expiresAt := l.now().UTC().Add(l.ttl)

	updated, err := l.repo.Update(ctx, subj.ID, func(s *subject.Subject) error {
		hints.Apply(s)
		s.PendingOTP = &subject.PendingOTP{Code: code, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return Issued{}, fmt.Errorf("store otp: %w", err)
	}

	issued := Issued{Subject: updated, Code: code, ExpiresAt: expiresAt, Created: created}
	if err := l.deliver(ctx, ident, code); err != nil {
		l.logger.ErrorContext(ctx, "otp delivery failed",
			slog.String("identifier", logging.MaskIdentifier(ident.Value)),
			slog.String("error", err.Error()),
		)
		return issued, fmt.Errorf("deliver otp: %w", err)
	}

	l.logger.InfoContext(ctx, "otp issued",
		slog.String("subject_id", updated.ID),
		slog.String("identifier", logging.MaskIdentifier(ident.Value)),
		slog.Bool("created", created),
	)
	return issued, nil
}

func (l *Ledger) deliver(ctx context.Context, ident subject.Identifier, code string) error {
	if l.notifier == nil {
		return nil
	}
	channel := notification.ChannelSMS
	if ident.Kind == subject.KindEmail {
		channel = notification.ChannelEmail
	}
	return l.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindOTP,
		Channel:     channel,
		Destination: ident.Value,
		Subject:     "Your verification code",
		Body:        fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(l.ttl.Minutes())),
	})
}

// Verify checks code against the subject's pending code. A match clears the
// code and applies updates in the same write. A code presented at or after
// its expiry is cleared and rejected with apperr.ErrExpired.
func (l *Ledger) Verify(ctx context.Context, ident subject.Identifier, code string, updates subject.Profile) (Verified, error) {
	subj, err := l.repo.FindByIdentifier(ctx, ident)
	if err != nil {
		return Verified{}, err
	}

	var outcome error
	updated, err := l.repo.Update(ctx, subj.ID, func(s *subject.Subject) error {
		outcome = nil
		pending := s.PendingOTP
		if pending == nil || code == "" || !equalCodes(pending.Code, code) {
			return apperr.ErrInvalidCode
		}
		s.PendingOTP = nil
		if !l.now().Before(pending.ExpiresAt) {
			outcome = apperr.ErrExpired
			return nil
		}
		updates.Apply(s)
		return nil
	})
	if err != nil {
		return Verified{}, err
	}
	if outcome != nil {
		l.logger.InfoContext(ctx, "expired otp presented",
			slog.String("subject_id", updated.ID),
		)
		return Verified{}, outcome
	}

	return Verified{Subject: updated, HasPIN: updated.HasPIN()}, nil
}

func equalCodes(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
