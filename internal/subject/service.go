package subject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/logging"
	"github.com/arthgyan/onboarding/internal/provider"
)

const (
	pinLength = 4
	panLength = 10
)

// InvestorProfiles creates investor profiles at the provider.
type InvestorProfiles interface {
	CreateInvestorProfile(ctx context.Context, req provider.InvestorProfileRequest) (provider.InvestorProfile, error)
}

// Service manages subject registration and profile data.
type Service struct {
	repo     Repository
	profiles InvestorProfiles
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new subject service.
func NewService(repo Repository, profiles InvestorProfiles, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, profiles: profiles, logger: logger, now: time.Now}
}

// Registration is the input of Register.
type Registration struct {
	FullName string
	Phone    string
	Email    string
}

// Register creates a subject for a phone number and email not yet in use.
func (s *Service) Register(ctx context.Context, in Registration) (Subject, error) {
	phone := Phone(in.Phone)
	email := Email(in.Email)
	if phone.Value == "" || email.Value == "" || strings.TrimSpace(in.FullName) == "" {
		return Subject{}, fmt.Errorf("%w: name, phone number and email are required", apperr.ErrInvalidInput)
	}

	for _, ident := range []Identifier{phone, email} {
		_, err := s.repo.FindByIdentifier(ctx, ident)
		switch {
		case err == nil:
			return Subject{}, fmt.Errorf("%w with this %s", apperr.ErrAlreadyRegistered, ident.Kind)
		case !errors.Is(err, apperr.ErrNotFound):
			return Subject{}, err
		}
	}

	now := s.now().UTC()
	subj := Subject{
		ID:        uuid.NewString(),
		Phone:     phone.Value,
		Email:     email.Value,
		FullName:  strings.TrimSpace(in.FullName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, subj); err != nil {
		return Subject{}, err
	}

	s.logger.InfoContext(ctx, "subject registered",
		slog.String("subject_id", subj.ID),
		slog.String("phone", logging.MaskIdentifier(subj.Phone)),
	)
	return subj, nil
}

// GoogleProfile is what the client learned from a Google sign-in.
type GoogleProfile struct {
	Email    string
	Name     string
	GoogleID string
}

// GoogleSignIn returns the subject for the Google account's email, creating
// it on first sign-in. The bool reports whether the subject is new.
func (s *Service) GoogleSignIn(ctx context.Context, in GoogleProfile) (Subject, bool, error) {
	email := Email(in.Email)
	if email.Value == "" {
		return Subject{}, false, fmt.Errorf("%w: email is required", apperr.ErrInvalidInput)
	}

	existing, err := s.repo.FindByIdentifier(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return Subject{}, false, err
	}

	now := s.now().UTC()
	subj := Subject{
		ID:           uuid.NewString(),
		Email:        email.Value,
		FullName:     strings.TrimSpace(in.Name),
		GoogleID:     strings.TrimSpace(in.GoogleID),
		IsGoogleUser: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, subj); err != nil {
		if errors.Is(err, apperr.ErrAlreadyRegistered) {
			// Lost a race with a concurrent first sign-in.
			existing, findErr := s.repo.FindByIdentifier(ctx, email)
			if findErr != nil {
				return Subject{}, false, findErr
			}
			return existing, false, nil
		}
		return Subject{}, false, err
	}
	return subj, true, nil
}

// Lookup returns the subject addressed by ident.
func (s *Service) Lookup(ctx context.Context, ident Identifier) (Subject, error) {
	return s.repo.FindByIdentifier(ctx, ident)
}

// UpdateProfile applies the non-empty fields of p.
func (s *Service) UpdateProfile(ctx context.Context, ident Identifier, p Profile) (Subject, error) {
	return s.update(ctx, ident, func(subj *Subject) error {
		p.Apply(subj)
		return nil
	})
}

// UpdatePAN stores a 10 character PAN and stamps PANUpdatedAt.
func (s *Service) UpdatePAN(ctx context.Context, ident Identifier, pan string) (Subject, error) {
	pan = strings.ToUpper(strings.TrimSpace(pan))
	if len(pan) != panLength {
		return Subject{}, fmt.Errorf("%w: PAN number must be %d characters", apperr.ErrInvalidInput, panLength)
	}
	return s.update(ctx, ident, func(subj *Subject) error {
		at := s.now().UTC()
		subj.PAN = pan
		subj.PANUpdatedAt = &at
		return nil
	})
}

// UpdateOccupation sets the occupation.
func (s *Service) UpdateOccupation(ctx context.Context, ident Identifier, occupation string) (Subject, error) {
	occupation = strings.TrimSpace(occupation)
	if occupation == "" {
		return Subject{}, fmt.Errorf("%w: occupation is required", apperr.ErrInvalidInput)
	}
	return s.update(ctx, ident, func(subj *Subject) error {
		subj.Occupation = occupation
		return nil
	})
}

// UpdateIncome sets the income bracket.
func (s *Service) UpdateIncome(ctx context.Context, ident Identifier, income string) (Subject, error) {
	income = strings.TrimSpace(income)
	if income == "" {
		return Subject{}, fmt.Errorf("%w: income is required", apperr.ErrInvalidInput)
	}
	return s.update(ctx, ident, func(subj *Subject) error {
		subj.Income = income
		return nil
	})
}

// SetPIN stores a bcrypt hash of a 4 digit PIN.
func (s *Service) SetPIN(ctx context.Context, ident Identifier, pin string) (Subject, error) {
	if !validPIN(pin) {
		return Subject{}, fmt.Errorf("%w: PIN must be %d digits", apperr.ErrInvalidInput, pinLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return Subject{}, fmt.Errorf("hash pin: %w", err)
	}
	return s.update(ctx, ident, func(subj *Subject) error {
		subj.PINHash = hash
		return nil
	})
}

// VerifyPIN checks pin against the stored hash.
func (s *Service) VerifyPIN(ctx context.Context, ident Identifier, pin string) (Subject, error) {
	if !validPIN(pin) {
		return Subject{}, fmt.Errorf("%w: PIN must be %d digits", apperr.ErrInvalidInput, pinLength)
	}
	subj, err := s.repo.FindByIdentifier(ctx, ident)
	if err != nil {
		return Subject{}, err
	}
	if !subj.HasPIN() {
		return Subject{}, apperr.ErrInvalidPIN
	}
	if err := bcrypt.CompareHashAndPassword(subj.PINHash, []byte(pin)); err != nil {
		return Subject{}, apperr.ErrInvalidPIN
	}
	return subj, nil
}

// InvestorProfileUpdate is the input of PushInvestorProfile.
type InvestorProfileUpdate struct {
	Profile Profile
	Request provider.InvestorProfileRequest
}

// PushInvestorProfile saves the profile changes, creates an investor
// profile at the provider from the request (blank fields filled from the
// subject) and records the returned id.
func (s *Service) PushInvestorProfile(ctx context.Context, ident Identifier, in InvestorProfileUpdate) (Subject, provider.InvestorProfile, error) {
	if s.profiles == nil {
		return Subject{}, provider.InvestorProfile{}, errors.New("investor profiles are not configured")
	}

	subj, err := s.UpdateProfile(ctx, ident, in.Profile)
	if err != nil {
		return Subject{}, provider.InvestorProfile{}, err
	}

	req := in.Request
	fillBlank(&req.Name, subj.FullName)
	fillBlank(&req.PAN, subj.PAN)
	fillBlank(&req.Occupation, subj.Occupation)
	fillBlank(&req.DateOfBirth, subj.DateOfBirth)
	fillBlank(&req.IncomeSlab, subj.Income)

	profile, err := s.profiles.CreateInvestorProfile(ctx, req)
	if err != nil {
		return Subject{}, provider.InvestorProfile{}, err
	}

	subj, err = s.repo.Update(ctx, subj.ID, func(current *Subject) error {
		current.InvestorProfileID = profile.ID
		return nil
	})
	if err != nil {
		return Subject{}, provider.InvestorProfile{}, err
	}

	s.logger.InfoContext(ctx, "investor profile created",
		slog.String("subject_id", subj.ID),
		slog.String("investor_profile_id", profile.ID),
	)
	return subj, profile, nil
}

func (s *Service) update(ctx context.Context, ident Identifier, fn func(*Subject) error) (Subject, error) {
	subj, err := s.repo.FindByIdentifier(ctx, ident)
	if err != nil {
		return Subject{}, err
	}
	return s.repo.Update(ctx, subj.ID, fn)
}

func validPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fillBlank(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}
