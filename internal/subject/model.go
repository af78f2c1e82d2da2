package subject

import (
	"strings"
	"time"
)

// Subject is the party being onboarded and verified.
type Subject struct {
	ID           string
	Phone        string
	Email        string
	FullName     string
	PAN          string
	PANUpdatedAt *time.Time
	Occupation   string
	Income       string
	DateOfBirth  string
	Pincode      string
	Address      string
	City         string
	District     string
	State        string
	GoogleID     string
	IsGoogleUser bool
	PINHash      []byte
	PendingOTP   *PendingOTP

	KycRequestID       string
	IdentityDocumentID string
	EsignID            string
	InvestorProfileID  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingOTP is the one-time code awaiting verification.
type PendingOTP struct {
	Code      string
	ExpiresAt time.Time
}

// HasPIN reports whether the subject has set a PIN.
func (s Subject) HasPIN() bool {
	return len(s.PINHash) > 0
}

// Profile carries optional profile fields. Empty values leave the stored value untouched.
type Profile struct {
	FullName    string
	Email       string
	PAN         string
	Occupation  string
	Income      string
	DateOfBirth string
	Pincode     string
	Address     string
	City        string
	District    string
	State       string
}

// Apply copies the non-empty profile fields onto s. Emails are stored
// lowercased, the form Email and ParseIdentifier look them up by.
func (p Profile) Apply(s *Subject) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&s.FullName, p.FullName)
	set(&s.Email, strings.ToLower(p.Email))
	set(&s.PAN, p.PAN)
	set(&s.Occupation, p.Occupation)
	set(&s.Income, p.Income)
	set(&s.DateOfBirth, p.DateOfBirth)
	set(&s.Pincode, p.Pincode)
	set(&s.Address, p.Address)
	set(&s.City, p.City)
	set(&s.District, p.District)
	set(&s.State, p.State)
}

// ArtifactKind names a provider artifact correlated with a subject.
type ArtifactKind string

const (
	ArtifactIdentityDocument ArtifactKind = "identity_document"
	ArtifactEsign            ArtifactKind = "esign"
)
