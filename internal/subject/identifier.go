package subject

import (
	"fmt"
	"strings"

	"github.com/arthgyan/onboarding/internal/apperr"
)

// IdentifierKind tells which unique subject field an identifier addresses.
type IdentifierKind string

const (
	KindPhone IdentifierKind = "phone"
	KindEmail IdentifierKind = "email"
)

// Identifier is a phone number or email used to look a subject up.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseIdentifier classifies raw as an email when it contains '@' and as a phone number otherwise.
func ParseIdentifier(raw string) (Identifier, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Identifier{}, fmt.Errorf("%w: identifier is required", apperr.ErrInvalidInput)
	}
	if strings.Contains(v, "@") {
		return Identifier{Kind: KindEmail, Value: strings.ToLower(v)}, nil
	}
	return Identifier{Kind: KindPhone, Value: v}, nil
}

// Phone builds a phone identifier.
func Phone(v string) Identifier {
	return Identifier{Kind: KindPhone, Value: strings.TrimSpace(v)}
}

// Email builds an email identifier.
func Email(v string) Identifier {
	return Identifier{Kind: KindEmail, Value: strings.ToLower(strings.TrimSpace(v))}
}

// String returns a stable key, used for per-subject locking.
func (i Identifier) String() string {
	return string(i.Kind) + ":" + i.Value
}

// Matches reports whether s is addressed by i.
func (i Identifier) Matches(s Subject) bool {
	switch i.Kind {
	case KindEmail:
		return s.Email != "" && strings.EqualFold(s.Email, i.Value)
	default:
		return s.Phone != "" && s.Phone == i.Value
	}
}

// Seed returns a new subject carrying i as its phone or email.
func (i Identifier) Seed() Subject {
	if i.Kind == KindEmail {
		return Subject{Email: i.Value}
	}
	return Subject{Phone: i.Value}
}
