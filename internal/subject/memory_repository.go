package subject

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arthgyan/onboarding/internal/apperr"
)

type memoryRepository struct {
	mu       sync.RWMutex
	subjects map[string]Subject
	now      func() time.Time
}

// NewMemoryRepository builds an in-memory subject store for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{subjects: make(map[string]Subject), now: time.Now}
}

func (r *memoryRepository) Create(_ context.Context, s Subject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subjects[s.ID]; exists {
		return apperr.ErrAlreadyRegistered
	}
	if r.conflicts(s) {
		return apperr.ErrAlreadyRegistered
	}
	r.subjects[s.ID] = clone(s)
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[id]
	if !ok {
		return Subject{}, apperr.ErrNotFound
	}
	return clone(s), nil
}

func (r *memoryRepository) FindByIdentifier(_ context.Context, ident Identifier) (Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subjects {
		if ident.Matches(s) {
			return clone(s), nil
		}
	}
	return Subject{}, apperr.ErrNotFound
}

func (r *memoryRepository) FindByArtifact(_ context.Context, kind ArtifactKind, artifactID string) (Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subjects {
		switch {
		case kind == ArtifactIdentityDocument && artifactID != "" && s.IdentityDocumentID == artifactID:
			return clone(s), nil
		case kind == ArtifactEsign && artifactID != "" && s.EsignID == artifactID:
			return clone(s), nil
		}
	}
	return Subject{}, apperr.ErrNotFound
}

func (r *memoryRepository) Update(_ context.Context, id string, fn func(*Subject) error) (Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.subjects[id]
	if !ok {
		return Subject{}, apperr.ErrNotFound
	}
	next := clone(current)
	if err := fn(&next); err != nil {
		return Subject{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if r.conflicts(next) {
		return Subject{}, apperr.ErrAlreadyRegistered
	}
	next.UpdatedAt = r.now().UTC()
	r.subjects[id] = next
	return clone(next), nil
}

// conflicts reports whether another subject already holds s's phone or email.
// Callers hold r.mu.
func (r *memoryRepository) conflicts(s Subject) bool {
	for id, other := range r.subjects {
		if id == s.ID {
			continue
		}
		if s.Phone != "" && other.Phone == s.Phone {
			return true
		}
		if s.Email != "" && strings.EqualFold(other.Email, s.Email) {
			return true
		}
	}
	return false
}

func clone(s Subject) Subject {
	if s.PINHash != nil {
		s.PINHash = append([]byte(nil), s.PINHash...)
	}
	if s.PendingOTP != nil {
		otp := *s.PendingOTP
		s.PendingOTP = &otp
	}
	if s.PANUpdatedAt != nil {
		at := *s.PANUpdatedAt
		s.PANUpdatedAt = &at
	}
	return s
}
