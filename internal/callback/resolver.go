package callback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/subject"
)

// Notification is a provider callback: which artifact changed and its status.
type Notification struct {
	Kind       subject.ArtifactKind
	ArtifactID string
	Status     string
}

// Lookup finds the subject owning an artifact.
type Lookup interface {
	FindByArtifact(ctx context.Context, kind subject.ArtifactKind, artifactID string) (subject.Subject, error)
}

// BuildLink returns the app deep link for a callback. Identity document
// callbacks go to <scheme>://callback, e-sign callbacks to
// <scheme>://callback-esign.
func BuildLink(scheme string, n Notification) (string, error) {
	id := strings.TrimSpace(n.ArtifactID)
	status := strings.TrimSpace(n.Status)
	if id == "" || status == "" {
		return "", apperr.ErrMissingFields
	}

	q := url.Values{}
	q.Set("status", status)

	link := url.URL{Scheme: scheme}
	switch n.Kind {
	case subject.ArtifactIdentityDocument:
		link.Host = "callback"
		q.Set("identity_document", id)
	case subject.ArtifactEsign:
		link.Host = "callback-esign"
		q.Set("esign", id)
	default:
		return "", fmt.Errorf("%w: unknown artifact kind %q", apperr.ErrInvalidInput, n.Kind)
	}
	link.RawQuery = q.Encode()
	return link.String(), nil
}

// Resolver turns provider callbacks into deep links. In strict mode the
// artifact must belong to a known subject.
type Resolver struct {
	scheme string
	strict bool
	lookup Lookup
	logger *slog.Logger
}

// NewResolver builds a Resolver. lookup may be nil when strict is false.
func NewResolver(scheme string, strict bool, lookup Lookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{scheme: scheme, strict: strict, lookup: lookup, logger: logger}
}

// Resolve validates n and returns the deep link to redirect to.
func (r *Resolver) Resolve(ctx context.Context, n Notification) (string, error) {
	link, err := BuildLink(r.scheme, n)
	if err != nil {
		return "", err
	}

	attrs := []any{
		slog.String("kind", string(n.Kind)),
		slog.String("artifact_id", n.ArtifactID),
		slog.String("status", n.Status),
	}
	if r.strict && r.lookup != nil {
		subj, err := r.lookup.FindByArtifact(ctx, n.Kind, strings.TrimSpace(n.ArtifactID))
		if err != nil {
			r.logger.WarnContext(ctx, "callback for unknown artifact", attrs...)
			return "", err
		}
		attrs = append(attrs, slog.String("subject_id", subj.ID))
	}

	r.logger.InfoContext(ctx, "provider callback", attrs...)
	return link, nil
}
