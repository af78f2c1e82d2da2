package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/provider"
	"github.com/arthgyan/onboarding/internal/subject"
)

const identityDocumentType = "aadhaar"

// API is the slice of the provider client the driver needs.
type API interface {
	CreateIdentityDocument(ctx context.Context, req provider.IdentityDocumentRequest) (provider.IdentityDocument, error)
	CreateEsign(ctx context.Context, req provider.EsignRequest) (provider.Esign, error)
}

// Postbacks holds the default callback URLs used when a caller supplies none.
type Postbacks struct {
	IdentityDocument string
	Esign            string
}

// Driver generates identity documents and e-signs for subjects with a KYC request.
type Driver struct {
	repo      subject.Repository
	api       API
	postbacks Postbacks
	logger    *slog.Logger
}

// NewDriver builds a Driver.
func NewDriver(repo subject.Repository, api API, postbacks Postbacks, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{repo: repo, api: api, postbacks: postbacks, logger: logger}
}

// GenerateIdentityDocument starts an Aadhaar identity document fetch for the
// subject's KYC request and records its id.
func (d *Driver) GenerateIdentityDocument(ctx context.Context, ident subject.Identifier, callbackURL string) (provider.IdentityDocument, error) {
	subj, err := d.prerequisite(ctx, ident)
	if err != nil {
		return provider.IdentityDocument{}, err
	}

	doc, err := d.api.CreateIdentityDocument(ctx, provider.IdentityDocumentRequest{
		KycRequest:  subj.KycRequestID,
		Type:        identityDocumentType,
		PostbackURL: orDefault(callbackURL, d.postbacks.IdentityDocument),
	})
	if err != nil {
		return provider.IdentityDocument{}, apperr.WithKind(err, apperr.ErrUpstreamDocument)
	}

	if _, err := d.repo.Update(ctx, subj.ID, func(s *subject.Subject) error {
		s.IdentityDocumentID = doc.ID
		return nil
	}); err != nil {
		return provider.IdentityDocument{}, fmt.Errorf("store identity document id: %w", err)
	}

	d.logger.InfoContext(ctx, "identity document created",
		slog.String("subject_id", subj.ID),
		slog.String("kyc_request_id", subj.KycRequestID),
		slog.String("identity_document_id", doc.ID),
	)
	return doc, nil
}

// GenerateEsign starts an e-sign for the subject's KYC request and records its id.
func (d *Driver) GenerateEsign(ctx context.Context, ident subject.Identifier, callbackURL string) (provider.Esign, error) {
	subj, err := d.prerequisite(ctx, ident)
	if err != nil {
		return provider.Esign{}, err
	}

	esign, err := d.api.CreateEsign(ctx, provider.EsignRequest{
		KycRequest:  subj.KycRequestID,
		PostbackURL: orDefault(callbackURL, d.postbacks.Esign),
	})
	if err != nil {
		return provider.Esign{}, apperr.WithKind(err, apperr.ErrUpstreamDocument)
	}

	if _, err := d.repo.Update(ctx, subj.ID, func(s *subject.Subject) error {
		s.EsignID = esign.ID
		return nil
	}); err != nil {
		return provider.Esign{}, fmt.Errorf("store esign id: %w", err)
	}

	d.logger.InfoContext(ctx, "esign created",
		slog.String("subject_id", subj.ID),
		slog.String("kyc_request_id", subj.KycRequestID),
		slog.String("esign_id", esign.ID),
	)
	return esign, nil
}

func (d *Driver) prerequisite(ctx context.Context, ident subject.Identifier) (subject.Subject, error) {
	subj, err := d.repo.FindByIdentifier(ctx, ident)
	if err != nil {
		return subject.Subject{}, err
	}
	if subj.KycRequestID == "" {
		return subject.Subject{}, apperr.ErrMissingPrerequisite
	}
	return subj, nil
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
