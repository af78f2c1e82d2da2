package kyc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/provider"
	"github.com/arthgyan/onboarding/internal/subject"
)

const defaultISD = "+91"

// Action tells what Submit did upstream.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionRenewed Action = "renewed"
)

// API is the slice of the provider client the manager needs.
type API interface {
	CreateKycRequest(ctx context.Context, req provider.KycRequest) (provider.KycRequestResource, error)
	GetKycRequest(ctx context.Context, id string) (provider.KycRequestResource, error)
	UpdateKycRequest(ctx context.Context, id string, req provider.KycRequest) (provider.KycRequestResource, error)
}

// Submission is the result of Submit.
type Submission struct {
	ID      string
	Action  Action
	Request provider.KycRequestResource
}

// Manager keeps one live KYC request per subject.
type Manager struct {
	repo   subject.Repository
	api    API
	locks  *KeyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewManager builds a Manager.
func NewManager(repo subject.Repository, api API, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		api:    api,
		locks:  NewKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// Submit creates, updates or renews the subject's KYC request. A stored
// request that expires strictly after now is updated in place; an expired
// one is replaced and the new id overwrites the stored id. Submits for the
// same subject run one at a time, whichever identifier addresses it.
func (m *Manager) Submit(ctx context.Context, ident subject.Identifier, payload provider.KycRequest) (Submission, error) {
	found, err := m.repo.FindByIdentifier(ctx, ident)
	if err != nil {
		return Submission{}, err
	}

	unlock, err := m.locks.Lock(ctx, found.ID)
	if err != nil {
		return Submission{}, err
	}
	defer unlock()

	// Re-read under the lock: a previous holder may have stored a new id.
	subj, err := m.repo.FindByID(ctx, found.ID)
	if err != nil {
		return Submission{}, err
	}
	req := derivePayload(payload, subj)

	if subj.KycRequestID == "" {
		return m.create(ctx, subj, req, ActionCreated)
	}

	current, err := m.api.GetKycRequest(ctx, subj.KycRequestID)
	if err != nil {
		return Submission{}, apperr.WithKind(err, apperr.ErrUpstreamKyc)
	}

	if current.ExpiresAt.After(m.now()) {
		updated, err := m.api.UpdateKycRequest(ctx, subj.KycRequestID, req)
		if err != nil {
			return Submission{}, apperr.WithKind(err, apperr.ErrUpstreamKyc)
		}
		m.logger.InfoContext(ctx, "kyc request updated",
			slog.String("subject_id", subj.ID),
			slog.String("kyc_request_id", subj.KycRequestID),
		)
		return Submission{ID: subj.KycRequestID, Action: ActionUpdated, Request: updated}, nil
	}

	return m.create(ctx, subj, req, ActionRenewed)
}

func (m *Manager) create(ctx context.Context, subj subject.Subject, req provider.KycRequest, action Action) (Submission, error) {
	created, err := m.api.CreateKycRequest(ctx, req)
	if err != nil {
		return Submission{}, apperr.WithKind(err, apperr.ErrUpstreamKyc)
	}

	if _, err := m.repo.Update(ctx, subj.ID, func(s *subject.Subject) error {
		s.KycRequestID = created.ID
		return nil
	}); err != nil {
		return Submission{}, fmt.Errorf("store kyc request id: %w", err)
	}

	m.logger.InfoContext(ctx, "kyc request "+string(action),
		slog.String("subject_id", subj.ID),
		slog.String("kyc_request_id", created.ID),
		slog.String("previous_id", subj.KycRequestID),
	)
	return Submission{ID: created.ID, Action: action, Request: created}, nil
}

// Get fetches a KYC request from the provider.
func (m *Manager) Get(ctx context.Context, id string) (provider.KycRequestResource, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return provider.KycRequestResource{}, fmt.Errorf("%w: kyc request id is required", apperr.ErrInvalidInput)
	}
	res, err := m.api.GetKycRequest(ctx, id)
	if err != nil {
		return provider.KycRequestResource{}, apperr.WithKind(err, apperr.ErrUpstreamKyc)
	}
	return res, nil
}

// derivePayload fills blank payload fields from the subject.
func derivePayload(p provider.KycRequest, s subject.Subject) provider.KycRequest {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&p.Name, s.FullName)
	fill(&p.PAN, s.PAN)
	fill(&p.Email, s.Email)
	fill(&p.Occupation, s.Occupation)
	fill(&p.DateOfBirth, s.DateOfBirth)
	fill(&p.IncomeSlab, s.Income)
	if p.Mobile == nil && s.Phone != "" {
		p.Mobile = &provider.Mobile{ISD: defaultISD, Number: s.Phone}
	}
	return p
}
