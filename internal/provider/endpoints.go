package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/apperr"
)

// CreateKycRequest creates a new KYC request.
func (cl *Client) CreateKycRequest(ctx context.Context, req KycRequest) (KycRequestResource, error) {
	var out KycRequestResource
	_, err := cl.do(ctx, call{
		op:     "create kyc request",
		kind:   apperr.ErrUpstreamKyc,
		method: fiber.MethodPost,
		path:   "/v2/kyc_requests",
		body:   req,
		out:    &out,
	})
	if err != nil {
		return KycRequestResource{}, err
	}
	if out.ID == "" {
		return KycRequestResource{}, missingID("create kyc request", apperr.ErrUpstreamKyc)
	}
	return out, nil
}

// GetKycRequest fetches a KYC request by id.
func (cl *Client) GetKycRequest(ctx context.Context, id string) (KycRequestResource, error) {
	var out KycRequestResource
	_, err := cl.do(ctx, call{
		op:     "get kyc request",
		kind:   apperr.ErrUpstreamKyc,
		method: fiber.MethodGet,
		path:   "/v2/kyc_requests/" + url.PathEscape(id),
		out:    &out,
	})
	if err != nil {
		return KycRequestResource{}, err
	}
	return out, nil
}

// UpdateKycRequest updates a live KYC request.
func (cl *Client) UpdateKycRequest(ctx context.Context, id string, req KycRequest) (KycRequestResource, error) {
	var out KycRequestResource
	_, err := cl.do(ctx, call{
		op:     "update kyc request",
		kind:   apperr.ErrUpstreamKyc,
		method: fiber.MethodPost,
		path:   "/v2/kyc_requests/" + url.PathEscape(id),
		body:   req,
		out:    &out,
	})
	if err != nil {
		return KycRequestResource{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// CreateIdentityDocument starts an identity document fetch for a KYC request.
func (cl *Client) CreateIdentityDocument(ctx context.Context, req IdentityDocumentRequest) (IdentityDocument, error) {
	var out IdentityDocument
	_, err := cl.do(ctx, call{
		op:     "create identity document",
		kind:   apperr.ErrUpstreamDocument,
		method: fiber.MethodPost,
		path:   "/v2/identity_documents",
		body:   req,
		out:    &out,
	})
	if err != nil {
		return IdentityDocument{}, err
	}
	if out.ID == "" {
		return IdentityDocument{}, missingID("create identity document", apperr.ErrUpstreamDocument)
	}
	return out, nil
}

// CreateEsign starts an e-sign for a KYC request.
func (cl *Client) CreateEsign(ctx context.Context, req EsignRequest) (Esign, error) {
	var out Esign
	_, err := cl.do(ctx, call{
		op:     "create esign",
		kind:   apperr.ErrUpstreamDocument,
		method: fiber.MethodPost,
		path:   "/v2/esigns",
		body:   req,
		out:    &out,
	})
	if err != nil {
		return Esign{}, err
	}
	if out.ID == "" {
		return Esign{}, missingID("create esign", apperr.ErrUpstreamDocument)
	}
	return out, nil
}

// CreateInvestorProfile creates an investor profile.
func (cl *Client) CreateInvestorProfile(ctx context.Context, req InvestorProfileRequest) (InvestorProfile, error) {
	var out InvestorProfile
	body, err := cl.do(ctx, call{
		op:     "create investor profile",
		kind:   apperr.ErrUpstream,
		method: fiber.MethodPost,
		path:   "/v2/investor_profiles",
		body:   req,
		out:    &out,
	})
	if err != nil {
		return InvestorProfile{}, err
	}
	out.Raw = json.RawMessage(body)
	return out, nil
}

// LookupPincode returns the provider's pincode record unchanged.
func (cl *Client) LookupPincode(ctx context.Context, pincode string) (json.RawMessage, error) {
	pincode = strings.TrimSpace(pincode)
	if pincode == "" {
		return nil, apperr.ErrInvalidInput
	}
	body, err := cl.do(ctx, call{
		op:     "lookup pincode",
		kind:   apperr.ErrUpstream,
		method: fiber.MethodGet,
		path:   "/api/onb/pincodes/" + url.PathEscape(pincode),
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// UploadFile sends a file as multipart form data.
func (cl *Client) UploadFile(ctx context.Context, upload Upload) (File, error) {
	if len(upload.Content) == 0 || upload.Filename == "" {
		return File{}, apperr.ErrInvalidInput
	}
	var out File
	body, err := cl.do(ctx, call{
		op:     "upload file",
		kind:   apperr.ErrUpstream,
		method: fiber.MethodPost,
		path:   "/files",
		upload: &upload,
		out:    &out,
	})
	if err != nil {
		return File{}, err
	}
	out.Raw = json.RawMessage(body)
	return out, nil
}

func missingID(op string, kind error) error {
	return &apperr.UpstreamError{Kind: kind, Op: op, Status: fiber.StatusOK, Message: "provider response without id"}
}
