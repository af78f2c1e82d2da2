package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the subject (or the record a callback refers to) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCode indicates no pending OTP exists or the supplied code does not match.
	ErrInvalidCode = errors.New("invalid otp")
	// ErrExpired indicates the pending OTP was presented at or after its expiry.
	ErrExpired = errors.New("otp has expired")
	// ErrNotRegistered rejects OTP issuance for unknown identifiers where registration is required.
	ErrNotRegistered = errors.New("user not registered")
	// ErrAlreadyRegistered rejects registration for a phone or email already in use.
	ErrAlreadyRegistered = errors.New("user already registered")
	// ErrInvalidInput covers malformed identifiers, PINs, PANs and the like.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidPIN indicates a PIN mismatch or a subject without a PIN.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrMissingPrerequisite indicates an artifact was requested before its KYC request exists.
	ErrMissingPrerequisite = errors.New("kyc request not found")
	// ErrMissingFields indicates a provider callback without an artifact id or status.
	ErrMissingFields = errors.New("missing required fields")
	// ErrConcurrentUpdate indicates a subject kept changing under a write.
	ErrConcurrentUpdate = errors.New("subject modified concurrently")

	// ErrUpstreamAuth marks failures of the provider token issuance.
	ErrUpstreamAuth = errors.New("provider authentication failed")
	// ErrUpstreamKyc marks failures of provider KYC request calls.
	ErrUpstreamKyc = errors.New("provider kyc request failed")
	// ErrUpstreamDocument marks failures of provider identity document and esign calls.
	ErrUpstreamDocument = errors.New("provider document request failed")
	// ErrUpstream marks any other provider failure (pincode, profiles, files).
	ErrUpstream = errors.New("provider request failed")
)

// UpstreamError carries the provider's answer for a failed call. Kind is one
// of the ErrUpstream* sentinels so callers can match with errors.Is.
type UpstreamError struct {
	Kind    error
	Op      string
	Status  int
	Message string
	Body    []byte
	Err     error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s: status %d: %s", e.kind(), e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.kind(), e.Op, msg)
}

// Unwrap exposes the transport error, if any.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel.
func (e *UpstreamError) Is(target error) bool {
	return target == e.kind()
}

func (e *UpstreamError) kind() error {
	if e.Kind == nil {
		return ErrUpstream
	}
	return e.Kind
}

// WithKind returns a copy of err re-tagged with kind when err is an
// UpstreamError; other errors are returned unchanged.
func WithKind(err error, kind error) error {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return err
	}
	cp := *ue
	cp.Kind = kind
	return &cp
}

// IsUpstream reports whether err came from the provider.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// StatusClientClosedRequest is reported when the caller went away first.
const StatusClientClosedRequest = 499

// HTTPStatus maps an error to the status code returned to API clients.
// Client input problems are 4xx, provider failures 502.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidPIN),
		errors.Is(err, ErrMissingPrerequisite),
		errors.Is(err, ErrMissingFields):
		return http.StatusBadRequest
	case IsUpstream(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
