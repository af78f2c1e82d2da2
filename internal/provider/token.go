package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/apperr"
)

// ClientCredentials issues tokens with the OAuth client-credentials grant.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Now          func() time.Time
}

// IssueToken posts the client credentials as a form and returns the credential.
func (c ClientCredentials) IssueToken(ctx context.Context) (Credential, error) {
	const op = "issue token"

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	timeout, err := callTimeout(ctx, c.Timeout)
	if err != nil {
		return Credential{}, &apperr.UpstreamError{Kind: apperr.ErrUpstreamAuth, Op: op, Err: err}
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("client_id", c.ClientID)
	args.Set("client_secret", c.ClientSecret)
	args.Set("grant_type", "client_credentials")

	agent := fiber.Post(c.TokenURL).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Form(args).
		Timeout(timeout)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Credential{}, &apperr.UpstreamError{Kind: apperr.ErrUpstreamAuth, Op: op, Err: errors.Join(errs...)}
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return Credential{}, &apperr.UpstreamError{
			Kind:    apperr.ErrUpstreamAuth,
			Op:      op,
			Status:  status,
			Message: errorMessage(body),
			Body:    body,
		}
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Credential{}, &apperr.UpstreamError{Kind: apperr.ErrUpstreamAuth, Op: op, Status: status, Message: "malformed token response", Body: body, Err: err}
	}
	if resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		return Credential{}, &apperr.UpstreamError{Kind: apperr.ErrUpstreamAuth, Op: op, Status: status, Message: "token response without access_token or expires_in", Body: body}
	}

	return Credential{
		Token:     resp.AccessToken,
		ExpiresAt: now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
