package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/arthgyan/onboarding/internal/apperr"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "arthgyan-onboarding"
	tracerName     = "github.com/arthgyan/onboarding/internal/provider"
)

var errRateLimited = errors.New("outbound rate limit")

// Options configures a Client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Metrics           *Metrics
	Logger            *slog.Logger
}

// Client calls the onboarding provider API with a bearer token from tokens.
type Client struct {
	baseURL string
	tokens  TokenSource
	timeout time.Duration
	limiter *rate.Limiter
	http    *fiber.Client
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewClient builds a provider client.
func NewClient(tokens TokenSource, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: opts.BaseURL,
		tokens:  tokens,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		http:    &fiber.Client{UserAgent: userAgent},
		metrics: opts.Metrics,
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
	}
}

// call describes one provider request.
type call struct {
	op     string
	kind   error
	method string
	path   string
	body   any
	upload *Upload
	out    any
}

// do sends c with a bearer token and decodes a 2xx JSON answer into c.out.
// Non-2xx answers become *apperr.UpstreamError tagged with c.kind. A 401
// drops the cached credential so the next call refreshes it.
func (cl *Client) do(ctx context.Context, c call) ([]byte, error) {
	ctx, span := cl.tracer.Start(ctx, "provider."+c.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", c.method),
			attribute.String("provider.path", c.path),
		))
	defer span.End()

	start := time.Now()
	status, body, err := cl.send(ctx, c)
	cl.metrics.observe(c.op, status, err, time.Since(start))

	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		cl.logger.WarnContext(ctx, "provider call failed",
			slog.String("op", c.op),
			slog.Int("status", status),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return body, nil
}

// send returns the caller's context error unwrapped when the caller gives up
// before the request goes out, so aborts are not reported as provider failures.
func (cl *Client) send(ctx context.Context, c call) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if err := cl.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, cl.transportError(c, fmt.Errorf("%w: %v", errRateLimited, err))
	}

	token, err := cl.tokens.Token(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		if apperr.IsUpstream(err) {
			return 0, nil, err
		}
		return 0, nil, &apperr.UpstreamError{Kind: apperr.ErrUpstreamAuth, Op: c.op, Err: err}
	}

	timeout, err := callTimeout(ctx, cl.timeout)
	if err != nil {
		return 0, nil, err
	}

	agent := cl.agent(c.method, cl.baseURL+c.path).
		Set(fiber.HeaderAuthorization, "Bearer "+token).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Timeout(timeout)

	switch {
	case c.upload != nil:
		args := fiber.AcquireArgs()
		defer fiber.ReleaseArgs(args)
		if c.upload.Purpose != "" {
			args.Set("purpose", c.upload.Purpose)
		}
		agent.FileData(&fiber.FormFile{Fieldname: "file", Name: c.upload.Filename, Content: c.upload.Content}).
			MultipartForm(args)
	case c.body != nil:
		agent.JSON(c.body)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, nil, cl.transportError(c, errors.Join(errs...))
	}

	if status == fiber.StatusUnauthorized {
		cl.tokens.Invalidate()
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return status, body, &apperr.UpstreamError{
			Kind:    c.kind,
			Op:      c.op,
			Status:  status,
			Message: errorMessage(body),
			Body:    body,
		}
	}

	if c.out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, c.out); err != nil {
			return status, body, &apperr.UpstreamError{
				Kind:    c.kind,
				Op:      c.op,
				Status:  status,
				Message: "malformed provider response",
				Body:    body,
				Err:     err,
			}
		}
	}
	return status, body, nil
}

func (cl *Client) agent(method, url string) *fiber.Agent {
	switch method {
	case fiber.MethodGet:
		return cl.http.Get(url)
	case fiber.MethodPut:
		return cl.http.Put(url)
	default:
		return cl.http.Post(url)
	}
}

func (cl *Client) transportError(c call, err error) error {
	return &apperr.UpstreamError{Kind: c.kind, Op: c.op, Err: err}
}

// callTimeout returns configured, shortened to what is left of the ctx deadline.
func callTimeout(ctx context.Context, configured time.Duration) (time.Duration, error) {
	if configured <= 0 {
		configured = defaultTimeout
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return configured, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, context.DeadlineExceeded
	}
	return min(configured, left), nil
}

// errorMessage extracts a human readable message from a provider error body.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return truncate(string(body), 256)
	}
	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(payload.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}
	if payload.Message != "" {
		return payload.Message
	}
	return truncate(string(body), 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
