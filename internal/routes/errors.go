package routes

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/apperr"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// ErrorHandler renders handler errors as {"error", "details"} with the status
// apperr.HTTPStatus assigns. Internal failures are logged and hidden.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message})
		}

		var ve *validationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request", Details: ve.Fields})
		}

		status := apperr.HTTPStatus(err)
		resp := errorResponse{Error: err.Error()}

		var ue *apperr.UpstreamError
		switch {
		case errors.As(err, &ue):
			resp.Error = upstreamKind(err).Error()
			resp.Details = upstreamDetails(ue)
			logger.WarnContext(c.UserContext(), "upstream failure",
				slog.String("path", c.Path()),
				slog.String("op", ue.Op),
				slog.Int("provider_status", ue.Status),
				slog.String("error", err.Error()),
			)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			resp.Error = "request aborted before the provider answered"
			logger.WarnContext(c.UserContext(), "request aborted",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
			)
		case status >= fiber.StatusInternalServerError:
			logger.ErrorContext(c.UserContext(), "request failed",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
			)
			resp.Error = "internal server error"
		}

		return c.Status(status).JSON(resp)
	}
}

func upstreamKind(err error) error {
	for _, kind := range []error{apperr.ErrUpstreamAuth, apperr.ErrUpstreamKyc, apperr.ErrUpstreamDocument} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return apperr.ErrUpstream
}

func upstreamDetails(ue *apperr.UpstreamError) any {
	if len(ue.Body) > 0 && json.Valid(ue.Body) {
		return json.RawMessage(ue.Body)
	}
	if ue.Message != "" {
		return ue.Message
	}
	if ue.Err != nil {
		return ue.Err.Error()
	}
	return nil
}
