package routes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/apperr"
	"github.com/arthgyan/onboarding/internal/subject"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type validationError struct {
	Fields map[string]string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Fields)
}

func (e *validationError) Unwrap() error {
	return apperr.ErrInvalidInput
}

// bind parses the JSON or form body into dst and validates its tags.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		ve := &validationError{Fields: make(map[string]string, len(fieldErrs))}
		for _, fe := range fieldErrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			ve.Fields[fe.Field()] = rule
		}
		return ve
	}
	return nil
}

// identifierFrom parses the first non-empty value as a phone number or email.
func identifierFrom(values ...string) (subject.Identifier, error) {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return subject.ParseIdentifier(v)
		}
	}
	return subject.Identifier{}, fmt.Errorf("%w: phoneNumber or email is required", apperr.ErrInvalidInput)
}
