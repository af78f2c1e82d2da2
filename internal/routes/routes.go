package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/arthgyan/onboarding/internal/callback"
	"github.com/arthgyan/onboarding/internal/config"
	"github.com/arthgyan/onboarding/internal/documents"
	"github.com/arthgyan/onboarding/internal/kyc"
	"github.com/arthgyan/onboarding/internal/middleware"
	"github.com/arthgyan/onboarding/internal/notification"
	"github.com/arthgyan/onboarding/internal/otp"
	"github.com/arthgyan/onboarding/internal/pincode"
	"github.com/arthgyan/onboarding/internal/subject"
)

// ProviderAPI is everything the HTTP layer reaches on the onboarding provider.
type ProviderAPI interface {
	kyc.API
	documents.API
	subject.InvestorProfiles
	FileUploader
	LookupPincode(ctx context.Context, pincode string) (json.RawMessage, error)
}

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Subjects subject.Repository
	Provider ProviderAPI
	Notifier notification.Notifier
	Cache    *redis.Client
	Logger   *slog.Logger
	Metrics  prometheus.Gatherer
	Checks   map[string]HealthCheck
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Subjects == nil {
		return fmt.Errorf("subject repository is required")
	}
	if d.Provider == nil {
		return fmt.Errorf("provider client is required")
	}
	if d.Cache == nil && !d.Cfg.IsDev() {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(logger, "/healthz", "/metrics"))

	RegisterHealthRoutes(app, d.Checks, d.Metrics)

	subjects := subject.NewService(d.Subjects, d.Provider, logger)
	ledger := otp.NewLedger(d.Subjects, notifier, logger, otp.Options{
		TTL:    d.Cfg.OTP.TTL,
		Digits: d.Cfg.OTP.Digits,
	})
	manager := kyc.NewManager(d.Subjects, d.Provider, logger)
	driver := documents.NewDriver(d.Subjects, d.Provider, documents.Postbacks{
		IdentityDocument: d.Cfg.CallbackURL("callback"),
		Esign:            d.Cfg.CallbackURL("callback-esign"),
	}, logger)
	resolver := callback.NewResolver(d.Cfg.Callback.DeepLinkScheme, d.Cfg.Callback.Strict, d.Subjects, logger)
	pincodes := pincode.NewCache(d.Provider, d.Cache, d.Cfg.PincodeCacheTTL, logger)

	api := app.Group("/api/auth")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var otpLimiter fiber.Handler
	if d.Cache != nil && d.Cfg.OTP.SendPerMinute > 0 {
		otpLimiter = middleware.OTPRateLimit(d.Cache, d.Cfg.OTP.SendPerMinute, logger)
	}

	RegisterOnboardingRoutes(api, subjects, ledger, otpLimiter, d.Cfg.OTP.ExposeCode)
	RegisterKycRoutes(api, manager, driver, d.Provider, logger)
	RegisterCallbackRoutes(api, resolver)
	RegisterPincodeRoutes(api, pincodes)

	return nil
}
