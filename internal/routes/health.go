package routes

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, checks map[string]HealthCheck, gatherer prometheus.Gatherer) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		statuses := fiber.Map{}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				statuses[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			statuses[name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    statuses,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
