package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/pincode"
)

// RegisterPincodeRoutes exposes the cached pincode lookup.
func RegisterPincodeRoutes(r fiber.Router, cache *pincode.Cache) {
	r.Get("/pincode/:pincode", func(c *fiber.Ctx) error {
		record, err := cache.Lookup(c.UserContext(), c.Params("pincode"))
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(record)
	})
}
