package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/callback"
	"github.com/arthgyan/onboarding/internal/subject"
)

// RegisterCallbackRoutes wires the provider postbacks that bounce the user
// back into the mobile app. Both accept any method; parameters come from the
// query string.
func RegisterCallbackRoutes(r fiber.Router, resolver *callback.Resolver) {
	redirect := func(kind subject.ArtifactKind, idParam string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			link, err := resolver.Resolve(c.UserContext(), callback.Notification{
				Kind:       kind,
				ArtifactID: c.Query(idParam),
				Status:     c.Query("status"),
			})
			if err != nil {
				return err
			}
			return c.Redirect(link, http.StatusFound)
		}
	}
	r.All("/callback", redirect(subject.ArtifactIdentityDocument, "identity_document"))
	r.All("/callback-esign", redirect(subject.ArtifactEsign, "esign"))
}
