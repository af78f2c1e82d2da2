package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/otp"
	"github.com/arthgyan/onboarding/internal/provider"
	"github.com/arthgyan/onboarding/internal/subject"
)

type otpRequest struct {
	Identifier  string `json:"identifier"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email" validate:"omitempty,email"`
	Name        string `json:"name"`
}

// hints returns the profile fields an OTP request may carry. The email is
// only a hint when the subject is addressed by phone.
func (r otpRequest) hints(ident subject.Identifier) subject.Profile {
	p := subject.Profile{FullName: r.Name}
	if ident.Kind == subject.KindPhone {
		p.Email = r.Email
	}
	return p
}

// RegisterOnboardingRoutes wires registration, OTP, PIN and profile endpoints.
func RegisterOnboardingRoutes(r fiber.Router, subjects *subject.Service, ledger *otp.Ledger, otpLimiter fiber.Handler, exposeCode bool) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req struct {
			Name        string `json:"name" validate:"required"`
			PhoneNumber string `json:"phoneNumber" validate:"required"`
			Email       string `json:"email" validate:"required,email"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		subj, err := subjects.Register(c.UserContext(), subject.Registration{FullName: req.Name, Phone: req.PhoneNumber, Email: req.Email})
		if err != nil {
			return err
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message": "User Registration Successfull",
			"user":    newContactView(subj),
		})
	})

	sendOTP := func(issue func(*fiber.Ctx, subject.Identifier, subject.Profile) (otp.Issued, error)) fiber.Handler {
		return func(c *fiber.Ctx) error {
			var req otpRequest
			if err := bind(c, &req); err != nil {
				return err
			}
			ident, err := identifierFrom(req.Identifier, req.PhoneNumber, req.Email)
			if err != nil {
				return err
			}
			issued, err := issue(c, ident, req.hints(ident))
			if err != nil {
				return err
			}
			resp := fiber.Map{
				"message":   "OTP sent successfully",
				"expiresAt": issued.ExpiresAt,
				"isNewUser": issued.Created,
			}
			if exposeCode {
				resp["otp"] = issued.Code
			}
			return c.JSON(resp)
		}
	}
	limited := func(h fiber.Handler) []fiber.Handler {
		if otpLimiter == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{otpLimiter, h}
	}

	r.Post("/send-otp", limited(sendOTP(func(c *fiber.Ctx, ident subject.Identifier, hints subject.Profile) (otp.Issued, error) {
		return ledger.IssueForRegistered(c.UserContext(), ident, hints)
	}))...)
	r.Post("/request-otp", limited(sendOTP(func(c *fiber.Ctx, ident subject.Identifier, hints subject.Profile) (otp.Issued, error) {
		return ledger.IssueForRegistration(c.UserContext(), ident, hints)
	}))...)

	r.Post("/verify-otp", func(c *fiber.Ctx) error {
		var req struct {
			otpRequest
			OTP string `json:"otp" validate:"required"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.PhoneNumber, req.Email)
		if err != nil {
			return err
		}
		verified, err := ledger.Verify(c.UserContext(), ident, req.OTP, req.hints(ident))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message": "OTP verified successfully",
			"hasPin":  verified.HasPIN,
			"user":    newContactView(verified.Subject),
		})
	})

	r.Post("/google-signin", func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email" validate:"required,email"`
			Name     string `json:"name"`
			GoogleID string `json:"googleId"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		subj, isNew, err := subjects.GoogleSignIn(c.UserContext(), subject.GoogleProfile{Email: req.Email, Name: req.Name, GoogleID: req.GoogleID})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message":   "Google Sign-In successful",
			"user":      newContactView(subj),
			"isNewUser": isNew,
		})
	})

	type pinRequest struct {
		Identifier string `json:"identifier" validate:"required"`
		PIN        string `json:"pin" validate:"required,len=4,numeric"`
	}
	r.Post("/update-pin", func(c *fiber.Ctx) error {
		var req pinRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := subject.ParseIdentifier(req.Identifier)
		if err != nil {
			return err
		}
		subj, err := subjects.SetPIN(c.UserContext(), ident, req.PIN)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "PIN updated successfully", "user": newContactView(subj)})
	})
	r.Post("/verify-pin", func(c *fiber.Ctx) error {
		var req pinRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := subject.ParseIdentifier(req.Identifier)
		if err != nil {
			return err
		}
		if _, err := subjects.VerifyPIN(c.UserContext(), ident, req.PIN); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "PIN verified successfully"})
	})

	r.Post("/update-pan", func(c *fiber.Ctx) error {
		var req struct {
			Identifier  string `json:"identifier"`
			PhoneNumber string `json:"phoneNumber"`
			PANNumber   string `json:"panNumber" validate:"required,len=10"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.PhoneNumber)
		if err != nil {
			return err
		}
		if _, err := subjects.UpdatePAN(c.UserContext(), ident, req.PANNumber); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "PAN number updated successfully"})
	})
	r.Post("/update-occupation", func(c *fiber.Ctx) error {
		var req struct {
			Identifier  string `json:"identifier"`
			PhoneNumber string `json:"phoneNumber"`
			Occupation  string `json:"occupation" validate:"required"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.PhoneNumber)
		if err != nil {
			return err
		}
		if _, err := subjects.UpdateOccupation(c.UserContext(), ident, req.Occupation); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Occupation updated successfully"})
	})
	r.Post("/update-income", func(c *fiber.Ctx) error {
		var req struct {
			Identifier  string `json:"identifier"`
			PhoneNumber string `json:"phoneNumber"`
			Income      string `json:"income" validate:"required"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.PhoneNumber)
		if err != nil {
			return err
		}
		if _, err := subjects.UpdateIncome(c.UserContext(), ident, req.Income); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Income updated successfully"})
	})

	r.Post("/check-user", func(c *fiber.Ctx) error {
		var req struct {
			Identifier  string `json:"identifier"`
			PhoneNumber string `json:"phoneNumber"`
			Email       string `json:"email"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.PhoneNumber, req.Email)
		if err != nil {
			return err
		}
		subj, err := subjects.Lookup(c.UserContext(), ident)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "User Exists", "user": newContactView(subj)})
	})

	r.Get("/user/:identifier", func(c *fiber.Ctx) error {
		ident, err := subject.ParseIdentifier(c.Params("identifier"))
		if err != nil {
			return err
		}
		subj, err := subjects.Lookup(c.UserContext(), ident)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "User data fetched successfully", "user": newUserView(subj)})
	})

	r.Put("/user/:phoneNumber", func(c *fiber.Ctx) error {
		var req profileFields
		if err := bind(c, &req); err != nil {
			return err
		}
		subj, err := subjects.UpdateProfile(c.UserContext(), subject.Phone(c.Params("phoneNumber")), req.profile())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "User information updated successfully", "user": newUserView(subj)})
	})

	r.Post("/user/updateUser", func(c *fiber.Ctx) error {
		var req struct {
			Email       string          `json:"email" validate:"required,email"`
			UpdatedUser json.RawMessage `json:"updatedUser" validate:"required"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		// The same object feeds the stored profile and the provider payload.
		var fields profileFields
		var investor provider.InvestorProfileRequest
		if err := json.Unmarshal(req.UpdatedUser, &fields); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid updatedUser")
		}
		if err := json.Unmarshal(req.UpdatedUser, &investor); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid updatedUser")
		}
		profile := fields.profile()
		if profile.FullName == "" {
			profile.FullName = investor.Name
		}
		if profile.PAN == "" {
			profile.PAN = investor.PAN
		}
		if profile.DateOfBirth == "" {
			profile.DateOfBirth = investor.DateOfBirth
		}
		subj, created, err := subjects.PushInvestorProfile(c.UserContext(), subject.Email(req.Email), subject.InvestorProfileUpdate{
			Profile: profile,
			Request: investor,
		})
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message":             "User data updated and sent to external API successfully",
			"user":                newUserView(subj),
			"externalApiResponse": created.Raw,
		})
	})
}
