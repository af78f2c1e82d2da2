package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/arthgyan/onboarding/internal/documents"
	"github.com/arthgyan/onboarding/internal/kyc"
	"github.com/arthgyan/onboarding/internal/provider"
)

const maxUploadBytes = 10 << 20

// FileUploader forwards user documents to the provider.
type FileUploader interface {
	UploadFile(ctx context.Context, upload provider.Upload) (provider.File, error)
}

// RegisterKycRoutes wires KYC requests, identity documents, e-signs and file uploads.
func RegisterKycRoutes(r fiber.Router, manager *kyc.Manager, driver *documents.Driver, files FileUploader, logger *slog.Logger) {
	r.Post("/kyc-request", func(c *fiber.Ctx) error {
		var req struct {
			Email       string               `json:"email"`
			Identifier  string               `json:"identifier"`
			PhoneNumber string               `json:"phoneNumber"`
			JSONRequest *provider.KycRequest `json:"jsonRequest" validate:"required"`
		}
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.Email, req.PhoneNumber)
		if err != nil {
			return err
		}
		sub, err := manager.Submit(c.UserContext(), ident, *req.JSONRequest)
		if err != nil {
			return err
		}
		message := "KYC request created successfully"
		if sub.Action == kyc.ActionUpdated {
			message = "KYC request updated successfully"
		}
		return c.JSON(fiber.Map{
			"message": message,
			"action":  sub.Action,
			"data":    sub.Request,
		})
	})

	r.Get("/kyc/:id", func(c *fiber.Ctx) error {
		res, err := manager.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	type artifactRequest struct {
		Email       string `json:"email"`
		Identifier  string `json:"identifier"`
		PostbackURL string `json:"postbackUrl" validate:"omitempty,url"`
	}
	r.Post("/generate-identity-document", func(c *fiber.Ctx) error {
		var req artifactRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.Email)
		if err != nil {
			return err
		}
		doc, err := driver.GenerateIdentityDocument(c.UserContext(), ident, req.PostbackURL)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message": "Identity document generated successfully",
			"data":    doc,
		})
	})
	r.Post("/create-esign", func(c *fiber.Ctx) error {
		var req artifactRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		ident, err := identifierFrom(req.Identifier, req.Email)
		if err != nil {
			return err
		}
		esign, err := driver.GenerateEsign(c.UserContext(), ident, req.PostbackURL)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"message": "E-sign created successfully",
			"data":    esign,
		})
	})

	r.Post("/upload-file", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "No file uploaded")
		}
		if fh.Size > maxUploadBytes {
			return fiber.NewError(http.StatusRequestEntityTooLarge, "file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return err
		}

		file, err := files.UploadFile(c.UserContext(), provider.Upload{
			Filename: fh.Filename,
			Content:  content,
			Purpose:  c.FormValue("purpose"),
		})
		if err != nil {
			return err
		}
		logger.InfoContext(c.UserContext(), "file uploaded",
			slog.String("file_id", file.ID),
			slog.Int64("size", fh.Size),
		)
		data := any(file.Raw)
		if len(file.Raw) == 0 {
			data = fiber.Map{"id": file.ID}
		}
		return c.JSON(fiber.Map{
			"message": "File uploaded successfully",
			"data":    data,
		})
	})
}
