package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
)

var validate = validator.New()

// statusOf maps error kinds to HTTP statuses. Idempotency outcomes are
// conflicts so clients can tell them from failures.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Invalid, apperr.SignatureMismatch:
		return fiber.StatusBadRequest
	case apperr.Unauthorized:
		return fiber.StatusUnauthorized
	case apperr.NotFound:
		return fiber.StatusNotFound
	case apperr.AlreadyIssued, apperr.AlreadyEnrolled, apperr.AlreadyDecided, apperr.DuplicateReference:
		return fiber.StatusConflict
	case apperr.NotEligible, apperr.NotApplicable, apperr.Expired, apperr.UsageLimitReached,
		apperr.NoCodeFound, apperr.AmountMismatch:
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// writeError renders err as {"error": code, "message": text}. extra fields
// are merged into the body.
func writeError(c *fiber.Ctx, err error, extra ...fiber.Map) error {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if kind == apperr.Other {
		kind = apperr.Internal
	}

	message := apperr.MessageOf(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "Internal server error"
	}

	body := fiber.Map{"error": kind.String(), "message": message}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.Status(status).JSON(body)
}

// bind parses the JSON body into req and validates its struct tags.
func bind(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return apperr.E(apperr.Invalid, "Invalid request body", err)
	}
	if err := validate.Struct(req); err != nil {
		return apperr.E(apperr.Invalid, validationMessage(err), err)
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "Invalid request"
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return "Validation failed: " + strings.Join(parts, ", ")
}

// itemRequest is embedded by payloads that reference a course or an
// internship.
type itemRequest struct {
	CourseID     string `json:"course_id" form:"course_id"`
	InternshipID string `json:"internship_id" form:"internship_id"`
}

func (r itemRequest) item() (models.ItemRef, error) {
	ref, err := models.ItemRefFromIDs(strings.TrimSpace(r.CourseID), strings.TrimSpace(r.InternshipID))
	if err != nil {
		return models.ItemRef{}, apperr.E(apperr.Invalid, err.Error())
	}
	return ref, nil
}

func acceptsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}
