package controllers

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/certificate"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/usercontext"
)

// HandleVerifyCredential verifies by path ID, or by raw scanned text in ?q=.
func (h *Handlers) HandleVerifyCredential(c *fiber.Ctx) error {
	raw := c.Params("id")
	if raw == "" {
		raw = c.Query("q")
	}
	if raw == "" {
		return writeError(c, apperr.E(apperr.Invalid, "credential ID or q is required"))
	}

	res, err := h.Verifier.Verify(c.UserContext(), raw)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// HandleCompareCredential compares printed document fields with the record.
func (h *Handlers) HandleCompareCredential(c *fiber.Ctx) error {
	var req certificate.Printed
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.E(apperr.Invalid, "Invalid request body", err))
	}
	res, err := h.Verifier.Compare(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// HandleScanCredential reads the QR code from an uploaded image and verifies
// the credential it points at.
func (h *Handlers) HandleScanCredential(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return writeError(c, apperr.E(apperr.Invalid, "image upload is required", err))
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, apperr.E(apperr.Invalid, "could not read upload", err))
	}
	defer f.Close()

	id, err := h.Scanner.Scan(f, fh.Filename)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.Verifier.Verify(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"credential_id": id, "result": res})
}

// HandleCredentialQR renders the verification QR code of a credential ID.
func (h *Handlers) HandleCredentialQR(c *fiber.Ctx) error {
	id := credential.NormalizeID(c.Params("id"))
	if id == "" {
		return writeError(c, apperr.E(apperr.Invalid, "credential ID is required"))
	}
	png, err := h.Codec.RenderQR(h.Codec.EncodeVerificationPayload(id))
	if err != nil {
		return writeError(c, apperr.Internalf("could not render QR code", err))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(png)
}

// HandleCredentialDocument streams the printable PDF certificate.
func (h *Handlers) HandleCredentialDocument(c *fiber.Ctx) error {
	var buf bytes.Buffer
	cred, err := h.Renderer.Render(c.UserContext(), c.Params("id"), &buf)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s.pdf"`, cred.CredentialID))
	return c.Send(buf.Bytes())
}

type credentialResponse struct {
	Credential *models.Credential `json:"credential"`
	QRURL      string             `json:"qr_url"`
	VerifyURL  string             `json:"verify_url"`
}

func (h *Handlers) credentialBody(cred *models.Credential) credentialResponse {
	return credentialResponse{
		Credential: cred,
		QRURL:      "/api/v1/credentials/" + cred.CredentialID + "/qr.png",
		VerifyURL:  h.Codec.EncodeVerificationPayload(cred.CredentialID),
	}
}

// HandleIssueCustomCredential issues an ad hoc credential.
func (h *Handlers) HandleIssueCustomCredential(c *fiber.Ctx) error {
	var req certificate.CustomInput
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	cred, err := h.Issuer.IssueCustom(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.credentialBody(cred))
}

type completionRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=course internship"`
	EnrollmentID uint   `json:"enrollment_id" validate:"required"`
}

// HandleIssueCompletionCredential issues the credential for a completed
// enrollment. A repeat returns 409 with the existing credential.
func (h *Handlers) HandleIssueCompletionCredential(c *fiber.Ctx) error {
	var req completionRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	kind, _ := models.ParseCredentialKind(req.Kind)

	cred, err := h.Issuer.IssueForCompletion(c.UserContext(), kind, req.EnrollmentID)
	if err != nil {
		if apperr.IsKind(err, apperr.AlreadyIssued) && cred != nil {
			return writeError(c, err, fiber.Map{"credential": cred})
		}
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.credentialBody(cred))
}

type progressRequest struct {
	Progress int      `json:"progress" validate:"gte=0,lte=100"`
	Score    *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
}

// HandleRecordProgress stores content progress reported for an enrollment.
func (h *Handlers) HandleRecordProgress(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return writeError(c, apperr.E(apperr.Invalid, "invalid enrollment ID"))
	}
	var req progressRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	e, err := h.Activator.RecordProgress(c.UserContext(), uint(id), enrollment.ProgressInput{Progress: req.Progress, Score: req.Score})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"enrollment": e, "recorded_by": usercontext.AdminName(c)})
}
