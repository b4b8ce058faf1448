package controllers

import (
	"bytes"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payu"
	"github.com/ManuelReschke/CertLedger/internal/pkg/usercontext"
)

type beginRequest struct {
	itemRequest
	TxnID     string `json:"txnid" validate:"omitempty,max=25"`
	Amount    *int64 `json:"amount" validate:"omitempty,gte=0"`
	PromoCode string `json:"promo_code"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
}

// HandleBeginGatewayPayment returns the signed form the browser posts to the
// payment gateway.
func (h *Handlers) HandleBeginGatewayPayment(c *fiber.Ctx) error {
	var req beginRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	item, err := req.item()
	if err != nil {
		return writeError(c, err)
	}

	res, err := h.Gateway.Begin(c.UserContext(), payment.BeginInput{
		TxnID:     req.TxnID,
		StudentID: usercontext.StudentID(c),
		Item:      item,
		Amount:    req.Amount,
		PromoCode: req.PromoCode,
		FirstName: req.FirstName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleGatewayCallback settles the form posted back by the gateway. Browsers
// are redirected to the success or failure page; JSON clients get the result.
func (h *Handlers) HandleGatewayCallback(c *fiber.Ctx) error {
	rep := payu.ParseReply(func(key string) string { return c.FormValue(key) })
	if rep.TxnID == "" || rep.Hash == "" {
		if acceptsJSON(c) {
			return writeError(c, apperr.E(apperr.Invalid, "txnid and hash are required"))
		}
		return h.redirectFailure(c, "failed", rep.TxnID)
	}

	res, err := h.Gateway.HandleCallback(c.UserContext(), rep, c.IP())
	if acceptsJSON(c) {
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(res)
	}

	switch {
	case err == nil && res.Outcome == models.GatewaySuccess:
		return h.redirectSuccess(c, res.TxnID)
	case err == nil && res.Outcome == models.GatewayCancelled:
		return h.redirectFailure(c, "cancelled", res.TxnID)
	case err == nil:
		return h.redirectFailure(c, "failed", res.TxnID)
	case apperr.IsKind(err, apperr.SignatureMismatch):
		return h.redirectFailure(c, "tampered", rep.TxnID)
	case apperr.IsKind(err, apperr.NotFound):
		return h.redirectFailure(c, "failed", rep.TxnID)
	default:
		log.Errorf("[Gateway] Callback for %s failed: %v", rep.TxnID, err)
		return h.redirectFailure(c, "server_error", rep.TxnID)
	}
}

func (h *Handlers) redirectSuccess(c *fiber.Ctx, txnID string) error {
	return c.Redirect(withQuery(h.Redirects.SuccessURL, url.Values{"txnid": {txnID}}), fiber.StatusSeeOther)
}

func (h *Handlers) redirectFailure(c *fiber.Ctx, reason, txnID string) error {
	q := url.Values{"reason": {reason}}
	if txnID != "" {
		q.Set("txnid", txnID)
	}
	return c.Redirect(withQuery(h.Redirects.FailureURL, q), fiber.StatusSeeOther)
}

func withQuery(target string, q url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}

type submitProofRequest struct {
	itemRequest
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	TransactionID string `json:"transaction_id" validate:"required,max=191"`
	ScreenshotURL string `json:"screenshot_url" validate:"required,max=512"`
	PromoCode     string `json:"promo_code"`
}

// HandleSubmitPaymentProof records a student's proof of an out-of-band
// transfer for admin review.
func (h *Handlers) HandleSubmitPaymentProof(c *fiber.Ctx) error {
	var req submitProofRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	item, err := req.item()
	if err != nil {
		return writeError(c, err)
	}

	proof, err := h.Proofs.Submit(c.UserContext(), payment.SubmitInput{
		StudentID:             usercontext.StudentID(c),
		Item:                  item,
		Amount:                req.Amount,
		ExternalTransactionID: req.TransactionID,
		EvidenceRef:           req.ScreenshotURL,
		PromoCode:             req.PromoCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(proof)
}

type decideProofRequest struct {
	Action          string `json:"action" validate:"required,oneof=verify reject"`
	RejectionReason string `json:"rejection_reason" validate:"max=1000"`
}

// HandleDecidePaymentProof verifies or rejects a pending proof.
func (h *Handlers) HandleDecidePaymentProof(c *fiber.Ctx) error {
	var req decideProofRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	action, _ := models.ParseProofAction(req.Action)

	d, err := h.Proofs.Decide(c.UserContext(), payment.DecideInput{
		ProofID:         c.Params("id"),
		Action:          action,
		RejectionReason: req.RejectionReason,
		DecidedBy:       usercontext.AdminName(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(d)
}

func proofFilter(c *fiber.Ctx) repository.ProofFilter {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return repository.ProofFilter{
		Status:    models.ProofStatus(c.Query("status")),
		StudentID: c.Query("student_id"),
		Limit:     limit,
		Offset:    offset,
	}
}

// HandleListPaymentProofs lists proofs, newest first.
func (h *Handlers) HandleListPaymentProofs(c *fiber.Ctx) error {
	proofs, err := h.Proofs.List(c.UserContext(), proofFilter(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"proofs": proofs, "count": len(proofs)})
}

// HandleExportPaymentProofs downloads the filtered proofs as XLSX.
func (h *Handlers) HandleExportPaymentProofs(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.Proofs.Export(c.UserContext(), proofFilter(c), &buf); err != nil {
		return writeError(c, err)
	}
	name := "payment-proofs-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(buf.Bytes())
}
