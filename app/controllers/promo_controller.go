package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
)

type validatePromoRequest struct {
	Code string `json:"code" validate:"required"`
	itemRequest
}

// HandleValidatePromoCode quotes a promo code for an item without consuming
// a use.
func (h *Handlers) HandleValidatePromoCode(c *fiber.Ctx) error {
	var req validatePromoRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	item, err := req.item()
	if err != nil {
		return writeError(c, err)
	}

	q, err := h.Pricer.Quote(c.UserContext(), item, req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"valid":           true,
		"code":            q.PromoCode,
		"original_amount": q.BaseAmount,
		"discount":        q.Discount,
		"final_amount":    q.FinalAmount,
	})
}

// HandleCreatePromoCode stores a new promo code.
func (h *Handlers) HandleCreatePromoCode(c *fiber.Ctx) error {
	var req promo.CreateInput
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	p, err := h.Promos.Create(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// HandleListPromoCodes lists every promo code with its usage.
func (h *Handlers) HandleListPromoCodes(c *fiber.Ctx) error {
	codes, err := h.Promos.List(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"promo_codes": codes, "count": len(codes)})
}
