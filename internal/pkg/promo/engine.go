package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
)

// Quote is the result of applying a promo code to a price. Amounts are whole
// currency units.
type Quote struct {
	Code          string              `json:"code"`
	DiscountType  models.DiscountType `json:"discount_type"`
	DiscountValue int64               `json:"discount_value"`
	BaseAmount    int64               `json:"base_amount"`
	Discount      int64               `json:"discount"`
	FinalAmount   int64               `json:"final_amount"`
}

// Engine validates promo codes. Validation never changes usage counters.
type Engine struct {
	repo repository.PromoCodeRepository
	now  func() time.Time
}

func NewEngine(repo repository.PromoCodeRepository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Validate checks code against the item and price and returns the
// discounted amount. itemID may be empty when only the type is known.
func (e *Engine) Validate(ctx context.Context, code string, itemType models.ItemType, baseAmount int64, itemID string) (*Quote, error) {
	c := models.NormalizePromoCode(code)
	if c == "" {
		return nil, apperr.E(apperr.Invalid, "promo code is required")
	}
	if baseAmount < 0 {
		return nil, apperr.E(apperr.Invalid, "base amount must not be negative")
	}

	p, err := e.repo.GetByCode(ctx, c)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "invalid promo code")
		}
		return nil, apperr.Internalf("promo code lookup failed", err)
	}

	if err := Check(p, itemType, itemID, baseAmount, e.now()); err != nil {
		return nil, err
	}

	final := Apply(p, baseAmount)
	return &Quote{
		Code:          p.Code,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		BaseAmount:    baseAmount,
		Discount:      baseAmount - final,
		FinalAmount:   final,
	}, nil
}

// Check applies every constraint of p to the purchase.
func Check(p *models.PromoCode, itemType models.ItemType, itemID string, baseAmount int64, now time.Time) error {
	if !p.IsActive {
		return apperr.E(apperr.NotFound, "invalid promo code")
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return apperr.E(apperr.Expired, "promo code has expired")
	}
	if p.Exhausted() {
		return apperr.E(apperr.UsageLimitReached, "promo code usage limit reached")
	}
	if !p.ApplicableTo.Covers(itemType) {
		return apperr.E(apperr.NotApplicable, fmt.Sprintf("promo code is not applicable to %ss", itemType))
	}
	if itemID != "" && !p.AppliesToItem(itemID) {
		return apperr.E(apperr.NotApplicable, "promo code is not applicable to this item")
	}
	if baseAmount < p.MinAmount {
		return apperr.E(apperr.NotApplicable, fmt.Sprintf("promo code requires a minimum amount of %d", p.MinAmount))
	}
	return nil
}

// Apply computes the discounted price. Percentages round half away from
// zero to the nearest whole unit. Flat discounts never go below zero.
func Apply(p *models.PromoCode, baseAmount int64) int64 {
	switch p.DiscountType {
	case models.DiscountPercentage:
		value := clamp(p.DiscountValue, 0, 100)
		return (baseAmount*(100-value) + 50) / 100
	case models.DiscountFlat:
		if p.DiscountValue >= baseAmount {
			return 0
		}
		return baseAmount - p.DiscountValue
	}
	return baseAmount
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Redeem records one use of code through repo, which is expected to be the
// transactional view of the payment confirmation.
func Redeem(ctx context.Context, repo repository.PromoCodeRepository, code string) error {
	c := models.NormalizePromoCode(code)
	ok, err := repo.IncrementUsage(ctx, c)
	if err != nil {
		return apperr.Internalf("promo code redemption failed", err)
	}
	if !ok {
		return apperr.E(apperr.UsageLimitReached, "promo code usage limit reached")
	}
	log.Infof("[Promo] Redeemed code %s", c)
	return nil
}

// CreateInput is the admin payload for a new promo code.
type CreateInput struct {
	Code              string              `json:"code"`
	DiscountType      models.DiscountType `json:"discount_type"`
	DiscountValue     int64               `json:"discount_value"`
	ApplicableTo      models.PromoScope   `json:"applicable_to"`
	ApplicableItemIDs []string            `json:"applicable_item_ids"`
	MinAmount         int64               `json:"min_amount"`
	ExpiresAt         *time.Time          `json:"expires_at"`
	MaxUses           *int64              `json:"max_uses"`
}

// Create stores a new, active promo code.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.PromoCode, error) {
	scope := in.ApplicableTo
	if scope == "" {
		scope = models.PromoScopeBoth
	}
	ids := make([]string, 0, len(in.ApplicableItemIDs))
	for _, id := range in.ApplicableItemIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	p := &models.PromoCode{
		Code:              models.NormalizePromoCode(in.Code),
		DiscountType:      in.DiscountType,
		DiscountValue:     in.DiscountValue,
		ApplicableTo:      scope,
		ApplicableItemIDs: ids,
		MinAmount:         in.MinAmount,
		ExpiresAt:         in.ExpiresAt,
		MaxUses:           in.MaxUses,
		IsActive:          true,
	}
	if err := p.Validate(); err != nil {
		return nil, apperr.E(apperr.Invalid, err.Error(), err)
	}
	if err := e.repo.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.E(apperr.DuplicateReference, "promo code already exists")
		}
		return nil, apperr.Internalf("could not create promo code", err)
	}
	log.Infof("[Promo] Created code %s (%s %d)", p.Code, p.DiscountType, p.DiscountValue)
	return p, nil
}

func (e *Engine) List(ctx context.Context) ([]models.PromoCode, error) {
	promos, err := e.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internalf("could not list promo codes", err)
	}
	return promos, nil
}
