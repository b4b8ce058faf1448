package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// DiscountType selects how a promo code reduces the price.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

// PromoScope restricts a promo code to one item type or both.
type PromoScope string

const (
	PromoScopeCourse     PromoScope = "course"
	PromoScopeInternship PromoScope = "internship"
	PromoScopeBoth       PromoScope = "both"
)

// Covers reports whether the scope includes the item type.
func (s PromoScope) Covers(t ItemType) bool {
	switch s {
	case PromoScopeBoth:
		return true
	case PromoScopeCourse:
		return t == ItemCourse
	case PromoScopeInternship:
		return t == ItemInternship
	}
	return false
}

// PromoCode is a discount code. Code is always stored upper case.
type PromoCode struct {
	ID                uint                        `gorm:"primaryKey" json:"id"`
	Code              string                      `gorm:"type:varchar(50);not null;uniqueIndex:ux_promo_codes_code" json:"code" validate:"required,min=3,max=50,alphanum"`
	DiscountType      DiscountType                `gorm:"type:varchar(20);not null" json:"discount_type" validate:"oneof=percentage flat"`
	DiscountValue     int64                       `gorm:"not null" json:"discount_value" validate:"gte=0"`
	ApplicableTo      PromoScope                  `gorm:"type:varchar(20);not null;default:'both'" json:"applicable_to" validate:"oneof=course internship both"`
	ApplicableItemIDs datatypes.JSONSlice[string] `json:"applicable_item_ids,omitempty"`
	MinAmount         int64                       `gorm:"not null;default:0" json:"min_amount" validate:"gte=0"`
	ExpiresAt         *time.Time                  `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	MaxUses           *int64                      `gorm:"default:null" json:"max_uses,omitempty" validate:"omitempty,gte=1"`
	UsedCount         int64                       `gorm:"not null;default:0" json:"used_count"`
	IsActive          bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizePromoCode is the canonical form codes are stored and looked up in.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (p *PromoCode) Validate() error {
	v := validator.New()
	if err := v.Struct(p); err != nil {
		return err
	}
	if p.DiscountType == DiscountPercentage && p.DiscountValue > 100 {
		return errPercentageRange
	}
	return nil
}

// AppliesToItem reports whether the code's item whitelist allows id. An empty
// whitelist allows every item of the covered types.
func (p *PromoCode) AppliesToItem(id string) bool {
	if len(p.ApplicableItemIDs) == 0 {
		return true
	}
	for _, allowed := range p.ApplicableItemIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// Exhausted reports whether the usage cap has been reached.
func (p *PromoCode) Exhausted() bool {
	return p.MaxUses != nil && p.UsedCount >= *p.MaxUses
}

type promoError string

func (e promoError) Error() string { return string(e) }

const errPercentageRange = promoError("percentage discount must be between 0 and 100")
