package payment

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
)

// PriceQuote is the authoritative amount for a purchase. Clients only
// display it.
type PriceQuote struct {
	Item        models.CatalogItem `json:"item"`
	BaseAmount  int64              `json:"base_amount"`
	Discount    int64              `json:"discount"`
	FinalAmount int64              `json:"final_amount"`
	PromoCode   string             `json:"promo_code,omitempty"`
}

// Pricer computes server-side prices from the catalog and promo codes.
type Pricer struct {
	catalog repository.CatalogRepository
	promos  *promo.Engine
}

func NewPricer(catalog repository.CatalogRepository, promos *promo.Engine) *Pricer {
	return &Pricer{catalog: catalog, promos: promos}
}

// Quote prices item, applying promoCode when it is non-empty.
func (p *Pricer) Quote(ctx context.Context, item models.ItemRef, promoCode string) (*PriceQuote, error) {
	if !item.Valid() {
		return nil, apperr.E(apperr.Invalid, "a course or internship is required")
	}
	ci, err := repository.LookupItem(ctx, p.catalog, item)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, string(item.Type)+" not found")
		}
		return nil, apperr.Internalf("catalog lookup failed", err)
	}

	q := &PriceQuote{Item: ci, BaseAmount: ci.Price, FinalAmount: ci.Price}
	if strings.TrimSpace(promoCode) == "" {
		return q, nil
	}

	pq, err := p.promos.Validate(ctx, promoCode, item.Type, ci.Price, item.ID)
	if err != nil {
		return nil, err
	}
	q.PromoCode = pq.Code
	q.Discount = pq.Discount
	q.FinalAmount = pq.FinalAmount
	return q, nil
}
