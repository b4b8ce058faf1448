package repository

import (
	"context"

	"github.com/ManuelReschke/CertLedger/app/models"
	"gorm.io/gorm"
)

type promoCodeRepository struct {
	db *gorm.DB
}

func (r *promoCodeRepository) Create(ctx context.Context, promo *models.PromoCode) error {
	promo.Code = models.NormalizePromoCode(promo.Code)
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *promoCodeRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var p models.PromoCode
	if err := r.db.WithContext(ctx).Where("code = ?", models.NormalizePromoCode(code)).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promoCodeRepository) List(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&promos).Error
	return promos, err
}

func (r *promoCodeRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("code = ? AND (max_uses IS NULL OR used_count < max_uses)", models.NormalizePromoCode(code)).
		UpdateColumn("used_count", gorm.Expr("used_count + ?", 1))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
