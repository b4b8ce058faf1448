package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CertLedger/app/models"
	"gorm.io/gorm"
)

type gatewayTransactionRepository struct {
	db *gorm.DB
}

func (r *gatewayTransactionRepository) Create(ctx context.Context, txn *models.GatewayTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *gatewayTransactionRepository) GetByTxnID(ctx context.Context, txnID string) (*models.GatewayTransaction, error) {
	var txn models.GatewayTransaction
	if err := r.db.WithContext(ctx).Where("txnid = ?", txnID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gatewayTransactionRepository) Settle(ctx context.Context, txnID string, s GatewaySettlement) (bool, error) {
	settledAt := s.SettledAt
	updates := map[string]interface{}{
		"outcome":            s.Outcome,
		"returned_signature": s.ReturnedSignature,
		"gateway_payment_id": s.GatewayPaymentID,
		"promo_redeemed":     s.PromoRedeemed,
		"settled_at":         &settledAt,
	}
	tx := r.db.WithContext(ctx).Model(&models.GatewayTransaction{}).
		Where("txnid = ? AND outcome = ?", txnID, models.GatewayInitiated).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

type gatewayEventRepository struct {
	db *gorm.DB
}

func (r *gatewayEventRepository) Create(ctx context.Context, event *models.GatewayCallbackEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gatewayEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.GatewayCallbackEvent{}).Where("id = ?", id).Updates(updates).Error
}
