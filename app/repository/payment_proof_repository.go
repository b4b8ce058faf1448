package repository

import (
	"context"

	"github.com/ManuelReschke/CertLedger/app/models"
	"gorm.io/gorm"
)

type paymentProofRepository struct {
	db *gorm.DB
}

func (r *paymentProofRepository) Create(ctx context.Context, proof *models.PaymentProof) error {
	return r.db.WithContext(ctx).Create(proof).Error
}

func (r *paymentProofRepository) GetByID(ctx context.Context, id string) (*models.PaymentProof, error) {
	var p models.PaymentProof
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentProofRepository) GetByExternalTransactionID(ctx context.Context, ref string) (*models.PaymentProof, error) {
	var p models.PaymentProof
	if err := r.db.WithContext(ctx).Where("external_transaction_id = ?", ref).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentProofRepository) TransitionStatus(ctx context.Context, id string, from, to models.ProofStatus, d ProofDecision) (bool, error) {
	decidedAt := d.DecidedAt
	updates := map[string]interface{}{
		"status":           to,
		"rejection_reason": d.RejectionReason,
		"decided_at":       &decidedAt,
		"decided_by":       d.DecidedBy,
	}
	tx := r.db.WithContext(ctx).Model(&models.PaymentProof{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *paymentProofRepository) CountVerifiedForPair(ctx context.Context, studentID string, item models.ItemRef, excludeID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PaymentProof{}).
		Where("student_id = ? AND item_type = ? AND item_id = ? AND status = ? AND id <> ?",
			studentID, item.Type, item.ID, models.ProofVerified, excludeID).
		Count(&n).Error
	return n, err
}

func (r *paymentProofRepository) List(ctx context.Context, filter ProofFilter) ([]models.PaymentProof, error) {
	q := r.db.WithContext(ctx).Model(&models.PaymentProof{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var proofs []models.PaymentProof
	err := q.Order("submitted_at DESC").Find(&proofs).Error
	return proofs, err
}
