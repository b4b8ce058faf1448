package repository

import (
	"context"

	"github.com/ManuelReschke/CertLedger/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type enrollmentRepository struct {
	db *gorm.DB
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id uint) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepository) GetByStudentItem(ctx context.Context, studentID string, item models.ItemRef, lock bool) (*models.Enrollment, error) {
	var e models.Enrollment
	err := forUpdate(r.db.WithContext(ctx), lock).
		Where("student_id = ? AND item_type = ? AND item_id = ?", studentID, item.Type, item.ID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepository) CreateIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "student_id"},
			{Name: "item_type"},
			{Name: "item_id"},
		},
		DoNothing: true,
	}).Create(e)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetByStudentItem(ctx, e.StudentID, e.Item(), true)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *enrollmentRepository) UpdateProgress(ctx context.Context, e *models.Enrollment) error {
	updates := map[string]interface{}{
		"progress":     e.Progress,
		"score":        e.Score,
		"status":       e.Status,
		"completed_at": e.CompletedAt,
	}
	return r.db.WithContext(ctx).Model(&models.Enrollment{}).Where("id = ?", e.ID).Updates(updates).Error
}
