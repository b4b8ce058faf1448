package repository

import (
	"context"

	"github.com/ManuelReschke/CertLedger/app/models"
	"gorm.io/gorm"
)

type catalogRepository struct {
	db *gorm.DB
}

func (r *catalogRepository) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var s models.Student
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *catalogRepository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var c models.Course
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *catalogRepository) GetInternship(ctx context.Context, id string) (*models.Internship, error) {
	var i models.Internship
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&i).Error; err != nil {
		return nil, err
	}
	return &i, nil
}
