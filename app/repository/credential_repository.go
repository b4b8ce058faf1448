package repository

import (
	"context"

	"github.com/ManuelReschke/CertLedger/app/models"
	"gorm.io/gorm"
)

type credentialRepository struct {
	db *gorm.DB
}

func (r *credentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

func (r *credentialRepository) GetByCredentialID(ctx context.Context, credentialID string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("credential_id = ?", credentialID).First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) GetBySourceRef(ctx context.Context, sourceRef string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("source_ref = ?", sourceRef).First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Credential, error) {
	var creds []models.Credential
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("issue_date DESC").Find(&creds).Error
	return creds, err
}
