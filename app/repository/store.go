package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a Store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Credentials() CredentialRepository { return &credentialRepository{db: s.db} }

func (s *gormStore) Enrollments() EnrollmentRepository { return &enrollmentRepository{db: s.db} }

func (s *gormStore) PaymentProofs() PaymentProofRepository { return &paymentProofRepository{db: s.db} }

func (s *gormStore) GatewayTransactions() GatewayTransactionRepository {
	return &gatewayTransactionRepository{db: s.db}
}

func (s *gormStore) GatewayEvents() GatewayEventRepository { return &gatewayEventRepository{db: s.db} }

func (s *gormStore) PromoCodes() PromoCodeRepository { return &promoCodeRepository{db: s.db} }

func (s *gormStore) Catalog() CatalogRepository { return &catalogRepository{db: s.db} }

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func forUpdate(db *gorm.DB, lock bool) *gorm.DB {
	if !lock {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
