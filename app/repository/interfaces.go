package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CertLedger/app/models"
)

// Misses are reported as gorm.ErrRecordNotFound and unique violations as
// gorm.ErrDuplicatedKey by every implementation, including the in-memory one.

// CredentialRepository stores issued credentials. There is no update or
// delete path.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByCredentialID(ctx context.Context, credentialID string) (*models.Credential, error)
	GetBySourceRef(ctx context.Context, sourceRef string) (*models.Credential, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Credential, error)
}

// EnrollmentRepository is written only by the enrollment activator.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Enrollment, error)
	GetByStudentItem(ctx context.Context, studentID string, item models.ItemRef, forUpdate bool) (*models.Enrollment, error)
	// CreateIfNotExists inserts e unless a row for the same student and item
	// exists, then returns the stored row (locked inside a transaction).
	CreateIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error)
	UpdateProgress(ctx context.Context, e *models.Enrollment) error
}

// ProofDecision carries the audit fields written with a status transition.
type ProofDecision struct {
	RejectionReason *string
	DecidedBy       string
	DecidedAt       time.Time
}

// ProofFilter narrows a proof listing. Zero values match everything.
type ProofFilter struct {
	Status    models.ProofStatus
	StudentID string
	Limit     int
	Offset    int
}

type PaymentProofRepository interface {
	Create(ctx context.Context, proof *models.PaymentProof) error
	GetByID(ctx context.Context, id string) (*models.PaymentProof, error)
	GetByExternalTransactionID(ctx context.Context, ref string) (*models.PaymentProof, error)
	// TransitionStatus moves the proof from -> to only if it is currently in
	// from. It reports false when another caller got there first.
	TransitionStatus(ctx context.Context, id string, from, to models.ProofStatus, d ProofDecision) (bool, error)
	CountVerifiedForPair(ctx context.Context, studentID string, item models.ItemRef, excludeID string) (int64, error)
	List(ctx context.Context, filter ProofFilter) ([]models.PaymentProof, error)
}

// GatewaySettlement carries the fields written when a transaction leaves
// the initiated state.
type GatewaySettlement struct {
	Outcome           models.GatewayOutcome
	ReturnedSignature string
	GatewayPaymentID  string
	PromoRedeemed     bool
	SettledAt         time.Time
}

type GatewayTransactionRepository interface {
	Create(ctx context.Context, txn *models.GatewayTransaction) error
	GetByTxnID(ctx context.Context, txnID string) (*models.GatewayTransaction, error)
	// Settle applies s only while the transaction is still initiated.
	Settle(ctx context.Context, txnID string, s GatewaySettlement) (bool, error)
}

type GatewayEventRepository interface {
	Create(ctx context.Context, event *models.GatewayCallbackEvent) error
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

type PromoCodeRepository interface {
	Create(ctx context.Context, promo *models.PromoCode) error
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	List(ctx context.Context) ([]models.PromoCode, error)
	// IncrementUsage bumps used_count unless the cap is reached. It reports
	// false when the code is exhausted.
	IncrementUsage(ctx context.Context, code string) (bool, error)
}

// CatalogRepository reads reference data owned by other services.
type CatalogRepository interface {
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	GetInternship(ctx context.Context, id string) (*models.Internship, error)
}

// Store groups the repositories and runs units of work atomically.
type Store interface {
	Credentials() CredentialRepository
	Enrollments() EnrollmentRepository
	PaymentProofs() PaymentProofRepository
	GatewayTransactions() GatewayTransactionRepository
	GatewayEvents() GatewayEventRepository
	PromoCodes() PromoCodeRepository
	Catalog() CatalogRepository
	// Transaction runs fn against a transactional view of the store. Any
	// error returned by fn rolls back every write made through that view.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// LookupItem resolves an item reference against the catalog.
func LookupItem(ctx context.Context, catalog CatalogRepository, ref models.ItemRef) (models.CatalogItem, error) {
	switch ref.Type {
	case models.ItemCourse:
		c, err := catalog.GetCourse(ctx, ref.ID)
		if err != nil {
			return models.CatalogItem{}, err
		}
		return c.AsItem(), nil
	case models.ItemInternship:
		i, err := catalog.GetInternship(ctx, ref.ID)
		if err != nil {
			return models.CatalogItem{}, err
		}
		return i.AsItem(), nil
	}
	return models.CatalogItem{}, errUnknownItemType
}

type repoError string

func (e repoError) Error() string { return string(e) }

const errUnknownItemType = repoError("unknown item type")
