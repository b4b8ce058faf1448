package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
	"github.com/ManuelReschke/CertLedger/internal/pkg/evidence"
	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
)

const maxProofListLimit = 500

// ProofLedger records manually submitted payment proofs and applies admin
// decisions. Decisions are final.
type ProofLedger struct {
	store     repository.Store
	pricer    *Pricer
	activator *enrollment.Activator
	evidence  evidence.Checker
	publisher events.Publisher
	now       func() time.Time
}

func NewProofLedger(store repository.Store, pricer *Pricer, activator *enrollment.Activator, checker evidence.Checker, publisher events.Publisher) *ProofLedger {
	if checker == nil {
		checker = evidence.Disabled{}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &ProofLedger{
		store:     store,
		pricer:    pricer,
		activator: activator,
		evidence:  checker,
		publisher: publisher,
		now:       time.Now,
	}
}

// SubmitInput is a student's claim of an out-of-band transfer.
type SubmitInput struct {
	StudentID             string         `json:"-"`
	Item                  models.ItemRef `json:"-"`
	Amount                int64          `json:"amount"`
	ExternalTransactionID string         `json:"transaction_id"`
	EvidenceRef           string         `json:"screenshot_url"`
	PromoCode             string         `json:"promo_code"`
}

// NormalizeReference canonicalises an external transaction reference so
// "utr123 " and "UTR123" collide.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// Submit records a pending proof after checking the claimed amount against
// the server quote.
func (l *ProofLedger) Submit(ctx context.Context, in SubmitInput) (*models.PaymentProof, error) {
	ref := NormalizeReference(in.ExternalTransactionID)
	evidenceRef := strings.TrimSpace(in.EvidenceRef)
	switch {
	case strings.TrimSpace(in.StudentID) == "":
		return nil, apperr.E(apperr.Invalid, "student is required")
	case ref == "":
		return nil, apperr.E(apperr.Invalid, "transaction ID is required")
	case evidenceRef == "":
		return nil, apperr.E(apperr.Invalid, "payment screenshot is required")
	case in.Amount <= 0:
		return nil, apperr.E(apperr.Invalid, "amount must be positive")
	}

	quote, err := l.pricer.Quote(ctx, in.Item, in.PromoCode)
	if err != nil {
		return nil, err
	}
	if in.Amount != quote.FinalAmount {
		return nil, apperr.E(apperr.AmountMismatch, "amount does not match the current price")
	}

	if _, err := l.store.PaymentProofs().GetByExternalTransactionID(ctx, ref); err == nil {
		return nil, apperr.E(apperr.DuplicateReference, "this transaction ID has already been submitted")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internalf("proof lookup failed", err)
	}

	if err := l.evidence.Check(ctx, evidenceRef); err != nil {
		if errors.Is(err, evidence.ErrMissing) {
			return nil, apperr.E(apperr.Invalid, "payment screenshot not found", err)
		}
		return nil, apperr.Internalf("could not check payment screenshot", err)
	}

	proof := &models.PaymentProof{
		ID:                    uuid.NewString(),
		StudentID:             in.StudentID,
		ItemType:              in.Item.Type,
		ItemID:                in.Item.ID,
		Amount:                in.Amount,
		ExpectedAmount:        quote.FinalAmount,
		ExternalTransactionID: ref,
		EvidenceRef:           evidenceRef,
		Status:                models.ProofPending,
		SubmittedAt:           l.now(),
	}
	if quote.PromoCode != "" {
		code := quote.PromoCode
		proof.PromoCode = &code
	}

	if err := l.store.PaymentProofs().Create(ctx, proof); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.E(apperr.DuplicateReference, "this transaction ID has already been submitted")
		}
		return nil, apperr.Internalf("could not store payment proof", err)
	}

	log.Infof("[Proof] Student %s submitted proof %s for %s (ref %s, amount %d)", proof.StudentID, proof.ID, proof.Item(), ref, proof.Amount)
	l.publisher.Publish(ctx, events.NewEvent(events.ProofSubmitted, proof.StudentID, proof))
	return proof, nil
}

// DecideInput is an admin verdict on a pending proof.
type DecideInput struct {
	ProofID         string             `json:"-"`
	Action          models.ProofAction `json:"action"`
	RejectionReason string             `json:"rejection_reason"`
	DecidedBy       string             `json:"-"`
}

// Decision is the result of applying a verdict.
type Decision struct {
	Proof      *models.PaymentProof `json:"proof"`
	Enrollment *models.Enrollment   `json:"enrollment,omitempty"`
	// AlreadyEnrolled is set when the pair was enrolled through the gateway
	// before this proof was verified.
	AlreadyEnrolled bool `json:"already_enrolled"`
}

// Decide applies a verdict to a pending proof. Verifying activates the
// enrollment in the same transaction, so a failed activation leaves the
// proof pending.
func (l *ProofLedger) Decide(ctx context.Context, in DecideInput) (*Decision, error) {
	if strings.TrimSpace(in.ProofID) == "" {
		return nil, apperr.E(apperr.Invalid, "proof ID is required")
	}
	if _, ok := models.ParseProofAction(string(in.Action)); !ok {
		return nil, apperr.E(apperr.Invalid, "action must be verify or reject")
	}

	result := &Decision{}
	created := false

	err := l.store.Transaction(ctx, func(tx repository.Store) error {
		proofs := tx.PaymentProofs()
		p, err := proofs.GetByID(ctx, in.ProofID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.NotFound, "payment proof not found")
			}
			return apperr.Internalf("proof lookup failed", err)
		}
		if p.Status != models.ProofPending {
			return apperr.E(apperr.AlreadyDecided, "payment proof already "+string(p.Status))
		}

		d := repository.ProofDecision{DecidedBy: in.DecidedBy, DecidedAt: l.now()}

		switch in.Action {
		case models.ProofActionReject:
			reason := strings.TrimSpace(in.RejectionReason)
			if reason == "" {
				reason = models.DefaultRejectionReason
			}
			d.RejectionReason = &reason
			if err := transition(ctx, proofs, p.ID, models.ProofRejected, d); err != nil {
				return err
			}

		case models.ProofActionVerify:
			if err := transition(ctx, proofs, p.ID, models.ProofVerified, d); err != nil {
				return err
			}

			others, err := proofs.CountVerifiedForPair(ctx, p.StudentID, p.Item(), p.ID)
			if err != nil {
				return apperr.Internalf("proof lookup failed", err)
			}
			if others > 0 {
				return apperr.E(apperr.AlreadyEnrolled, "student already has a verified payment for this item")
			}

			enr, isNew, err := l.activator.ActivateTx(ctx, tx, p.StudentID, p.Item(), enrollment.Source{
				Via:        models.ActivatedViaProof,
				Ref:        p.ID,
				AmountPaid: p.Amount,
			})
			if err != nil {
				return err
			}
			if !isNew {
				if enr.ActivatedVia != models.ActivatedViaGateway {
					return apperr.E(apperr.AlreadyEnrolled, "student is already enrolled in this item")
				}
				// Paid twice: the proof stays verified for refund follow-up.
				log.Warnf("[Proof] Proof %s verified for %s which is already enrolled via gateway %s", p.ID, p.Item(), enr.ActivationRef)
				result.AlreadyEnrolled = true
			}
			result.Enrollment = enr
			created = isNew

			if isNew && p.PromoCode != nil {
				if err := promo.Redeem(ctx, tx.PromoCodes(), *p.PromoCode); err != nil {
					return err
				}
			}
		}

		stored, err := proofs.GetByID(ctx, p.ID)
		if err != nil {
			return apperr.Internalf("proof lookup failed", err)
		}
		result.Proof = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Proof] Proof %s %s by %s", result.Proof.ID, result.Proof.Status, in.DecidedBy)
	l.publisher.Publish(ctx, events.NewEvent(events.ProofDecided, result.Proof.StudentID, result.Proof))
	if created {
		l.activator.Announce(ctx, result.Enrollment)
	}
	return result, nil
}

func transition(ctx context.Context, proofs repository.PaymentProofRepository, id string, to models.ProofStatus, d repository.ProofDecision) error {
	ok, err := proofs.TransitionStatus(ctx, id, models.ProofPending, to, d)
	if err != nil {
		return apperr.Internalf("could not update payment proof", err)
	}
	if !ok {
		return apperr.E(apperr.AlreadyDecided, "payment proof already decided")
	}
	return nil
}

// List returns proofs newest first.
func (l *ProofLedger) List(ctx context.Context, filter repository.ProofFilter) ([]models.PaymentProof, error) {
	if filter.Status != "" {
		if _, ok := models.ParseProofStatus(string(filter.Status)); !ok {
			return nil, apperr.E(apperr.Invalid, "unknown proof status")
		}
	}
	if filter.Limit <= 0 || filter.Limit > maxProofListLimit {
		filter.Limit = maxProofListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	proofs, err := l.store.PaymentProofs().List(ctx, filter)
	if err != nil {
		return nil, apperr.Internalf("could not list payment proofs", err)
	}
	return proofs, nil
}
