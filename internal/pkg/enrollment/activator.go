package enrollment

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
)

// DefaultPassingScore is the minimum overall score for completion when an
// enrollment has assessments.
const DefaultPassingScore = 90.0

// Source identifies the confirmed payment behind an activation.
type Source struct {
	Via        models.ActivationSource
	Ref        string
	AmountPaid int64
}

// Activator is the only writer of enrollments. Both payment paths funnel
// through Activate so a paid pair ends up with exactly one row.
type Activator struct {
	store        repository.Store
	publisher    events.Publisher
	passingScore float64
	now          func() time.Time
}

func NewActivator(store repository.Store, publisher events.Publisher) *Activator {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Activator{store: store, publisher: publisher, passingScore: DefaultPassingScore, now: time.Now}
}

// ActivateTx creates the enrollment for (studentID, item) unless it exists,
// using tx so the caller's unit of work covers it. The bool reports whether
// a row was created. Existing rows are returned unchanged.
func (a *Activator) ActivateTx(ctx context.Context, tx repository.Store, studentID string, item models.ItemRef, src Source) (*models.Enrollment, bool, error) {
	if studentID == "" || !item.Valid() {
		return nil, false, apperr.E(apperr.Invalid, "student and item are required")
	}
	switch src.Via {
	case models.ActivatedViaGateway, models.ActivatedViaProof:
	default:
		return nil, false, apperr.E(apperr.Invalid, "unknown activation source")
	}

	e := &models.Enrollment{
		StudentID:     studentID,
		ItemType:      item.Type,
		ItemID:        item.ID,
		Status:        models.EnrollmentActive,
		ActivatedVia:  src.Via,
		ActivationRef: src.Ref,
		AmountPaid:    src.AmountPaid,
	}
	created, stored, err := tx.Enrollments().CreateIfNotExists(ctx, e)
	if err != nil {
		return nil, false, apperr.Internalf("could not activate enrollment", err)
	}
	if created {
		log.Infof("[Enrollment] Activated %s for student %s via %s (%s)", item, studentID, src.Via, src.Ref)
	}
	return stored, created, nil
}

// Activate runs ActivateTx in its own transaction and announces new rows.
func (a *Activator) Activate(ctx context.Context, studentID string, item models.ItemRef, src Source) (*models.Enrollment, bool, error) {
	var (
		stored  *models.Enrollment
		created bool
	)
	err := a.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		stored, created, err = a.ActivateTx(ctx, tx, studentID, item, src)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		a.Announce(ctx, stored)
	}
	return stored, created, nil
}

// Announce publishes the activation of a committed enrollment.
func (a *Activator) Announce(ctx context.Context, e *models.Enrollment) {
	a.publisher.Publish(ctx, events.NewEvent(events.EnrollmentActivated, e.StudentID, e))
}

// ProgressInput is reported by the content service as a learner advances.
type ProgressInput struct {
	Progress int      `json:"progress"`
	Score    *float64 `json:"score"`
}

// RecordProgress stores progress and promotes the enrollment to completed
// once progress reaches 100 and the score, if any, meets the passing score.
// Completion is never revoked.
func (a *Activator) RecordProgress(ctx context.Context, enrollmentID uint, in ProgressInput) (*models.Enrollment, error) {
	if in.Score != nil && (*in.Score < 0 || *in.Score > 100) {
		return nil, apperr.E(apperr.Invalid, "score must be between 0 and 100")
	}

	var (
		updated   *models.Enrollment
		completed bool
	)
	err := a.store.Transaction(ctx, func(tx repository.Store) error {
		e, err := tx.Enrollments().GetByID(ctx, enrollmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.NotFound, "enrollment not found")
			}
			return apperr.Internalf("enrollment lookup failed", err)
		}

		// Progress only moves forward.
		if p := clampProgress(in.Progress); p > e.Progress {
			e.Progress = p
		}
		if in.Score != nil {
			e.Score = in.Score
		}

		switch e.Status {
		case models.EnrollmentCompleted:
			// sticky
		case models.EnrollmentActive:
			if a.eligible(e) {
				now := a.now()
				e.Status = models.EnrollmentCompleted
				e.CompletedAt = &now
				completed = true
			}
		default:
			return apperr.E(apperr.Internal, "enrollment has unknown status "+string(e.Status))
		}

		if err := tx.Enrollments().UpdateProgress(ctx, e); err != nil {
			return apperr.Internalf("could not store progress", err)
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		log.Infof("[Enrollment] Enrollment %d completed for student %s", updated.ID, updated.StudentID)
		a.publisher.Publish(ctx, events.NewEvent(events.EnrollmentCompleted, updated.StudentID, updated))
	}
	return updated, nil
}

func (a *Activator) eligible(e *models.Enrollment) bool {
	if e.Progress < 100 {
		return false
	}
	return e.Score == nil || *e.Score >= a.passingScore
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
