package certificate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
)

// maxIDAttempts bounds retries when a generated credential ID collides.
const maxIDAttempts = 5

const (
	maxSubjectName = 255
	maxTitle       = 255
)

// Issuer mints credentials. It never updates an existing one.
type Issuer struct {
	store     repository.Store
	publisher events.Publisher
	now       func() time.Time
	newID     func(kind models.CredentialKind, title string) (string, error)
}

func NewIssuer(store repository.Store, publisher events.Publisher) *Issuer {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Issuer{store: store, publisher: publisher, now: time.Now, newID: credential.NewCredentialID}
}

// CustomInput describes an ad hoc credential issued by an admin.
type CustomInput struct {
	SubjectName string `json:"name" validate:"required,max=255"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	StudentID   string `json:"student_id"`
}

// IssueCustom issues a credential that does not reference a source record.
func (i *Issuer) IssueCustom(ctx context.Context, in CustomInput) (*models.Credential, error) {
	name := strings.TrimSpace(in.SubjectName)
	title := strings.TrimSpace(in.Title)
	switch {
	case name == "":
		return nil, apperr.E(apperr.Invalid, "name is required")
	case title == "":
		return nil, apperr.E(apperr.Invalid, "title is required")
	case len(name) > maxSubjectName || len(title) > maxTitle:
		return nil, apperr.E(apperr.Invalid, "name and title must be at most 255 characters")
	}

	cred := &models.Credential{
		Kind:          models.CredentialCustom,
		SubjectName:   name,
		Title:         title,
		IssuerContext: strings.TrimSpace(in.Description),
		StudentID:     strings.TrimSpace(in.StudentID),
	}
	if err := i.create(ctx, cred); err != nil {
		return nil, err
	}
	i.issued(ctx, cred)
	return cred, nil
}

// IssueForCompletion issues the credential for a completed enrollment. When
// one already exists it is returned together with an AlreadyIssued error.
func (i *Issuer) IssueForCompletion(ctx context.Context, kind models.CredentialKind, enrollmentID uint) (*models.Credential, error) {
	itemType, ok := kind.ItemType()
	if !ok {
		return nil, apperr.E(apperr.Invalid, "kind must be course or internship")
	}

	e, err := i.store.Enrollments().GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "enrollment not found")
		}
		return nil, apperr.Internalf("enrollment lookup failed", err)
	}
	if e.ItemType != itemType {
		return nil, apperr.E(apperr.Invalid, "enrollment is for a "+string(e.ItemType)+", not a "+string(itemType))
	}
	if e.Status != models.EnrollmentCompleted {
		return nil, apperr.E(apperr.NotEligible, "enrollment is not completed")
	}

	sourceRef := e.SourceRef()
	if existing, err := i.store.Credentials().GetBySourceRef(ctx, sourceRef); err == nil {
		return existing, alreadyIssued()
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internalf("credential lookup failed", err)
	}

	student, err := i.store.Catalog().GetStudent(ctx, e.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "student not found")
		}
		return nil, apperr.Internalf("student lookup failed", err)
	}
	item, err := repository.LookupItem(ctx, i.store.Catalog(), e.Item())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, string(e.ItemType)+" not found")
		}
		return nil, apperr.Internalf("catalog lookup failed", err)
	}

	cred := &models.Credential{
		Kind:          kind,
		SubjectName:   student.FullName(),
		Title:         item.Title,
		IssuerContext: item.IssuerContext,
		Score:         e.Score,
		SourceRef:     &sourceRef,
		StudentID:     e.StudentID,
	}
	if err := i.create(ctx, cred); err != nil {
		if apperr.IsKind(err, apperr.AlreadyIssued) {
			existing, lookupErr := i.store.Credentials().GetBySourceRef(ctx, sourceRef)
			if lookupErr != nil {
				return nil, apperr.Internalf("credential lookup failed", lookupErr)
			}
			return existing, err
		}
		return nil, err
	}
	i.issued(ctx, cred)
	return cred, nil
}

// create assigns the ID, key and issue date and inserts cred, retrying on
// ID collisions. A collision on the source reference is AlreadyIssued.
func (i *Issuer) create(ctx context.Context, cred *models.Credential) error {
	key, err := credential.NewKey()
	if err != nil {
		return apperr.Internalf("could not generate verification key", err)
	}
	cred.Key = key
	now := i.now().UTC()
	cred.IssueDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := i.newID(cred.Kind, cred.Title)
		if err != nil {
			return apperr.Internalf("could not generate credential ID", err)
		}
		cred.CredentialID = id

		err = i.store.Credentials().Create(ctx, cred)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Internalf("could not store credential", err)
		}
		if cred.SourceRef != nil {
			if _, lookupErr := i.store.Credentials().GetBySourceRef(ctx, *cred.SourceRef); lookupErr == nil {
				return alreadyIssued()
			}
		}
		log.Warnf("[Certificate] Credential ID collision on %s (attempt %d)", id, attempt)
	}
	return apperr.E(apperr.Internal, "could not allocate a unique credential ID")
}

func (i *Issuer) issued(ctx context.Context, cred *models.Credential) {
	log.Infof("[Certificate] Issued %s credential %s to %q", cred.Kind, cred.CredentialID, cred.SubjectName)
	i.publisher.Publish(ctx, events.NewEvent(events.CredentialIssued, cred.CredentialID, map[string]interface{}{
		"credential_id": cred.CredentialID,
		"kind":          cred.Kind,
		"student_id":    cred.StudentID,
		"source_ref":    cred.SourceRef,
		"issue_date":    cred.IssueDate.Format(DateLayout),
	}))
}

func alreadyIssued() error {
	return apperr.E(apperr.AlreadyIssued, "a credential has already been issued for this enrollment")
}
