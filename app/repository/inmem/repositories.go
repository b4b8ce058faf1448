package inmem

import (
	"context"
	"sort"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"gorm.io/gorm"
)

type credentialRepository struct{ s *store }

func (r *credentialRepository) Create(_ context.Context, cred *models.Credential) error {
	defer r.s.lock()()
	st := r.s.db.state

	if _, ok := st.credentials[cred.CredentialID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if cred.SourceRef != nil {
		for _, c := range st.credentials {
			if c.SourceRef != nil && *c.SourceRef == *cred.SourceRef {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	st.credSeq++
	cred.ID = st.credSeq
	cred.CreatedAt = r.s.db.now()
	st.credentials[cred.CredentialID] = *cred
	return nil
}

func (r *credentialRepository) GetByCredentialID(_ context.Context, credentialID string) (*models.Credential, error) {
	defer r.s.lock()()
	if c, ok := r.s.db.state.credentials[credentialID]; ok {
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *credentialRepository) GetBySourceRef(_ context.Context, sourceRef string) (*models.Credential, error) {
	defer r.s.lock()()
	for _, c := range r.s.db.state.credentials {
		if c.SourceRef != nil && *c.SourceRef == sourceRef {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *credentialRepository) ListByStudent(_ context.Context, studentID string) ([]models.Credential, error) {
	defer r.s.lock()()
	var out []models.Credential
	for _, c := range r.s.db.state.credentials {
		if c.StudentID == studentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out, nil
}

type enrollmentRepository struct{ s *store }

func (r *enrollmentRepository) GetByID(_ context.Context, id uint) (*models.Enrollment, error) {
	defer r.s.lock()()
	if e, ok := r.s.db.state.enrollments[id]; ok {
		return &e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *enrollmentRepository) find(studentID string, item models.ItemRef) (models.Enrollment, bool) {
	for _, e := range r.s.db.state.enrollments {
		if e.StudentID == studentID && e.ItemType == item.Type && e.ItemID == item.ID {
			return e, true
		}
	}
	return models.Enrollment{}, false
}

func (r *enrollmentRepository) GetByStudentItem(_ context.Context, studentID string, item models.ItemRef, _ bool) (*models.Enrollment, error) {
	defer r.s.lock()()
	if e, ok := r.find(studentID, item); ok {
		return &e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *enrollmentRepository) CreateIfNotExists(_ context.Context, e *models.Enrollment) (bool, *models.Enrollment, error) {
	defer r.s.lock()()
	if existing, ok := r.find(e.StudentID, e.Item()); ok {
		return false, &existing, nil
	}

	st := r.s.db.state
	st.enrollSeq++
	e.ID = st.enrollSeq
	now := r.s.db.now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = models.EnrollmentActive
	}
	st.enrollments[e.ID] = *e
	stored := *e
	return true, &stored, nil
}

func (r *enrollmentRepository) UpdateProgress(_ context.Context, e *models.Enrollment) error {
	defer r.s.lock()()
	cur, ok := r.s.db.state.enrollments[e.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cur.Progress = e.Progress
	cur.Score = e.Score
	cur.Status = e.Status
	cur.CompletedAt = e.CompletedAt
	cur.UpdatedAt = r.s.db.now()
	r.s.db.state.enrollments[e.ID] = cur
	return nil
}

type paymentProofRepository struct{ s *store }

func (r *paymentProofRepository) Create(_ context.Context, proof *models.PaymentProof) error {
	defer r.s.lock()()
	st := r.s.db.state
	if _, ok := st.proofs[proof.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	for _, p := range st.proofs {
		if p.ExternalTransactionID == proof.ExternalTransactionID {
			return gorm.ErrDuplicatedKey
		}
	}
	st.proofs[proof.ID] = *proof
	return nil
}

func (r *paymentProofRepository) GetByID(_ context.Context, id string) (*models.PaymentProof, error) {
	defer r.s.lock()()
	if p, ok := r.s.db.state.proofs[id]; ok {
		return &p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentProofRepository) GetByExternalTransactionID(_ context.Context, ref string) (*models.PaymentProof, error) {
	defer r.s.lock()()
	for _, p := range r.s.db.state.proofs {
		if p.ExternalTransactionID == ref {
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *paymentProofRepository) TransitionStatus(_ context.Context, id string, from, to models.ProofStatus, d repository.ProofDecision) (bool, error) {
	defer r.s.lock()()
	p, ok := r.s.db.state.proofs[id]
	if !ok || p.Status != from {
		return false, nil
	}
	decidedAt := d.DecidedAt
	decidedBy := d.DecidedBy
	p.Status = to
	p.RejectionReason = d.RejectionReason
	p.DecidedAt = &decidedAt
	p.DecidedBy = &decidedBy
	r.s.db.state.proofs[id] = p
	return true, nil
}

func (r *paymentProofRepository) CountVerifiedForPair(_ context.Context, studentID string, item models.ItemRef, excludeID string) (int64, error) {
	defer r.s.lock()()
	var n int64
	for _, p := range r.s.db.state.proofs {
		if p.ID != excludeID && p.StudentID == studentID && p.Item() == item && p.Status == models.ProofVerified {
			n++
		}
	}
	return n, nil
}

func (r *paymentProofRepository) List(_ context.Context, filter repository.ProofFilter) ([]models.PaymentProof, error) {
	defer r.s.lock()()
	out := make([]models.PaymentProof, 0, len(r.s.db.state.proofs))
	for _, p := range r.s.db.state.proofs {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.StudentID != "" && p.StudentID != filter.StudentID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.PaymentProof{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

type gatewayTransactionRepository struct{ s *store }

func (r *gatewayTransactionRepository) Create(_ context.Context, txn *models.GatewayTransaction) error {
	defer r.s.lock()()
	if _, ok := r.s.db.state.txns[txn.TxnID]; ok {
		return gorm.ErrDuplicatedKey
	}
	now := r.s.db.now()
	txn.CreatedAt, txn.UpdatedAt = now, now
	if txn.Outcome == "" {
		txn.Outcome = models.GatewayInitiated
	}
	r.s.db.state.txns[txn.TxnID] = *txn
	return nil
}

func (r *gatewayTransactionRepository) GetByTxnID(_ context.Context, txnID string) (*models.GatewayTransaction, error) {
	defer r.s.lock()()
	if t, ok := r.s.db.state.txns[txnID]; ok {
		return &t, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *gatewayTransactionRepository) Settle(_ context.Context, txnID string, s repository.GatewaySettlement) (bool, error) {
	defer r.s.lock()()
	t, ok := r.s.db.state.txns[txnID]
	if !ok || t.Outcome != models.GatewayInitiated {
		return false, nil
	}
	settledAt := s.SettledAt
	t.Outcome = s.Outcome
	t.ReturnedSignature = s.ReturnedSignature
	t.GatewayPaymentID = s.GatewayPaymentID
	t.PromoRedeemed = s.PromoRedeemed
	t.SettledAt = &settledAt
	t.UpdatedAt = r.s.db.now()
	r.s.db.state.txns[txnID] = t
	return true, nil
}

type gatewayEventRepository struct{ s *store }

func (r *gatewayEventRepository) Create(_ context.Context, event *models.GatewayCallbackEvent) error {
	defer r.s.lock()()
	st := r.s.db.state
	st.eventSeq++
	event.ID = st.eventSeq
	event.CreatedAt = r.s.db.now()
	st.events[event.ID] = *event
	return nil
}

func (r *gatewayEventRepository) MarkProcessed(_ context.Context, id uint, processingError string) error {
	defer r.s.lock()()
	ev, ok := r.s.db.state.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := r.s.db.now()
	ev.ProcessedAt = &now
	ev.ProcessingError = processingError
	r.s.db.state.events[id] = ev
	return nil
}

type promoCodeRepository struct{ s *store }

func (r *promoCodeRepository) Create(_ context.Context, promo *models.PromoCode) error {
	defer r.s.lock()()
	st := r.s.db.state
	promo.Code = models.NormalizePromoCode(promo.Code)
	if _, ok := st.promos[promo.Code]; ok {
		return gorm.ErrDuplicatedKey
	}
	st.promoSeq++
	promo.ID = st.promoSeq
	now := r.s.db.now()
	promo.CreatedAt, promo.UpdatedAt = now, now
	st.promos[promo.Code] = *promo
	return nil
}

func (r *promoCodeRepository) GetByCode(_ context.Context, code string) (*models.PromoCode, error) {
	defer r.s.lock()()
	if p, ok := r.s.db.state.promos[models.NormalizePromoCode(code)]; ok {
		return &p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *promoCodeRepository) List(_ context.Context) ([]models.PromoCode, error) {
	defer r.s.lock()()
	out := make([]models.PromoCode, 0, len(r.s.db.state.promos))
	for _, p := range r.s.db.state.promos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *promoCodeRepository) IncrementUsage(_ context.Context, code string) (bool, error) {
	defer r.s.lock()()
	key := models.NormalizePromoCode(code)
	p, ok := r.s.db.state.promos[key]
	if !ok || p.Exhausted() {
		return false, nil
	}
	p.UsedCount++
	p.UpdatedAt = r.s.db.now()
	r.s.db.state.promos[key] = p
	return true, nil
}

type catalogRepository struct{ s *store }

func (r *catalogRepository) GetStudent(_ context.Context, id string) (*models.Student, error) {
	defer r.s.lock()()
	if st, ok := r.s.db.state.students[id]; ok {
		return &st, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *catalogRepository) GetCourse(_ context.Context, id string) (*models.Course, error) {
	defer r.s.lock()()
	if c, ok := r.s.db.state.courses[id]; ok {
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *catalogRepository) GetInternship(_ context.Context, id string) (*models.Internship, error) {
	defer r.s.lock()()
	if i, ok := r.s.db.state.internships[id]; ok {
		return &i, nil
	}
	return nil, gorm.ErrRecordNotFound
}
