package payment

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/app/repository/inmem"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
	"github.com/ManuelReschke/CertLedger/internal/pkg/evidence"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payu"
	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
)

var (
	course     = models.ItemRef{Type: models.ItemCourse, ID: "c1"}
	internship = models.ItemRef{Type: models.ItemInternship, ID: "i1"}
	testPayU   = payu.Config{MerchantKey: "gtKFFx", Salt: "eCwWELxi", PaymentURL: "https://test.payu.in/_payment", CallbackURL: "http://localhost/cb"}
)

type fixture struct {
	db      *inmem.DB
	store   repository.Store
	rec     *events.Recorder
	gateway *GatewayService
	ledger  *ProofLedger
	signer  *payu.Signer
}

type fakeEvidence struct{ err error }

func (f fakeEvidence) Check(context.Context, string) error { return f.err }

func newFixture(t *testing.T, codes ...models.PromoCode) *fixture {
	t.Helper()
	db := inmem.New()
	db.Load(inmem.Seed{
		Students:    []models.Student{{ID: "s1", FirstName: "Asha", LastName: "Rao", Email: "asha@example.com", Phone: "9999999999"}},
		Courses:     []models.Course{{ID: "c1", Title: "Intro to Go", Price: 500}, {ID: "c2", Title: "Free Taster", Price: 0}},
		Internships: []models.Internship{{ID: "i1", Title: "Backend Intern", Company: "Acme", Price: 1000}},
		PromoCodes:  codes,
	})
	store := db.Store()
	rec := &events.Recorder{}
	pricer := NewPricer(store.Catalog(), promo.NewEngine(store.PromoCodes()))
	activator := enrollment.NewActivator(store, rec)

	gw, err := NewGatewayService(store, testPayU, pricer, activator, rec)
	require.NoError(t, err)
	signer, err := payu.NewSigner(testPayU)
	require.NoError(t, err)

	return &fixture{
		db:      db,
		store:   store,
		rec:     rec,
		gateway: gw,
		ledger:  NewProofLedger(store, pricer, activator, fakeEvidence{}, rec),
		signer:  signer,
	}
}

func (f *fixture) begin(t *testing.T, txnID string, item models.ItemRef, promoCode string) *BeginResult {
	t.Helper()
	res, err := f.gateway.Begin(context.Background(), BeginInput{TxnID: txnID, StudentID: "s1", Item: item, PromoCode: promoCode})
	require.NoError(t, err)
	return res
}

// reply builds the callback the gateway would post for a begun payment.
func (f *fixture) reply(res *BeginResult, status string) payu.Reply {
	fields := res.Fields
	rep := payu.Reply{
		Key:         fields["key"],
		TxnID:       fields["txnid"],
		Amount:      fields["amount"],
		ProductInfo: fields["productinfo"],
		FirstName:   fields["firstname"],
		Email:       fields["email"],
		Status:      status,
		MihPayID:    "403993715521",
		UDF:         [5]string{fields["udf1"], fields["udf2"], fields["udf3"], fields["udf4"], fields["udf5"]},
	}
	rep.Hash = f.signer.ReplyHash(rep)
	return rep
}

func amount(v int64) *int64 { return &v }

func TestPricerQuote(t *testing.T) {
	f := newFixture(t, models.PromoCode{Code: "SAVE20", DiscountType: models.DiscountPercentage, DiscountValue: 20, ApplicableTo: models.PromoScopeBoth, IsActive: true})
	p := f.gateway.pricer
	ctx := context.Background()

	q, err := p.Quote(ctx, internship, "save20")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.BaseAmount)
	assert.Equal(t, int64(800), q.FinalAmount)
	assert.Equal(t, "SAVE20", q.PromoCode)

	_, err = p.Quote(ctx, models.ItemRef{Type: models.ItemCourse, ID: "nope"}, "")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = p.Quote(ctx, models.ItemRef{}, "")
	assert.True(t, apperr.IsKind(err, apperr.Invalid))

	_, err = p.Quote(ctx, course, "BOGUS")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestBeginSignsServerAmount(t *testing.T) {
	f := newFixture(t)
	res := f.begin(t, "T1", course, "")

	assert.Equal(t, "T1", res.TxnID)
	assert.Equal(t, int64(500), res.Amount)
	assert.Equal(t, testPayU.PaymentURL, res.PaymentURL)
	assert.Equal(t, "500.00", res.Fields["amount"])
	assert.Equal(t, "Intro to Go", res.Fields["productinfo"])
	assert.Equal(t, "Asha", res.Fields["firstname"])
	assert.Equal(t, "s1", res.Fields["udf1"])
	assert.Equal(t, "course", res.Fields["udf2"])
	assert.Equal(t, "c1", res.Fields["udf3"])
	assert.NotContains(t, res.Fields, "salt")

	txn, err := f.store.GatewayTransactions().GetByTxnID(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayInitiated, txn.Outcome)
	assert.Equal(t, res.Fields["hash"], txn.Signature)
}

func TestBeginValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   BeginInput
		kind apperr.Kind
	}{
		{"client amount differs", BeginInput{StudentID: "s1", Item: course, Amount: amount(400)}, apperr.AmountMismatch},
		{"free item", BeginInput{StudentID: "s1", Item: models.ItemRef{Type: models.ItemCourse, ID: "c2"}}, apperr.Invalid},
		{"bad txnid", BeginInput{TxnID: "has space", StudentID: "s1", Item: course}, apperr.Invalid},
		{"no student", BeginInput{Item: course}, apperr.Invalid},
		{"unknown payer", BeginInput{StudentID: "ghost", Item: course}, apperr.Invalid},
		{"unknown item", BeginInput{StudentID: "s1", Item: models.ItemRef{Type: models.ItemCourse, ID: "x"}}, apperr.NotFound},
	}
	for _, tt := range tests {
		_, err := f.gateway.Begin(ctx, tt.in)
		if !apperr.IsKind(err, tt.kind) {
			t.Fatalf("%s: got %v, want kind %s", tt.name, err, tt.kind)
		}
	}

	_, err := f.gateway.Begin(ctx, BeginInput{StudentID: "s1", Item: course, Amount: amount(500)})
	require.NoError(t, err)

	f.begin(t, "DUP", internship, "")
	_, err = f.gateway.Begin(ctx, BeginInput{TxnID: "DUP", StudentID: "s1", Item: internship})
	assert.True(t, apperr.IsKind(err, apperr.DuplicateReference))
}

func TestBeginGeneratesTxnID(t *testing.T) {
	f := newFixture(t)
	res := f.begin(t, "", course, "")
	assert.Regexp(t, `^TXN[0-9A-F]{20}$`, res.TxnID)
}

func TestCallbackActivatesEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.begin(t, "T1", course, "")

	out, err := f.gateway.HandleCallback(ctx, f.reply(res, "success"), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.GatewaySuccess, out.Outcome)
	assert.False(t, out.Duplicate)
	require.NotNil(t, out.Enrollment)
	assert.Equal(t, models.ActivatedViaGateway, out.Enrollment.ActivatedVia)
	assert.Equal(t, "T1", out.Enrollment.ActivationRef)
	assert.Equal(t, int64(500), out.Enrollment.AmountPaid)

	txn, err := f.store.GatewayTransactions().GetByTxnID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.GatewaySuccess, txn.Outcome)
	assert.Equal(t, "403993715521", txn.GatewayPaymentID)

	assert.Len(t, f.rec.OfType(events.EnrollmentActivated), 1)
	assert.Len(t, f.rec.OfType(events.GatewaySettled), 1)

	// Replaying the same callback is a no-op.
	again, err := f.gateway.HandleCallback(ctx, f.reply(res, "success"), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	require.NotNil(t, again.Enrollment)
	assert.Equal(t, out.Enrollment.ID, again.Enrollment.ID)

	assert.Equal(t, 1, f.db.Count().Enrollments)
	assert.Equal(t, 2, f.db.Count().Events)
	assert.Len(t, f.rec.OfType(events.EnrollmentActivated), 1)
}

func TestForgedCallbackChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.begin(t, "T1", course, "")

	forged := f.reply(res, "success")
	forged.Amount = "1.00"

	_, err := f.gateway.HandleCallback(ctx, forged, "203.0.113.9")
	assert.True(t, apperr.IsKind(err, apperr.SignatureMismatch))

	tampered := f.reply(res, "failure")
	tampered.Status = "success"
	_, err = f.gateway.HandleCallback(ctx, tampered, "203.0.113.9")
	assert.True(t, apperr.IsKind(err, apperr.SignatureMismatch))

	txn, err := f.store.GatewayTransactions().GetByTxnID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayInitiated, txn.Outcome)
	assert.Equal(t, 0, f.db.Count().Enrollments)
	assert.Equal(t, 2, f.db.Count().Events)
	assert.Len(t, f.rec.OfType(events.GatewayForged), 2)

	// The genuine callback still settles afterwards.
	out, err := f.gateway.HandleCallback(ctx, f.reply(res, "success"), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.GatewaySuccess, out.Outcome)
}

func TestCallbackOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failed := f.begin(t, "F1", course, "")
	out, err := f.gateway.HandleCallback(ctx, f.reply(failed, "failure"), "")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayFailure, out.Outcome)
	assert.Nil(t, out.Enrollment)

	cancelled := f.begin(t, "C1", internship, "")
	rep := f.reply(cancelled, "failure")
	rep.UnmappedStatus = "userCancelled"
	out, err = f.gateway.HandleCallback(ctx, rep, "")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayCancelled, out.Outcome)

	assert.Equal(t, 0, f.db.Count().Enrollments)

	_, err = f.gateway.HandleCallback(ctx, f.reply(&BeginResult{Fields: map[string]string{"key": "gtKFFx", "txnid": "NOPE", "amount": "1.00"}}, "success"), "")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestConcurrentCallbacksActivateOnce(t *testing.T) {
	f := newFixture(t)
	res := f.begin(t, "T1", course, "")
	rep := f.reply(res, "success")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.gateway.HandleCallback(context.Background(), rep, "")
			if err != nil {
				t.Errorf("HandleCallback: %v", err)
				return
			}
			if !out.Duplicate {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, f.db.Count().Enrollments)
}

func TestCallbackRedeemsPromoOnce(t *testing.T) {
	f := newFixture(t, models.PromoCode{Code: "SAVE20", DiscountType: models.DiscountPercentage, DiscountValue: 20, ApplicableTo: models.PromoScopeBoth, IsActive: true})
	ctx := context.Background()

	res := f.begin(t, "T1", course, "SAVE20")
	assert.Equal(t, int64(400), res.Amount)
	assert.Equal(t, "SAVE20", res.Fields["udf4"])

	_, err := f.gateway.HandleCallback(ctx, f.reply(res, "success"), "")
	require.NoError(t, err)
	_, err = f.gateway.HandleCallback(ctx, f.reply(res, "success"), "")
	require.NoError(t, err)

	p, err := f.store.PromoCodes().GetByCode(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.UsedCount)

	txn, err := f.store.GatewayTransactions().GetByTxnID(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, txn.PromoRedeemed)
}

func TestCallbackOverRedeemedPromoStillActivates(t *testing.T) {
	f := newFixture(t, models.PromoCode{Code: "ONCE", DiscountType: models.DiscountFlat, DiscountValue: 100, ApplicableTo: models.PromoScopeBoth, MaxUses: amount(1), IsActive: true})
	ctx := context.Background()

	a := f.begin(t, "A1", course, "ONCE")
	b := f.begin(t, "B1", internship, "ONCE")

	_, err := f.gateway.HandleCallback(ctx, f.reply(a, "success"), "")
	require.NoError(t, err)
	out, err := f.gateway.HandleCallback(ctx, f.reply(b, "success"), "")
	require.NoError(t, err)
	require.NotNil(t, out.Enrollment)

	txn, err := f.store.GatewayTransactions().GetByTxnID(ctx, "B1")
	require.NoError(t, err)
	assert.False(t, txn.PromoRedeemed)
	assert.Equal(t, 2, f.db.Count().Enrollments)
}

func TestBeginRejectsEnrolledPair(t *testing.T) {
	f := newFixture(t)
	res := f.begin(t, "T1", course, "")
	_, err := f.gateway.HandleCallback(context.Background(), f.reply(res, "success"), "")
	require.NoError(t, err)

	_, err = f.gateway.Begin(context.Background(), BeginInput{StudentID: "s1", Item: course})
	assert.True(t, apperr.IsKind(err, apperr.AlreadyEnrolled))
}

func submit(t *testing.T, f *fixture, ref string, item models.ItemRef, amt int64) *models.PaymentProof {
	t.Helper()
	p, err := f.ledger.Submit(context.Background(), SubmitInput{
		StudentID:             "s1",
		Item:                  item,
		Amount:                amt,
		ExternalTransactionID: ref,
		EvidenceRef:           "payment-proofs/" + ref + ".png",
	})
	require.NoError(t, err)
	return p
}

func TestSubmitProof(t *testing.T) {
	f := newFixture(t)
	p := submit(t, f, "utr123 ", course, 500)

	assert.Equal(t, models.ProofPending, p.Status)
	assert.Equal(t, "UTR123", p.ExternalTransactionID)
	assert.Equal(t, int64(500), p.ExpectedAmount)
	assert.Len(t, p.ID, 36)
	assert.Len(t, f.rec.OfType(events.ProofSubmitted), 1)

	_, err := f.ledger.Submit(context.Background(), SubmitInput{StudentID: "s1", Item: internship, Amount: 1000, ExternalTransactionID: "UTR123", EvidenceRef: "x.png"})
	assert.True(t, apperr.IsKind(err, apperr.DuplicateReference))
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := SubmitInput{StudentID: "s1", Item: course, Amount: 500, ExternalTransactionID: "R1", EvidenceRef: "e.png"}

	tests := []struct {
		name   string
		mutate func(*SubmitInput)
		kind   apperr.Kind
	}{
		{"missing ref", func(in *SubmitInput) { in.ExternalTransactionID = " " }, apperr.Invalid},
		{"missing evidence", func(in *SubmitInput) { in.EvidenceRef = "" }, apperr.Invalid},
		{"zero amount", func(in *SubmitInput) { in.Amount = 0 }, apperr.Invalid},
		{"underpaid", func(in *SubmitInput) { in.Amount = 499 }, apperr.AmountMismatch},
		{"unknown item", func(in *SubmitInput) { in.Item.ID = "zzz" }, apperr.NotFound},
		{"bad promo", func(in *SubmitInput) { in.PromoCode = "NOPE" }, apperr.NotFound},
	}
	for _, tt := range tests {
		in := base
		tt.mutate(&in)
		_, err := f.ledger.Submit(ctx, in)
		if !apperr.IsKind(err, tt.kind) {
			t.Fatalf("%s: got %v, want kind %s", tt.name, err, tt.kind)
		}
	}
	assert.Equal(t, 0, f.db.Count().Proofs)
}

func TestSubmitChecksEvidence(t *testing.T) {
	f := newFixture(t)
	in := SubmitInput{StudentID: "s1", Item: course, Amount: 500, ExternalTransactionID: "R1", EvidenceRef: "e.png"}

	f.ledger.evidence = fakeEvidence{err: evidence.ErrMissing}
	_, err := f.ledger.Submit(context.Background(), in)
	assert.True(t, apperr.IsKind(err, apperr.Invalid))

	f.ledger.evidence = fakeEvidence{err: errors.New("s3 down")}
	_, err = f.ledger.Submit(context.Background(), in)
	assert.True(t, apperr.IsKind(err, apperr.Internal))
	assert.Equal(t, 0, f.db.Count().Proofs)
}

func TestDecideVerifyActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submit(t, f, "R1", course, 500)

	d, err := f.ledger.Decide(ctx, DecideInput{ProofID: p.ID, Action: models.ProofActionVerify, DecidedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.ProofVerified, d.Proof.Status)
	require.NotNil(t, d.Proof.DecidedBy)
	assert.Equal(t, "admin", *d.Proof.DecidedBy)
	require.NotNil(t, d.Enrollment)
	assert.Equal(t, models.ActivatedViaProof, d.Enrollment.ActivatedVia)
	assert.Equal(t, p.ID, d.Enrollment.ActivationRef)
	assert.False(t, d.AlreadyEnrolled)

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: p.ID, Action: models.ProofActionReject})
	assert.True(t, apperr.IsKind(err, apperr.AlreadyDecided))

	assert.Len(t, f.rec.OfType(events.ProofDecided), 1)
	assert.Len(t, f.rec.OfType(events.EnrollmentActivated), 1)
}

func TestDecideReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submit(t, f, "R1", course, 500)

	d, err := f.ledger.Decide(ctx, DecideInput{ProofID: p.ID, Action: models.ProofActionReject})
	require.NoError(t, err)
	assert.Equal(t, models.ProofRejected, d.Proof.Status)
	require.NotNil(t, d.Proof.RejectionReason)
	assert.Equal(t, models.DefaultRejectionReason, *d.Proof.RejectionReason)
	assert.Nil(t, d.Enrollment)

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: p.ID, Action: models.ProofActionVerify})
	assert.True(t, apperr.IsKind(err, apperr.AlreadyDecided))
	assert.Equal(t, 0, f.db.Count().Enrollments)

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: "missing", Action: models.ProofActionVerify})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: p.ID, Action: "approve"})
	assert.True(t, apperr.IsKind(err, apperr.Invalid))
}

func TestDecideSecondProofForPairRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := submit(t, f, "R1", course, 500)
	second := submit(t, f, "R2", course, 500)

	_, err := f.ledger.Decide(ctx, DecideInput{ProofID: first.ID, Action: models.ProofActionVerify})
	require.NoError(t, err)

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: second.ID, Action: models.ProofActionVerify})
	assert.True(t, apperr.IsKind(err, apperr.AlreadyEnrolled))

	stored, err := f.store.PaymentProofs().GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProofPending, stored.Status)

	// It can still be rejected.
	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: second.ID, Action: models.ProofActionReject, RejectionReason: "duplicate payment"})
	require.NoError(t, err)
}

func TestDecideAfterGatewayKeepsProofVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := submit(t, f, "R1", course, 500)

	res := f.begin(t, "T1", course, "")
	_, err := f.gateway.HandleCallback(ctx, f.reply(res, "success"), "")
	require.NoError(t, err)

	d, err := f.ledger.Decide(ctx, DecideInput{ProofID: p.ID, Action: models.ProofActionVerify})
	require.NoError(t, err)
	assert.True(t, d.AlreadyEnrolled)
	assert.Equal(t, models.ProofVerified, d.Proof.Status)
	assert.Equal(t, models.ActivatedViaGateway, d.Enrollment.ActivatedVia)
	assert.Equal(t, 1, f.db.Count().Enrollments)
	assert.Len(t, f.rec.OfType(events.EnrollmentActivated), 1)
}

func TestDecideExhaustedPromoRollsBack(t *testing.T) {
	f := newFixture(t, models.PromoCode{Code: "ONCE", DiscountType: models.DiscountFlat, DiscountValue: 100, ApplicableTo: models.PromoScopeBoth, MaxUses: amount(1), IsActive: true})
	ctx := context.Background()

	a, err := f.ledger.Submit(ctx, SubmitInput{StudentID: "s1", Item: course, Amount: 400, ExternalTransactionID: "A", EvidenceRef: "a.png", PromoCode: "once"})
	require.NoError(t, err)
	b, err := f.ledger.Submit(ctx, SubmitInput{StudentID: "s1", Item: internship, Amount: 900, ExternalTransactionID: "B", EvidenceRef: "b.png", PromoCode: "ONCE"})
	require.NoError(t, err)

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: a.ID, Action: models.ProofActionVerify})
	require.NoError(t, err)

	_, err = f.ledger.Decide(ctx, DecideInput{ProofID: b.ID, Action: models.ProofActionVerify})
	assert.True(t, apperr.IsKind(err, apperr.UsageLimitReached))

	stored, err := f.store.PaymentProofs().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProofPending, stored.Status)
	assert.Equal(t, 1, f.db.Count().Enrollments)
}

func TestConcurrentDecideSingleWinner(t *testing.T) {
	f := newFixture(t)
	p := submit(t, f, "R1", course, 500)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		decided int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		action := models.ProofActionVerify
		if i%2 == 1 {
			action = models.ProofActionReject
		}
		go func() {
			defer wg.Done()
			_, err := f.ledger.Decide(context.Background(), DecideInput{ProofID: p.ID, Action: action})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.IsKind(err, apperr.AlreadyDecided):
				decided++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, decided)
}

func TestListAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	f.ledger.now = func() time.Time { return base }
	older := submit(t, f, "R1", course, 500)
	f.ledger.now = func() time.Time { return base.Add(time.Hour) }
	newer := submit(t, f, "R2", internship, 1000)
	_, err := f.ledger.Decide(ctx, DecideInput{ProofID: older.ID, Action: models.ProofActionReject, RejectionReason: "blurry", DecidedBy: "ops"})
	require.NoError(t, err)

	all, err := f.ledger.List(ctx, repository.ProofFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)

	pending, err := f.ledger.List(ctx, repository.ProofFilter{Status: models.ProofPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.ledger.List(ctx, repository.ProofFilter{Status: "lost"})
	assert.True(t, apperr.IsKind(err, apperr.Invalid))

	var buf bytes.Buffer
	require.NoError(t, f.ledger.Export(ctx, repository.ProofFilter{}, &buf))

	x, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer x.Close()
	rows, err := x.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Proof ID", rows[0][0])
	assert.Equal(t, newer.ID, rows[1][0])
	assert.Equal(t, "R2", rows[1][6])
	assert.Equal(t, "rejected", rows[2][9])
	assert.Equal(t, "blurry", rows[2][10])
	assert.Equal(t, "ops", rows[2][13])
}
