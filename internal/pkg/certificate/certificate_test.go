package certificate

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository/inmem"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/cache"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
)

var issueDay = time.Date(2026, 4, 9, 15, 30, 0, 0, time.UTC)

type fixture struct {
	db        *inmem.DB
	issuer    *Issuer
	activator *enrollment.Activator
	rec       *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := inmem.New()
	db.Load(inmem.Seed{
		Students:    []models.Student{{ID: "s1", FirstName: "Asha", LastName: "Rao", Email: "asha@example.com"}},
		Courses:     []models.Course{{ID: "c1", Title: "Intro to Go", Description: "Eight weeks of Go fundamentals", Price: 500}},
		Internships: []models.Internship{{ID: "i1", Title: "Backend Intern", Company: "Acme", Price: 1000}},
	})
	rec := &events.Recorder{}
	issuer := NewIssuer(db.Store(), rec)
	issuer.now = func() time.Time { return issueDay }
	return &fixture{db: db, issuer: issuer, activator: enrollment.NewActivator(db.Store(), nil), rec: rec}
}

func score(v float64) *float64 { return &v }

func (f *fixture) enroll(t *testing.T, item models.ItemRef, complete bool) *models.Enrollment {
	t.Helper()
	ctx := context.Background()
	e, _, err := f.activator.Activate(ctx, "s1", item, enrollment.Source{Via: models.ActivatedViaGateway, Ref: "T-" + item.ID, AmountPaid: 500})
	require.NoError(t, err)
	if complete {
		e, err = f.activator.RecordProgress(ctx, e.ID, enrollment.ProgressInput{Progress: 100, Score: score(94.5)})
		require.NoError(t, err)
		require.Equal(t, models.EnrollmentCompleted, e.Status)
	}
	return e
}

func TestIssueCustom(t *testing.T) {
	f := newFixture(t)
	c, err := f.issuer.IssueCustom(context.Background(), CustomInput{SubjectName: " Asha Rao ", Title: "Hackathon Winner", Description: "Spring cohort"})
	require.NoError(t, err)

	assert.Equal(t, models.CredentialCustom, c.Kind)
	assert.Equal(t, "Asha Rao", c.SubjectName)
	assert.Regexp(t, `^CUS-HW-[0-9A-Z]{12}$`, c.CredentialID)
	assert.Len(t, c.Key, credential.KeyLength)
	assert.Equal(t, "2026-04-09", c.IssueDate.Format(DateLayout))
	assert.Nil(t, c.SourceRef)
	assert.Len(t, f.rec.OfType(events.CredentialIssued), 1)

	for _, in := range []CustomInput{{Title: "x"}, {SubjectName: "x"}} {
		_, err := f.issuer.IssueCustom(context.Background(), in)
		if !apperr.IsKind(err, apperr.Invalid) {
			t.Fatalf("IssueCustom(%+v) = %v, want invalid", in, err)
		}
	}
}

func TestIssueCustomRetriesIDCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	calls := 0
	f.issuer.newID = func(models.CredentialKind, string) (string, error) {
		calls++
		if calls <= 3 {
			return "CUS-FIXED", nil
		}
		return "CUS-FRESH", nil
	}
	first, err := f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "A", Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, "CUS-FIXED", first.CredentialID)

	second, err := f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "B", Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, "CUS-FRESH", second.CredentialID)
	assert.Equal(t, 4, calls)

	f.issuer.newID = func(models.CredentialKind, string) (string, error) { return "CUS-FIXED", nil }
	_, err = f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "C", Title: "T"})
	assert.True(t, apperr.IsKind(err, apperr.Internal))

	f.issuer.newID = func(models.CredentialKind, string) (string, error) { return "", errors.New("entropy") }
	_, err = f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "D", Title: "T"})
	assert.True(t, apperr.IsKind(err, apperr.Internal))
}

func TestIssueForCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.enroll(t, models.ItemRef{Type: models.ItemCourse, ID: "c1"}, true)

	c, err := f.issuer.IssueForCompletion(ctx, models.CredentialCourse, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", c.SubjectName)
	assert.Equal(t, "Intro to Go", c.Title)
	assert.Equal(t, "Eight weeks of Go fundamentals", c.IssuerContext)
	require.NotNil(t, c.Score)
	assert.Equal(t, 94.5, *c.Score)
	require.NotNil(t, c.SourceRef)
	assert.Equal(t, e.SourceRef(), *c.SourceRef)
	assert.Regexp(t, `^CRS-ITG-`, c.CredentialID)

	again, err := f.issuer.IssueForCompletion(ctx, models.CredentialCourse, e.ID)
	assert.True(t, apperr.IsKind(err, apperr.AlreadyIssued))
	require.NotNil(t, again)
	assert.Equal(t, c.CredentialID, again.CredentialID)
	assert.Equal(t, 1, f.db.Count().Credentials)
}

func TestIssueForCompletionPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.enroll(t, models.ItemRef{Type: models.ItemInternship, ID: "i1"}, false)
	done := f.enroll(t, models.ItemRef{Type: models.ItemCourse, ID: "c1"}, true)

	tests := []struct {
		name string
		kind models.CredentialKind
		id   uint
		want apperr.Kind
	}{
		{"missing enrollment", models.CredentialCourse, 999, apperr.NotFound},
		{"kind mismatch", models.CredentialInternship, done.ID, apperr.Invalid},
		{"custom kind", models.CredentialCustom, done.ID, apperr.Invalid},
		{"not completed", models.CredentialInternship, active.ID, apperr.NotEligible},
	}
	for _, tt := range tests {
		_, err := f.issuer.IssueForCompletion(ctx, tt.kind, tt.id)
		if !apperr.IsKind(err, tt.want) {
			t.Fatalf("%s: got %v, want %s", tt.name, err, tt.want)
		}
	}
	assert.Equal(t, 0, f.db.Count().Credentials)
}

func TestIssueForCompletionConcurrent(t *testing.T) {
	f := newFixture(t)
	e := f.enroll(t, models.ItemRef{Type: models.ItemCourse, ID: "c1"}, true)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := f.issuer.IssueForCompletion(context.Background(), models.CredentialCourse, e.ID)
			if err != nil && !apperr.IsKind(err, apperr.AlreadyIssued) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			ids[c.CredentialID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, f.db.Count().Credentials)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "Asha Rao", Title: "Hackathon Winner"})
	require.NoError(t, err)

	v := NewVerifier(f.db.Store().Credentials(), nil, 0)

	inputs := []string{
		c.CredentialID,
		"  " + c.CredentialID + " ",
		"https://learn.example.com/verify-credential/" + c.CredentialID + "?utm=qr",
	}
	for _, in := range inputs {
		res, err := v.Verify(ctx, in)
		require.NoError(t, err)
		if !res.Valid {
			t.Fatalf("Verify(%q) invalid", in)
		}
		assert.Equal(t, models.CredentialCustom, res.Kind)
		assert.Equal(t, c.Key, res.Data.Key)
		assert.Equal(t, "2026-04-09", res.Data.IssueDate)
	}

	for _, in := range []string{"", "CUS-NOPE", "https://x/verify-credential/UNKNOWN"} {
		res, err := v.Verify(ctx, in)
		require.NoError(t, err)
		assert.False(t, res.Valid, in)
		assert.Nil(t, res.Data)
	}
}

func TestVerifyCachesOnlyHits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mem := cache.NewMemory()
	v := NewVerifier(f.db.Store().Credentials(), mem, time.Minute)

	res, err := v.Verify(ctx, "CUS-LATER")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	_, err = mem.Get(ctx, cachePrefix+"CUS-LATER")
	assert.ErrorIs(t, err, cache.ErrMiss)

	c, err := f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "Asha Rao", Title: "Speaker"})
	require.NoError(t, err)
	_, err = v.Verify(ctx, c.CredentialID)
	require.NoError(t, err)

	// Served from cache even with the repository gone.
	cached := NewVerifier(nil, mem, time.Minute)
	res, err = cached.Verify(ctx, c.CredentialID)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Asha Rao", res.Data.Name)
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.enroll(t, models.ItemRef{Type: models.ItemInternship, ID: "i1"}, false)
	_, err := f.activator.RecordProgress(ctx, e.ID, enrollment.ProgressInput{Progress: 100})
	require.NoError(t, err)
	c, err := f.issuer.IssueForCompletion(ctx, models.CredentialInternship, e.ID)
	require.NoError(t, err)

	v := NewVerifier(f.db.Store().Credentials(), nil, 0)

	cmp, err := v.Compare(ctx, c.CredentialID, Printed{
		Name:          "ASHA  rao",
		Title:         "Backend Intern",
		Key:           c.Key,
		IssuerContext: "Acme",
		IssueDate:     "09.04.2026",
	})
	require.NoError(t, err)
	assert.True(t, cmp.Valid)
	assert.True(t, cmp.Authentic)
	assert.Empty(t, cmp.Mismatches)

	cmp, err = v.Compare(ctx, c.CredentialID, Printed{Name: "Someone Else", Key: "WRONGKEY", IssueDate: "2026-04-10"})
	require.NoError(t, err)
	assert.False(t, cmp.Authentic)
	fields := []string{}
	for _, m := range cmp.Mismatches {
		fields = append(fields, m.Field)
	}
	assert.Equal(t, []string{"name", "key", "issue_date"}, fields)

	blank := []struct {
		name    string
		printed Printed
		want    []string
	}{
		{"no key", Printed{Name: "Asha Rao", Title: "Backend Intern"}, []string{"key"}},
		{"no name", Printed{Key: c.Key}, []string{"name"}},
		{"empty document", Printed{}, []string{"name", "key"}},
		{"whitespace key", Printed{Name: "Asha Rao", Key: "   "}, []string{"key"}},
	}
	for _, tt := range blank {
		cmp, err := v.Compare(ctx, c.CredentialID, tt.printed)
		require.NoError(t, err)
		if cmp.Authentic {
			t.Fatalf("%s: blank required field reported authentic", tt.name)
		}
		got := []string{}
		for _, m := range cmp.Mismatches {
			got = append(got, m.Field)
		}
		assert.Equal(t, tt.want, got, tt.name)
	}

	cmp, err = v.Compare(ctx, "INT-MISSING", Printed{Name: "x"})
	require.NoError(t, err)
	assert.False(t, cmp.Valid)
	assert.False(t, cmp.Authentic)
}

func TestRenderDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "Zoë Müller", Title: "Open Source Contributor", Description: "Awarded by the maintainers"})
	require.NoError(t, err)

	codec, err := credential.NewCodec(credential.Config{VerifyBaseURL: "https://learn.example.com"})
	require.NoError(t, err)
	r := NewRenderer(f.db.Store().Credentials(), codec, "")

	var buf bytes.Buffer
	got, err := r.Render(ctx, c.CredentialID, &buf)
	require.NoError(t, err)
	assert.Equal(t, c.CredentialID, got.CredentialID)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 1000)

	_, err = r.Render(ctx, "CUS-NOPE", &buf)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestRenderDocumentNeedsUnicodeFont(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.issuer.IssueCustom(ctx, CustomInput{SubjectName: "आशा राव", Title: "Hackathon Winner"})
	require.NoError(t, err)

	codec, err := credential.NewCodec(credential.Config{VerifyBaseURL: "https://learn.example.com"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewRenderer(f.db.Store().Credentials(), codec, "").Render(ctx, c.CredentialID, &buf)
	assert.True(t, apperr.IsKind(err, apperr.NotApplicable), "got %v", err)
	assert.Zero(t, buf.Len())

	_, err = NewRenderer(f.db.Store().Credentials(), codec, "/nonexistent/font.ttf").Render(ctx, c.CredentialID, &buf)
	assert.True(t, apperr.IsKind(err, apperr.Internal), "got %v", err)
}
