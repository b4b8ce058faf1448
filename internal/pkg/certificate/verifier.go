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
	"github.com/ManuelReschke/CertLedger/internal/pkg/cache"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
)

// DateLayout is how issue dates are printed and compared.
const DateLayout = "2006-01-02"

const cachePrefix = "credential:verify:"

// DefaultCacheTTL applies when no TTL is configured.
const DefaultCacheTTL = time.Hour

// Data is the public view of a verified credential.
type Data struct {
	CredentialID  string                `json:"credential_id"`
	Key           string                `json:"key"`
	Kind          models.CredentialKind `json:"kind"`
	Name          string                `json:"name"`
	Title         string                `json:"title"`
	IssuerContext string                `json:"issuer_context"`
	IssueDate     string                `json:"issue_date"`
	Score         *float64              `json:"score,omitempty"`
}

// Result is returned for every verification, valid or not.
type Result struct {
	Valid bool                  `json:"valid"`
	Kind  models.CredentialKind `json:"kind,omitempty"`
	Data  *Data                 `json:"data,omitempty"`
}

func dataOf(c *models.Credential) *Data {
	return &Data{
		CredentialID:  c.CredentialID,
		Key:           c.Key,
		Kind:          c.Kind,
		Name:          c.SubjectName,
		Title:         c.Title,
		IssuerContext: c.IssuerContext,
		IssueDate:     c.IssueDate.Format(DateLayout),
		Score:         c.Score,
	}
}

// Verifier is the public, read-only lookup path.
type Verifier struct {
	credentials repository.CredentialRepository
	cache       cache.Cache
	ttl         time.Duration
}

// NewVerifier returns a verifier. A nil cache disables caching.
func NewVerifier(credentials repository.CredentialRepository, c cache.Cache, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Verifier{credentials: credentials, cache: c, ttl: ttl}
}

// Verify looks up a credential by ID or by raw scanned text. Unknown IDs
// produce an invalid result, not an error.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Result, error) {
	id := credential.NormalizeID(credential.Decode(raw))
	if id == "" {
		return &Result{Valid: false}, nil
	}

	if v.cache != nil {
		var cached Data
		hit, err := cache.GetJSON(ctx, v.cache, cachePrefix+id, &cached)
		if err != nil {
			log.Warnf("[Verify] Cache read failed for %s: %v", id, err)
		} else if hit {
			return &Result{Valid: true, Kind: cached.Kind, Data: &cached}, nil
		}
	}

	c, err := v.credentials.GetByCredentialID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Result{Valid: false}, nil
		}
		return nil, apperr.Internalf("credential lookup failed", err)
	}

	data := dataOf(c)
	if v.cache != nil {
		if err := cache.SetJSON(ctx, v.cache, cachePrefix+id, data, v.ttl); err != nil {
			log.Warnf("[Verify] Cache write failed for %s: %v", id, err)
		}
	}
	return &Result{Valid: true, Kind: c.Kind, Data: data}, nil
}

// Printed holds the fields read off a presented document. Name and key are
// required for an authentic result; other empty fields are not compared.
type Printed struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Key           string `json:"key"`
	IssuerContext string `json:"issuer_context"`
	IssueDate     string `json:"issue_date"`
}

// missingField is reported as Expected when a required printed field is
// blank. The record value is not echoed back.
const missingField = "required"

// Mismatch names a field whose printed value differs from the record.
type Mismatch struct {
	Field    string `json:"field"`
	Printed  string `json:"printed"`
	Expected string `json:"expected"`
}

// Comparison is the outcome of checking a printed document.
type Comparison struct {
	Valid      bool       `json:"valid"`
	Authentic  bool       `json:"authentic"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Compare checks a printed document against the canonical record for id.
// A document is authentic when the credential exists and nothing printed
// differs from it.
func (v *Verifier) Compare(ctx context.Context, id string, printed Printed) (*Comparison, error) {
	res, err := v.Verify(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return &Comparison{Valid: false, Mismatches: []Mismatch{}}, nil
	}

	d := res.Data
	mismatches := []Mismatch{}
	check := func(field, got, want string, normalize func(string) string, required bool) {
		got = strings.TrimSpace(got)
		if got == "" {
			if required {
				mismatches = append(mismatches, Mismatch{Field: field, Printed: "", Expected: missingField})
			}
			return
		}
		if normalize(got) != normalize(want) {
			mismatches = append(mismatches, Mismatch{Field: field, Printed: got, Expected: want})
		}
	}
	check("name", printed.Name, d.Name, normalizeText, true)
	check("title", printed.Title, d.Title, normalizeText, false)
	check("key", printed.Key, d.Key, credential.NormalizeID, true)
	check("issuer_context", printed.IssuerContext, d.IssuerContext, normalizeText, false)
	check("issue_date", printed.IssueDate, d.IssueDate, normalizeDate, false)

	return &Comparison{Valid: true, Authentic: len(mismatches) == 0, Mismatches: mismatches}, nil
}

// normalizeText folds case and whitespace runs, which OCR and manual
// transcription do not preserve.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var dateLayouts = []string{DateLayout, "02.01.2006", "02/01/2006", "January 2, 2006", "2 January 2006", time.RFC3339}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	return s
}
