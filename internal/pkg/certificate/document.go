package certificate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CertLedger/app/models"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
)

// Renderer produces the printable certificate for a credential.
type Renderer struct {
	credentials repository.CredentialRepository
	codec       *credential.Codec
	// fontPath is a UTF-8 TrueType font. Empty uses the cp1252 core fonts,
	// which cannot print names outside Western European scripts.
	fontPath string
}

// NewRenderer creates a renderer. fontPath may be empty.
func NewRenderer(credentials repository.CredentialRepository, codec *credential.Codec, fontPath string) *Renderer {
	return &Renderer{credentials: credentials, codec: codec, fontPath: strings.TrimSpace(fontPath)}
}

const utf8Family = "certfont"

// typesetter picks the font family and converts text for it.
type typesetter struct {
	pdf    *gofpdf.Fpdf
	family string
	utf8   bool
}

func (r *Renderer) typesetter(pdf *gofpdf.Fpdf) (*typesetter, error) {
	if r.fontPath == "" {
		return &typesetter{pdf: pdf, family: "Helvetica"}, nil
	}
	for _, style := range []string{"", "B", "I"} {
		pdf.AddUTF8Font(utf8Family, style, r.fontPath)
	}
	if err := pdf.Error(); err != nil {
		return nil, apperr.Internalf("could not load certificate font", err)
	}
	return &typesetter{pdf: pdf, family: utf8Family, utf8: true}, nil
}

func (t *typesetter) font(style string, size float64) {
	t.pdf.SetFont(t.family, style, size)
}

// text encodes s for the current font. Core fonts take cp1252 bytes.
func (t *typesetter) text(s string) string {
	if t.utf8 {
		return s
	}
	out, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil {
		return s
	}
	return out
}

// printable reports whether every field can be drawn in the current font.
func (t *typesetter) printable(fields ...string) bool {
	if t.utf8 {
		return true
	}
	enc := charmap.Windows1252.NewEncoder()
	for _, f := range fields {
		if _, err := enc.String(f); err != nil {
			return false
		}
	}
	return true
}

// Render writes the PDF for credential id to w.
func (r *Renderer) Render(ctx context.Context, id string, w io.Writer) (*models.Credential, error) {
	c, err := r.credentials.GetByCredentialID(ctx, credential.NormalizeID(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "credential not found")
		}
		return nil, apperr.Internalf("credential lookup failed", err)
	}
	if err := r.Write(c, w); err != nil {
		return nil, err
	}
	return c, nil
}

// Write renders c as a one page landscape PDF with the verification QR.
func (r *Renderer) Write(c *models.Credential, w io.Writer) error {
	payload := r.codec.EncodeVerificationPayload(c.CredentialID)
	qr, err := r.codec.RenderQR(payload)
	if err != nil {
		return apperr.Internalf("could not render QR code", err)
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(c.Title, true)
	pdf.SetAuthor(c.IssuerContext, true)
	pdf.SetCreationDate(c.IssueDate)
	ts, err := r.typesetter(pdf)
	if err != nil {
		return err
	}
	if !ts.printable(c.SubjectName, c.Title, c.IssuerContext) {
		return apperr.E(apperr.NotApplicable, "certificate text needs a Unicode font, set CERT_FONT_PATH")
	}
	tr := ts.text
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	pdf.SetDrawColor(40, 60, 120)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, pageW-20, 190, "D")

	pdf.SetY(30)
	ts.font("B", 28)
	pdf.CellFormat(0, 14, tr(heading(c.Kind)), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	ts.font("", 14)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	ts.font("B", 24)
	pdf.CellFormat(0, 14, tr(c.SubjectName), "", 1, "C", false, 0, "")
	ts.font("", 14)
	pdf.CellFormat(0, 8, completedPhrase(c.Kind), "", 1, "C", false, 0, "")
	ts.font("B", 18)
	pdf.CellFormat(0, 12, tr(c.Title), "", 1, "C", false, 0, "")

	if issuer := strings.TrimSpace(c.IssuerContext); issuer != "" {
		ts.font("I", 11)
		pdf.MultiCell(0, 6, tr(issuer), "", "C", false)
	}
	if c.Score != nil {
		ts.font("", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("Score: %.2f", *c.Score), "", 1, "C", false, 0, "")
	}

	pdf.SetXY(20, 160)
	ts.font("", 10)
	pdf.CellFormat(120, 6, "Issued: "+c.IssueDate.Format(DateLayout), "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Credential ID: "+c.CredentialID, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Verification key: "+c.Key, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, tr(payload), "", 2, "L", false, 0, payload)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", pageW-60, 150, 40, 40, false, opts, 0, payload)

	if err := pdf.Output(w); err != nil {
		return apperr.Internalf("could not render certificate", err)
	}
	return nil
}

func heading(kind models.CredentialKind) string {
	switch kind {
	case models.CredentialCourse:
		return "Certificate of Completion"
	case models.CredentialInternship:
		return "Internship Certificate"
	default:
		return "Certificate"
	}
}

func completedPhrase(kind models.CredentialKind) string {
	switch kind {
	case models.CredentialCourse:
		return "has successfully completed the course"
	case models.CredentialInternship:
		return "has successfully completed the internship"
	default:
		return "has been awarded"
	}
}
