package payment

import (
	"context"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/internal/pkg/apperr"
)

// ExportSheet is the worksheet name of a proof export.
const ExportSheet = "Proofs"

var exportHeader = []interface{}{
	"Proof ID", "Student ID", "Item Type", "Item ID", "Amount", "Expected Amount",
	"Transaction ID", "Evidence", "Promo Code", "Status", "Rejection Reason",
	"Submitted At", "Decided At", "Decided By",
}

// Export writes the proofs matching filter as an XLSX workbook to w.
func (l *ProofLedger) Export(ctx context.Context, filter repository.ProofFilter, w io.Writer) error {
	proofs, err := l.List(ctx, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return apperr.Internalf("could not prepare export", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return apperr.Internalf("could not prepare export", err)
	}

	if err := f.SetSheetRow(ExportSheet, "A1", &exportHeader); err != nil {
		return apperr.Internalf("could not write export header", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(ExportSheet, "A1", last, bold); err != nil {
		return apperr.Internalf("could not write export header", err)
	}

	for i, p := range proofs {
		row := []interface{}{
			p.ID, p.StudentID, string(p.ItemType), p.ItemID, p.Amount, p.ExpectedAmount,
			p.ExternalTransactionID, p.EvidenceRef, deref(p.PromoCode), string(p.Status), deref(p.RejectionReason),
			p.SubmittedAt.UTC().Format(time.RFC3339), formatTime(p.DecidedAt), deref(p.DecidedBy),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperr.Internalf("could not write export row", err)
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return apperr.Internalf("could not write export row", err)
		}
	}

	if err := f.Write(w); err != nil {
		return apperr.Internalf("could not write export", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
