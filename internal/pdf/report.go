package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/a3tai/facturx-bridge/internal/facturx"
)

// statusColors maps report statuses to RGB text colors
var statusColors = map[string][3]int{
	facturx.StatusPass: {0, 128, 0},
	facturx.StatusFail: {192, 0, 0},
	facturx.StatusWarn: {200, 120, 0},
}

// RenderReport renders a validation report as a one-column A4 PDF
func RenderReport(report facturx.Report, producer string, createdAt time.Time) ([]byte, error) {
	if producer == "" {
		producer = facturx.DefaultProducer
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(report.Title, true)
	pdf.SetCreator(producer, true)
	pdf.SetProducer(producer, true)
	pdf.SetCreationDate(createdAt)
	pdf.SetModificationDate(createdAt)

	// core fonts are cp1252; accents in names and addresses survive the translation
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, tr(report.Title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, line := range report.Lines {
		if line.Status == "" {
			pdf.SetFont("Helvetica", "", 11)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(0, 6, tr(line.Text), "", "L", false)
			continue
		}

		rgb := statusColors[line.Status]
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(rgb[0], rgb[1], rgb[2])
		pdf.CellFormat(18, 6, line.Status, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, 6, tr(line.Text), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report PDF: %w", err)
	}
	return buf.Bytes(), nil
}
