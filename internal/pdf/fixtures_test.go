package pdf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"

	"github.com/a3tai/facturx-bridge/internal/facturx"
)

var invoiceLines = []string{
	"Atelier Dupont SARL",
	"SIRET 123 456 789 00012",
	"TVA FR12 123456789",
	"Facture INV-2024-001",
	"Date 28/12/2024",
	"Total HT: 1000.00",
	"TVA 20%: 200.00",
	"Total TTC: 1200.00",
	"IBAN FR76 3000 6000 0112 3456 7890 189",
}

// invoicePDF renders lines on one A4 page
func invoicePDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(8)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("failed to render fixture: %v", err)
	}
	return buf.Bytes()
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func sampleRecord() facturx.InvoiceRecord {
	return facturx.InvoiceRecord{
		VendorName:    "Atelier Dupont SARL",
		VendorSIRET:   "123 456 789 00012",
		VendorVAT:     "FR12123456789",
		VendorAddress: "12 rue des Lilas\n75011 Paris",
		ClientName:    "Client & Fils",
		ClientSIREN:   "987654321",
		ClientAddress: "3 avenue Foch\n69006 Lyon",
		InvoiceNumber: "INV-2024-001",
		InvoiceDate:   "2024-12-28",
		DueDate:       "2025-01-27",
		AmountHT:      "1000.00",
		VATRate:       "20",
		VATAmount:     "200.00",
		AmountTTC:     "1200.00",
		IBAN:          "FR7630006000011234567890189",
		BIC:           "AGRIFRPP",
		PaymentTerms:  "30 jours fin de mois",
	}
}
