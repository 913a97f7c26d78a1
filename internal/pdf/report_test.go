package pdf

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/a3tai/facturx-bridge/internal/facturx"
)

func TestRenderReport(t *testing.T) {
	report := facturx.BuildReport(facturx.ReportInput{
		Record:      sampleRecord(),
		Profile:     facturx.ProfileBasicWL,
		Validation:  facturx.Validation{PDFA3Valid: true, XMLValid: true, Warnings: []string{"échéance proche"}},
		Path:        "local",
		GeneratedAt: time.Date(2024, 12, 28, 10, 30, 0, 0, time.UTC),
	})

	data, err := RenderReport(report, "", time.Date(2024, 12, 28, 10, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatal("expected a PDF")
	}

	text, err := NewTextExtractor(0).Extract(data)
	if err != nil {
		t.Fatalf("report PDF is not readable: %v", err)
	}
	for _, want := range []string{"Factur-X Validation Report", "INV-2024-001", facturx.StatusPass, facturx.StatusFail, facturx.StatusWarn} {
		if !strings.Contains(text.Text, want) {
			t.Errorf("expected report text to contain %q", want)
		}
	}
}

func TestRenderReport_Empty(t *testing.T) {
	data, err := RenderReport(facturx.Report{Title: "Empty"}, "producer", time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := NewValidator(int64(len(data))).ValidateBytes(data); err != nil {
		t.Errorf("expected a valid PDF: %v", err)
	}
}
