package facturx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildReport(t *testing.T) {
	r := BuildReport(ReportInput{
		Record:  sampleRecord(),
		Profile: ProfileBasicWL,
		Validation: Validation{
			PDFA3Valid:   false,
			XMLValid:     true,
			FacturXValid: true,
			Errors:       []string{},
			Warnings:     []string{"local assembly used"},
		},
		Path:        "local",
		GeneratedAt: time.Date(2024, 12, 28, 12, 0, 0, 0, time.UTC),
	})

	text := r.String()
	assert.True(t, strings.HasPrefix(text, "Factur-X Validation Report\n"))
	assert.Contains(t, text, "Generated: 2024-12-28T12:00:00Z")
	assert.Contains(t, text, "Invoice: INV-2024-001")
	assert.Contains(t, text, "Profile: BASIC WL")
	assert.Contains(t, text, "[FAIL] PDF/A-3 container")
	assert.Contains(t, text, "[PASS] CII XML structure")
	assert.Contains(t, text, "[PASS] Factur-X metadata embedded")
	assert.Contains(t, text, "[WARN] local assembly used")
	assert.Contains(t, text, "Total amount: 1250.00 EUR")
}

func TestBuildReport_NeverPassesIncompleteSteps(t *testing.T) {
	r := BuildReport(ReportInput{Record: sampleRecord(), Profile: ProfileBasic})

	for _, l := range r.Lines {
		assert.NotEqual(t, StatusPass, l.Status, l.Text)
	}
}
