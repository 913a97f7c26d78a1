package pdf

import (
	"strings"
	"testing"
)

func TestTextExtractor_Extract(t *testing.T) {
	extractor := NewTextExtractor(0)

	result, err := extractor.Extract(invoicePDF(t, invoiceLines...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Pages != 1 {
		t.Errorf("expected 1 page, got %d", result.Pages)
	}
	if !strings.Contains(result.Text, "INV-2024-001") {
		t.Errorf("expected invoice number in text, got %q", result.Text)
	}
	if result.ContentType != ContentText {
		t.Errorf("expected content type %q, got %q", ContentText, result.ContentType)
	}
	if result.HasImages {
		t.Error("expected no images")
	}
}

func TestTextExtractor_Truncates(t *testing.T) {
	extractor := NewTextExtractor(10)

	result, err := extractor.Extract(invoicePDF(t, invoiceLines...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Text) > 10 {
		t.Errorf("expected at most 10 bytes, got %d", len(result.Text))
	}
}

func TestTextExtractor_InvalidInput(t *testing.T) {
	if _, err := NewTextExtractor(0).Extract([]byte("not a pdf")); err == nil {
		t.Error("expected error for non-PDF input")
	}
}

func TestAnalyzeContentType(t *testing.T) {
	long := strings.Repeat("invoice text ", 10)

	tests := []struct {
		name      string
		text      string
		hasImages bool
		want      string
	}{
		{"text only", long, false, ContentText},
		{"text and images", long, true, ContentMixed},
		{"images only", "", true, ContentScannedImages},
		{"short text with images", "p. 1", true, ContentScannedImages},
		{"nothing", "   ", false, ContentNone},
		{"page breaks only", PageBreak + PageBreak, false, ContentNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := analyzeContentType(tt.text, tt.hasImages); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
