package mcp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/facturx-bridge/internal/config"
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf"
)

func sampleInvoiceData() map[string]interface{} {
	return map[string]interface{}{
		"vendorName":    "Atelier Dupont SARL",
		"vendorSIRET":   "12345678900012",
		"vendorVAT":     "FR12123456789",
		"vendorAddress": "12 rue des Lilas\n75011 Paris",
		"clientName":    "Client & Fils",
		"clientSIREN":   "987654321",
		"invoiceNumber": "INV-2024-001",
		"invoiceDate":   "2024-12-28",
		"amountHT":      "1000.00",
		"vatRate":       "20",
		"vatAmount":     "200.00",
		"amountTTC":     "1200.00",
		"iban":          "FR7630006000011234567890189",
	}
}

func writeInvoicePDF(t *testing.T, dir, name string) string {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	for _, line := range []string{"Atelier Dupont SARL", "Facture INV-2024-001", "Total HT: 1000.00", "TVA 20%: 200.00", "Total TTC: 1200.00"} {
		doc.Cell(0, 8, line)
		doc.Ln(8)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to render fixture: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tempDir := t.TempDir()
	cfg := &config.Config{
		Mode:           "stdio",
		PDFDirectory:   tempDir,
		Version:        "1.0.0",
		ServerName:     "test-server",
		MaxFileSize:    1024 * 1024,
		DefaultProfile: facturx.ProfileBasicWL.String(),
	}
	pdfService, err := pdf.NewService(cfg.MaxFileSize, cfg.PDFDirectory, facturx.ProfileBasicWL, "test")
	if err != nil {
		t.Fatalf("Failed to create PDF service: %v", err)
	}
	server, err := NewServer(cfg, pdfService)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server, tempDir
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func extractTextFromResult(result *mcp.CallToolResult) string {
	var text strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	return text.String()
}

func TestNewServer(t *testing.T) {
	tempDir := t.TempDir()
	maxFileSize := int64(1024 * 1024)
	pdfService, err := pdf.NewService(maxFileSize, tempDir, facturx.ProfileBasicWL, "")
	if err != nil {
		t.Fatalf("Failed to create PDF service: %v", err)
	}

	tests := []struct {
		name        string
		config      *config.Config
		service     *pdf.Service
		expectError bool
	}{
		{
			name: "valid stdio mode config",
			config: &config.Config{
				Mode:         "stdio",
				PDFDirectory: tempDir,
				Version:      "1.0.0",
				ServerName:   "test-server",
				MaxFileSize:  maxFileSize,
			},
			service: pdfService,
		},
		{
			name: "valid server mode config",
			config: &config.Config{
				Mode:          "server",
				Host:          "127.0.0.1",
				Port:          8080,
				DataDirectory: tempDir,
				Version:       "1.0.0",
				ServerName:    "test-server",
				MaxFileSize:   maxFileSize,
			},
			service: pdfService,
		},
		{
			name:        "nil config",
			service:     pdfService,
			expectError: true,
		},
		{
			name:        "nil service",
			config:      &config.Config{Mode: "stdio"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, tt.service)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server.config != tt.config {
				t.Error("server config not set correctly")
			}
			if server.pdfService != tt.service {
				t.Error("server pdfService not set correctly")
			}
			if server.MCPServer() == nil {
				t.Error("mcpServer should be initialized")
			}
		})
	}
}

func TestServer_HandleGenerateXML(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.handleGenerateXML(context.Background(), callRequest(map[string]interface{}{
		"invoice_data": sampleInvoiceData(),
		"profile":      "EN16931",
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(result))
	}

	text := extractTextFromResult(result)
	if !strings.Contains(text, "profile EN16931") {
		t.Errorf("expected profile in response, got: %s", text)
	}
	if !strings.Contains(text, "Client &amp; Fils") {
		t.Error("expected escaped buyer name in XML")
	}
}

func TestServer_HandleGenerateXML_JSONString(t *testing.T) {
	server, _ := newTestServer(t)

	result, err := server.handleGenerateXML(context.Background(), callRequest(map[string]interface{}{
		"invoice_data": `{"invoiceNumber":"INV-9","invoiceDate":"2024-12-28","vendorName":"A","clientName":"B",` +
			`"amountHT":"10","vatRate":"20","vatAmount":"2","amountTTC":"12","vendorSIRET":"12345678900012","vendorVAT":"FR12123456789"}`,
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(result))
	}
	if !strings.Contains(extractTextFromResult(result), "INV-9") {
		t.Error("expected invoice number in XML")
	}
}

func TestServer_HandleGenerateXML_Errors(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing invoice data", map[string]interface{}{}, "invoice_data"},
		{"malformed invoice data", map[string]interface{}{"invoice_data": "{"}, "invalid invoice_data"},
		{"incomplete record", map[string]interface{}{"invoice_data": map[string]interface{}{"vendorName": "A"}}, "missing required business term"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleGenerateXML(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if text := extractTextFromResult(result); !strings.Contains(text, tt.want) {
				t.Errorf("expected %q in error, got: %s", tt.want, text)
			}
		})
	}
}

func TestServer_HandleEmbedAndInspect(t *testing.T) {
	server, dir := newTestServer(t)
	input := writeInvoicePDF(t, dir, "invoice.pdf")

	result, err := server.handleEmbed(context.Background(), callRequest(map[string]interface{}{
		"path":         input,
		"invoice_data": sampleInvoiceData(),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(result))
	}

	output := filepath.Join(dir, "invoice-facturx.pdf")
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if text := extractTextFromResult(result); !strings.Contains(text, "Factur-X: true") {
		t.Errorf("expected Factur-X validation, got: %s", text)
	}

	result, err = server.handleInspect(context.Background(), callRequest(map[string]interface{}{"path": output}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, "Factur-X: true") {
		t.Errorf("expected Factur-X PDF, got: %s", text)
	}
	if !strings.Contains(text, "factur-x.xml") {
		t.Errorf("expected embedded file listing, got: %s", text)
	}
	if !strings.Contains(text, "BT-1: INV-2024-001") {
		t.Errorf("expected business terms, got: %s", text)
	}
}

func TestServer_HandleEmbed_OutsideDirectory(t *testing.T) {
	server, dir := newTestServer(t)
	input := writeInvoicePDF(t, dir, "invoice.pdf")

	result, err := server.handleEmbed(context.Background(), callRequest(map[string]interface{}{
		"path":         input,
		"output_path":  filepath.Join(os.TempDir(), "escaped.pdf"),
		"invoice_data": sampleInvoiceData(),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Error("expected writing outside the configured directory to fail")
	}
}

func TestServer_HandleExtractFields(t *testing.T) {
	server, dir := newTestServer(t)
	input := writeInvoicePDF(t, dir, "invoice.pdf")

	result, err := server.handleExtractFields(context.Background(), callRequest(map[string]interface{}{"path": input}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", extractTextFromResult(result))
	}
	text := extractTextFromResult(result)
	if !strings.Contains(text, `"invoiceNumber": "INV-2024-001"`) {
		t.Errorf("expected suggested invoice number, got: %s", text)
	}

	result, _ = server.handleExtractFields(context.Background(), callRequest(map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}

func TestServer_HandleServerInfo(t *testing.T) {
	server, dir := newTestServer(t)
	writeInvoicePDF(t, dir, "invoice.pdf")

	result, err := server.handleServerInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	text := extractTextFromResult(result)
	for _, want := range []string{"test-server v1.0.0", "invoice.pdf", "facturx_embed", "BASIC_WL"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in server info, got: %s", want, text)
		}
	}
}

func TestFormatFindings(t *testing.T) {
	if got := formatFindings(nil, nil); got != "" {
		t.Errorf("expected empty findings, got %q", got)
	}
	got := formatFindings([]string{"invoice number is missing"}, []string{"IBAN looks too short"})
	if !strings.Contains(got, "✗ invoice number is missing") || !strings.Contains(got, "⚠ IBAN looks too short") {
		t.Errorf("unexpected findings text: %q", got)
	}
}
