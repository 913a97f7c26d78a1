package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/facturx-bridge/internal/descriptions"
)

// roundTrip sends one JSON-RPC message through the mcp-go server
func roundTrip(t *testing.T, server *Server, message string) map[string]interface{} {
	t.Helper()
	resp := server.MCPServer().HandleMessage(context.Background(), json.RawMessage(message))
	if resp == nil {
		t.Fatal("expected a response")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to encode response: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return decoded
}

func TestServerIntegration_ToolsList(t *testing.T) {
	server, _ := newTestServer(t)

	resp := roundTrip(t, server, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected response: %v", resp)
	}
	tools, _ := result["tools"].([]interface{})

	names := map[string]bool{}
	for _, tool := range tools {
		if m, ok := tool.(map[string]interface{}); ok {
			names[m["name"].(string)] = true
		}
	}
	for _, want := range descriptions.GetAllToolNames() {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestServerIntegration_Workflow(t *testing.T) {
	server, dir := newTestServer(t)
	input := writeInvoicePDF(t, dir, "invoice.pdf")

	call := func(name string, args map[string]interface{}) string {
		t.Helper()
		params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
		if err != nil {
			t.Fatalf("failed to encode params: %v", err)
		}
		resp := roundTrip(t, server, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+string(params)+`}`)

		data, _ := json.Marshal(resp["result"])
		raw := json.RawMessage(data)
		result, err := mcp.ParseCallToolResult(&raw)
		if err != nil {
			t.Fatalf("invalid tool result: %v", err)
		}
		if result.IsError {
			t.Fatalf("%s failed: %s", name, extractTextFromResult(result))
		}
		return extractTextFromResult(result)
	}

	fields := call(descriptions.ToolExtractFields, map[string]interface{}{"path": input})
	if !strings.Contains(fields, "INV-2024-001") {
		t.Errorf("extract_fields did not find the invoice number: %s", fields)
	}

	xml := call(descriptions.ToolGenerateXML, map[string]interface{}{"invoice_data": sampleInvoiceData(), "profile": "MINIMUM"})
	if !strings.Contains(xml, "urn:factur-x.eu:1p0:minimum") {
		t.Errorf("expected MINIMUM guideline id: %s", xml)
	}

	embedded := call(descriptions.ToolEmbed, map[string]interface{}{
		"path":         input,
		"output_path":  filepath.Join(dir, "invoice-fx.pdf"),
		"invoice_data": sampleInvoiceData(),
	})
	if !strings.Contains(embedded, "invoice-fx.pdf") {
		t.Errorf("unexpected embed response: %s", embedded)
	}

	inspected := call(descriptions.ToolInspect, map[string]interface{}{"path": filepath.Join(dir, "invoice-fx.pdf")})
	if !strings.Contains(inspected, "Profile: BASIC_WL") {
		t.Errorf("expected default profile in inspection: %s", inspected)
	}
}
