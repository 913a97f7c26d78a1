package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/a3tai/facturx-bridge/internal/config"
	"github.com/a3tai/facturx-bridge/internal/descriptions"
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/pdf"
)

// ErrServerMode is returned by Run when the tools are served over HTTP
var ErrServerMode = errors.New("server mode serves MCP over HTTP; mount HTTPHandler instead")

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	logger     *zap.Logger
}

// Option customises the server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // the tool set is static
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	profileOption := mcp.WithString("profile",
		mcp.Description("Factur-X profile (MINIMUM, BASIC_WL, BASIC, EN16931, EXTENDED); defaults to "+s.pdfService.DefaultProfile().String()),
		mcp.Enum(profileNames()...),
	)
	invoiceDataOption := mcp.WithObject("invoice_data",
		mcp.Required(),
		mcp.Description("Invoice record: vendorName, vendorSIRET, vendorVAT, vendorAddress, clientName, clientSIREN, "+
			"clientAddress, invoiceNumber, invoiceDate, dueDate, amountHT, vatRate, vatAmount, amountTTC, iban, bic, paymentTerms"),
	)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolGenerateXML,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolGenerateXML)),
		invoiceDataOption,
		profileOption,
	), s.handleGenerateXML)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolEmbed,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolEmbed)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF invoice inside the configured directory"),
		),
		invoiceDataOption,
		profileOption,
		mcp.WithString("output_path",
			mcp.Description("Where to write the Factur-X PDF; defaults to <name>-facturx.pdf"),
		),
	), s.handleEmbed)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolInspect,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolInspect)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF inside the configured directory"),
		),
	), s.handleInspect)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolExtractFields,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolExtractFields)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF invoice inside the configured directory"),
		),
	), s.handleExtractFields)

	s.mcpServer.AddTool(mcp.NewTool(
		descriptions.ToolServerInfo,
		mcp.WithDescription(descriptions.GetToolDescription(descriptions.ToolServerInfo)),
	), s.handleServerInfo)
}

func profileNames() []string {
	names := make([]string, 0, len(facturx.Profiles))
	for _, p := range facturx.Profiles {
		names = append(names, p.String())
	}
	return names
}

// invoiceData reads the invoice_data argument, given as an object or as a
// JSON string
func invoiceData(request mcp.CallToolRequest) (facturx.InvoiceRecord, error) {
	var rec facturx.InvoiceRecord
	raw, ok := request.GetArguments()["invoice_data"]
	if !ok || raw == nil {
		return rec, fmt.Errorf("required argument \"invoice_data\" not found")
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return rec, fmt.Errorf("invalid invoice_data: %w", err)
		}
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("invalid invoice_data: %w", err)
	}
	return rec, nil
}

// Handler functions
func (s *Server) handleGenerateXML(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := invoiceData(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.GenerateXML(pdf.GenerateXMLRequest{
		Record:  rec,
		Profile: request.GetString("profile", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatGenerateXMLResult(result)), nil
}

func (s *Server) handleEmbed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := invoiceData(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.Embed(pdf.EmbedRequest{
		Path:       path,
		OutputPath: request.GetString("output_path", ""),
		Record:     rec,
		Profile:    request.GetString("profile", ""),
	})
	if err != nil {
		observability.FromContext(ctx).Warn("embed failed", zap.String("path", path), zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("factur-x PDF written", zap.String("output", result.OutputPath), zap.String("profile", result.Profile))
	return mcp.NewToolResultText(formatEmbedResult(result)), nil
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.Inspect(pdf.InspectRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatInspection(result)), nil
}

func (s *Server) handleExtractFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.ExtractFields(pdf.ExtractFieldsRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatExtractFieldsResult(result)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pdfService.ServerInfo(ctx, s.config.ServerName, s.config.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatServerInfoResult(result)), nil
}

// Formatting methods
func formatGenerateXMLResult(result *pdf.GenerateXMLResult) string {
	text := fmt.Sprintf("Factur-X XML generated (profile %s)\n", result.Profile)
	text += formatFindings(result.Errors, result.Warnings)
	text += "\nXML:\n" + result.XML
	return text
}

func formatEmbedResult(result *pdf.EmbedResult) string {
	text := fmt.Sprintf("Factur-X PDF written: %s\n", result.OutputPath)
	text += fmt.Sprintf("Source: %s\n", result.Path)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Profile: %s\n", result.Profile)
	text += fmt.Sprintf("PDF/A-3: %t, XML: %t, Factur-X: %t\n",
		result.Validation.PDFA3Valid, result.Validation.XMLValid, result.Validation.FacturXValid)
	text += formatFindings(result.Validation.Errors, result.Validation.Warnings)
	text += "\n" + result.Report
	return text
}

func formatInspection(result *pdf.Inspection) string {
	text := fmt.Sprintf("Factur-X inspection: %s\n", result.Path)
	text += fmt.Sprintf("PDF version: %s, pages: %d, revisions: %d, size: %d bytes\n",
		result.Version, result.Pages, result.Revisions, result.Size)
	text += fmt.Sprintf("Encrypted: %t\n", result.Encrypted)
	text += fmt.Sprintf("PDF/A-3: %t\n", result.PDFA3)
	text += fmt.Sprintf("Factur-X: %t\n", result.FacturX)
	if result.Profile != "" {
		text += fmt.Sprintf("Profile: %s\n", result.Profile)
	}
	if result.XMP != nil {
		text += fmt.Sprintf("XMP: PDF/A part %s conformance %s, Factur-X %s %s\n",
			result.XMP.PDFAPart, result.XMP.PDFAConformance, result.XMP.ConformanceLevel, result.XMP.DocumentFileName)
	}
	if len(result.OutputIntents) > 0 {
		text += fmt.Sprintf("Output intents: %s\n", strings.Join(result.OutputIntents, ", "))
	}
	if len(result.Attachments) > 0 {
		text += "Embedded files:\n"
		for _, a := range result.Attachments {
			text += fmt.Sprintf("  • %s (%s, %d bytes, %s)\n", a.Name, a.Subtype, a.Size, a.Relationship)
		}
	}
	if len(result.Terms) > 0 {
		text += "Business terms:\n"
		for _, key := range sortedKeys(result.Terms) {
			text += fmt.Sprintf("  %s: %s\n", key, result.Terms[key])
		}
	}
	text += formatFindings(result.Errors, result.Warnings)
	return text
}

func formatExtractFieldsResult(result *pdf.ExtractFieldsResult) string {
	text := fmt.Sprintf("Suggested invoice fields for: %s\n", result.Path)
	text += fmt.Sprintf("Pages: %d, content type: %s\n", result.Pages, result.ContentType)

	if len(result.Found) == 0 {
		if result.ContentType == pdf.ContentScannedImages {
			text += "\n🔍 This PDF appears to contain scanned images; no text could be read. Enter the fields manually.\n"
		} else {
			text += "\nNo invoice fields were recognised.\n"
		}
		return text
	}

	text += fmt.Sprintf("Recognised: %s\n", strings.Join(result.Found, ", "))
	data, err := json.MarshalIndent(result.Fields, "", "  ")
	if err == nil {
		text += "\nSuggested invoice_data (confirm every field):\n" + string(data) + "\n"
	}
	return text
}

func formatServerInfoResult(result *pdf.ServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Default Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("🧾 Default Profile: %s (supported: %s)\n\n", result.DefaultProfile, strings.Join(result.Profiles, ", "))

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Directory Contents (%d PDF files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 { // Limit to first 10 files for readability
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No PDF files found in default directory\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance
	return text
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFindings(errs, warnings []string) string {
	text := ""
	if len(errs) > 0 {
		text += "Errors:\n"
		for _, e := range errs {
			text += "  ✗ " + e + "\n"
		}
	}
	if len(warnings) > 0 {
		text += "Warnings:\n"
		for _, w := range warnings {
			text += "  ⚠ " + w + "\n"
		}
	}
	return text
}

// HTTPHandler serves the tools over the streamable HTTP transport
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer,
		server.WithLogger(s.logger.Sugar()),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return observability.WithLogger(ctx, s.logger.With(zap.String("transport", "http")))
		}),
	)
}

// Run serves the tools over stdio until ctx ends
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return ErrServerMode
	}
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve runs the stdio transport on in and out
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server in stdio mode",
		zap.String("directory", s.config.PDFDirectory),
		zap.String("profile", s.pdfService.DefaultProfile().String()),
	)

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return observability.WithLogger(ctx, s.logger.With(zap.String("transport", "stdio")))
	})

	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
