package pdf

import (
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf/pdfa"
)

// FileInfo represents information about a PDF file
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Content types reported by text extraction
const (
	ContentText          = "text"
	ContentScannedImages = "scanned_images"
	ContentMixed         = "mixed"
	ContentNone          = "no_content"
)

// Request Types

// GenerateXMLRequest asks for the CII XML of a record
type GenerateXMLRequest struct {
	Record  facturx.InvoiceRecord `json:"invoiceData"`
	Profile string                `json:"profile"`
}

// EmbedRequest asks for a Factur-X PDF built from a PDF on disk
type EmbedRequest struct {
	Path       string                `json:"path"`
	OutputPath string                `json:"output_path"`
	Record     facturx.InvoiceRecord `json:"invoiceData"`
	Profile    string                `json:"profile"`
}

// InspectRequest asks for the Factur-X structure of a PDF on disk
type InspectRequest struct {
	Path string `json:"path"`
}

// ExtractFieldsRequest asks for suggested invoice fields from a PDF on disk
type ExtractFieldsRequest struct {
	Path string `json:"path"`
}

// ServerInfoRequest represents a request for server information
type ServerInfoRequest struct{}

// Response Types

// GenerateXMLResult holds the generated XML and the record checks
type GenerateXMLResult struct {
	Profile  string            `json:"profile"`
	XML      string            `json:"xml"`
	Terms    map[string]string `json:"terms"`
	Errors   []string          `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// EmbedResult describes a written Factur-X PDF
type EmbedResult struct {
	Path       string             `json:"path"`
	OutputPath string             `json:"output_path"`
	Size       int64              `json:"size"`
	Profile    string             `json:"profile"`
	Validation facturx.Validation `json:"validation"`
	Report     string             `json:"report"`
}

// TextResult is the text of a PDF plus a guess at how it was produced
type TextResult struct {
	Text        string `json:"text"`
	Pages       int    `json:"pages"`
	ContentType string `json:"content_type"` // "text", "scanned_images", "mixed", "no_content"
	HasImages   bool   `json:"has_images"`
	ImageCount  int    `json:"image_count"`
}

// ExtractFieldsResult holds suggested invoice fields
type ExtractFieldsResult struct {
	Path        string                `json:"path,omitempty"`
	Fields      facturx.InvoiceRecord `json:"fields"`
	Found       []string              `json:"found"`
	Pages       int                   `json:"pages"`
	ContentType string                `json:"content_type"`
}

// Inspection is the Factur-X view of a PDF
type Inspection struct {
	Path          string              `json:"path,omitempty"`
	Size          int64               `json:"size"`
	Version       string              `json:"version"`
	Pages         int                 `json:"pages"`
	Encrypted     bool                `json:"encrypted"`
	Revisions     int                 `json:"revisions"`
	PDFA3         bool                `json:"pdfa3"`
	HasXMP        bool                `json:"has_xmp"`
	XMP           *facturx.XMPInfo    `json:"xmp,omitempty"`
	OutputIntents []string            `json:"output_intents,omitempty"`
	Attachments   []pdfa.EmbeddedFile `json:"attachments,omitempty"`
	FacturX       bool                `json:"facturx"`
	Profile       string              `json:"profile,omitempty"`
	Terms         map[string]string   `json:"terms,omitempty"`
	XML           string              `json:"xml,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}

// ServerInfoResult represents server information and usage guidance
type ServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	DefaultDirectory  string     `json:"default_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	DefaultProfile    string     `json:"default_profile"`
	Profiles          []string   `json:"profiles"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	UsageGuidance     string     `json:"usage_guidance"`
}
