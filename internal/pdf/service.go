package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/pdf/security"
)

// Service exposes the Factur-X operations on files inside one directory.
// It backs the MCP tools; the HTTP API goes through the conversion
// orchestrator instead.
type Service struct {
	maxFileSize    int64
	defaultProfile facturx.Profile
	validator      *Validator
	text           *TextExtractor
	inspector      *Inspector
	builder        *Builder
	pathValidator  *security.PathValidator
	serverInfo     *ServerInfo
	now            func() time.Time
}

// NewService creates a new service confined to configuredDirectory
func NewService(maxFileSize int64, configuredDirectory string, defaultProfile facturx.Profile, producer string) (*Service, error) {
	pathValidator, err := security.NewPathValidator(configuredDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}
	if !defaultProfile.Valid() {
		defaultProfile = facturx.DefaultProfile
	}

	s := &Service{
		maxFileSize:    maxFileSize,
		defaultProfile: defaultProfile,
		validator:      NewValidator(maxFileSize),
		text:           NewTextExtractor(0),
		inspector:      NewInspector(),
		builder:        NewBuilder(producer),
		pathValidator:  pathValidator,
		now:            time.Now,
	}
	s.serverInfo = NewServerInfo(s)
	return s, nil
}

// Validator returns the upload validator
func (s *Service) Validator() *Validator { return s.validator }

// Builder returns the local Factur-X builder
func (s *Service) Builder() *Builder { return s.builder }

// Inspector returns the Factur-X inspector
func (s *Service) Inspector() *Inspector { return s.inspector }

// TextExtractor returns the PDF text extractor
func (s *Service) TextExtractor() *TextExtractor { return s.text }

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// DefaultProfile returns the profile used when a request names none
func (s *Service) DefaultProfile() facturx.Profile {
	return s.defaultProfile
}

// ResolveProfile parses a requested profile, falling back to the default
func (s *Service) ResolveProfile(name string) facturx.Profile {
	if strings.TrimSpace(name) == "" {
		return s.defaultProfile
	}
	return facturx.ParseProfile(name)
}

// GenerateXML renders the CII XML of a record and runs the record checks
func (s *Service) GenerateXML(req GenerateXMLRequest) (*GenerateXMLResult, error) {
	profile := s.ResolveProfile(req.Profile)

	xml, terms, err := facturx.GenerateCII(req.Record, profile)
	if err != nil {
		return nil, err
	}
	findings := facturx.Check(req.Record)

	return &GenerateXMLResult{
		Profile:  profile.String(),
		XML:      string(xml),
		Terms:    terms.Map(),
		Errors:   findings.Errors,
		Warnings: findings.Warnings,
	}, nil
}

// Embed builds a Factur-X PDF from a PDF inside the configured directory
func (s *Service) Embed(req EmbedRequest) (*EmbedResult, error) {
	inputPath, err := s.pathValidator.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "-facturx.pdf"
	}
	outputPath, err = s.pathValidator.Resolve(outputPath)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	if outputPath == inputPath {
		return nil, fmt.Errorf("output path must differ from the input path")
	}

	original, err := s.validator.ValidateFile(inputPath)
	if err != nil {
		return nil, err
	}

	profile := s.ResolveProfile(req.Profile)
	xml, _, err := facturx.GenerateCII(req.Record, profile)
	if err != nil {
		return nil, err
	}
	findings := facturx.Check(req.Record)

	now := s.now()
	embedded, err := s.builder.Embed(original, xml, req.Record, profile, now)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble Factur-X PDF: %w", err)
	}

	if err := os.WriteFile(outputPath, embedded.PDF, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	validation := Validate(findings, true, embedded.Inspection)
	report := facturx.BuildReport(facturx.ReportInput{
		Record:      req.Record,
		Profile:     profile,
		Validation:  validation,
		Path:        "local",
		GeneratedAt: now,
	})

	return &EmbedResult{
		Path:       inputPath,
		OutputPath: outputPath,
		Size:       int64(len(embedded.PDF)),
		Profile:    profile.String(),
		Validation: validation,
		Report:     report.String(),
	}, nil
}

// Inspect reports the Factur-X structure of a PDF inside the configured directory
func (s *Service) Inspect(req InspectRequest) (*Inspection, error) {
	path, err := s.pathValidator.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	data, err := s.validator.ValidateFile(path)
	if err != nil {
		return nil, err
	}

	result, err := s.inspector.Inspect(data)
	if err != nil {
		return nil, err
	}
	result.Path = path
	return result, nil
}

// ExtractFields suggests invoice fields from a PDF inside the configured directory
func (s *Service) ExtractFields(req ExtractFieldsRequest) (*ExtractFieldsResult, error) {
	path, err := s.pathValidator.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	data, err := s.validator.ValidateFile(path)
	if err != nil {
		return nil, err
	}

	result, err := s.ExtractFieldsFromBytes(data)
	if err != nil {
		return nil, err
	}
	result.Path = path
	return result, nil
}

// ExtractFieldsFromBytes suggests invoice fields from PDF content
func (s *Service) ExtractFieldsFromBytes(data []byte) (*ExtractFieldsResult, error) {
	text, err := s.text.Extract(data)
	if err != nil {
		return nil, err
	}

	result := &ExtractFieldsResult{
		Found:       []string{},
		Pages:       text.Pages,
		ContentType: text.ContentType,
	}
	if strings.TrimSpace(text.Text) == "" {
		return result, nil
	}

	suggestion := facturx.SuggestFields(text.Text)
	result.Fields = suggestion.Record
	result.Found = suggestion.Found
	return result, nil
}

// ValidateConfiguration validates the service configuration
func (s *Service) ValidateConfiguration() error {
	if s.maxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be greater than 0")
	}

	if s.maxFileSize > 1024*1024*1024 { // 1GB limit
		return fmt.Errorf("maxFileSize cannot exceed 1GB")
	}

	return nil
}
