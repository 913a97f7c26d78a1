package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// headerWindow is how far into a file the %PDF- marker may appear
const headerWindow = 1024

// Validator checks that a file or an upload is a readable PDF
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// MaxFileSize returns the configured size limit in bytes
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateUpload checks an uploaded document held in memory
func (v *Validator) ValidateUpload(name string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", name)
	}
	return v.ValidateBytes(data)
}

// ValidateBytes checks size limits, the header and that the document opens
func (v *Validator) ValidateBytes(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("file is empty")
	}

	if int64(len(data)) > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)", len(data), v.maxFileSize)
	}

	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, []byte("%PDF-")) {
		return fmt.Errorf("missing PDF header")
	}

	if _, err := openReader(data); err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}

	return nil
}

// ValidateFile checks a PDF on disk and returns its content
func (v *Validator) ValidateFile(filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	if err := v.ValidateFileInfo(filePath, fileInfo); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}

	if err := v.ValidateBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}

// IsValidPDF performs a quick check to see if a file is a valid PDF
func (v *Validator) IsValidPDF(filePath string) bool {
	_, err := v.ValidateFile(filePath)
	return err == nil
}

// ValidateFileInfo performs basic validation on file info without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if !strings.HasSuffix(strings.ToLower(filePath), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}
