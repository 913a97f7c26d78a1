package errors

import (
	"errors"
	"fmt"
)

// PDFError represents a PDF processing error with its category and location
type PDFError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Offset    int64     `json:"offset,omitempty"`
	ObjectNum int       `json:"object_num,omitempty"`
	Err       error     `json:"-"`
}

// ErrorType represents different categories of PDF errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeInvalidHeader
	ErrorTypeCorruptedXRef
	ErrorTypeMalformedObject
	ErrorTypeInvalidStream
	ErrorTypeMissingObject
	ErrorTypeUnsupportedFeature
	ErrorTypeInvalidMetadata
	ErrorTypeInvalidStructure
	ErrorTypeWriteFailed
)

// Error implements the error interface
func (e *PDFError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type.String(), e.Message, e.Context)
	}
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *PDFError) Unwrap() error {
	return e.Err
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeInvalidHeader:
		return "INVALID_HEADER"
	case ErrorTypeCorruptedXRef:
		return "CORRUPTED_XREF"
	case ErrorTypeMalformedObject:
		return "MALFORMED_OBJECT"
	case ErrorTypeInvalidStream:
		return "INVALID_STREAM"
	case ErrorTypeMissingObject:
		return "MISSING_OBJECT"
	case ErrorTypeUnsupportedFeature:
		return "UNSUPPORTED_FEATURE"
	case ErrorTypeInvalidMetadata:
		return "INVALID_METADATA"
	case ErrorTypeInvalidStructure:
		return "INVALID_STRUCTURE"
	case ErrorTypeWriteFailed:
		return "WRITE_FAILED"
	default:
		return "UNKNOWN"
	}
}

// NewPDFError creates a new PDFError
func NewPDFError(errorType ErrorType, message string) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
	}
}

// NewPDFErrorWithContext creates a new PDFError with additional context
func NewPDFErrorWithContext(errorType ErrorType, message, context string) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
		Context: context,
	}
}

// WrapError wraps err as a PDFError of the given type
func WrapError(errorType ErrorType, message string, err error) *PDFError {
	return &PDFError{
		Type:    errorType,
		Message: message,
		Context: err.Error(),
		Err:     err,
	}
}

// WithLocation adds location information to an existing PDFError
func (e *PDFError) WithLocation(offset int64, objNum int) *PDFError {
	e.Offset = offset
	e.ObjectNum = objNum
	return e
}

// IsType reports whether err is a PDFError of the given type
func IsType(err error, errorType ErrorType) bool {
	var pe *PDFError
	return errors.As(err, &pe) && pe.Type == errorType
}
