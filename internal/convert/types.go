// Package convert orchestrates one invoice conversion: XML generation,
// backend delegation or local assembly, persistence, billing and archival.
package convert

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/a3tai/facturx-bridge/internal/facturx"
)

// Stage is a step of the conversion pipeline
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageXMLGenerated     Stage = "XML_GENERATED"
	StageBackendDelegated Stage = "BACKEND_DELEGATED"
	StageLocalFallback    Stage = "LOCAL_FALLBACK"
	StagePersisted        Stage = "PERSISTED"
	StageCreditConsumed   Stage = "CREDIT_CONSUMED"
	StageArchived         Stage = "ARCHIVED"
	StageComplete         Stage = "COMPLETE"
	StageFailed           Stage = "ERROR"
)

// Conversion paths reported in results and metrics
const (
	PathBackend  = "backend"
	PathLocal    = "local"
	PathDegraded = "degraded"
)

// Kind classifies a conversion failure
type Kind string

const (
	KindPrecondition        Kind = "precondition"
	KindSchema              Kind = "schema"
	KindDelegate            Kind = "delegate"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindInternal            Kind = "internal"
)

// ErrInsufficientCredits is returned by billing when the account is empty.
// It is permanent and never retried.
var ErrInsufficientCredits = errors.New("insufficient credits")

// StageError is the terminal error of a conversion
type StageError struct {
	Stage   Stage
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

// Code returns the machine readable error code of the HTTP envelope
func (e *StageError) Code() string {
	switch e.Kind {
	case KindPrecondition:
		switch e.Status {
		case http.StatusUnauthorized:
			return "unauthenticated"
		case http.StatusNotFound:
			return "file_not_found"
		}
		return "invalid_request"
	case KindSchema:
		return "invalid_invoice_data"
	case KindDelegate:
		return "delegate_failed"
	case KindInsufficientCredits:
		return "insufficient_credits"
	default:
		return "internal_error"
	}
}

func stageError(stage Stage, kind Kind, status int, message string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Status: status, Message: message, Err: err}
}

// DelegateError is a non-success answer of a remote collaborator. Message is
// the remote message, kept verbatim.
type DelegateError struct {
	Operation string
	Status    int
	Message   string
}

func (e *DelegateError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.Status, e.Message)
}

// Temporary reports whether retrying may succeed
func (e *DelegateError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Request is one conversion request
type Request struct {
	Token   string
	FileID  string
	Record  facturx.InvoiceRecord
	Profile string
}

// Downloads are the artifact URLs of a finished conversion
type Downloads struct {
	PDF    string `json:"pdf"`
	XML    string `json:"xml"`
	Report string `json:"report"`
}

// Result is the outcome of a completed conversion
type Result struct {
	ID         string             `json:"fileId"`
	Status     string             `json:"status"`
	Stage      Stage              `json:"stage"`
	Profile    string             `json:"profile"`
	Path       string             `json:"path"`
	Downloads  Downloads          `json:"downloadUrls"`
	Validation facturx.Validation `json:"validation"`
	ArchiveID  string             `json:"archiveId,omitempty"`
	Report     string             `json:"report"`
}

// DownloadURL returns the API path of an artifact
func DownloadURL(id, kind string) string {
	return "/api/download/" + id + "/" + kind
}
