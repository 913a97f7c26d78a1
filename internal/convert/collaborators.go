package convert

import (
	"context"
	"time"

	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/storage"
)

// UploadStore returns uploaded originals
type UploadStore interface {
	Get(ctx context.Context, id string) (*storage.Upload, error)
}

// ArtifactStore persists conversion outputs
type ArtifactStore interface {
	SaveArtifacts(ctx context.Context, id string, a *storage.Artifacts) error
}

// BackendRequest is sent to the authoritative conversion backend
type BackendRequest struct {
	Token    string
	FileName string
	PDF      []byte
	Record   facturx.InvoiceRecord
	Profile  facturx.Profile
}

// BackendResult is the backend answer
type BackendResult struct {
	Profile        string
	PDF            []byte
	XML            []byte
	PDFA3Converted bool
}

// Backend converts a PDF remotely. Calls are idempotent.
type Backend interface {
	Convert(ctx context.Context, req BackendRequest) (*BackendResult, error)
}

// Billing consumes one credit per conversion. A repeated idempotency key
// must not charge twice.
type Billing interface {
	Consume(ctx context.Context, token, jobID, idempotencyKey string) error
}

// ArchiveRequest describes a finished conversion for the archive. PDF and
// XML are the delivered artifact: the backend output when it answered,
// otherwise the local one.
type ArchiveRequest struct {
	IdempotencyKey string
	FileID         string
	FileName       string
	InvoiceNumber  string
	VendorName     string
	ClientName     string
	AmountTTC      string
	Profile        string
	Path           string
	Validation     facturx.Validation
	PDF            []byte
	XML            []byte
}

// Archiver records finished conversions and returns the archive id
type Archiver interface {
	Archive(ctx context.Context, token string, req ArchiveRequest) (string, error)
}

// TokenVerifier checks a bearer token and returns its subject
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JournalEntry is one line of the conversion log
type JournalEntry struct {
	FileID   string
	Subject  string
	Path     string
	Profile  string
	// Stage is StageComplete or StageFailed; FailedAt names the stage
	// that failed
	Stage    Stage
	FailedAt Stage
	Kind     Kind
	Message  string
	Duration time.Duration
}

// Journal keeps a log of conversions. Failures to write it are only logged.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}
