package convert

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jung-kurt/gofpdf"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/a3tai/facturx-bridge/internal/auth"
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/pdf"
	"github.com/a3tai/facturx-bridge/internal/storage"
)

var fixedNow = time.Date(2024, 12, 28, 10, 30, 0, 0, time.UTC)

func invoicePDF(t *testing.T) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Cell(0, 8, "Facture INV-2024-001")
	doc.Ln(8)
	doc.Cell(0, 8, "Total TTC: 1200.00")

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func sampleRecord() facturx.InvoiceRecord {
	return facturx.InvoiceRecord{
		VendorName:    "Atelier Dupont SARL",
		VendorSIRET:   "12345678900012",
		VendorVAT:     "FR12123456789",
		VendorAddress: "12 rue des Lilas\n75011 Paris",
		ClientName:    "Client & Fils",
		ClientSIREN:   "987654321",
		InvoiceNumber: "INV-2024-001",
		InvoiceDate:   "2024-12-28",
		DueDate:       "2025-01-27",
		AmountHT:      "1000.00",
		VATRate:       "20",
		VATAmount:     "200.00",
		AmountTTC:     "1200.00",
		IBAN:          "FR7630006000011234567890189",
	}
}

type fakeBackend struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	result *BackendResult
	last   BackendRequest
}

func (f *fakeBackend) Convert(ctx context.Context, req BackendRequest) (*BackendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.result, nil
}

type fakeBilling struct {
	keys []string
	err  error
}

func (f *fakeBilling) Consume(ctx context.Context, token, jobID, key string) error {
	f.keys = append(f.keys, key)
	return f.err
}

type fakeArchiver struct {
	reqs []ArchiveRequest
	err  error
}

func (f *fakeArchiver) Archive(ctx context.Context, token string, req ArchiveRequest) (string, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return "arch-1", nil
}

type fakeJournal struct {
	entries []JournalEntry
}

func (f *fakeJournal) Record(ctx context.Context, e JournalEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

type fixture struct {
	store   *storage.FileStore
	upload  *storage.Upload
	journal *fakeJournal
	metrics *observability.Metrics
}

func newFixture(t *testing.T, original []byte) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	up, err := store.SaveUpload(context.Background(), "invoice.pdf", original)
	require.NoError(t, err)
	return &fixture{store: store, upload: up, journal: &fakeJournal{}, metrics: observability.NewMetrics()}
}

func (f *fixture) service(t *testing.T, deps Deps, opts ...Option) *Service {
	t.Helper()
	deps.Uploads = f.store
	deps.Artifacts = f.store
	deps.Builder = pdf.NewBuilder("unit-test")
	deps.Journal = f.journal
	deps.Metrics = f.metrics

	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, opts...)
	svc, err := NewService(deps, opts...)
	require.NoError(t, err)
	return svc
}

func (f *fixture) request() Request {
	return Request{Token: "tok", FileID: f.upload.ID, Record: sampleRecord()}
}

func requireStageError(t *testing.T, err error, stage Stage, kind Kind, status int) *StageError {
	t.Helper()
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage, se.Stage)
	assert.Equal(t, kind, se.Kind)
	assert.Equal(t, status, se.Status)
	return se
}

func TestNewService(t *testing.T) {
	_, err := NewService(Deps{})
	assert.Error(t, err)

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewService(Deps{Uploads: store, Artifacts: store})
	assert.Error(t, err, "builder is required")

	svc, err := NewService(Deps{Uploads: store, Artifacts: store, Builder: pdf.NewBuilder("")},
		WithRetryAttempts(5), WithBackendTimeout(time.Second), WithDefaultProfile(facturx.ProfileEN16931))
	require.NoError(t, err)
	assert.Equal(t, 5, svc.retryAttempts)
	assert.Equal(t, time.Second, svc.backendTimeout)
	assert.Equal(t, facturx.ProfileEN16931, svc.defaultProfile)
	assert.False(t, svc.HasBackend())
}

func TestConvert_LocalPath(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	svc := f.service(t, Deps{})

	res, err := svc.Convert(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, "completed", res.Status)
	assert.Equal(t, StageComplete, res.Stage)
	assert.Equal(t, PathLocal, res.Path)
	assert.Equal(t, facturx.DefaultProfile.String(), res.Profile)
	assert.True(t, res.Validation.XMLValid)
	assert.True(t, res.Validation.FacturXValid)
	assert.Equal(t, "/api/download/"+f.upload.ID+"/facturx.pdf", res.Downloads.PDF)
	assert.Contains(t, res.Report, "INV-2024-001")

	out, err := f.store.Artifact(context.Background(), f.upload.ID, storage.KindPDF)
	require.NoError(t, err)
	assert.Greater(t, len(out), len(f.upload.Data))
	xml, err := f.store.Artifact(context.Background(), f.upload.ID, storage.KindXML)
	require.NoError(t, err)
	assert.Contains(t, string(xml), "INV-2024-001")
	assert.Contains(t, string(xml), "Client &amp; Fils")
	_, err = f.store.Artifact(context.Background(), f.upload.ID, storage.KindReportText)
	require.NoError(t, err)

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, StageComplete, f.journal.entries[0].Stage)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Conversions.WithLabelValues(PathLocal, "complete")))
}

func TestConvert_ProfileOverride(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	svc := f.service(t, Deps{})

	req := f.request()
	req.Profile = "en16931"
	res, err := svc.Convert(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, facturx.ProfileEN16931.String(), res.Profile)
}

func TestConvert_Preconditions(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	verifier, err := auth.NewHMACVerifier("secret")
	require.NoError(t, err)

	tests := []struct {
		name   string
		deps   Deps
		mutate func(*Request)
		status int
	}{
		{"missing token", Deps{}, func(r *Request) { r.Token = " " }, http.StatusUnauthorized},
		{"invalid token", Deps{Verifier: verifier}, func(r *Request) { r.Token = "garbage" }, http.StatusUnauthorized},
		{"missing file id", Deps{}, func(r *Request) { r.FileID = "" }, http.StatusBadRequest},
		{"unknown file", Deps{}, func(r *Request) { r.FileID = "01HZZZZZZZZZZZZZZZZZZZZZZZ" }, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := f.service(t, tt.deps)
			req := f.request()
			tt.mutate(&req)

			res, err := svc.Convert(context.Background(), req)
			assert.Nil(t, res)
			requireStageError(t, err, StageReceived, KindPrecondition, tt.status)
		})
	}

	_, err = f.store.Artifact(context.Background(), f.upload.ID, storage.KindPDF)
	assert.ErrorIs(t, err, storage.ErrNotFound, "no artifact may be written before the checks pass")
}

func TestConvert_VerifiedToken(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	verifier, err := auth.NewHMACVerifier("secret")
	require.NoError(t, err)
	token, err := verifier.Sign("user-42", time.Hour)
	require.NoError(t, err)

	svc := f.service(t, Deps{Verifier: verifier})
	req := f.request()
	req.Token = token
	_, err = svc.Convert(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "user-42", f.journal.entries[0].Subject)
}

func TestConvert_MissingCriticalTerm(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	backend := &fakeBackend{}
	svc := f.service(t, Deps{Backend: backend})

	req := f.request()
	req.Record.InvoiceNumber = ""
	_, err := svc.Convert(context.Background(), req)

	se := requireStageError(t, err, StageXMLGenerated, KindSchema, http.StatusUnprocessableEntity)
	assert.Equal(t, "invalid_invoice_data", se.Code())
	assert.Zero(t, backend.calls, "backend must not be called with an invalid record")
}

func TestConvert_BackendPath(t *testing.T) {
	original := invoicePDF(t)
	f := newFixture(t, original)
	backend := &fakeBackend{result: &BackendResult{
		Profile:        "BASIC WL",
		PDF:            []byte("%PDF-1.7 remote"),
		XML:            []byte("<remote/>"),
		PDFA3Converted: true,
	}}
	billing := &fakeBilling{}
	archiver := &fakeArchiver{}
	svc := f.service(t, Deps{Backend: backend, Billing: billing, Archiver: archiver})

	res, err := svc.Convert(context.Background(), f.request())
	require.NoError(t, err)

	assert.Equal(t, PathBackend, res.Path)
	assert.True(t, res.Validation.PDFA3Valid)
	assert.Equal(t, "arch-1", res.ArchiveID)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, original, backend.last.PDF)
	assert.Equal(t, "invoice.pdf", backend.last.FileName)

	xml, err := f.store.Artifact(context.Background(), f.upload.ID, storage.KindXML)
	require.NoError(t, err)
	assert.Equal(t, "<remote/>", string(xml), "backend XML wins")

	assert.Equal(t, []string{"credit:" + f.upload.ID}, billing.keys)
	require.Len(t, archiver.reqs, 1)
	assert.Equal(t, "archive:"+f.upload.ID, archiver.reqs[0].IdempotencyKey)
	assert.Equal(t, "1200.00", archiver.reqs[0].AmountTTC)
	assert.Equal(t, []byte("%PDF-1.7 remote"), archiver.reqs[0].PDF)
	assert.Equal(t, "<remote/>", string(archiver.reqs[0].XML), "the archive gets the delivered XML")
}

func TestConvert_ArchiveCarriesLocalArtifact(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	archiver := &fakeArchiver{}
	svc := f.service(t, Deps{Archiver: archiver})

	_, err := svc.Convert(context.Background(), f.request())
	require.NoError(t, err)
	require.Len(t, archiver.reqs, 1)

	stored, err := f.store.Artifact(context.Background(), f.upload.ID, storage.KindPDF)
	require.NoError(t, err)
	xml, err := f.store.Artifact(context.Background(), f.upload.ID, storage.KindXML)
	require.NoError(t, err)
	assert.Equal(t, stored, archiver.reqs[0].PDF)
	assert.Equal(t, xml, archiver.reqs[0].XML)
	assert.Equal(t, PathLocal, archiver.reqs[0].Path)
}

func TestConvert_BackendRetries(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	backend := &fakeBackend{
		errs: []error{
			&DelegateError{Operation: "convert", Status: http.StatusServiceUnavailable, Message: "busy"},
			&DelegateError{Operation: "convert", Status: 0, Message: "connection reset"},
		},
		result: &BackendResult{PDF: []byte("%PDF-1.7 remote")},
	}
	svc := f.service(t, Deps{Backend: backend}, WithRetryAttempts(3))

	res, err := svc.Convert(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, PathBackend, res.Path)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Retries.WithLabelValues("backend")))
}

func TestConvert_BackendFailureIsTerminal(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	backend := &fakeBackend{errs: []error{
		&DelegateError{Operation: "convert", Status: http.StatusBadRequest, Message: "profile not supported"},
	}}
	svc := f.service(t, Deps{Backend: backend}, WithRetryAttempts(3))

	_, err := svc.Convert(context.Background(), f.request())
	se := requireStageError(t, err, StageBackendDelegated, KindDelegate, http.StatusBadGateway)
	assert.Equal(t, "profile not supported", se.Message)
	assert.Equal(t, 1, backend.calls, "client errors are not retried")

	_, err = f.store.Artifact(context.Background(), f.upload.ID, storage.KindPDF)
	assert.ErrorIs(t, err, storage.ErrNotFound, "no local fallback when a backend is configured")
}

func TestConvert_BackendRetriesExhausted(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	unavailable := &DelegateError{Operation: "convert", Status: http.StatusBadGateway, Message: "bad gateway"}
	backend := &fakeBackend{errs: []error{unavailable, unavailable, unavailable}}
	svc := f.service(t, Deps{Backend: backend}, WithRetryAttempts(2))

	_, err := svc.Convert(context.Background(), f.request())
	requireStageError(t, err, StageBackendDelegated, KindDelegate, http.StatusBadGateway)
	assert.Equal(t, 3, backend.calls)
}

func TestConvert_DegradedFallback(t *testing.T) {
	original := []byte("%PDF-1.4 truncated")
	f := newFixture(t, original)
	svc := f.service(t, Deps{})

	res, err := svc.Convert(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, PathDegraded, res.Path)
	assert.False(t, res.Validation.FacturXValid)
	assert.NotEmpty(t, res.Validation.Warnings)

	out, err := f.store.Artifact(context.Background(), f.upload.ID, storage.KindPDF)
	require.NoError(t, err)
	assert.Equal(t, original, out)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Fallbacks))
}

func TestConvert_InsufficientCredits(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	billing := &fakeBilling{err: ErrInsufficientCredits}
	archiver := &fakeArchiver{}
	svc := f.service(t, Deps{Billing: billing, Archiver: archiver})

	_, err := svc.Convert(context.Background(), f.request())
	se := requireStageError(t, err, StageCreditConsumed, KindInsufficientCredits, http.StatusPaymentRequired)
	assert.Equal(t, "insufficient_credits", se.Code())
	assert.Len(t, billing.keys, 1, "insufficient credits are not retried")
	assert.Empty(t, archiver.reqs)
}

func TestConvert_ArchiveFailure(t *testing.T) {
	f := newFixture(t, invoicePDF(t))
	archiver := &fakeArchiver{err: errors.New("dial tcp: connection refused")}
	svc := f.service(t, Deps{Archiver: archiver}, WithRetryAttempts(1))

	_, err := svc.Convert(context.Background(), f.request())
	requireStageError(t, err, StageArchived, KindDelegate, http.StatusBadGateway)
	assert.Len(t, archiver.reqs, 2)

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, StageFailed, f.journal.entries[0].Stage)
	assert.Equal(t, StageArchived, f.journal.entries[0].FailedAt)
	assert.Equal(t, KindDelegate, f.journal.entries[0].Kind)
}

func TestConvert_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	f := newFixture(t, invoicePDF(t))
	svc := f.service(t, Deps{})
	_, err := svc.Convert(context.Background(), f.request())
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "convert.Convert")
	assert.Contains(t, names, "convert.local_fallback")
	assert.Contains(t, names, "convert.persisted")
}

func TestStageError_Code(t *testing.T) {
	tests := []struct {
		err  *StageError
		code string
	}{
		{stageError(StageReceived, KindPrecondition, 401, "", nil), "unauthenticated"},
		{stageError(StageReceived, KindPrecondition, 404, "", nil), "file_not_found"},
		{stageError(StageReceived, KindPrecondition, 400, "", nil), "invalid_request"},
		{stageError(StageArchived, KindDelegate, 502, "", nil), "delegate_failed"},
		{stageError(StagePersisted, KindInternal, 500, "", nil), "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code())
	}

	wrapped := stageError(StagePersisted, KindInternal, 500, "failed", storage.ErrNotFound)
	assert.ErrorIs(t, wrapped, storage.ErrNotFound)
	assert.Contains(t, wrapped.Error(), "PERSISTED")
}

func TestPermanent(t *testing.T) {
	assert.True(t, permanent(ErrInsufficientCredits))
	assert.True(t, permanent(context.Canceled))
	assert.True(t, permanent(&DelegateError{Status: 400}))
	assert.False(t, permanent(&DelegateError{Status: 429}))
	assert.False(t, permanent(&DelegateError{Status: 503}))
	assert.False(t, permanent(errors.New("network")))
}
