package convert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/a3tai/facturx-bridge/internal/auth"
	"github.com/a3tai/facturx-bridge/internal/facturx"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/pdf"
	"github.com/a3tai/facturx-bridge/internal/storage"
)

const (
	defaultBackendTimeout = 60 * time.Second
	defaultRetryAttempts  = 3
)

// Deps are the collaborators of the orchestrator. Uploads, Artifacts and
// Builder are required; the others are skipped when nil.
type Deps struct {
	Uploads   UploadStore
	Artifacts ArtifactStore
	Builder   *pdf.Builder

	Backend  Backend
	Billing  Billing
	Archiver Archiver
	Verifier TokenVerifier
	Journal  Journal

	Metrics *observability.Metrics
}

// Option customises Service behaviour.
type Option func(*Service)

// WithBackendTimeout bounds each backend call.
func WithBackendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.backendTimeout = d
		}
	}
}

// WithRetryAttempts sets how many times a failed collaborator call is retried.
func WithRetryAttempts(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retryAttempts = n
		}
	}
}

// WithDefaultProfile sets the profile used when a request names none.
func WithDefaultProfile(p facturx.Profile) Option {
	return func(s *Service) {
		if p.Valid() {
			s.defaultProfile = p
		}
	}
}

// WithBackOff replaces the retry backoff policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Service) {
		if fn != nil {
			s.newBackOff = fn
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service runs conversions. It holds no per-request state.
type Service struct {
	uploads   UploadStore
	artifacts ArtifactStore
	builder   *pdf.Builder
	inspector *pdf.Inspector

	backend  Backend
	billing  Billing
	archiver Archiver
	verifier TokenVerifier
	journal  Journal
	metrics  *observability.Metrics

	backendTimeout time.Duration
	retryAttempts  int
	defaultProfile facturx.Profile
	newBackOff     func() backoff.BackOff
	now            func() time.Time
}

// NewService creates an orchestrator from deps
func NewService(deps Deps, opts ...Option) (*Service, error) {
	if deps.Uploads == nil || deps.Artifacts == nil {
		return nil, errors.New("convert: upload and artifact stores are required")
	}
	if deps.Builder == nil {
		return nil, errors.New("convert: builder is required")
	}

	s := &Service{
		uploads:        deps.Uploads,
		artifacts:      deps.Artifacts,
		builder:        deps.Builder,
		inspector:      pdf.NewInspector(),
		backend:        deps.Backend,
		billing:        deps.Billing,
		archiver:       deps.Archiver,
		verifier:       deps.Verifier,
		journal:        deps.Journal,
		metrics:        deps.Metrics,
		backendTimeout: defaultBackendTimeout,
		retryAttempts:  defaultRetryAttempts,
		defaultProfile: facturx.DefaultProfile,
		newBackOff:     defaultBackOff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HasBackend reports whether conversions are delegated
func (s *Service) HasBackend() bool { return s.backend != nil }

// conversion is the state of one Convert call
type conversion struct {
	req      Request
	subject  string
	upload   *storage.Upload
	profile  facturx.Profile
	xml      []byte
	findings facturx.Findings

	path       string
	pdf        []byte
	validation facturx.Validation
	report     facturx.Report
	reportPDF  []byte
	archiveID  string
}

// Convert runs the conversion pipeline for req. Errors are *StageError.
func (s *Service) Convert(ctx context.Context, req Request) (result *Result, err error) {
	start := s.now()
	ctx, span := observability.Tracer().Start(ctx, "convert.Convert",
		trace.WithAttributes(attribute.String("file_id", req.FileID)))
	defer span.End()

	logger := observability.FromContext(ctx).With(zap.String("file_id", req.FileID))
	ctx = observability.WithLogger(ctx, logger)

	c := &conversion{req: req}
	defer func() {
		s.finish(ctx, c, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	steps := []struct {
		stage Stage
		run   func(context.Context, *conversion) error
		skip  bool
	}{
		{StageReceived, s.receive, false},
		{StageXMLGenerated, s.generateXML, false},
		{StageBackendDelegated, s.delegate, s.backend == nil},
		{StageLocalFallback, s.assembleLocally, s.backend != nil},
		{StagePersisted, s.persist, false},
		{StageCreditConsumed, s.consumeCredit, s.billing == nil},
		{StageArchived, s.archive, s.archiver == nil},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := s.runStage(ctx, step.stage, c, step.run); err != nil {
			return nil, err
		}
	}

	return &Result{
		ID:      req.FileID,
		Status:  "completed",
		Stage:   StageComplete,
		Profile: c.profile.String(),
		Path:    c.path,
		Downloads: Downloads{
			PDF:    DownloadURL(req.FileID, storage.KindPDF),
			XML:    DownloadURL(req.FileID, storage.KindXML),
			Report: DownloadURL(req.FileID, storage.KindReportPDF),
		},
		Validation: c.validation,
		ArchiveID:  c.archiveID,
		Report:     c.report.String(),
	}, nil
}

func (s *Service) runStage(ctx context.Context, stage Stage, c *conversion, run func(context.Context, *conversion) error) error {
	ctx, span := observability.Tracer().Start(ctx, "convert."+strings.ToLower(string(stage)))
	defer span.End()

	started := time.Now()
	err := run(ctx, c)
	s.metrics.ObserveStage(strings.ToLower(string(stage)), time.Since(started))

	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = stageError(stage, KindInternal, http.StatusInternalServerError, "internal error", err)
		}
		span.RecordError(se)
		span.SetStatus(codes.Error, se.Message)
		return se
	}
	observability.FromContext(ctx).Debug("stage completed", zap.String("stage", string(stage)))
	return nil
}

// receive checks the token and loads the upload before any document work
func (s *Service) receive(ctx context.Context, c *conversion) error {
	token := strings.TrimSpace(c.req.Token)
	if token == "" {
		return stageError(StageReceived, KindPrecondition, http.StatusUnauthorized, "authentication required", auth.ErrTokenMissing)
	}

	c.subject = auth.AnonymousSubject(token)
	if s.verifier != nil {
		subject, err := s.verifier.Verify(ctx, token)
		if err != nil {
			return stageError(StageReceived, KindPrecondition, http.StatusUnauthorized, "invalid token", err)
		}
		c.subject = subject
	}

	if strings.TrimSpace(c.req.FileID) == "" {
		return stageError(StageReceived, KindPrecondition, http.StatusBadRequest, "fileId is required", nil)
	}
	upload, err := s.uploads.Get(ctx, c.req.FileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return stageError(StageReceived, KindPrecondition, http.StatusNotFound, "file not found", err)
		}
		return stageError(StageReceived, KindInternal, http.StatusInternalServerError, "failed to load upload", err)
	}
	c.upload = upload

	c.profile = s.defaultProfile
	if strings.TrimSpace(c.req.Profile) != "" {
		c.profile = facturx.ParseProfile(c.req.Profile)
	}
	return nil
}

// generateXML always renders the local XML first
func (s *Service) generateXML(_ context.Context, c *conversion) error {
	xml, _, err := facturx.GenerateCII(c.req.Record, c.profile)
	if err != nil {
		var missing *facturx.MissingTermError
		if errors.As(err, &missing) {
			return stageError(StageXMLGenerated, KindSchema, http.StatusUnprocessableEntity, missing.Error(), err)
		}
		return stageError(StageXMLGenerated, KindInternal, http.StatusInternalServerError, "failed to render XML", err)
	}
	c.xml = xml
	c.findings = facturx.Check(c.req.Record)
	return nil
}

// delegate converts through the backend; any non-success is terminal
func (s *Service) delegate(ctx context.Context, c *conversion) error {
	var res *BackendResult
	err := s.retry(ctx, "backend", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.backendTimeout)
		defer cancel()

		var err error
		res, err = s.backend.Convert(callCtx, BackendRequest{
			Token:    c.req.Token,
			FileName: c.upload.Name,
			PDF:      c.upload.Data,
			Record:   c.req.Record,
			Profile:  c.profile,
		})
		return err
	})
	if err == nil && (res == nil || len(res.PDF) == 0) {
		err = &DelegateError{Operation: "convert", Status: http.StatusBadGateway, Message: "backend returned no PDF"}
	}
	if err != nil {
		return delegateFailure(StageBackendDelegated, "conversion backend failed", err)
	}

	c.path = PathBackend
	c.pdf = res.PDF
	if len(res.XML) > 0 {
		c.xml = res.XML
	}

	var inspection *pdf.Inspection
	if got, err := s.inspector.Inspect(res.PDF); err == nil {
		inspection = got
	} else {
		observability.FromContext(ctx).Warn("backend PDF could not be inspected", zap.Error(err))
	}
	c.validation = pdf.Validate(c.findings, true, inspection)
	c.validation.PDFA3Valid = res.PDFA3Converted
	return s.buildReport(ctx, c)
}

// assembleLocally embeds the XML itself. A failed assembly degrades to the
// original bytes instead of failing the conversion.
func (s *Service) assembleLocally(ctx context.Context, c *conversion) error {
	embedded, err := s.builder.Embed(c.upload.Data, c.xml, c.req.Record, c.profile, s.now())
	if err != nil {
		observability.FromContext(ctx).Warn("local assembly failed, returning the original PDF", zap.Error(err))
		s.metrics.ObserveFallbackFailure()

		c.path = PathDegraded
		c.pdf = c.upload.Data
		c.validation = pdf.Validate(c.findings, true, nil)
		c.validation.Warnings = append(c.validation.Warnings, "local Factur-X assembly failed: "+err.Error())
		return s.buildReport(ctx, c)
	}

	c.path = PathLocal
	c.pdf = embedded.PDF
	c.validation = pdf.Validate(c.findings, true, embedded.Inspection)
	return s.buildReport(ctx, c)
}

func (s *Service) buildReport(ctx context.Context, c *conversion) error {
	now := s.now()
	c.report = facturx.BuildReport(facturx.ReportInput{
		Record:      c.req.Record,
		Profile:     c.profile,
		Validation:  c.validation,
		Path:        c.path,
		GeneratedAt: now,
	})

	reportPDF, err := pdf.RenderReport(c.report, s.builder.Producer(), now)
	if err != nil {
		observability.FromContext(ctx).Warn("validation report PDF not rendered", zap.Error(err))
		return nil
	}
	c.reportPDF = reportPDF
	return nil
}

func (s *Service) persist(ctx context.Context, c *conversion) error {
	err := s.artifacts.SaveArtifacts(ctx, c.req.FileID, &storage.Artifacts{
		PDF:        c.pdf,
		XML:        c.xml,
		ReportPDF:  c.reportPDF,
		ReportText: []byte(c.report.String()),
	})
	if err != nil {
		return stageError(StagePersisted, KindInternal, http.StatusInternalServerError, "failed to store artifacts", err)
	}
	return nil
}

func (s *Service) consumeCredit(ctx context.Context, c *conversion) error {
	key := "credit:" + c.req.FileID
	ctx = auth.WithSubject(ctx, c.subject)

	err := s.retry(ctx, "billing", func(ctx context.Context) error {
		return s.billing.Consume(ctx, c.req.Token, c.req.FileID, key)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInsufficientCredits) {
		return stageError(StageCreditConsumed, KindInsufficientCredits, http.StatusPaymentRequired, "insufficient credits", err)
	}
	return delegateFailure(StageCreditConsumed, "billing failed", err)
}

func (s *Service) archive(ctx context.Context, c *conversion) error {
	req := ArchiveRequest{
		IdempotencyKey: "archive:" + c.req.FileID,
		FileID:         c.req.FileID,
		FileName:       c.upload.Name,
		InvoiceNumber:  c.req.Record.InvoiceNumber,
		VendorName:     c.req.Record.VendorName,
		ClientName:     c.req.Record.ClientName,
		AmountTTC:      c.req.Record.AmountTTC,
		Profile:        c.profile.String(),
		Path:           c.path,
		Validation:     c.validation,
		PDF:            c.pdf,
		XML:            c.xml,
	}
	ctx = auth.WithSubject(ctx, c.subject)

	err := s.retry(ctx, "archive", func(ctx context.Context) error {
		id, err := s.archiver.Archive(ctx, c.req.Token, req)
		if err != nil {
			return err
		}
		c.archiveID = id
		return nil
	})
	if err != nil {
		return delegateFailure(StageArchived, "archive failed", err)
	}
	return nil
}

// delegateFailure maps a collaborator error to a 502, keeping the remote
// status and message when there is one
func delegateFailure(stage Stage, message string, err error) *StageError {
	var de *DelegateError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}
	return stageError(stage, KindDelegate, http.StatusBadGateway, message, err)
}

// finish records metrics and the journal entry of a conversion
func (s *Service) finish(ctx context.Context, c *conversion, start time.Time, err error) {
	logger := observability.FromContext(ctx)
	entry := JournalEntry{
		FileID:   c.req.FileID,
		Subject:  c.subject,
		Path:     c.path,
		Profile:  c.profile.String(),
		Stage:    StageComplete,
		Duration: s.now().Sub(start),
	}

	outcome := "complete"
	var se *StageError
	if errors.As(err, &se) {
		outcome = string(se.Kind)
		entry.Stage = StageFailed
		entry.FailedAt = se.Stage
		entry.Kind = se.Kind
		entry.Message = se.Message
		logger.Warn("conversion failed",
			zap.String("stage", string(se.Stage)),
			zap.String("kind", string(se.Kind)),
			zap.Int("status", se.Status),
			zap.Error(se.Err),
		)
	} else {
		logger.Info("conversion completed",
			zap.String("path", c.path),
			zap.String("profile", c.profile.String()),
			zap.Bool("pdfa3_valid", c.validation.PDFA3Valid),
			zap.Bool("facturx_valid", c.validation.FacturXValid),
		)
	}

	path := c.path
	if path == "" {
		path = "none"
	}
	s.metrics.ObserveConversion(path, outcome)

	if s.journal != nil {
		if jerr := s.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
			logger.Warn("failed to record conversion", zap.Error(fmt.Errorf("journal: %w", jerr)))
		}
	}
}
