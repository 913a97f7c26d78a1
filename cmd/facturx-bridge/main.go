package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/a3tai/facturx-bridge/internal/auth"
	"github.com/a3tai/facturx-bridge/internal/backend"
	"github.com/a3tai/facturx-bridge/internal/config"
	"github.com/a3tai/facturx-bridge/internal/convert"
	"github.com/a3tai/facturx-bridge/internal/httpapi"
	"github.com/a3tai/facturx-bridge/internal/mcp"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/pdf"
	"github.com/a3tai/facturx-bridge/internal/storage"
	"github.com/a3tai/facturx-bridge/internal/store"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

const shutdownTimeout = 15 * time.Second

// databaseDSN places a relative sqlite database under the data directory
func databaseDSN(cfg *config.Config) string {
	dsn := cfg.DatabaseDSN
	if !strings.HasPrefix(dsn, "sqlite://") {
		return dsn
	}
	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "file:") {
		return dsn
	}
	return "sqlite://" + filepath.Join(cfg.DataDirectory, path)
}

// newConverter wires the conversion orchestrator. With a backend configured
// billing and archiving go to the backend too; otherwise the local ledger
// and archive tables serve them.
func newConverter(cfg *config.Config, db *gorm.DB, files *storage.FileStore, pdfService *pdf.Service, metrics *observability.Metrics) (*convert.Service, error) {
	deps := convert.Deps{
		Uploads:   files,
		Artifacts: files,
		Builder:   pdfService.Builder(),
		Journal:   store.NewConversionLog(db),
		Metrics:   metrics,
	}

	if cfg.HasBackend() {
		client, err := backend.NewClient(cfg.BackendURL)
		if err != nil {
			return nil, err
		}
		deps.Backend = client
		deps.Billing = client
		deps.Archiver = client
	} else {
		deps.Billing = store.NewLedger(db, cfg.InitialCredits)
		deps.Archiver = store.NewArchiveRepo(db)
	}

	if cfg.JWTSecret != "" {
		verifier, err := auth.NewHMACVerifier(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		deps.Verifier = verifier
	}

	return convert.NewService(deps,
		convert.WithBackendTimeout(cfg.BackendTimeout),
		convert.WithRetryAttempts(cfg.RetryAttempts),
		convert.WithDefaultProfile(cfg.Profile()),
	)
}

// runServerMode serves the HTTP API and the MCP endpoint until ctx is done
func runServerMode(ctx context.Context, cfg *config.Config, logger *zap.Logger, pdfService *pdf.Service, server *mcp.Server) error {
	files, err := storage.NewFileStore(cfg.DataDirectory)
	if err != nil {
		return err
	}

	db, err := store.Open(databaseDSN(cfg), cfg.IsDebug())
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	metrics := observability.NewMetrics()
	converter, err := newConverter(cfg, db, files, pdfService, metrics)
	if err != nil {
		return fmt.Errorf("failed to create converter: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Store:     files,
		Converter: converter,
		Documents: pdfService,
		Metrics:   metrics,
		Logger:    logger,
		MCP:       server.HTTPHandler(),
		Ready: func(ctx context.Context) error {
			return store.Ping(db.WithContext(ctx))
		},
		Version: cfg.Version,
	})

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("backend", converter.HasBackend()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.IsStdioMode())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.IsDebug() {
		logger.Debug("starting", zap.Stringer("config", cfg))
	}

	pdfService, err := pdf.NewService(cfg.MaxFileSize, cfg.PDFDirectory, cfg.Profile(), cfg.Producer)
	if err != nil {
		logger.Fatal("failed to create PDF service", zap.Error(err))
	}

	server, err := mcp.NewServer(cfg, pdfService, mcp.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create MCP server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cfg, logger, pdfService, server)
	} else {
		// The parent process controls our lifecycle; EOF on stdin ends the run
		err = server.Run(ctx)
	}
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Factur-X Bridge\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
