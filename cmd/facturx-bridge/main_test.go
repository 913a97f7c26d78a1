package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/a3tai/facturx-bridge/internal/config"
	"github.com/a3tai/facturx-bridge/internal/mcp"
	"github.com/a3tai/facturx-bridge/internal/observability"
	"github.com/a3tai/facturx-bridge/internal/pdf"
	"github.com/a3tai/facturx-bridge/internal/storage"
	"github.com/a3tai/facturx-bridge/internal/store"
)

const testVersion = "1.2.3"

// captureStdout returns what fn writes to os.Stdout
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = originalStdout }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
		w.Close()
	}()

	var buf bytes.Buffer
	io.Copy(&buf, r)
	<-done
	return buf.String()
}

func TestPrintVersion(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := version, buildTime, gitCommit
	defer func() {
		version, buildTime, gitCommit = oldVersion, oldBuildTime, oldGitCommit
	}()

	tests := []struct {
		name      string
		version   string
		buildTime string
		gitCommit string
		expected  []string
	}{
		{
			name:      "build flags",
			version:   testVersion,
			buildTime: "2023-12-01_10:30:00",
			gitCommit: "abc123",
			expected: []string{
				"Factur-X Bridge",
				"Version: " + testVersion,
				"Build Time: 2023-12-01_10:30:00",
				"Git Commit: abc123",
				"Built with:",
			},
		},
		{
			name:      "defaults",
			version:   "dev",
			buildTime: "unknown",
			gitCommit: "unknown",
			expected: []string{
				"Version: dev",
				"Build Time: unknown",
				"Git Commit: unknown",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, buildTime, gitCommit = tt.version, tt.buildTime, tt.gitCommit
			output := captureStdout(t, printVersion)

			for _, expected := range tt.expected {
				if !strings.Contains(output, expected) {
					t.Errorf("printVersion() output missing expected string: %s\nActual output:\n%s", expected, output)
				}
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	dataDir := filepath.Join(string(filepath.Separator), "var", "lib", "facturx")

	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"relative sqlite", "sqlite://facturx.db", "sqlite://" + filepath.Join(dataDir, "facturx.db")},
		{"absolute sqlite", "sqlite:///tmp/ledger.db", "sqlite:///tmp/ledger.db"},
		{"sqlite uri", "sqlite://file:ledger?mode=memory", "sqlite://file:ledger?mode=memory"},
		{"postgres", "postgres://user:pw@db:5432/facturx", "postgres://user:pw@db:5432/facturx"},
		{"key value", "host=db user=facturx", "host=db user=facturx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{DatabaseDSN: tt.dsn, DataDirectory: dataDir}
			if got := databaseDSN(cfg); got != tt.want {
				t.Errorf("databaseDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeServer
	cfg.Port = 0
	cfg.PDFDirectory = t.TempDir()
	cfg.DataDirectory = t.TempDir()
	cfg.DatabaseDSN = "sqlite://ledger.db"
	return cfg
}

func TestNewConverter(t *testing.T) {
	tests := []struct {
		name        string
		backendURL  string
		jwtSecret   string
		wantBackend bool
		wantErr     bool
	}{
		{name: "local", wantBackend: false},
		{name: "backend", backendURL: "https://backend.example.com", wantBackend: true},
		{name: "verified tokens", jwtSecret: "secret", wantBackend: false},
		{name: "invalid backend", backendURL: "ftp://backend", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.BackendURL = tt.backendURL
			cfg.JWTSecret = tt.jwtSecret

			db, err := store.Open(databaseDSN(cfg), false)
			if err != nil {
				t.Fatalf("store.Open() error = %v", err)
			}
			files, err := storage.NewFileStore(cfg.DataDirectory)
			if err != nil {
				t.Fatalf("NewFileStore() error = %v", err)
			}
			pdfService, err := pdf.NewService(cfg.MaxFileSize, cfg.PDFDirectory, cfg.Profile(), cfg.Producer)
			if err != nil {
				t.Fatalf("pdf.NewService() error = %v", err)
			}

			converter, err := newConverter(cfg, db, files, pdfService, observability.NewMetrics())
			if tt.wantErr {
				if err == nil {
					t.Error("newConverter() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newConverter() error = %v", err)
			}
			if converter.HasBackend() != tt.wantBackend {
				t.Errorf("HasBackend() = %v, want %v", converter.HasBackend(), tt.wantBackend)
			}
		})
	}
}

func TestRunServerMode_Shutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 0

	pdfService, err := pdf.NewService(cfg.MaxFileSize, cfg.PDFDirectory, cfg.Profile(), cfg.Producer)
	if err != nil {
		t.Fatalf("pdf.NewService() error = %v", err)
	}
	server, err := mcp.NewServer(cfg, pdfService)
	if err != nil {
		t.Fatalf("mcp.NewServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runServerMode(ctx, cfg, zap.NewNop(), pdfService, server); err != nil {
		t.Errorf("runServerMode() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDirectory, "ledger.db")); err != nil {
		t.Errorf("ledger database not created under data directory: %v", err)
	}
}

func TestVersionFlagDetection(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		hasVersion bool
	}{
		{"no version flag", []string{"program"}, false},
		{"-version flag", []string{"program", "-version"}, true},
		{"--version flag", []string{"program", "--version"}, true},
		{"-v flag", []string{"program", "-v"}, true},
		{"version flag with other args", []string{"program", "--mode=server", "--version", "--port=8080"}, true},
		{"similar but not version flag", []string{"program", "-verbose", "-versions"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found := false
			for _, arg := range tt.args[1:] {
				if arg == "-version" || arg == "--version" || arg == "-v" {
					found = true
					break
				}
			}

			if found != tt.hasVersion {
				t.Errorf("Version flag detection for %v: got %v, want %v", tt.args, found, tt.hasVersion)
			}
		})
	}
}
