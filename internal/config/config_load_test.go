package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// resetFlags resets pflag.CommandLine and viper between tests
func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// clearEnvVars unsets every FACTURX_ variable
func clearEnvVars() {
	for _, key := range flagKeys {
		os.Unsetenv(EnvName(key))
	}
}

// withArgs runs LoadFromFlags with args inside an empty working directory
// so no stray .env file is picked up.
func withArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	originalArgs := os.Args
	originalDir, _ := os.Getwd()
	t.Cleanup(func() {
		os.Args = originalArgs
		_ = os.Chdir(originalDir)
		resetFlags()
		clearEnvVars()
	})

	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	os.Args = append([]string{"facturx-bridge"}, args...)
	resetFlags()

	return LoadFromFlags()
}

func TestLoadFromFlags_DefaultConfig(t *testing.T) {
	clearEnvVars()
	cfg, err := withArgs(t)
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "stdio")
	}
	if cfg.Port != 8080 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 8080)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "info")
	}
	if cfg.DefaultProfile != "BASIC_WL" {
		t.Errorf("LoadFromFlags() DefaultProfile = %v, want BASIC_WL", cfg.DefaultProfile)
	}
	if !filepath.IsAbs(cfg.PDFDirectory) {
		t.Errorf("LoadFromFlags() PDFDirectory should be absolute, got %s", cfg.PDFDirectory)
	}
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "server mode with custom host and port",
			args: []string{"--mode=server", "--host=0.0.0.0", "--port=9090", "--dir=" + dir, "--data-dir=" + filepath.Join(dir, "data")},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.IsServerMode() || cfg.Address() != "0.0.0.0:9090" {
					t.Errorf("unexpected server settings: %s", cfg)
				}
			},
		},
		{
			name: "debug logging",
			args: []string{"--log-level=debug", "--dir=" + dir},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.IsDebug() {
					t.Errorf("LoadFromFlags() LogLevel = %v, want debug", cfg.LogLevel)
				}
			},
		},
		{
			name: "custom max file size",
			args: []string{"--max-file-size=50000000", "--dir=" + dir},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxFileSize != 50000000 {
					t.Errorf("LoadFromFlags() MaxFileSize = %v, want 50000000", cfg.MaxFileSize)
				}
			},
		},
		{
			name: "backend with trailing slash",
			args: []string{"--backend-url=https://api.example.com/", "--backend-timeout=5s", "--retry-attempts=1", "--dir=" + dir},
			check: func(t *testing.T, cfg *Config) {
				if cfg.BackendURL != "https://api.example.com" {
					t.Errorf("LoadFromFlags() BackendURL = %v", cfg.BackendURL)
				}
				if cfg.BackendTimeout != 5*time.Second || cfg.RetryAttempts != 1 {
					t.Errorf("unexpected retry settings: %v %d", cfg.BackendTimeout, cfg.RetryAttempts)
				}
			},
		},
		{
			name: "loose profile spelling",
			args: []string{"--profile=en 16931", "--dir=" + dir},
			check: func(t *testing.T, cfg *Config) {
				if cfg.DefaultProfile != "EN16931" {
					t.Errorf("LoadFromFlags() DefaultProfile = %v, want EN16931", cfg.DefaultProfile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			cfg, err := withArgs(t, tt.args...)
			if err != nil {
				t.Fatalf("LoadFromFlags() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	tempDir := t.TempDir()

	t.Setenv("FACTURX_MODE", "server")
	t.Setenv("FACTURX_HOST", "192.168.1.1")
	t.Setenv("FACTURX_PORT", "3000")
	t.Setenv("FACTURX_DIR", tempDir)
	t.Setenv("FACTURX_DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("FACTURX_LOG_LEVEL", "warn")
	t.Setenv("FACTURX_MAX_FILE_SIZE", "200000000")
	t.Setenv("FACTURX_JWT_SECRET", "s3cret")

	cfg, err := withArgs(t)
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "server")
	}
	if cfg.Host != "192.168.1.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "192.168.1.1")
	}
	if cfg.Port != 3000 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 3000)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "warn")
	}
	if cfg.MaxFileSize != 200000000 {
		t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, 200000000)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("LoadFromFlags() JWTSecret not read from environment")
	}
}

func TestLoadFromFlags_DotEnvFile(t *testing.T) {
	clearEnvVars()

	originalArgs := os.Args
	originalDir, _ := os.Getwd()
	defer func() {
		os.Args = originalArgs
		_ = os.Chdir(originalDir)
		resetFlags()
		clearEnvVars()
	}()

	dir := t.TempDir()
	env := "FACTURX_PORT=4242\nFACTURX_PROFILE=minimum\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	os.Args = []string{"facturx-bridge"}
	resetFlags()

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}
	if cfg.Port != 4242 {
		t.Errorf("LoadFromFlags() Port = %v, want 4242 from .env", cfg.Port)
	}
	if cfg.DefaultProfile != "MINIMUM" {
		t.Errorf("LoadFromFlags() DefaultProfile = %v, want MINIMUM from .env", cfg.DefaultProfile)
	}
}

func TestLoadFromFlags_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("FACTURX_MODE", "server")
	t.Setenv("FACTURX_HOST", "192.168.1.1")
	t.Setenv("FACTURX_PORT", "3000")

	cfg, err := withArgs(t, "--mode=stdio", "--host=localhost", "--port=8888")
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v (should override env)", cfg.Mode, "stdio")
	}
	if cfg.Host != "localhost" {
		t.Errorf("LoadFromFlags() Host = %v, want %v (should override env)", cfg.Host, "localhost")
	}
	if cfg.Port != 8888 {
		t.Errorf("LoadFromFlags() Port = %v, want %v (should override env)", cfg.Port, 8888)
	}
}

func TestLoadFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"invalid mode", []string{"--mode=invalid"}, "mode must be either 'stdio' or 'server'"},
		{"invalid port", []string{"--mode=server", "--port=99999"}, "port must be between 1 and 65535"},
		{"invalid log level", []string{"--log-level=invalid"}, "invalid log level"},
		{"invalid backend", []string{"--backend-url=ftp://files"}, "invalid backend URL"},
		{"version", []string{"--version"}, "version requested"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			_, err := withArgs(t, tt.args...)
			if err == nil {
				t.Fatalf("LoadFromFlags() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFromFlags() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
