package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/facturx-bridge/internal/facturx"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort           = 8080
	DefaultHost           = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultMaxFileSize    = 10 * 1024 * 1024 // 10MB
	DefaultBackendTimeout = 60 * time.Second
	DefaultRetryAttempts  = 3
	DefaultInitialCredits = 10
	DefaultDatabaseDSN    = "sqlite://facturx.db"

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix prefixes every environment variable, e.g. FACTURX_PORT
	EnvPrefix = "FACTURX"
)

// Config holds all configuration for the Factur-X bridge
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// PDFDirectory confines the MCP tools
	PDFDirectory string
	// DataDirectory holds uploads and conversion artifacts
	DataDirectory string
	DatabaseDSN   string

	// Remote conversion backend; empty means local assembly only
	BackendURL     string
	BackendTimeout time.Duration
	RetryAttempts  int

	DefaultProfile string
	Producer       string

	JWTSecret      string
	InitialCredits int

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	return &Config{
		Mode:           ModeStdio, // Default to stdio mode for MCP compatibility
		Host:           DefaultHost,
		Port:           DefaultPort,
		PDFDirectory:   currentDir,
		DataDirectory:  filepath.Join(currentDir, "data"),
		DatabaseDSN:    DefaultDatabaseDSN,
		BackendTimeout: DefaultBackendTimeout,
		RetryAttempts:  DefaultRetryAttempts,
		DefaultProfile: string(facturx.DefaultProfile),
		Producer:       facturx.DefaultProducer,
		InitialCredits: DefaultInitialCredits,
		Version:        "1.0.0",
		ServerName:     "facturx-bridge",
		LogLevel:       DefaultLogLevel,
		MaxFileSize:    DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// A .env file in the working directory is loaded first; variables already
// set in the environment win over it.
func LoadFromFlags() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	for _, dir := range []*string{&cfg.PDFDirectory, &cfg.DataDirectory} {
		if *dir == "" {
			continue
		}
		if expandedPath, err := filepath.Abs(*dir); err == nil {
			*dir = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// FACTURX_MAX_FILE_SIZE maps to the max-file-size key
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("data-dir", cfg.DataDirectory)
	viper.SetDefault("database-dsn", cfg.DatabaseDSN)
	viper.SetDefault("backend-url", cfg.BackendURL)
	viper.SetDefault("backend-timeout", cfg.BackendTimeout)
	viper.SetDefault("retry-attempts", cfg.RetryAttempts)
	viper.SetDefault("profile", cfg.DefaultProfile)
	viper.SetDefault("producer", cfg.Producer)
	viper.SetDefault("jwt-secret", cfg.JWTSecret)
	viper.SetDefault("initial-credits", cfg.InitialCredits)
	viper.SetDefault("log-level", cfg.LogLevel)
	viper.SetDefault("max-file-size", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for the HTTP API")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory the MCP tools may read and write")
	pflag.String("data-dir", cfg.DataDirectory, "Directory for uploads and conversion artifacts")
	pflag.String("database-dsn", cfg.DatabaseDSN, "Ledger database: sqlite://path or postgres://...")
	pflag.String("backend-url", cfg.BackendURL, "Base URL of the remote conversion backend (empty: local assembly)")
	pflag.Duration("backend-timeout", cfg.BackendTimeout, "Timeout of one backend conversion call")
	pflag.Int("retry-attempts", cfg.RetryAttempts, "Retries for backend, billing and archive calls")
	pflag.String("profile", cfg.DefaultProfile, "Default Factur-X profile")
	pflag.String("producer", cfg.Producer, "Producer written into the XMP metadata")
	pflag.String("jwt-secret", cfg.JWTSecret, "HS256 secret for bearer tokens (empty: tokens are not verified)")
	pflag.Int("initial-credits", cfg.InitialCredits, "Credits granted to a new subject by the local ledger")
	pflag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("max-file-size", cfg.MaxFileSize, "Maximum PDF file size in bytes")
}

var flagKeys = []string{
	"mode", "host", "port", "dir", "data-dir", "database-dsn", "backend-url", "backend-timeout",
	"retry-attempts", "profile", "producer", "jwt-secret", "initial-credits", "log-level", "max-file-size",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nFactur-X Bridge - turns PDF invoices into Factur-X hybrid invoices\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# MCP stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/invoices                  "+
			"# MCP stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --data-dir=/var/lib/fx     # HTTP API\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --backend-url=https://api  # delegate conversions\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		for _, key := range flagKeys {
			fmt.Fprintf(os.Stderr, "  %s\n", EnvName(key))
		}
	}
}

// EnvName returns the environment variable bound to a configuration key
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.DataDirectory = viper.GetString("data-dir")
	cfg.DatabaseDSN = viper.GetString("database-dsn")
	cfg.BackendURL = strings.TrimRight(viper.GetString("backend-url"), "/")
	cfg.BackendTimeout = viper.GetDuration("backend-timeout")
	cfg.RetryAttempts = viper.GetInt("retry-attempts")
	cfg.DefaultProfile = string(facturx.ParseProfile(viper.GetString("profile")))
	cfg.Producer = viper.GetString("producer")
	cfg.JWTSecret = viper.GetString("jwt-secret")
	cfg.InitialCredits = viper.GetInt("initial-credits")
	cfg.LogLevel = viper.GetString("log-level")
	cfg.MaxFileSize = viper.GetInt64("max-file-size")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}
	if err := ensureDirectory(c.PDFDirectory); err != nil {
		return err
	}
	if c.Mode == ModeServer {
		if c.DataDirectory == "" {
			return errors.New("data directory cannot be empty in server mode")
		}
		if err := ensureDirectory(c.DataDirectory); err != nil {
			return err
		}
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.BackendURL != "" {
		u, err := url.Parse(c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid backend URL: %s", c.BackendURL)
		}
		if c.BackendTimeout <= 0 {
			return errors.New("backend timeout must be positive")
		}
	}

	if c.RetryAttempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}
	if c.InitialCredits < 0 {
		return errors.New("initial credits cannot be negative")
	}

	if !facturx.Profile(c.DefaultProfile).Valid() {
		return fmt.Errorf("invalid profile: %s", c.DefaultProfile)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDirectory creates dir when missing
func ensureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// HasBackend reports whether conversions are delegated to a remote backend
func (c *Config) HasBackend() bool {
	return c.BackendURL != ""
}

// Profile returns the parsed default profile
func (c *Config) Profile() facturx.Profile {
	return facturx.ParseProfile(c.DefaultProfile)
}

// String returns a string representation of the configuration.
// The JWT secret and database credentials are never printed.
func (c *Config) String() string {
	backend := c.BackendURL
	if backend == "" {
		backend = "local"
	}
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, DataDirectory: %s, "+
		"Backend: %s, Profile: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.DataDirectory,
		backend, c.DefaultProfile, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
