// Package config provides XML-based configuration with environment overrides.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FinNERWizard"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Processing ProcessingConfig `xml:"Processing"`
	Backend    BackendConfig    `xml:"Backend"`
	Auth       AuthConfig       `xml:"Auth"`
	Events     EventsConfig     `xml:"Events"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int    `xml:"Port"`
	BindAddress    string `xml:"BindAddress"`
	EnableCORS     bool   `xml:"EnableCORS"`
	AllowOrigins   string `xml:"AllowOrigins"`
	ReadTimeout    int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout   int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout    int    `xml:"IdleTimeoutSeconds"`
	RequestTimeout int    `xml:"RequestTimeoutSeconds"`
	BodyLimit      string `xml:"BodyLimit"`
}

// StorageConfig contains file and session storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	// SessionBackend is "memory" or "duckdb".
	SessionBackend string `xml:"SessionBackend"`
	SessionDBPath  string `xml:"SessionDBPath"`
	// CatalogFile optionally replaces the built-in results catalog.
	CatalogFile string `xml:"CatalogFile"`
}

// ProcessingConfig contains wizard and processing settings
type ProcessingConfig struct {
	// Runner is "simulated" or "remote".
	Runner                 string `xml:"Runner"`
	TickIntervalMillis     int    `xml:"TickIntervalMillis"`
	ProgressStep           int    `xml:"ProgressStep"`
	SettleDelayMillis      int    `xml:"SettleDelayMillis"`
	MaxSessions            int    `xml:"MaxSessions"`
	SessionTimeoutMinutes  int    `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	AllowedFileTypes       string `xml:"AllowedFileTypes"`
}

// BackendConfig points at the document analysis backend
type BackendConfig struct {
	URL                string  `xml:"URL"`
	TimeoutSeconds     int     `xml:"TimeoutSeconds"`
	RequestsPerSecond  float64 `xml:"RequestsPerSecond"`
	Burst              int     `xml:"Burst"`
	BreakerFailures    int     `xml:"BreakerFailures"`
	BreakerOpenSeconds int     `xml:"BreakerOpenSeconds"`
}

// AuthConfig holds the identity provider key handed to the web client
type AuthConfig struct {
	PublishableKey string `xml:"PublishableKey"`
}

// EventsConfig configures completion event publishing
type EventsConfig struct {
	NATSURL string `xml:"NATSURL"`
	Subject string `xml:"Subject"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	EnableCompression       bool   `xml:"EnableCompression"`
	CompressionLevel        int    `xml:"CompressionLevel"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           8089,
			BindAddress:    "0.0.0.0",
			EnableCORS:     true,
			AllowOrigins:   "*",
			ReadTimeout:    30,
			WriteTimeout:   30,
			IdleTimeout:    120,
			RequestTimeout: 60,
			BodyLimit:      "200M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			SessionBackend:   "duckdb",
			SessionDBPath:    "./data/sessions.duckdb",
		},
		Processing: ProcessingConfig{
			Runner:                 "simulated",
			TickIntervalMillis:     200,
			ProgressStep:           10,
			SettleDelayMillis:      500,
			MaxSessions:            1000,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			AllowedFileTypes:       ".pdf,.docx,.txt",
		},
		Backend: BackendConfig{
			URL:                "http://localhost:5000",
			TimeoutSeconds:     30,
			RequestsPerSecond:  10,
			Burst:              20,
			BreakerFailures:    5,
			BreakerOpenSeconds: 30,
		},
		Events: EventsConfig{
			Subject: "finner.handoff.completed",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			EnableCompression:       true,
			CompressionLevel:        5,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file, creating it with defaults
// when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides(os.Getenv)
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Financial NER Wizard Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.SessionDBPath = filepath.Join(dataDir, "sessions.duckdb")
	}

	if url := getenv("BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}

	// The web client historically read the key under its build-time name.
	if key := getenv("CLERK_PUBLISHABLE_KEY"); key != "" {
		c.Auth.PublishableKey = key
	} else if key := getenv("VITE_CLERK_PUBLISHABLE_KEY"); key != "" {
		c.Auth.PublishableKey = key
	}

	if natsURL := getenv("NATS_URL"); natsURL != "" {
		c.Events.NATSURL = natsURL
	}

	if level := getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.Storage.SessionDBPath)
	resolve(&c.Storage.CatalogFile)
}

// Validate reports configuration values the server cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("Server.Port %d out of range", c.Server.Port))
	}
	switch c.Storage.SessionBackend {
	case "", "memory", "duckdb":
	default:
		errs = append(errs, fmt.Errorf("Storage.SessionBackend %q must be memory or duckdb", c.Storage.SessionBackend))
	}
	switch c.Processing.Runner {
	case "", "simulated", "remote":
	default:
		errs = append(errs, fmt.Errorf("Processing.Runner %q must be simulated or remote", c.Processing.Runner))
	}
	if c.Processing.Runner == "remote" && c.Backend.URL == "" {
		errs = append(errs, errors.New("Processing.Runner remote needs Backend.URL"))
	}
	if c.Processing.ProgressStep < 0 || c.Processing.ProgressStep > 100 {
		errs = append(errs, fmt.Errorf("Processing.ProgressStep %d must be within 0..100", c.Processing.ProgressStep))
	}
	return errors.Join(errs...)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AuthEnabled reports whether a publishable key is configured.
func (c *AppConfig) AuthEnabled() bool {
	return strings.TrimSpace(c.Auth.PublishableKey) != ""
}

// AllowedExtensions returns the lower-cased allowed upload extensions.
func (c *AppConfig) AllowedExtensions() []string {
	var exts []string
	for _, ext := range strings.Split(c.Processing.AllowedFileTypes, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

// Duration helpers.

func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Processing.TickIntervalMillis) * time.Millisecond
}

func (c *AppConfig) SettleDelay() time.Duration {
	return time.Duration(c.Processing.SettleDelayMillis) * time.Millisecond
}

func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *AppConfig) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.Backend.BreakerOpenSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}
	if c.Storage.SessionDBPath != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.SessionDBPath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
