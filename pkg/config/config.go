// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/logflow/procflow/pkg/errors"
	"github.com/logflow/procflow/pkg/eventlog"
)

// Config holds all procflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Columns   eventlog.Columns  `yaml:"columns"`
	Explore   ExploreConfig     `yaml:"explore"`
	Layout    LayoutConfig      `yaml:"layout"`
	Logging   LoggingConfig     `yaml:"logging"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	S3        eventlog.S3Config `yaml:"s3"`
	Watch     WatchConfig       `yaml:"watch"`
}

// ExploreConfig controls the initial exploration state.
type ExploreConfig struct {
	TopVariants int    `yaml:"top_variants" validate:"min=1"`
	Step        int    `yaml:"step" validate:"min=0"`
	Navigation  string `yaml:"navigation" validate:"oneof=expanded step"`
	Concurrency int    `yaml:"concurrency" validate:"min=0"` // 0 = one loader per file
}

// LayoutConfig sets the grid used by exported coordinates.
type LayoutConfig struct {
	SpacingX float64 `yaml:"spacing_x" validate:"gt=0"`
	SpacingY float64 `yaml:"spacing_y" validate:"gt=0"`
}

// LoggingConfig for the CLI logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// TelemetryConfig for OTLP tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	ServiceName   string  `yaml:"service_name" validate:"required"`
	Insecure      bool    `yaml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio" validate:"gte=0,lte=1"`
}

// WatchConfig for `procflow watch`.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Columns: eventlog.DefaultColumns(),
		Explore: ExploreConfig{
			TopVariants: 6,
			Step:        1,
			Navigation:  "expanded",
		},
		Layout: LayoutConfig{
			SpacingX: 220,
			SpacingY: 140,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			ServiceName:   "procflow",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
		S3: eventlog.S3Config{
			DownloadTimeout: 5 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

var validate = validator.New()

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.Wrap(err, errors.CodeConfig, "invalid configuration")
	}

	e := verrs[0]
	var msg string
	switch e.Tag() {
	case "required", "required_if":
		msg = "field is required"
	case "min", "gte":
		msg = "must be at least " + e.Param()
	case "max", "lte":
		msg = "must not exceed " + e.Param()
	case "gt":
		msg = "must be greater than " + e.Param()
	case "oneof":
		msg = "must be one of: " + e.Param()
	default:
		msg = fmt.Sprintf("validation failed (%s)", e.Tag())
	}
	return errors.New(errors.CodeConfig, "invalid configuration").
		WithContext("field", e.Namespace()).
		WithContext("reason", msg)
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load loads configuration from all sources in priority order. explicit,
// when set, must exist.
func (m *Manager) Load(explicit string) error {
	paths := searchPaths()
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return errors.FileNotFound(explicit)
		}
		paths = append(paths, explicit)
	}
	return m.LoadFrom(paths...)
}

// LoadFrom resets to defaults, overlays each existing file in order, applies
// PROCFLOW_* environment overrides and validates the result.
func (m *Manager) LoadFrom(paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range paths {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, fail on broken ones
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrap(err, errors.CodeConfig, "failed to read config file").WithContext("path", path)
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()

	return Validate(m.config)
}

// searchPaths returns config file paths in priority order.
func searchPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/procflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".procflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".procflow.yaml"))
	}

	return paths
}

// loadFile overlays a single config file. Keys absent from the file keep
// their current value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("PROCFLOW_TOP_VARIANTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.Explore.TopVariants = n
		}
	}
	if v := os.Getenv("PROCFLOW_STEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.config.Explore.Step = n
		}
	}
	if v := os.Getenv("PROCFLOW_LOG_LEVEL"); v != "" {
		m.config.Logging.Level = v
	}
	if v := os.Getenv("PROCFLOW_TIMESTAMP_FORMAT"); v != "" {
		m.config.Columns.TimestampFormat = v
	}
	if v := os.Getenv("PROCFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
	if v := os.Getenv("PROCFLOW_S3_REGION"); v != "" {
		m.config.S3.Region = v
	}
	if v := os.Getenv("PROCFLOW_S3_ENDPOINT"); v != "" {
		m.config.S3.Endpoint = v
		m.config.S3.UsePathStyle = true
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".procflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := m.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}
