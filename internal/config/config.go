package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Store selects the durable job store backend.
type Store struct {
	Driver   string `toml:"driver"`
	DSN      string `toml:"dsn"`
	MaxConns int    `toml:"max_conns"`
	MinConns int    `toml:"min_conns"`
}

// LLM contains text-generation provider settings.
type LLM struct {
	Provider         string  `toml:"provider"`
	APIKey           string  `toml:"api_key"`
	BaseURL          string  `toml:"base_url"`
	Model            string  `toml:"model"`
	Referer          string  `toml:"referer"`
	Title            string  `toml:"title"`
	Temperature      float64 `toml:"temperature"`
	MaxOutputTokens  int     `toml:"max_output_tokens"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
	RetryAttempts    int     `toml:"retry_attempts"`
	RetryBaseDelayMS int     `toml:"retry_base_delay_ms"`
}

// Extraction contains document and prompt settings for the extraction pipeline.
type Extraction struct {
	MaxPages         int    `toml:"max_pages"`
	MaxDocumentBytes int    `toml:"max_document_bytes"`
	TemplateDir      string `toml:"template_dir"`
}

// Jobs contains worker pool and retry settings for background jobs.
type Jobs struct {
	Workers               int `toml:"workers"`
	MaxAttempts           int `toml:"max_attempts"`
	RetryBaseDelaySeconds int `toml:"retry_base_delay_seconds"`
	PollIntervalMS        int `toml:"poll_interval_ms"`
	HeartbeatInterval     int `toml:"heartbeat_interval"`
	HeartbeatTimeout      int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vitae.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Store: job store driver and connection settings
//   - LLM: text-generation provider connection and call-level retry
//   - Extraction: document limits and prompt template overrides
//   - Jobs: worker pool sizing, job-level retry, heartbeats
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Store      Store      `toml:"store"`
	LLM        LLM        `toml:"llm"`
	Extraction Extraction `toml:"extraction"`
	Jobs       Jobs       `toml:"jobs"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vitae.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StoreDSN returns the configured job store connection string. The SQLite
// driver falls back to a database file inside the data directory.
func (c *Config) StoreDSN() string {
	if dsn := strings.TrimSpace(c.Store.DSN); dsn != "" {
		return dsn
	}
	if c.Store.Driver == StoreDriverSQLite {
		return filepath.Join(c.Paths.DataDir, "vitae.db")
	}
	return ""
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vitaed.lock")
}

// LLMTimeout returns the per-call generation timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// LLMRetryBaseDelay returns the call-level retry base delay.
func (c *Config) LLMRetryBaseDelay() time.Duration {
	return time.Duration(c.LLM.RetryBaseDelayMS) * time.Millisecond
}

// JobRetryBaseDelay returns the job-level retry base delay.
func (c *Config) JobRetryBaseDelay() time.Duration {
	return time.Duration(c.Jobs.RetryBaseDelaySeconds) * time.Second
}

// PollInterval returns the worker idle poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Jobs.PollIntervalMS) * time.Millisecond
}

// HeartbeatInterval returns how often running jobs refresh their heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Jobs.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns how long a processing job may go without a
// heartbeat before it is considered abandoned.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Jobs.HeartbeatTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
