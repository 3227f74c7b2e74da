package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateLLMCredentials reports whether the provider can be called. It is
// checked separately so job inspection commands work without credentials.
func (c *Config) ValidateLLMCredentials() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("llm.api_key is required for provider %q. Set VITAE_LLM_API_KEY or edit %s (create with 'vitae config init')", c.LLM.Provider, defaultPath)
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case StoreDriverSQLite:
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required when store.driver is postgres")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver)
	}
	if c.Store.MaxConns <= 0 {
		return errors.New("store.max_conns must be positive")
	}
	if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
		return errors.New("store.min_conns must be between 0 and store.max_conns")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter, ProviderOpenAI:
		if c.LLM.BaseURL == "" {
			return errors.New("llm.base_url must be set")
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("llm.provider: unsupported value %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxOutputTokens <= 0 {
		return errors.New("llm.max_output_tokens must be positive")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.RetryAttempts <= 0 {
		return errors.New("llm.retry_attempts must be positive")
	}
	if c.LLM.RetryBaseDelayMS < 0 {
		return errors.New("llm.retry_base_delay_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateExtraction() error {
	if c.Extraction.MaxPages <= 0 {
		return errors.New("extraction.max_pages must be positive")
	}
	if c.Extraction.MaxDocumentBytes <= 0 {
		return errors.New("extraction.max_document_bytes must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be positive")
	}
	if c.Jobs.MaxAttempts <= 0 {
		return errors.New("jobs.max_attempts must be positive")
	}
	if c.Jobs.RetryBaseDelaySeconds < 0 {
		return errors.New("jobs.retry_base_delay_seconds must be non-negative")
	}
	if c.Jobs.PollIntervalMS <= 0 {
		return errors.New("jobs.poll_interval_ms must be positive")
	}
	if c.Jobs.HeartbeatInterval <= 0 {
		return errors.New("jobs.heartbeat_interval must be positive")
	}
	if c.Jobs.HeartbeatTimeout <= c.Jobs.HeartbeatInterval {
		return errors.New("jobs.heartbeat_timeout must be greater than jobs.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
