package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeLLM()
	if err := c.normalizeExtraction(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("VITAE_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	if c.LLM.APIKey == "" {
		for _, key := range apiKeyEnvVars(c.LLM.Provider) {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = value
				break
			}
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	switch c.LLM.Provider {
	case ProviderOpenRouter:
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultOpenRouterBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenRouterModel
		}
	case ProviderOpenAI:
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultOpenAIBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenAIModel
		}
	case ProviderGemini:
		if c.LLM.Model == "" {
			c.LLM.Model = defaultGeminiModel
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
}

func apiKeyEnvVars(provider string) []string {
	switch provider {
	case ProviderOpenRouter:
		return []string{"VITAE_LLM_API_KEY", "OPENROUTER_API_KEY"}
	case ProviderOpenAI:
		return []string{"VITAE_LLM_API_KEY", "OPENAI_API_KEY"}
	case ProviderGemini:
		return []string{"VITAE_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}
	default:
		return []string{"VITAE_LLM_API_KEY"}
	}
}

func (c *Config) normalizeExtraction() error {
	dir := strings.TrimSpace(c.Extraction.TemplateDir)
	if dir == "" {
		c.Extraction.TemplateDir = ""
		return nil
	}
	expanded, err := expandPath(dir)
	if err != nil {
		return fmt.Errorf("extraction.template_dir: %w", err)
	}
	c.Extraction.TemplateDir = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
