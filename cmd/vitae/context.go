package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vitae/internal/config"
	"vitae/internal/jobs"
	"vitae/internal/logging"
)

const defaultEnvFile = ".env"

type commandContext struct {
	configFlag *string
	envFlag    *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, envFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
		jsonFlag:   jsonFlag,
	}
}

// loadEnv populates the environment from a dotenv file without overriding
// variables that are already set. A missing default file is not an error.
func (c *commandContext) loadEnv() error {
	path := defaultEnvFile
	explicit := false
	if c.envFlag != nil && strings.TrimSpace(*c.envFlag) != "" {
		path = strings.TrimSpace(*c.envFlag)
		explicit = true
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withStore opens the job store for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(*jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// commandLogger writes warnings and errors to the command's stderr so stdout
// stays parseable.
func commandLogger(cmd *cobra.Command, cfg *config.Config, level string) (*slog.Logger, error) {
	if strings.TrimSpace(level) == "" {
		level = "warn"
	}
	return logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
