package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vitae/internal/config"
	"vitae/internal/daemon"
	"vitae/internal/jobs"
	"vitae/internal/llm/providers"
	"vitae/internal/logging"
	"vitae/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel  string
	LogFormat string
	// ProviderOptions are passed through to the generation provider factory.
	ProviderOptions []providers.Option
}

// Run starts the vitae daemon and blocks until cmdCtx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateLLMCredentials(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		logCfg.Logging.Level = level
	}
	if format := strings.TrimSpace(opts.LogFormat); format != "" {
		logCfg.Logging.Format = format
	}
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "vitaed.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open job store",
			logging.Error(err),
			logging.String(logging.FieldEventType, "store_open_failed"),
			logging.String(logging.FieldErrorHint, "check store.driver and store.dsn"),
		)
		return err
	}

	handler, err := workflow.BuildExtractHandler(signalCtx, cfg, logger, opts.ProviderOptions...)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build extraction handler: %w", err)
	}
	mgr := workflow.NewManager(cfg, store, logger, workflow.WithFinalFailureHook(failureLogger(logger)))
	if err := mgr.Register(workflow.WorkTypeExtract, handler, cfg.Jobs.Workers); err != nil {
		_ = store.Close()
		return err
	}

	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and job store access"),
			logging.String(logging.FieldImpact, "queued jobs will not be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vitae daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// failureLogger records permanently failed jobs at a single, greppable event.
func failureLogger(logger *slog.Logger) workflow.FailureHook {
	return func(ctx context.Context, job *jobs.Job, jobErr *jobs.JobError) {
		logging.WithContext(ctx, logger).Error("job permanently failed",
			logging.String(logging.FieldEventType, "job_dead_letter"),
			logging.String(logging.FieldErrorKind, jobErr.Kind),
			logging.String("error_message", jobErr.Message),
			logging.Int("attempts", job.Attempts),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String("llm_provider", cfg.LLM.Provider),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Int("workers", cfg.Jobs.Workers),
		logging.Int("max_attempts", cfg.Jobs.MaxAttempts),
		logging.Int("max_pages", cfg.Extraction.MaxPages),
		logging.Bool("custom_templates", strings.TrimSpace(cfg.Extraction.TemplateDir) != ""),
	)
}
