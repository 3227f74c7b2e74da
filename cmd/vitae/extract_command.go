package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vitae/internal/workflow"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var (
		recordOnly bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract a résumé synchronously without queueing a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateLLMCredentials(); err != nil {
				return err
			}
			path, err := resolveDocumentPath(args[0])
			if err != nil {
				return err
			}
			logger, err := commandLogger(cmd, cfg, logLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			handler, err := workflow.BuildExtractHandler(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			result, err := handler.Run(cmd.Context(), workflow.ExtractPayload{
				Path:     path,
				Filename: filepath.Base(path),
			}, nil)
			if err != nil {
				return err
			}
			if recordOnly {
				return writeJSON(cmd, result.Record)
			}
			return writeJSON(cmd, result)
		},
	}

	cmd.Flags().BoolVar(&recordOnly, "record", false, "Print only the canonical record")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level for diagnostics on stderr (default: warn)")
	return cmd
}
