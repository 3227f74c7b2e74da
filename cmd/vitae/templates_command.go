package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vitae/internal/prompts"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect extraction prompt templates",
	}
	templatesCmd.AddCommand(newTemplatesListCommand(ctx))
	return templatesCmd
}

func newTemplatesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active prompt templates and where they come from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := prompts.Load(cfg.Extraction.TemplateDir)
			if err != nil {
				return err
			}
			templates := catalog.List()
			if ctx.jsonOutput() {
				type jsonTemplate struct {
					Name        string `json:"name"`
					Version     string `json:"version"`
					Description string `json:"description,omitempty"`
					Source      string `json:"source"`
				}
				items := make([]jsonTemplate, 0, len(templates))
				for _, tpl := range templates {
					items = append(items, jsonTemplate{Name: tpl.Name, Version: tpl.Version, Description: tpl.Description, Source: tpl.Source})
				}
				return writeJSON(cmd, items)
			}
			rows := make([][]string, 0, len(templates))
			for _, tpl := range templates {
				rows = append(rows, []string{tpl.Name, tpl.Version, tpl.Source, truncate(tpl.Description, 60)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Version", "Source", "Description"}, rows, nil))
			return nil
		},
	}
}
