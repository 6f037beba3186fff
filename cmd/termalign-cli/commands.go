package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/internal/logger"
)

func newIndexCommand(root *rootOptions) *cobra.Command {
	var templatePath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed template clauses and store them in the configured vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templatePath = strings.TrimSpace(templatePath)
			if templatePath == "" {
				return errors.New("missing required --template file")
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log := root.newLogger(cfg.Log)
			ctx := logger.ContextWithLogger(cmd.Context(), log)
			return runIndex(ctx, cfg, templatePath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&templatePath, "template", "", "Template analysis JSON file")
	return cmd
}

func runIndex(ctx context.Context, cfg alignment.Config, templatePath string, out io.Writer) error {
	if cfg.Embedder.Provider == "none" {
		return errors.New("indexing needs an embedder provider")
	}
	if cfg.VectorIndex.Provider == "none" {
		return errors.New("indexing needs a vector index provider")
	}
	tmpl, err := alignment.ReadTemplateAnalysisFile(templatePath)
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, cfg, tmpl.DocumentID, logger.FromContext(ctx), nil)
	if err != nil {
		return err
	}
	defer p.Close()
	if p.store == nil {
		return fmt.Errorf("vector index %q is unavailable", cfg.VectorIndex.Provider)
	}
	n, err := p.semantic.StoreClauseEmbeddings(ctx, tmpl.DocumentID, tmpl.Clauses)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %d of %d clause embeddings for %s\n", n, len(tmpl.Clauses), tmpl.DocumentID)
	return nil
}

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the rule-based matching table",
	}
	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the default match rules as YAML for editing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := alignment.ExportMatchRules(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "match rules written to %s\n", output)
			return nil
		},
	}
	export.Flags().StringVar(&output, "output", "rules.yaml", "Destination YAML file")
	cmd.AddCommand(export)
	return cmd
}

func newConfigCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage termalign.yaml",
	}
	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every default filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := output
			if path == "" {
				path = root.configPath
			}
			if path == "" {
				path = "termalign.yaml"
			}
			if !force && fileExists(path) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := alignment.SaveConfig(path, alignment.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", "", "Destination file (default: --config or ./termalign.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
