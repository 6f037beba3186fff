package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"yashubustudio/termalign/alignment"
	"yashubustudio/termalign/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("termalign-cli: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "termalign-cli",
		Short:         "Align term sheet terms with contract template clauses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to termalign.yaml (default: ./termalign.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")

	cmd.AddCommand(newAlignCommand(opts))
	cmd.AddCommand(newIndexCommand(opts))
	cmd.AddCommand(newRulesCommand())
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}

func (o *rootOptions) loadConfig() (alignment.Config, error) {
	path := o.configPath
	if path == "" {
		path = "termalign.yaml"
	}
	return alignment.LoadConfig(path)
}

// newLogger builds the logger from cfg, letting command-line flags win.
func (o *rootOptions) newLogger(cfg alignment.LogConfig) logger.Logger {
	level := cfg.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(level),
		Output:     os.Stderr,
		JSON:       cfg.JSON || o.logJSON,
		TimeFormat: "15:04:05",
	})
}
