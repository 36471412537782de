package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nrjais/emquery/internal/config"
	"github.com/nrjais/emquery/internal/sample"
	"github.com/nrjais/emquery/pkg/query"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "emquery",
		Short:         "Serve filtered, projected and paged queries over typed records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $EMQUERY_CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd, normalizeCmd, schemaCmd, queryCmd)
}

func loadConfig() (*config.Config, error) {
	v := config.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))
	return cfg, nil
}

// newParser builds the type registry from the sample configuration and the
// model in the config file, then wraps it in a caching parser.
func newParser(cfg *config.Config) (*query.Parser, error) {
	reg := typeconfig.NewRegistry(typeconfig.WithLogger(slog.Default()))
	if err := sample.Configure(reg); err != nil {
		return nil, fmt.Errorf("failed to configure sample types: %w", err)
	}
	if err := reg.ApplyModel(cfg.Query.Model, sample.Types()); err != nil {
		return nil, fmt.Errorf("failed to apply type configuration: %w", err)
	}
	parser, err := query.NewParser(reg, cfg.Query.ParseCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query parser: %w", err)
	}
	return parser, nil
}
