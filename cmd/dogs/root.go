package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/dogquery/internal/core/config"
	"github.com/mohammed-shakir/dogquery/internal/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dogs",
		Short:         "Dog breed demo for next-fetch-policy decisions",
		Long:          `dogs lists breeds, shows a photo for the selected breed and logs every fetch-policy decision the query client makes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "", "Log level (debug|info|warn|error); overrides LOG_LEVEL")
	pf.Bool("console", false, "Human readable console logs")
	pf.String("graphql-url", "", "Dog GraphQL endpoint; overrides GRAPHQL_URL")
	pf.String("cache", "", "Cache driver (memory|redis); overrides CACHE_DRIVER")
	pf.String("policies", "", "YAML file with per-query fetch policies; overrides QUERY_POLICIES_FILE")
	pf.String("photo-next", "", "Next-fetch strategy for the photo query (pass-through|narrow-after-change|pin:<policy>)")

	root.AddCommand(newServeCmd(), newWalkCmd(), newDecideCmd(), newVersionCmd())
	return root
}

// loadConfig reads the environment, then applies any flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	if f.Changed("policies") {
		p, _ := f.GetString("policies")
		if err := os.Setenv("QUERY_POLICIES_FILE", p); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("console") {
		cfg.LogConsole, _ = f.GetBool("console")
	}
	if f.Changed("graphql-url") {
		cfg.GraphQLURL, _ = f.GetString("graphql-url")
	}
	if f.Changed("cache") {
		cfg.CacheDriver, _ = f.GetString("cache")
	}
	if f.Changed("photo-next") {
		cfg.PhotoNext, _ = f.GetString("photo-next")
	}
	return cfg, nil
}

func newLogger(cfg config.Config, component string) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: component,
	}, os.Stderr)
	return logger.NewSlog(&zl)
}
