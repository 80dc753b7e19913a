package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/newsdocket/docket/pkg/config"
	"github.com/newsdocket/docket/pkg/database"
	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/llm"
	"github.com/newsdocket/docket/pkg/store"
	"github.com/newsdocket/docket/pkg/version"
	"github.com/newsdocket/docket/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configDir string
	runDate   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "docket",
		Short:         "News-tracking pipeline: enrich articles, extract and verify claims, write roundups",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envPath := filepath.Join(opts.configDir, ".env")
			if err := godotenv.Load(envPath); err != nil {
				slog.Debug("no .env file loaded", "path", envPath, "error", err)
			}
			if opts.runDate != "" {
				if _, err := dates.ParseDate(opts.runDate); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				if err := os.Setenv(dates.PipelineRunDateEnv, opts.runDate); err != nil {
					return fmt.Errorf("set pipeline date: %w", err)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"), "path to the configuration directory")
	root.PersistentFlags().StringVar(&opts.runDate, "date", "",
		"pipeline run date (YYYY-MM-DD), defaults to today in the pipeline zone")

	root.AddCommand(
		newEnrichCmd(opts),
		newExtractCmd(opts),
		newVerifyCmd(opts),
		newRoundupCmd(opts),
		newAnswerCmd(opts),
		newRunCmd(opts),
		newDedupeCmd(opts),
		newPruneCmd(opts),
		newUsageCmd(opts),
		newIngestCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// app bundles the shared runtime every subcommand needs.
type app struct {
	cfg    *config.Config
	db     *database.Client
	store  *store.Store
	llm    *llm.Client
	logger *slog.Logger
}

// setup loads configuration, connects the store and builds the LLM client.
// The returned cleanup closes the database pool.
func setup(ctx context.Context, opts *rootOptions) (*app, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Initialize(ctx, opts.configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize configuration: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	provider, err := cfg.DefaultProvider()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve llm provider: %w", err)
	}

	a := &app{
		cfg:    cfg,
		db:     db,
		store:  store.New(db.DB()),
		llm:    llm.NewClient(provider, logger),
		logger: logger,
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
	return a, cleanup, nil
}

// startPool builds and starts the worker pool; the returned stop drains it.
func (a *app) startPool(ctx context.Context) (*worker.Pool, func()) {
	pool := worker.NewPool(a.cfg.Pool, a.logger)
	pool.Start(ctx)
	return pool, pool.Stop
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
