package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	app "github.com/okian/pitchboard/internal/app"
	"github.com/okian/pitchboard/internal/config"
	"github.com/okian/pitchboard/pkg/logger"
)

const (
	badgerGCInterval = 10 * time.Minute
	badgerGCRatio    = 0.5
)

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "pitchboard",
		Short:         "Results and leaderboards for pitch competitions",
		Long:          "pitchboard serves the event API and computes investment and rating leaderboards when an event ends.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd.Context(), envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (missing file is ignored)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newResultsCmd())
	root.AddCommand(newRecomputeCmd())
	root.AddCommand(newSeedCmd())
	return root
}

// setup loads the dotenv file, configuration and logger.
func setup(ctx context.Context, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	loaded, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(loaded.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(loaded.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", loaded.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	cfg = loaded
	return nil
}

// openStore opens the configured document store.
func openStore(c *config.Config) (docstore.Store, error) {
	switch c.StoreBackend {
	case config.BackendBadger:
		return docstore.OpenBadger(c.DataDir,
			docstore.WithLogger(logger.Named("badger")),
			docstore.WithGC(badgerGCInterval, badgerGCRatio),
		)
	default:
		return docstore.NewMemStore(), nil
	}
}

// newService builds the results service from configuration.
func newService(c *config.Config, store docstore.Store) *app.Service {
	return app.New(store,
		app.WithLogger(logger.Get()),
		app.WithWorkerCount(c.WorkerCount),
		app.WithQueueSize(c.QueueSize),
		app.WithDedupeSize(c.DedupeSize),
		app.WithRetry(c.MaxAttempts, c.RetryBackoff()),
		app.WithTimeouts(c.FetchTimeout(), c.PipelineTimeout()),
		app.WithSweepInterval(c.SweepInterval()),
		app.WithHostNotifications(c.NotifyHost),
	)
}
