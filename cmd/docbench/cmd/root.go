package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AvishaiDotan/mongodb-functions/internal/app"
	"github.com/AvishaiDotan/mongodb-functions/internal/config"
	"github.com/AvishaiDotan/mongodb-functions/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	storeType  string
	storePath  string
	database   string
	logLevel   string
	logFormat  string
}

// env is built once per invocation by the root PersistentPreRunE.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	flags := &globalFlags{}
	e := &env{}

	cmd := &cobra.Command{
		Use:           "docbench",
		Short:         "docbench fills a document store with generated data and benchmarks queries against it.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return e.load(flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&flags.storeType, "store", "", "Store backend: mongo, sqlite, memory")
	pf.StringVar(&flags.storePath, "store-path", "", "Database file for the sqlite store")
	pf.StringVar(&flags.database, "database", "", "Database name")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: console, json")

	cmd.AddCommand(
		fillCmd(e),
		benchCmd(e),
		queryCmd(e),
		reportsCmd(e),
		versionCmd(),
	)

	return cmd
}

// apply writes the flags that were set over cfg.
func (f *globalFlags) apply(cfg *config.Config) {
	if f.storeType != "" {
		cfg.Store.Type = config.StoreType(f.storeType)
	}
	if f.storePath != "" {
		cfg.Store.Path = f.storePath
	}
	if f.database != "" {
		cfg.Mongo.Database = f.database
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
}

// load builds configuration from file, .env, environment and flags, in that
// order of increasing precedence.
func (e *env) load(flags *globalFlags) error {
	cfg, err := config.Load(flags.configFile, flags.apply)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, false)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logger
	return nil
}

// app builds the application under a context cancelled by SIGINT or SIGTERM.
func (e *env) app(cmd *cobra.Command) (*app.App, context.Context, context.CancelFunc, error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	a, err := app.New(ctx, e.cfg, e.logger, app.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return a, ctx, cancel, nil
}
