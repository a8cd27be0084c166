// quadsimctl runs simulated quadruped sessions and manages their
// recorded traces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quadsim/internal/config"
	"quadsim/internal/observability"
	"quadsim/pkg/quadsim"
)

// roundElapsed trims sub-centisecond noise from durations in command
// output.
const roundElapsed = 10 * time.Millisecond

var cliCfg config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

// run builds the root command and executes it against args.
func run(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile   string
		storeKind string
		dbPath    string
		logLevel  string
	)

	root := &cobra.Command{
		Use:           "quadsimctl",
		Short:         "Drive a simulated quadruped and manage recorded runs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Backend = storeKind
			}
			if cmd.Flags().Changed("db-path") {
				cfg.Store.Path = dbPath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logger.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cliCfg = cfg
			observability.InitializeLogger(cfg.Logger)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default searches . and ~/.quadsim)")
	root.PersistentFlags().StringVar(&storeKind, "store", "", "store backend: memory|sqlite")
	root.PersistentFlags().StringVar(&dbPath, "db-path", "", "sqlite database path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newDeleteCmd(),
		newResetCmd(),
		newReplayCmd(),
		newExportCmd(),
		newSummaryCmd(),
		newBenchCmd(),
		newModelCmd(),
		newConfigCmd(),
	)
	return root
}

// newClient builds the API client from the effective configuration.
func newClient() (*quadsim.Client, error) {
	dbPath, err := cliCfg.Store.ExpandedPath()
	if err != nil {
		return nil, fmt.Errorf("expand db path: %w", err)
	}
	exportsDir, err := cliCfg.Artifacts.ExpandedExportsDir()
	if err != nil {
		return nil, fmt.Errorf("expand exports dir: %w", err)
	}
	return quadsim.New(quadsim.Options{
		StoreKind:  cliCfg.Store.Backend,
		DBPath:     dbPath,
		ExportsDir: exportsDir,
		Logger:     observability.GetLogger(),
	})
}

func closeClient(client *quadsim.Client) {
	if err := client.Close(); err != nil {
		observability.GetLogger().Warn("close client", zap.Error(err))
	}
}
