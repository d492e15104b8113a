// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/geoeditors/internal/config"
	"github.com/naka-gawa/geoeditors/internal/logging"
	"github.com/naka-gawa/geoeditors/internal/storage"
)

var (
	cfgFile  string
	cfg      *config.Config
	logger   *logrus.Logger
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "geoeditors",
	Short: "Explore Wikipedia editor counts by country.",
	Long: `geoeditors downloads the Wikimedia geoeditors monthly dataset, keeps it in a
local store, and serves a choropleth map and trend charts of active editors per
country, project and activity level.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger, closeLog, err = logging.New(cfg.Log, verbose)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./geoeditors.yaml or ~/.geoeditors/geoeditors.yaml)")
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens the configured dataset store.
func openStore() (storage.Store, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage, logger)
}
