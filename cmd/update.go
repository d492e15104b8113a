package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/geoeditors/internal/gateway"
	"github.com/naka-gawa/geoeditors/internal/storage"
	"github.com/naka-gawa/geoeditors/internal/usecase"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetches newly published months and replaces the local dataset",
	Long: `Downloads every published month since source.start_month that is not stored yet,
validates it, and atomically replaces the local dataset. On any fetch or parse
failure the previous dataset is kept and the command exits non-zero.
Meant to be run monthly from cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		months, _ := cmd.Flags().GetStringSlice("month")
		force, _ := cmd.Flags().GetBool("force")

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		var manifest usecase.ManifestRecorder
		m, err := storage.OpenManifest(cfg.DataPath(storage.ManifestFileName))
		if err != nil {
			logger.WithError(err).Warn("Failed to open manifest; this run will not be recorded")
		} else {
			defer m.Close()
			manifest = m
		}

		var boundaries gateway.BoundariesFetcher
		gh, err := gateway.NewGitHubGateway(cfg.Boundaries, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create GitHub gateway; boundaries will not be downloaded")
		} else {
			boundaries = gh
		}

		updater := usecase.NewUpdater(
			gateway.NewWikimediaGateway(cfg.Source, logger),
			boundaries,
			store,
			manifest,
			usecase.UpdaterConfig{
				StartMonth:     cfg.Source.StartMonth,
				Concurrency:    cfg.Update.Concurrency,
				BoundariesPath: cfg.DataPath(storage.BoundariesFileName),
			},
			logger,
		)

		report, err := updater.Update(ctx, usecase.UpdateOptions{Months: months, Force: force})
		if err != nil {
			return err
		}

		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringSlice("month", nil, "Month to (re)fetch as YYYY-MM; repeatable")
	updateCmd.Flags().Bool("force", false, "Refetch every month since source.start_month")
}
