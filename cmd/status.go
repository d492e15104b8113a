package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/geoeditors/internal/storage"
)

type statusReport struct {
	Store      string                  `json:"store"`
	Records    int                     `json:"records"`
	Months     []string                `json:"months"`
	Countries  int                     `json:"countries"`
	Boundaries bool                    `json:"boundaries"`
	Manifest   []storage.ManifestEntry `json:"manifest"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows what the local dataset holds and when each month was fetched",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		ds, err := store.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load dataset: %w", err)
		}
		report := statusReport{
			Store:     cfg.Storage.Type,
			Records:   ds.Len(),
			Months:    ds.Months(),
			Countries: len(ds.Countries()),
			Manifest:  []storage.ManifestEntry{},
		}
		if _, err := os.Stat(cfg.DataPath(storage.BoundariesFileName)); err == nil {
			report.Boundaries = true
		}

		m, err := storage.OpenManifest(cfg.DataPath(storage.ManifestFileName))
		if err != nil {
			logger.WithError(err).Warn("Failed to open manifest")
		} else {
			defer m.Close()
			if report.Manifest, err = m.List(); err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}
		}

		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
