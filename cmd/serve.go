package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/geoeditors/internal/storage"
	"github.com/naka-gawa/geoeditors/internal/usecase"
	"github.com/naka-gawa/geoeditors/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the map and trends views",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		server, err := web.NewServer(
			usecase.NewAggregator(store, logger),
			cfg.DataPath(storage.BoundariesFileName),
			cfg.Web,
			logger,
		)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return server.Run(ctx, cfg.Addr())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 5001, "Port to listen on (overrides server.port)")
}
