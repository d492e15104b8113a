package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/geoeditors/internal/usecase"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Aggregates the local dataset and outputs as JSON",
	Long: `Filters the local dataset by activity level, project, countries and month range,
and prints the per-country or per-month aggregation in JSON format. Omitted
filters match everything; values that match nothing are ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		level, _ := cmd.Flags().GetString("activity-level")
		project, _ := cmd.Flags().GetString("project")
		countries, _ := cmd.Flags().GetStringSlice("countries")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		groupBy, _ := cmd.Flags().GetString("group-by")
		withRecords, _ := cmd.Flags().GetBool("records")

		store, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		aggregator := usecase.NewAggregator(store, logger)
		result, err := aggregator.Query(ctx, usecase.Filter{
			ActivityLevel: level,
			Project:       project,
			Countries:     countries,
			From:          from,
			To:            to,
		})
		if err != nil {
			return fmt.Errorf("failed to query dataset: %w", err)
		}

		// Marshal the results into a pretty-printed JSON string.
		jsonData, err := json.MarshalIndent(result.Report(groupBy, withRecords), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringP("activity-level", "a", "", `Activity level: "1 to 4", "5 to 99" or "100 or more"`)
	queryCmd.Flags().StringP("project", "p", "", "Project, e.g. en.wikipedia")
	queryCmd.Flags().StringSliceP("countries", "c", nil, "ISO alpha-2 country codes (default: all)")
	queryCmd.Flags().String("from", "", "First month (YYYY-MM)")
	queryCmd.Flags().String("to", "", "Last month (YYYY-MM)")
	queryCmd.Flags().String("group-by", usecase.GroupByCountry, `Aggregate by "country" or "month"`)
	queryCmd.Flags().Bool("records", false, "Include the matching records")
}
