package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/config"
	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored submission results",
	Long:  "Commands for listing, summarizing, exporting, clearing and publishing stored submission results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("results")
	},
}

// -- results list --

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batchID, _ := cmd.Flags().GetString("batch")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		results, err := st.All(ctx, store.ResultFilter{
			BatchID: batchID,
			Status:  model.SubmissionStatus(status),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "results list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No results found.")
			return nil
		}
		formatResults(os.Stdout, results)
		return nil
	},
}

// -- results stats --

var resultsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts by status and failure reason",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batchID, _ := cmd.Flags().GetString("batch")
		stats, err := st.Statistics(ctx, batchID)
		if err != nil {
			return eris.Wrap(err, "results stats")
		}

		title := "All batches"
		if batchID != "" {
			title = "Batch " + batchID
		}
		formatStats(os.Stdout, title, stats)
		return nil
	},
}

// -- results export --

var resultsExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export results to a .csv or .xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batchID, _ := cmd.Flags().GetString("batch")
		n, err := store.Export(ctx, st, args[0], batchID)
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Fprintf(os.Stdout, "Exported %d records to %s\n", n, args[0])
		}
		return nil
	},
}

// -- results clear --

var resultsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every result tagged with a batch id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		batchID, _ := cmd.Flags().GetString("batch")
		if batchID == "" {
			return eris.New("--batch is required")
		}

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ClearBatch(ctx, batchID)
		if err != nil {
			return eris.Wrap(err, "results clear")
		}
		zap.L().Info("cleared batch", zap.String("batch_id", batchID), zap.Int("records", n))
		fmt.Fprintf(os.Stdout, "Deleted %d records from batch %s\n", n, batchID)
		return nil
	},
}

// -- results sync --

var resultsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy local results into a Postgres database",
	Long:  "Upserts results from the configured store into the Postgres database given by --database-url, keeping batch tags.",
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		ctx := cmd.Context()

		dstURL, _ := cmd.Flags().GetString("database-url")
		if dstURL == "" {
			return eris.New("--database-url is required")
		}
		batchID, _ := cmd.Flags().GetString("batch")

		src, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		dst, err := openStore(ctx, config.StoreConfig{Driver: "postgres", DatabaseURL: dstURL})
		if err != nil {
			return closeAll(err, src.Close)
		}
		defer func() { err = closeAll(err, src.Close, dst.Close) }()

		n, err := store.Copy(ctx, src, dst, batchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Synced %d records\n", n)
		return nil
	},
}

func init() {
	resultsListCmd.Flags().String("batch", "", "only this batch")
	resultsListCmd.Flags().String("status", "", "only this status, e.g. failed")
	resultsListCmd.Flags().Int("limit", 0, "maximum rows")
	resultsListCmd.Flags().Bool("json", false, "print JSON")

	resultsStatsCmd.Flags().String("batch", "", "only this batch")
	resultsExportCmd.Flags().String("batch", "", "only this batch")
	resultsClearCmd.Flags().String("batch", "", "batch to delete (required)")

	resultsSyncCmd.Flags().String("batch", "", "only this batch")
	resultsSyncCmd.Flags().String("database-url", "", "destination Postgres connection string")

	resultsCmd.AddCommand(resultsListCmd, resultsStatsCmd, resultsExportCmd, resultsClearCmd, resultsSyncCmd)
	rootCmd.AddCommand(resultsCmd)
}
