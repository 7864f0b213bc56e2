package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/batch"
	"github.com/sells-group/records-cli/internal/intake"
	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit records requests for every entry of an input file",
	Example: `  records-cli run --csv forms.csv --rank 1 --limit 10
  records-cli run --csv forms.csv --type NEXTREQUEST --rate-limit 60
  records-cli run --csv forms.csv --retry-failed`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := runOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		return runBatch(ctx, opts)
	},
}

type runOptions struct {
	InputPath   string
	Filter      intake.Filter
	NoResume    bool
	RetryFailed bool
	StatsOnly   bool
	ExportPath  string
	RateLimit   int
	BatchID     string
	MetricsFile string
}

func runOptionsFromFlags(cmd *cobra.Command) (runOptions, error) {
	f := cmd.Flags()
	var o runOptions
	o.InputPath, _ = f.GetString("csv")
	o.Filter.Rank, _ = f.GetInt("rank")
	o.Filter.CensusID, _ = f.GetString("census-id")
	o.Filter.Limit, _ = f.GetInt("limit")
	o.NoResume, _ = f.GetBool("no-resume")
	o.RetryFailed, _ = f.GetBool("retry-failed")
	o.StatsOnly, _ = f.GetBool("stats")
	o.ExportPath, _ = f.GetString("export")
	o.RateLimit, _ = f.GetInt("rate-limit")
	o.BatchID, _ = f.GetString("batch-id")
	o.MetricsFile, _ = f.GetString("metrics-file")

	if t, _ := f.GetString("type"); t != "" {
		ft, err := model.ParseFormType(t)
		if err != nil {
			return o, err
		}
		o.Filter.FormType = ft
	}
	if !o.StatsOnly && o.InputPath == "" {
		return o, eris.New("--csv is required")
	}
	return o, nil
}

func runBatch(ctx context.Context, o runOptions) error {
	if o.StatsOnly {
		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		stats, err := st.Statistics(ctx, "")
		if err != nil {
			return eris.Wrap(err, "run: statistics")
		}
		formatStats(os.Stdout, "All batches", stats)
		return nil
	}

	entries, err := intake.ReadEntries(ctx, o.InputPath)
	if err != nil {
		return err
	}
	entries = o.Filter.Apply(entries)
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "No entries match the given filters.")
		return nil
	}
	formatInputStats(os.Stdout, intake.Summarize(entries))

	env, err := initSubmit(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close() //nolint:errcheck

	rateLimit := cfg.Batch.RateLimitSecs
	if o.RateLimit > 0 {
		rateLimit = o.RateLimit
	}

	proc := batch.NewProcessor(env.Store, env.Handlers, env.Metrics, batch.Options{
		BatchID:    o.BatchID,
		RateLimit:  time.Duration(rateLimit) * time.Second,
		Resume:     cfg.Batch.Resume && !o.NoResume,
		MaxRetries: cfg.Batch.MaxRetries,
	})
	zap.L().Info("run: batch started",
		zap.String("batch_id", proc.BatchID()),
		zap.Int("entries", len(entries)),
		zap.Int("rate_limit_secs", rateLimit),
	)

	if o.RetryFailed {
		err = proc.RetryFailed(ctx, entries)
	} else {
		err = proc.Run(ctx, entries)
	}
	if err != nil {
		if eris.Is(err, context.Canceled) {
			zap.L().Warn("run: interrupted", zap.String("batch_id", proc.BatchID()))
		} else {
			return err
		}
	}

	sum, serr := proc.Summary(context.WithoutCancel(ctx))
	if serr != nil {
		return serr
	}
	formatSummary(os.Stdout, sum)

	if o.MetricsFile != "" {
		if err := env.Metrics.WriteTextfile(o.MetricsFile); err != nil {
			return err
		}
		zap.L().Info("run: metrics written", zap.String("path", o.MetricsFile))
	}

	if alerts := env.Checker.Check(context.WithoutCancel(ctx), proc.BatchID()); alerts > 0 {
		zap.L().Warn("run: monitoring alerts raised", zap.Int("alerts", alerts))
	}

	if o.ExportPath != "" {
		n, err := store.Export(context.WithoutCancel(ctx), env.Store, o.ExportPath, proc.BatchID())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Exported %d records to %s\n", n, o.ExportPath)
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.String("csv", "", "input file of form entries (.csv or .xlsx)")
	f.Int("rank", 0, "only process entries with this rank")
	f.String("type", "", "only process this form type, e.g. NEXTREQUEST")
	f.String("census-id", "", "only process this municipality")
	f.Int("limit", 0, "maximum number of entries to process")
	f.Bool("no-resume", false, "reprocess entries that already succeeded")
	f.Bool("retry-failed", false, "only retry failed entries under the retry limit")
	f.Bool("stats", false, "print stored statistics and exit")
	f.String("export", "", "export this batch's results to a .csv or .xlsx file")
	f.Int("rate-limit", 0, "seconds between submissions (default from config)")
	f.String("batch-id", "", "batch tag (default random)")
	f.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
	rootCmd.AddCommand(runCmd)
}
