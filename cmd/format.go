package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/sells-group/records-cli/internal/batch"
	"github.com/sells-group/records-cli/internal/intake"
	"github.com/sells-group/records-cli/internal/model"
)

const timeLayout = "2006-01-02 15:04"

func formatResults(w io.Writer, results []model.SubmissionResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tMUNICIPALITY\tTYPE\tSTATUS\tCONFIDENCE\tCONFIRMATION\tBATCH\tUPDATED")
	for _, r := range results {
		status := string(r.Status)
		if r.FailureReason != "" && r.FailureReason != model.FailureNone {
			status += " (" + string(r.FailureReason) + ")"
		}
		updated := ""
		if !r.UpdatedAt.IsZero() {
			updated = r.UpdatedAt.Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s, %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.FormEntryID,
			truncate(r.Municipality, 28), r.State,
			r.FormType,
			status,
			r.Confidence,
			r.ConfirmationNumber,
			r.BatchID,
			updated,
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatStats(w io.Writer, title string, stats *model.Statistics) {
	fmt.Fprintf(w, "%s: %d records\n", title, stats.Total)
	if stats.Total == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STATUS\tCOUNT\tSHARE")
	for _, st := range slices.Sorted(maps.Keys(stats.ByStatus)) {
		n := stats.ByStatus[st]
		fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\n", st, n, pct(n, stats.Total))
	}
	tw.Flush() //nolint:errcheck

	if len(stats.ByFailureReason) == 0 {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  FAILURE REASON\tCOUNT")
	for _, fr := range slices.Sorted(maps.Keys(stats.ByFailureReason)) {
		fmt.Fprintf(tw, "  %s\t%d\n", fr, stats.ByFailureReason[fr])
	}
	tw.Flush() //nolint:errcheck
}

func formatSummary(w io.Writer, sum *batch.Summary) {
	fmt.Fprintf(w, "\nBatch %s complete\n", sum.BatchID)
	fmt.Fprintf(w, "  processed %d, succeeded %d, failed %d, needs review %d, skipped %d\n",
		sum.Run.Processed, sum.Run.Succeeded, sum.Run.Failed, sum.Run.NeedsReview, sum.Run.Skipped)
	fmt.Fprintf(w, "  success rate %.1f%%\n\n", sum.SuccessRate())
	if sum.Batch != nil {
		formatStats(w, "This batch", sum.Batch)
	}
	if sum.Overall != nil {
		fmt.Fprintln(w)
		formatStats(w, "All batches", sum.Overall)
	}
}

func formatInputStats(w io.Writer, stats intake.InputStats) {
	fmt.Fprintf(w, "%d entries, %d municipalities\n", stats.Total, stats.Municipalities)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  FORM TYPE\tCOUNT")
	for _, ft := range slices.Sorted(maps.Keys(stats.ByFormType)) {
		fmt.Fprintf(tw, "  %s\t%d\n", ft, stats.ByFormType[ft])
	}
	tw.Flush() //nolint:errcheck

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STATE\tCOUNT")
	for _, st := range slices.Sorted(maps.Keys(stats.ByState)) {
		fmt.Fprintf(tw, "  %s\t%d\n", st, stats.ByState[st])
	}
	tw.Flush() //nolint:errcheck
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
