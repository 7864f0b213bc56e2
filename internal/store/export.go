package store

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/model"
)

// Export writes every record matching batchID (all records when empty) to
// path, one row per record in creation order with the column names as
// header. Paths ending in .xlsx produce a spreadsheet; anything else is CSV.
// When nothing matches, no file is written and 0 is returned.
func Export(ctx context.Context, s Store, path, batchID string) (int, error) {
	results, err := s.All(ctx, ResultFilter{BatchID: batchID})
	if err != nil {
		return 0, eris.Wrap(err, "export: load results")
	}
	if len(results) == 0 {
		zap.L().Warn("export: no results to export",
			zap.String("path", path),
			zap.String("batch_id", batchID),
		)
		return 0, nil
	}

	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, Columns())
	for _, r := range results {
		rows = append(rows, exportRow(r))
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = writeXLSX(path, rows)
	} else {
		err = writeCSV(path, rows)
	}
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// exportRow renders r in submissionColumns order.
func exportRow(r model.SubmissionResult) []string {
	return []string{
		r.FormEntryID,
		r.BatchID,
		r.CensusID,
		r.Municipality,
		r.State,
		r.URL,
		r.FormType,
		string(r.Status),
		string(r.FailureReason),
		string(r.Confidence),
		r.ConfirmationNumber,
		r.ConfirmationMessage,
		r.PDFDownloadedPath,
		r.PDFFilledPath,
		r.ErrorMessage,
		r.AgentOutput,
		strconv.Itoa(r.RetryCount),
		formatTime(r.StartedAt),
		formatTime(r.CompletedAt),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	return encodeCSV(f, rows)
}

// encodeCSV writes rows to wc and closes it. A failed close is an export
// failure.
func encodeCSV(wc io.WriteCloser, rows [][]string) error {
	if err := csv.NewWriter(wc).WriteAll(rows); err != nil {
		_ = wc.Close()
		return eris.Wrap(err, "export: write csv")
	}
	return eris.Wrap(wc.Close(), "export: close csv")
}

func writeXLSX(path string, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("submissions")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	for _, data := range rows {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	return eris.Wrap(f.Save(path), "export: save xlsx")
}
