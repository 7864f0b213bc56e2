// Package intake reads the list of municipal request forms to process from a
// CSV or XLSX file.
package intake

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/classify"
	"github.com/sells-group/records-cli/internal/fetcher"
	"github.com/sells-group/records-cli/internal/model"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{"census_id", "municipality", "state", "rank", "url"}

// row is one decoded input line. Rank stays a string so bad values default
// instead of failing the whole file.
type row struct {
	CensusID     string `csv:"census_id"`
	Municipality string `csv:"municipality"`
	State        string `csv:"state"`
	Rank         string `csv:"rank"`
	URL          string `csv:"url"`
	Description  string `csv:"description,omitempty"`
}

// ReadEntries loads entries from path. Files ending in .xlsx are read from
// their first sheet; everything else is parsed as CSV.
func ReadEntries(ctx context.Context, path string) ([]model.FormEntry, error) {
	var src csvutil.Reader
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "intake: read %s", path)
		}
		src = &sliceReader{rows: rows}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		src = r
	}

	entries, err := decode(ctx, src)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: parse %s", path)
	}

	zap.L().Info("intake: read form entries",
		zap.String("path", path),
		zap.Int("count", len(entries)),
	)
	return entries, nil
}

func decode(ctx context.Context, src csvutil.Reader) ([]model.FormEntry, error) {
	header, err := src.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	header = normalizeHeader(header)

	var missing []string
	for _, col := range RequiredColumns {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	dec, err := csvutil.NewDecoder(&fixedWidth{r: src, n: len(header)}, header...)
	if err != nil {
		return nil, eris.Wrap(err, "create decoder")
	}

	var (
		entries []model.FormEntry
		seen    = make(map[string]int)
		line    = 1
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "context cancelled")
		}

		var r row
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}

		e, ok := toEntry(r)
		if !ok {
			continue
		}
		if first, dup := seen[e.UniqueID()]; dup {
			zap.L().Warn("intake: duplicate entry dropped",
				zap.String("unique_id", e.UniqueID()),
				zap.Int("line", line),
				zap.Int("first_line", first),
			)
			continue
		}
		seen[e.UniqueID()] = line
		entries = append(entries, e)
	}
	return entries, nil
}

// toEntry converts a decoded row. Rows without a URL are skipped.
func toEntry(r row) (model.FormEntry, bool) {
	url := strings.TrimSpace(r.URL)
	if url == "" {
		return model.FormEntry{}, false
	}

	rank, err := strconv.Atoi(strings.TrimSpace(r.Rank))
	if err != nil {
		rank = 1
	}

	return model.FormEntry{
		CensusID:     strings.TrimSpace(r.CensusID),
		Municipality: strings.TrimSpace(r.Municipality),
		State:        strings.TrimSpace(r.State),
		Rank:         rank,
		URL:          url,
		Description:  strings.TrimSpace(r.Description),
		FormType:     classify.URL(url),
	}, true
}

func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	for i, col := range h {
		col = strings.TrimPrefix(col, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return out
}

// fixedWidth pads or cuts every record to the header width so ragged rows
// decode with empty trailing columns.
type fixedWidth struct {
	r csvutil.Reader
	n int
}

func (f *fixedWidth) Read() ([]string, error) {
	rec, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	if len(rec) > f.n {
		return rec[:f.n], nil
	}
	for len(rec) < f.n {
		rec = append(rec, "")
	}
	return rec, nil
}

// sliceReader feeds pre-read spreadsheet rows to csvutil.
type sliceReader struct {
	rows [][]string
	pos  int
}

func (s *sliceReader) Read() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}
