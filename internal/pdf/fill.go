// Package pdf discovers and fills AcroForm fields in downloaded records
// request forms.
package pdf

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/records-cli/internal/model"
)

var (
	// ErrNoFields means the PDF has no fillable form fields.
	ErrNoFields = eris.New("pdf: no fillable form fields")
	// ErrNoMatch means none of the known values matched a field name.
	ErrNoMatch = eris.New("pdf: could not map values to form fields")
)

// Filler reads and writes PDF form fields.
type Filler interface {
	Fields(ctx context.Context, path string) ([]string, error)
	Fill(ctx context.Context, in, out string, values map[string]string) error
}

// Value is a keyword and the text to write into any field whose name
// contains it.
type Value struct {
	Key  string
	Text string
}

// RequesterValues returns the keyword table used to fill request forms.
// Order matters: the first keyword found in a field name wins.
func RequesterValues(r model.Requester, requestText string, now time.Time) []Value {
	today := now.Format("01/02/2006")
	return []Value{
		{"name", r.Name},
		{"requestor", r.Name},
		{"requester", r.Name},
		{"applicant", r.Name},
		{"email", r.Email},
		{"e-mail", r.Email},
		{"address", r.Address},
		{"street", r.Address},
		{"mailing", r.Address},
		{"phone", r.Phone},
		{"telephone", r.Phone},
		{"description", requestText},
		{"request", requestText},
		{"records", requestText},
		{"date", today},
		{"today", today},
	}
}

// MapFields assigns a value to every field whose lower-cased name contains
// one of the keywords. Empty values are never assigned.
func MapFields(values []Value, fields []string) map[string]string {
	mapped := make(map[string]string)
	for _, field := range fields {
		lower := strings.ToLower(field)
		for _, v := range values {
			if v.Text == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(v.Key)) {
				mapped[field] = v.Text
				break
			}
		}
	}
	return mapped
}

// FillForm fills in with values and writes out. It returns the number of
// fields written, ErrNoFields for a flat PDF, or ErrNoMatch when nothing maps.
func FillForm(ctx context.Context, f Filler, in, out string, values []Value) (int, error) {
	fields, err := f.Fields(ctx, in)
	if err != nil {
		return 0, eris.Wrap(err, "pdf: read fields")
	}
	if len(fields) == 0 {
		return 0, ErrNoFields
	}

	mapped := MapFields(values, fields)
	if len(mapped) == 0 {
		return 0, eris.Wrapf(ErrNoMatch, "fields found: %s", strings.Join(head(fields, 5), ", "))
	}

	if err := f.Fill(ctx, in, out, mapped); err != nil {
		return 0, eris.Wrap(err, "pdf: fill form")
	}
	return len(mapped), nil
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
