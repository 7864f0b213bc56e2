package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/model"
)

type mockFiller struct {
	fields   []string
	fieldErr error
	filled   map[string]string
	fillErr  error
}

func (m *mockFiller) Fields(context.Context, string) ([]string, error) {
	return m.fields, m.fieldErr
}

func (m *mockFiller) Fill(_ context.Context, _, _ string, values map[string]string) error {
	m.filled = values
	return m.fillErr
}

var testRequester = model.Requester{
	Name:    "Jane Doe",
	Email:   "jane@example.com",
	Address: "1 Main St",
}

func TestMapFields(t *testing.T) {
	values := RequesterValues(testRequester, "zoning code please", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))

	got := MapFields(values, []string{
		"Requester Name",
		"EMAIL_ADDRESS",
		"Mailing Street",
		"Phone Number",
		"Records Requested",
		"Date",
		"Signature",
	})

	assert.Equal(t, map[string]string{
		"Requester Name":    "Jane Doe",
		"EMAIL_ADDRESS":     "jane@example.com",
		"Mailing Street":    "1 Main St",
		"Records Requested": "zoning code please",
		"Date":              "03/04/2026",
	}, got, "empty phone must not be mapped")
}

func TestMapFields_FirstKeywordWins(t *testing.T) {
	// "email address" contains both "email" and "address"; email comes first.
	got := MapFields(RequesterValues(testRequester, "x", time.Now()), []string{"Email Address"})
	assert.Equal(t, "jane@example.com", got["Email Address"])
}

func TestFillForm(t *testing.T) {
	m := &mockFiller{fields: []string{"Name", "Email"}}
	n, err := FillForm(context.Background(), m, "in.pdf", "out.pdf", RequesterValues(testRequester, "x", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "Jane Doe", m.filled["Name"])
}

func TestFillForm_Errors(t *testing.T) {
	values := RequesterValues(testRequester, "x", time.Now())

	_, err := FillForm(context.Background(), &mockFiller{}, "in", "out", values)
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = FillForm(context.Background(), &mockFiller{fields: []string{"Signature", "Check1"}}, "in", "out", values)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Contains(t, err.Error(), "Signature")

	_, err = FillForm(context.Background(), &mockFiller{fieldErr: errors.New("not a pdf")}, "in", "out", values)
	assert.Error(t, err)

	_, err = FillForm(context.Background(), &mockFiller{fields: []string{"Name"}, fillErr: errors.New("locked")}, "in", "out", values)
	assert.Error(t, err)
}

func TestParseFieldDump(t *testing.T) {
	dump := "---\nFieldType: Text\nFieldName: Applicant Name\nFieldFlags: 0\n---\nFieldType: Button\nFieldName: Check1\n"
	assert.Equal(t, []string{"Applicant Name", "Check1"}, parseFieldDump([]byte(dump)))
	assert.Empty(t, parseFieldDump([]byte("")))
}

func TestPdftkFiller_Commands(t *testing.T) {
	var calls [][]string
	var xfdfBody string
	p := NewPdftkFiller("/usr/bin/pdftk")
	p.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		if len(args) > 1 && args[1] == "fill_form" {
			b, err := os.ReadFile(args[2])
			require.NoError(t, err)
			xfdfBody = string(b)
		}
		return []byte("FieldName: Name\n"), nil
	}

	fields, err := p.Fields(context.Background(), "in.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, fields)

	out := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, p.Fill(context.Background(), "in.pdf", out, map[string]string{"Name": "Jane & Co"}))

	require.Len(t, calls, 2)
	assert.Equal(t, []string{"/usr/bin/pdftk", "in.pdf", "dump_data_fields_utf8"}, calls[0])
	assert.Equal(t, "fill_form", calls[1][2])
	assert.Equal(t, out, calls[1][5])
	assert.True(t, strings.HasPrefix(xfdfBody, "<?xml"))
	assert.Contains(t, xfdfBody, `<field name="Name"><value>Jane &amp; Co</value></field>`)
}

func TestPdftkFiller_RunError(t *testing.T) {
	p := NewPdftkFiller("")
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	_, err := p.Fields(context.Background(), "in.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dump fields")
}
