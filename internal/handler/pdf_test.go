package handler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/model"
)

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeFetcher) DownloadToFile(_ context.Context, _ string, path string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.body)), os.WriteFile(path, []byte(f.body), 0o644)
}

type fakeFiller struct {
	fields []string
	filled map[string]string
}

func (f *fakeFiller) Fields(context.Context, string) ([]string, error) { return f.fields, nil }

func (f *fakeFiller) Fill(_ context.Context, _, out string, values map[string]string) error {
	f.filled = values
	return os.WriteFile(out, []byte("%PDF-1.4 filled"), 0o644)
}

type fakeUploader struct{ keys []string }

func (u *fakeUploader) Upload(_ context.Context, _, key string) (string, error) {
	u.keys = append(u.keys, key)
	return "s3://records/" + key, nil
}

func pdfEntry() model.FormEntry {
	return model.FormEntry{
		CensusID:     "062807",
		Municipality: "San José",
		State:        "CA",
		Rank:         2,
		URL:          "https://example.gov/records-request.pdf",
		FormType:     model.FormTypePDF,
	}
}

func newTestPDFHandler(t *testing.T, f *fakeFetcher, filler *fakeFiller, up *fakeUploader) *PDFHandler {
	t.Helper()
	dir := t.TempDir()
	req := model.Requester{Name: "John Doe", Email: "test@example.com", Address: "123 Main St"}
	cfg := PDFConfig{
		DownloadDir: filepath.Join(dir, "downloaded"),
		FilledDir:   filepath.Join(dir, "filled"),
	}
	if up == nil {
		return NewPDFHandler(f, filler, nil, req, cfg)
	}
	return NewPDFHandler(f, filler, up, req, cfg)
}

func TestPDFHandler_Filled(t *testing.T) {
	filler := &fakeFiller{fields: []string{"Requester Name", "Email Address", "Signature Date"}}
	up := &fakeUploader{}
	h := newTestPDFHandler(t, &fakeFetcher{body: "%PDF-1.7 body"}, filler, up)

	ctx := WithBatchID(context.Background(), "a1b2c3d4")
	res := h.Submit(ctx, pdfEntry(), nil)

	assert.Equal(t, model.StatusPDFDownloaded, res.Status)
	assert.Equal(t, model.FailureNone, res.FailureReason)
	assert.Equal(t, "PDF downloaded and filled. Filled 3 fields", res.ConfirmationMessage)
	assert.Equal(t, "062807_2_San_Jose.pdf", filepath.Base(res.PDFDownloadedPath))
	assert.Equal(t, "062807_2_filled.pdf", filepath.Base(res.PDFFilledPath))
	assert.FileExists(t, res.PDFFilledPath)
	assert.Equal(t, "John Doe", filler.filled["Requester Name"])
	assert.Equal(t, []string{
		"a1b2c3d4/downloaded/062807_2_San_Jose.pdf",
		"a1b2c3d4/filled/062807_2_filled.pdf",
	}, up.keys)
}

func TestPDFHandler_NotAPDF(t *testing.T) {
	h := newTestPDFHandler(t, &fakeFetcher{body: "<html>login</html>"}, &fakeFiller{}, nil)

	res := h.Submit(context.Background(), pdfEntry(), nil)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.FailureNetworkError, res.FailureReason)
	assert.Equal(t, "Failed to download PDF", res.ErrorMessage)
	assert.Empty(t, res.PDFDownloadedPath)
}

func TestPDFHandler_DownloadError(t *testing.T) {
	h := newTestPDFHandler(t, &fakeFetcher{err: errors.New("connection refused")}, &fakeFiller{}, nil)

	res := h.Submit(context.Background(), pdfEntry(), nil)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.FailureNetworkError, res.FailureReason)
}

func TestPDFHandler_NoFields(t *testing.T) {
	h := newTestPDFHandler(t, &fakeFetcher{body: "%PDF-1.4 flat"}, &fakeFiller{}, nil)

	res := h.Submit(context.Background(), pdfEntry(), nil)
	require.Equal(t, model.StatusPDFDownloaded, res.Status)
	assert.Equal(t, model.FailurePDFFillError, res.FailureReason)
	assert.Contains(t, res.ConfirmationMessage, "PDF downloaded but could not auto-fill")
	assert.NotEmpty(t, res.PDFDownloadedPath)
	assert.Empty(t, res.PDFFilledPath)
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Los Gatos", "Los_Gatos"},
		{"San José", "San_Jose"},
		{"Coeur d'Alene", "Coeur_dAlene"},
		{"Winston-Salem", "Winston-Salem"},
		{"  St. Paul ", "St._Paul"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeName(tt.in), tt.in)
	}
}
