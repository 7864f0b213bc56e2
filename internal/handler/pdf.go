package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/records-cli/internal/artifacts"
	"github.com/sells-group/records-cli/internal/fetcher"
	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/pdf"
)

var pdfMagic = []byte("%PDF")

// PDFConfig locates downloaded and filled forms.
type PDFConfig struct {
	DownloadDir string
	FilledDir   string
}

// PDFHandler downloads PDF request forms and fills them with requester data.
type PDFHandler struct {
	fetch     fetcher.Fetcher
	filler    pdf.Filler
	uploader  artifacts.Uploader
	requester model.Requester
	cfg       PDFConfig
	now       func() time.Time
}

// NewPDFHandler builds a PDF handler. uploader may be nil.
func NewPDFHandler(f fetcher.Fetcher, filler pdf.Filler, uploader artifacts.Uploader, requester model.Requester, cfg PDFConfig) *PDFHandler {
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "data/pdfs/downloaded"
	}
	if cfg.FilledDir == "" {
		cfg.FilledDir = "data/pdfs/filled"
	}
	return &PDFHandler{
		fetch:     f,
		filler:    filler,
		uploader:  uploader,
		requester: requester,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Name implements Handler.
func (h *PDFHandler) Name() string { return "pdf" }

// Submit implements Handler. The form is never sent; a filled copy is left
// for manual mailing.
func (h *PDFHandler) Submit(ctx context.Context, entry model.FormEntry, _ map[string]string) model.SubmissionResult {
	res := NewResult(entry, model.StatusInProgress, h.now())
	log := zap.L().With(zap.String("handler", "pdf"), zap.String("entry", entry.UniqueID()))

	downloaded := filepath.Join(h.cfg.DownloadDir,
		fmt.Sprintf("%s_%d_%s.pdf", entry.CensusID, entry.Rank, SafeName(entry.Municipality)))
	if err := h.download(ctx, entry.URL, downloaded); err != nil {
		log.Warn("handler: pdf download failed", zap.String("url", entry.URL), zap.Error(err))
		return fail(res, model.FailureNetworkError, "Failed to download PDF", h.now())
	}
	res.PDFDownloadedPath = downloaded

	filled := filepath.Join(h.cfg.FilledDir, fmt.Sprintf("%s_%d_filled.pdf", entry.CensusID, entry.Rank))
	if err := os.MkdirAll(h.cfg.FilledDir, 0o755); err != nil {
		return fail(res, model.FailureUnknown, err.Error(), h.now())
	}

	values := pdf.RequesterValues(h.requester, RequestText(entry.Municipality), h.now())
	n, err := pdf.FillForm(ctx, h.filler, downloaded, filled, values)

	res.Status = model.StatusPDFDownloaded
	res.CompletedAt = h.now()
	if err != nil {
		log.Info("handler: pdf not fillable", zap.Error(err))
		res.FailureReason = model.FailurePDFFillError
		res.ErrorMessage = err.Error()
		res.ConfirmationMessage = "PDF downloaded but could not auto-fill: " + err.Error()
		h.upload(ctx, downloaded, "downloaded", log)
		return res
	}

	res.PDFFilledPath = filled
	res.ConfirmationMessage = fmt.Sprintf("PDF downloaded and filled. Filled %d fields", n)
	h.upload(ctx, downloaded, "downloaded", log)
	h.upload(ctx, filled, "filled", log)
	log.Info("handler: pdf filled", zap.Int("fields", n), zap.String("path", filled))
	return res
}

// download fetches url into path and rejects bodies that are not PDFs.
func (h *PDFHandler) download(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "handler: create download dir")
	}
	if _, err := h.fetch.DownloadToFile(ctx, url, path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "handler: open download")
	}
	head := make([]byte, len(pdfMagic))
	_, err = io.ReadFull(f, head)
	_ = f.Close()
	if err != nil || !bytes.Equal(head, pdfMagic) {
		_ = os.Remove(path)
		return eris.Errorf("handler: %s is not a PDF", url)
	}
	return nil
}

func (h *PDFHandler) upload(ctx context.Context, path, kind string, log *zap.Logger) {
	if h.uploader == nil {
		return
	}
	loc, err := h.uploader.Upload(ctx, path, artifacts.Key(BatchIDFrom(ctx), kind, path))
	if err != nil {
		log.Warn("handler: artifact upload failed", zap.String("path", path), zap.Error(err))
		return
	}
	log.Debug("handler: artifact uploaded", zap.String("location", loc))
}

// SafeName turns a municipality name into a file name fragment: accents
// are stripped, spaces become underscores and other separators are dropped.
func SafeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	var b strings.Builder
	for _, r := range strings.TrimSpace(plain) {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		}
	}
	return b.String()
}
