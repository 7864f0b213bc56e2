//go:build !integration

package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/batch"
	"github.com/sells-group/records-cli/internal/config"
	"github.com/sells-group/records-cli/internal/intake"
	"github.com/sells-group/records-cli/internal/model"
)

func TestFormatResults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatResults(&buf, []model.SubmissionResult{
		{FormEntryID: "174540_1", Municipality: "Los Gatos", State: "CA", FormType: "NEXTREQUEST",
			Status: model.StatusSuccess, FailureReason: model.FailureNone, Confidence: model.ConfidenceHigh,
			ConfirmationNumber: "REQ-12345", BatchID: "a1b2c3d4", UpdatedAt: now},
		{FormEntryID: "062807_1", Municipality: "Anytown", State: "NJ", FormType: "GOVQA",
			Status: model.StatusFailed, FailureReason: model.FailureTimeout},
	})

	out := buf.String()
	assert.Contains(t, out, "ENTRY")
	assert.Contains(t, out, "Los Gatos, CA")
	assert.Contains(t, out, "REQ-12345")
	assert.Contains(t, out, "2026-03-01 10:30")
	assert.Contains(t, out, "failed (timeout)")
	assert.NotContains(t, out, "success (none)")
}

func TestFormatStats(t *testing.T) {
	stats := model.NewStatistics()
	stats.Total = 4
	stats.ByStatus[model.StatusSuccess] = 3
	stats.ByStatus[model.StatusFailed] = 1
	stats.ByFailureReason[model.FailureCaptcha] = 1

	var buf bytes.Buffer
	formatStats(&buf, "Batch b1", stats)
	out := buf.String()
	assert.Contains(t, out, "Batch b1: 4 records")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "captcha")

	buf.Reset()
	formatStats(&buf, "Empty", model.NewStatistics())
	assert.Equal(t, "Empty: 0 records\n", buf.String())
}

func TestFormatSummary(t *testing.T) {
	b := model.NewStatistics()
	b.Total = 2
	b.ByStatus[model.StatusSuccess] = 1
	b.ByStatus[model.StatusNeedsVerification] = 1

	var buf bytes.Buffer
	formatSummary(&buf, &batch.Summary{
		BatchID: "a1b2c3d4",
		Run:     batch.Counts{Processed: 2, Succeeded: 1, NeedsReview: 1},
		Batch:   b,
	})
	out := buf.String()
	assert.Contains(t, out, "Batch a1b2c3d4 complete")
	assert.Contains(t, out, "processed 2, succeeded 1, failed 0, needs review 1, skipped 0")
	assert.Contains(t, out, "success rate 50.0%")
}

func TestFormatInputStats(t *testing.T) {
	var buf bytes.Buffer
	formatInputStats(&buf, intake.InputStats{
		Total:          3,
		Municipalities: 2,
		ByFormType:     map[model.FormType]int{model.FormTypePDF: 2, model.FormTypeGovQA: 1},
		ByState:        map[string]int{"CA": 3},
	})
	out := buf.String()
	assert.Contains(t, out, "3 entries, 2 municipalities")
	assert.Contains(t, out, "GOVQA")
	assert.Contains(t, out, "CA")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestCloseAll(t *testing.T) {
	assert.NoError(t, closeAll(nil))

	err := closeAll(errors.New("primary"),
		func() error { return nil },
		func() error { return errors.New("close failed") },
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "close failed")
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(t.Context(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
}

func TestBuildHandlers(t *testing.T) {
	c := &config.Config{
		Agent: config.AgentConfig{APIKey: "k", BaseURL: "http://localhost:1", MaxSteps: 30,
			PollIntervalSecs: 5, TimeoutSecs: 900, RetryAttempts: 3, BreakerThreshold: 5, BreakerCooldown: 60},
		Requester: model.Requester{Name: "John Doe", Email: "test@example.com"},
		PDF: config.PDFConfig{
			DownloadDir: filepath.Join(t.TempDir(), "dl"),
			FilledDir:   filepath.Join(t.TempDir(), "filled"),
			PdftkPath:   "pdftk",
		},
	}

	reg, err := buildHandlers(t.Context(), c)
	require.NoError(t, err)
	assert.Equal(t, "pdf", reg.For(model.FormTypePDF).Name())
	assert.Equal(t, "agent:NEXTREQUEST", reg.For(model.FormTypeNextRequest).Name())
	assert.Equal(t, "agent:OFFICE365", reg.For(model.FormTypeOffice365).Name())
	assert.Len(t, reg.Types(), len(model.FormTypes))

	c.Evidence.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = buildHandlers(t.Context(), c)
	require.Error(t, err)
}
