package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/config"
	"github.com/sells-group/records-cli/internal/model"
)

type staticStats struct {
	stats *model.Statistics
	err   error
}

func (s staticStats) Statistics(context.Context, string) (*model.Statistics, error) {
	return s.stats, s.err
}

func sampleStats() *model.Statistics {
	st := model.NewStatistics()
	st.Total = 10
	st.ByStatus[model.StatusSuccess] = 3
	st.ByStatus[model.StatusPDFDownloaded] = 1
	st.ByStatus[model.StatusFailed] = 4
	st.ByStatus[model.StatusCaptchaBlocked] = 1
	st.ByStatus[model.StatusNeedsVerification] = 1
	return st
}

func TestSnapshotOf(t *testing.T) {
	snap := SnapshotOf("b1", sampleStats())
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, 4, snap.Succeeded)
	assert.Equal(t, 4, snap.Failed)
	assert.Equal(t, 1, snap.Manual)
	assert.Equal(t, 1, snap.NeedsVerification)
	assert.InDelta(t, 0.4, snap.FailRate, 1e-9)
	assert.InDelta(t, 0.1, snap.ManualRate, 1e-9)

	empty := SnapshotOf("", model.NewStatistics())
	assert.Zero(t, empty.FailRate)
}

func TestCollector(t *testing.T) {
	snap, err := NewCollector(staticStats{stats: sampleStats()}).Collect(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", snap.BatchID)

	_, err = NewCollector(staticStats{err: errors.New("db gone")}).Collect(context.Background(), "")
	assert.Error(t, err)
}

func TestAlerter_Evaluate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		FailureRateThreshold: 0.25,
		ManualRateThreshold:  0.05,
		MinResults:           5,
	})

	alerts := a.Evaluate(SnapshotOf("b1", sampleStats()))
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "batch b1")
	assert.Equal(t, AlertManualRate, alerts[1].Type)
}

func TestAlerter_Evaluate_BelowMinimum(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.01, MinResults: 50})
	assert.Empty(t, a.Evaluate(SnapshotOf("", sampleStats())))
}

func TestAlerter_Evaluate_ZeroThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Empty(t, a.Evaluate(SnapshotOf("", sampleStats())))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertFailureRate, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Timestamp: time.Now()}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_NoWebhookOrError(t *testing.T) {
	assert.Zero(t, NewAlerter(config.MonitoringConfig{}).SendAlerts(context.Background(), []Alert{{}}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertManualRate}}))
}

func TestChecker_Check(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, FailureRateThreshold: 0.3}
	c := NewChecker(NewCollector(staticStats{stats: sampleStats()}), NewAlerter(cfg), cfg)
	assert.Equal(t, 1, c.Check(context.Background(), "b1"))
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1}
	c := NewChecker(NewCollector(staticStats{stats: model.NewStatistics()}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	start := time.Now()

	r.RecordResult(model.SubmissionResult{
		FormType:      string(model.FormTypeNextRequest),
		Status:        model.StatusFailed,
		FailureReason: model.FailureTimeout,
		StartedAt:     start,
		CompletedAt:   start.Add(15 * time.Minute),
	})
	r.RecordResult(model.SubmissionResult{Status: model.StatusSuccess, FailureReason: model.FailureNone})
	r.RecordSkip()
	r.RecordStoreError()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.submissions.WithLabelValues("NEXTREQUEST", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submissions.WithLabelValues("GENERIC_WEB", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skipped))

	err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(`
# HELP records_store_errors_total Result store write failures.
# TYPE records_store_errors_total counter
records_store_errors_total 1
`), "records_store_errors_total")
	assert.NoError(t, err)
}

func TestStoreCollector(t *testing.T) {
	st := model.NewStatistics()
	st.Total = 3
	st.ByStatus[model.StatusSuccess] = 2
	st.ByStatus[model.StatusFailed] = 1
	st.ByFailureReason[model.FailureNone] = 2
	st.ByFailureReason[model.FailureCaptcha] = 1

	err := testutil.CollectAndCompare(NewStoreCollector(staticStats{stats: st}), strings.NewReader(`
# HELP records_store_up Whether the last scrape could read the result store.
# TYPE records_store_up gauge
records_store_up 1
# HELP records_stored_failures Stored submission results by failure reason.
# TYPE records_stored_failures gauge
records_stored_failures{reason="captcha"} 1
# HELP records_stored_results Stored submission results by status.
# TYPE records_stored_results gauge
records_stored_results{status="failed"} 1
records_stored_results{status="success"} 2
`))
	assert.NoError(t, err)

	down := NewStoreCollector(staticStats{err: errors.New("db gone")})
	assert.Equal(t, 1, testutil.CollectAndCount(down))
	assert.Equal(t, 1, testutil.CollectAndCount(down, "records_store_up"))
}

func TestRecorder_WatchStore(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.WatchStore(staticStats{stats: sampleStats()}))
	assert.Error(t, r.WatchStore(staticStats{stats: sampleStats()}), "second registration is rejected")

	n, err := testutil.GatherAndCount(r.Registry(), "records_stored_results")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordResult(model.SubmissionResult{FormType: "PDF", Status: model.StatusPDFDownloaded})

	path := filepath.Join(t.TempDir(), "records.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `records_submissions_total{form_type="PDF",status="pdf_downloaded"} 1`)

	assert.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "records.prom")))
}
