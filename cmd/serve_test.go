//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/records-cli/internal/config"
	"github.com/sells-group/records-cli/internal/model"
	"github.com/sells-group/records-cli/internal/monitoring"
	"github.com/sells-group/records-cli/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := openStore(context.Background(), config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "serve.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	for _, r := range []model.SubmissionResult{
		{FormEntryID: "174540_1", CensusID: "174540", Municipality: "Los Gatos", State: "CA",
			Status: model.StatusSuccess, FailureReason: model.FailureNone, Confidence: model.ConfidenceHigh,
			ConfirmationNumber: "REQ-12345"},
		{FormEntryID: "062807_1", CensusID: "062807", Municipality: "Anytown", State: "NJ",
			Status: model.StatusFailed, FailureReason: model.FailureTimeout, Confidence: model.ConfidenceUnknown},
	} {
		require.NoError(t, st.Save(ctx, r, "b1"))
	}
	return st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h := newRouter(newServeStore(t), monitoring.NewRecorder())

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Results(t *testing.T) {
	h := newRouter(newServeStore(t), monitoring.NewRecorder())

	rec := get(t, h, "/results?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []model.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "062807_1", results[0].FormEntryID)

	rec = get(t, h, "/results?batch=nope")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, h, "/results?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ResultByID(t *testing.T) {
	h := newRouter(newServeStore(t), monitoring.NewRecorder())

	rec := get(t, h, "/results/174540_1")
	require.Equal(t, http.StatusOK, rec.Code)
	var r model.SubmissionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "REQ-12345", r.ConfirmationNumber)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/results/999999_1").Code)
}

func TestRouter_Stats(t *testing.T) {
	h := newRouter(newServeStore(t), monitoring.NewRecorder())

	rec := get(t, h, "/stats?batch=b1")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByFailureReason[model.FailureTimeout])
}

func TestRouter_Metrics(t *testing.T) {
	rec := monitoring.NewRecorder()
	rec.RecordResult(model.SubmissionResult{FormType: "PDF", Status: model.StatusPDFDownloaded})
	h := newRouter(newServeStore(t), rec)

	resp := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `records_submissions_total{form_type="PDF",status="pdf_downloaded"} 1`)
}

func TestRouter_MetricsReflectStore(t *testing.T) {
	h := newRouter(newServeStore(t), monitoring.NewRecorder())

	resp := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `records_stored_results{status="success"} 1`)
	assert.Contains(t, body, `records_stored_results{status="failed"} 1`)
	assert.Contains(t, body, `records_stored_failures{reason="timeout"} 1`)
	assert.Contains(t, body, "records_store_up 1")
}

func TestRouter_CORS(t *testing.T) {
	h := newRouter(newServeStore(t), monitoring.NewRecorder())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
