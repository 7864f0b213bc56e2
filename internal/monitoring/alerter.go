package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "submission_failure_rate"
	AlertManualRate  AlertType = "manual_intervention_rate"
)

// Alert is the JSON body posted to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns snapshots into webhook alerts.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns one alert per breached threshold. Nothing fires until
// MinResults results exist, and a zero threshold disables its check.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	if snap.Total < a.cfg.MinResults {
		return nil
	}

	scope := "all batches"
	if snap.BatchID != "" {
		scope = "batch " + snap.BatchID
	}
	now := time.Now().UTC()

	var alerts []Alert
	if breached(snap.FailRate, a.cfg.FailureRateThreshold) {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("Submission failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d in %s)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.Failed, snap.Total, scope),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"total":        snap.Total,
			},
			Timestamp: now,
		})
	}
	if breached(snap.ManualRate, a.cfg.ManualRateThreshold) {
		alerts = append(alerts, Alert{
			Type:     AlertManualRate,
			Severity: "medium",
			Message: fmt.Sprintf("%d of %d submissions in %s need manual handling (CAPTCHA or login)",
				snap.Manual, snap.Total, scope),
			Details: map[string]any{
				"manual_rate": snap.ManualRate,
				"threshold":   a.cfg.ManualRateThreshold,
				"manual":      snap.Manual,
			},
			Timestamp: now,
		})
	}
	return alerts
}

func breached(rate, threshold float64) bool {
	return threshold > 0 && rate > threshold
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Without a webhook it does nothing.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
