package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sells-group/records-cli/internal/model"
)

// StoreCollector exports stored result counts as gauges on every scrape.
type StoreCollector struct {
	src     StatsSource
	timeout time.Duration

	results  *prometheus.Desc
	failures *prometheus.Desc
	up       *prometheus.Desc
}

// NewStoreCollector reads statistics for every batch from src.
func NewStoreCollector(src StatsSource) *StoreCollector {
	return &StoreCollector{
		src:     src,
		timeout: 10 * time.Second,
		results: prometheus.NewDesc("records_stored_results",
			"Stored submission results by status.", []string{"status"}, nil),
		failures: prometheus.NewDesc("records_stored_failures",
			"Stored submission results by failure reason.", []string{"reason"}, nil),
		up: prometheus.NewDesc("records_store_up",
			"Whether the last scrape could read the result store.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.results
	ch <- c.failures
	ch <- c.up
}

// Collect implements prometheus.Collector. A store error reports
// records_store_up 0 and no counts.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.src.Statistics(ctx, "")
	if err != nil {
		zap.L().Warn("monitoring: store scrape failed", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	for status, n := range stats.ByStatus {
		ch <- prometheus.MustNewConstMetric(c.results, prometheus.GaugeValue, float64(n), string(status))
	}
	for reason, n := range stats.ByFailureReason {
		if reason == model.FailureNone {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(n), string(reason))
	}
}
