package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "manga_tracker"

// Metrics хранит счётчики одного процесса. Методы безопасны для nil.
type Metrics struct {
	registry *prometheus.Registry

	checksTotal      *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	browserBatches   prometheus.Counter
	pagesOpen        prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checks_total",
			Help:      "Checked titles by outcome",
		}, []string{"status"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to resolve one title, by execution path",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"path"}),
		browserBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "browser_batches_total",
			Help:      "Browser processes launched",
		}),
		pagesOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pages_open",
			Help:      "Browser pages currently open",
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}
}

func (m *Metrics) ObserveCheck(status string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveFetch(path string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.browserBatches.Inc()
}

func (m *Metrics) PageOpened() {
	if m == nil {
		return
	}
	m.pagesOpen.Inc()
}

func (m *Metrics) PageClosed() {
	if m == nil {
		return
	}
	m.pagesOpen.Dec()
}

func (m *Metrics) RunCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.lastRunTimestamp.Set(float64(at.Unix()))
}

// Gatherer отдаёт реестр, например для тестов.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile сохраняет метрики в формате textfile-коллектора node_exporter.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
