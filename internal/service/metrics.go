package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe; a nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "playvested_ledger_requests_total",
			Help: "Total number of ledger exchanges by action and outcome",
		}, []string{"action", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "playvested_ledger_request_duration_seconds",
			Help:    "Time from issuing a ledger request to having its full body",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "playvested_ledger_requests_in_flight",
			Help: "Ledger exchanges currently outstanding",
		}, []string{"action"}),
	}
}

func (m *Metrics) begin(action Action) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) end(action Action, out Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(string(action)).Dec()
	m.duration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
	m.requests.WithLabelValues(string(action), outcomeLabel(out)).Inc()
}

func outcomeLabel(out Outcome) string {
	if out.OK() {
		return "success"
	}
	var statusErr *StatusError
	if errors.As(out.Err, &statusErr) {
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	}
	return "transport"
}
