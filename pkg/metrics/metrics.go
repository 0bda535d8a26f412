package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricType string

const (
	CounterVec   MetricType = "counter_vec"
	HistogramVec MetricType = "histogram_vec"
	SummaryVec   MetricType = "summary_vec"
)

// HTTPBuckets covers API response times in milliseconds. Checkout initiation
// waits on the gateway, so the upper range matters as much as the fast path.
var HTTPBuckets = []float64{
	10, 25, 50, 100, 200, 300, 500,
	750, 1000, 1500, 2000,
	3000, 5000, 7500, 10000, 15000, 30000,
}

// GatewayBuckets covers outbound payment gateway calls in milliseconds, up to
// the client's request timeout.
var GatewayBuckets = []float64{
	50, 100, 200, 350, 500, 750,
	1000, 1500, 2500, 4000, 6000,
	10000, 20000, 30000, 60000,
}

// Metric describes one collector: its name, help text, collector type and
// label names. NewMetric turns it into a prometheus.Collector.
type Metric struct {
	ID          string
	Name        string
	Description string
	Type        MetricType
	Args        []string
	// Buckets applies to histograms; HTTPBuckets when empty.
	Buckets []float64
}

// NewMetric builds the collector for m.Type. An unknown type is a programming
// error and panics at startup.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case CounterVec:
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args)
	case HistogramVec:
		buckets := m.Buckets
		if len(buckets) == 0 {
			buckets = HTTPBuckets
		}
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
			Buckets:   buckets,
		}, m.Args)
	case SummaryVec:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args)
	}
	panic(fmt.Sprintf("metric %s: unknown type %q", m.ID, m.Type))
}

// RefererKey lets the web client name the page that issued an API call.
const RefererKey = "X-Referer"
