package validate

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenTraceLab/designguard/pkg/issue"
)

const metricsNamespace = "designguard"

type metrics struct {
	registry      *prometheus.Registry
	files         *prometheus.CounterVec
	issues        *prometheus.CounterVec
	parseFailures prometheus.Counter
	cacheHits     prometheus.Counter
	duration      *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_validated_total",
			Help:      "Design files validated, by outcome",
		}, []string{"outcome"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "issues_total",
			Help:      "Issues reported, by severity",
		}, []string{"severity"}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parse_failures_total",
			Help:      "Design files that failed to load",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "parse_cache_hits_total",
			Help:      "Loads served from the parse cache",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "validation_duration_seconds",
			Help:      "Time to validate one file",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.files, m.issues, m.parseFailures, m.cacheHits, m.duration)
	return m
}

func (m *metrics) observeIssues(issues []issue.Issue) {
	for _, i := range issues {
		m.issues.WithLabelValues(i.Severity.String()).Inc()
	}
}
