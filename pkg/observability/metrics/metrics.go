package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	adjudicationActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartreview",
		Name:      "adjudication_actions_total",
		Help:      "Reviewer actions applied to patient adjudication state.",
	}, []string{"action"})

	duplicatesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chartreview",
		Name:      "adjudication_duplicates_suppressed_total",
		Help:      "Annotations hidden from reviewers as duplicate sentences.",
	})

	eventDates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartreview",
		Name:      "adjudication_event_dates_total",
		Help:      "Event dates marked or deleted.",
	}, []string{"op"})

	lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chartreview",
		Name:      "adjudication_lock_wait_seconds",
		Help:      "Time spent acquiring the per-patient lock.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
	})

	taggerAnnotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartreview",
		Name:      "tagger_annotations_total",
		Help:      "Candidate annotations produced per query pattern.",
	}, []string{"pattern"})

	auditEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chartreview",
		Name:      "audit_events_total",
		Help:      "Adjudication events written to the audit trail.",
	}, []string{"type"})
)

func init() {
	Registry.MustRegister(
		adjudicationActions,
		duplicatesSuppressed,
		eventDates,
		lockWait,
		taggerAnnotations,
		auditEvents,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

func ObserveAction(action string) {
	adjudicationActions.WithLabelValues(action).Inc()
}

func ObserveDuplicates(n int) {
	if n > 0 {
		duplicatesSuppressed.Add(float64(n))
	}
}

func ObserveEventDate(op string) {
	eventDates.WithLabelValues(op).Inc()
}

func ObserveLockWait(seconds float64) {
	lockWait.Observe(seconds)
}

func ObserveTagged(pattern string, n int) {
	taggerAnnotations.WithLabelValues(pattern).Add(float64(n))
}

func ObserveAuditEvent(eventType string) {
	auditEvents.WithLabelValues(eventType).Inc()
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
