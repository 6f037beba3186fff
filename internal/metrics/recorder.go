// Package metrics exports alignment events as Prometheus metrics.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/termalign/alignment"
)

const namespace = "termalign"

// Recorder implements alignment.Observer.
type Recorder struct {
	runs        prometheus.Counter
	runDuration prometheus.Histogram
	matches     *prometheus.CounterVec
	unmatched   *prometheus.CounterVec
	fallbacks   prometheus.Counter
	degraded    *prometheus.CounterVec
}

var _ alignment.Observer = (*Recorder)(nil)

// NewRecorder registers the alignment metrics on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed alignment runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of alignment runs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Accepted matches by method, action and review flag.",
		}, []string{"method", "action", "needs_review"}),
		unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_terms_total",
			Help:      "Terms left without a clause, by category.",
		}, []string{"category"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_fallbacks_total",
			Help:      "Terms for which the semantic matcher was consulted.",
		}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_degraded_total",
			Help:      "Backend failures absorbed by the engine.",
		}, []string{"backend"}),
	}
	for _, c := range []prometheus.Collector{r.runs, r.runDuration, r.matches, r.unmatched, r.fallbacks, r.degraded} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) RunCompleted(_ alignment.Summary, elapsed time.Duration) {
	r.runs.Inc()
	r.runDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) MatchAccepted(method alignment.MatchMethod, action alignment.ActionType, needsReview bool) {
	r.matches.WithLabelValues(string(method), string(action), strconv.FormatBool(needsReview)).Inc()
}

func (r *Recorder) TermUnmatched(category alignment.TermCategory) {
	r.unmatched.WithLabelValues(string(category)).Inc()
}

func (r *Recorder) SemanticFallback() {
	r.fallbacks.Inc()
}

func (r *Recorder) BackendDegraded(backend string) {
	r.degraded.WithLabelValues(backend).Inc()
}
