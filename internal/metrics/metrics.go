package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks respondent intake and survey submission outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RespondentReviews   *prometheus.CounterVec
	Administrations     *prometheus.CounterVec
	SubmissionRejected  *prometheus.CounterVec
	SubmissionDuration  *prometheus.HistogramVec
	DistrictBackfillErr prometheus.Counter
}

// New registers the metrics with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RespondentReviews: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveyentry_respondent_reviews_total",
			Help: "New respondent checks by outcome (created, review, exact_duplicate, bypassed)",
		}, []string{"outcome"}),
		Administrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveyentry_administrations_total",
			Help: "Committed survey administrations by operation (create, edit)",
		}, []string{"op"}),
		SubmissionRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveyentry_submission_rejections_total",
			Help: "Rejected submissions by error family",
		}, []string{"kind"}),
		SubmissionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surveyentry_submission_duration_seconds",
			Help:    "Duration of SubmitAdministration calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		DistrictBackfillErr: f.NewCounter(prometheus.CounterOpts{
			Name: "surveyentry_district_backfill_failures_total",
			Help: "District back-fills that failed after a committed administration",
		}),
	}
}

func (m *Metrics) IncrementReview(outcome string) {
	if m == nil {
		return
	}
	m.RespondentReviews.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAdministration(op string) {
	if m == nil {
		return
	}
	m.Administrations.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementRejected(kind string) {
	if m == nil {
		return
	}
	m.SubmissionRejected.WithLabelValues(kind).Inc()
}

// ObserveSubmission records the duration of a submission started at start.
func (m *Metrics) ObserveSubmission(op string, start time.Time) {
	if m == nil {
		return
	}
	m.SubmissionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementBackfillFailure() {
	if m == nil {
		return
	}
	m.DistrictBackfillErr.Inc()
}
