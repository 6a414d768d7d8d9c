package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const namespace = "quiz"

// Recorder counts quiz-domain events. It satisfies quiz.Observer.
type Recorder struct {
	reconciles *prometheus.CounterVec
	revisions  prometheus.Counter
	denied     prometheus.Counter
	responses  *prometheus.CounterVec
	scoreRatio *prometheus.HistogramVec
}

// NewRecorder registers the domain metrics on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		reconciles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_changes_total",
			Help:      "Quiz membership edges added or removed by reconcile runs",
		}, []string{"op"}),
		revisions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copy_on_write_revisions_total",
			Help:      "Quiz revisions created because the edited revision had results",
		}),
		denied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_denied_total",
			Help:      "Requested membership changes refused for lack of capability",
		}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_saved_total",
			Help:      "Responses stored, by question type and outcome",
		}, []string{"type", "outcome"}),
		scoreRatio: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_score_ratio",
			Help:      "Weighted score divided by weighted max score",
			Buckets:   prometheus.LinearBuckets(0, 0.25, 5),
		}, []string{"type"}),
	}
}

func (r *Recorder) Reconciled(res quiz.ReconcileResult) {
	r.reconciles.WithLabelValues("add").Add(float64(len(res.Added)))
	r.reconciles.WithLabelValues("remove").Add(float64(len(res.Removed)))
	r.revisions.Add(float64(len(res.Revisions)))
	r.denied.Add(float64(len(res.Denied)))
}

func (r *Recorder) ResponseSaved(questionType string, s quiz.Summary) {
	outcome := "incorrect"
	switch {
	case s.IsSkipped:
		outcome = "skipped"
	case !s.IsEvaluated:
		outcome = "pending"
	case s.IsCorrect:
		outcome = "correct"
	}
	r.responses.WithLabelValues(questionType, outcome).Inc()
	if s.IsEvaluated && s.MaxScore > 0 {
		r.scoreRatio.WithLabelValues(questionType).Observe(float64(s.Score) / float64(s.MaxScore))
	}
}

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request metrics labelled by chi route pattern, so path
// parameters do not blow up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := strconv.Itoa(rec.status)
		httpRequests.WithLabelValues(r.Method, route, status).Inc()
		httpLatency.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
