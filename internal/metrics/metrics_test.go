package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Reconciled(quiz.ReconcileResult{
		Added:     []quiz.Edge{{}, {}},
		Removed:   []quiz.Edge{{}},
		Revisions: []quiz.Revision{{}},
		Denied:    []quiz.Denial{{}, {}, {}},
	})
	assert.Equal(t, 2.0, counter(t, reg, "quiz_membership_changes_total", "op", "add"))
	assert.Equal(t, 1.0, counter(t, reg, "quiz_membership_changes_total", "op", "remove"))
	assert.Equal(t, 1.0, counter(t, reg, "quiz_copy_on_write_revisions_total"))
	assert.Equal(t, 3.0, counter(t, reg, "quiz_membership_denied_total"))

	r.ResponseSaved("truefalse", quiz.Summary{IsEvaluated: true, IsCorrect: true, Score: 1, MaxScore: 1})
	r.ResponseSaved("truefalse", quiz.Summary{IsSkipped: true, IsEvaluated: true})
	r.ResponseSaved("longanswer", quiz.Summary{MaxScore: 5})
	assert.Equal(t, 1.0, counter(t, reg, "quiz_responses_saved_total", "type", "truefalse", "outcome", "correct"))
	assert.Equal(t, 1.0, counter(t, reg, "quiz_responses_saved_total", "type", "truefalse", "outcome", "skipped"))
	assert.Equal(t, 1.0, counter(t, reg, "quiz_responses_saved_total", "type", "longanswer", "outcome", "pending"))
}

// counter returns the value of the series of name whose labels include
// every name/value pair given.
func counter(t *testing.T, g prometheus.Gatherer, name string, labels ...string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if hasLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, labels []string) bool {
	for i := 0; i+1 < len(labels); i += 2 {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labels[i] && lp.GetValue() == labels[i+1] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/quizzes/{nid}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	labels := []string{"method", http.MethodGet, "route", "/quizzes/{nid}", "status", "418"}
	before := counter(t, prometheus.DefaultGatherer, "quiz_http_requests_total", labels...)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quizzes/7", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	after := counter(t, prometheus.DefaultGatherer, "quiz_http_requests_total", labels...)
	assert.Equal(t, before+1, after)
}
