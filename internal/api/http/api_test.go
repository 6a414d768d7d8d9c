package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var (
	alice = rbac.Actor{ID: "alice", Role: "teacher"}
	bob   = rbac.Actor{ID: "bob", Role: "teacher"}
	sam   = rbac.Actor{ID: "sam", Role: "student"}
)

// testActor stands in for JWT auth: "X-Actor: id:role".
func testActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, role, ok := strings.Cut(r.Header.Get("X-Actor"), ":"); ok {
			r = r.WithContext(rbac.WithActor(r.Context(), rbac.Actor{ID: id, Role: role}))
		}
		next.ServeHTTP(w, r)
	})
}

type harness struct {
	t      *testing.T
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	checker := rbac.NewChecker(nil)
	svc := quiz.NewService(quiz.NewMemoryStore(), grading.NewRegistry(), quiz.WithAuthorizer(checker))
	r := chi.NewRouter()
	r.Use(testActor)
	New(svc, zaptest.NewLogger(t)).Mount(r, checker)
	return &harness{t: t, router: r}
}

// do sends body (marshalled unless already a string) and decodes a JSON
// reply into out when out is non-nil.
func (h *harness) do(actor rbac.Actor, method, path string, body any, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor.ID != "" {
		req.Header.Set("X-Actor", actor.ID+":"+actor.Role)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (h *harness) createQuiz(actor rbac.Actor, title string) quiz.Quiz {
	h.t.Helper()
	var q quiz.Quiz
	code := h.do(actor, http.MethodPost, "/quizzes", map[string]any{"title": title}, &q)
	require.Equal(h.t, http.StatusCreated, code)
	return q
}

type saveReply struct {
	Result         quiz.SaveResult `json:"result"`
	PromptRetarget bool            `json:"prompt_retarget"`
}

func (h *harness) createTrueFalse(actor rbac.Actor, points int, quizzes ...int64) saveReply {
	h.t.Helper()
	var out saveReply
	code := h.do(actor, http.MethodPost, "/questions", map[string]any{
		"type":        grading.TypeTrueFalse,
		"body":        "The sky is blue.",
		"definition":  map[string]any{"correct": true, "points": points},
		"memberships": map[string]any{"add_from_candidates": quizzes},
	}, &out)
	require.Equal(h.t, http.StatusCreated, code)
	return out
}

func TestQuizLifecycle(t *testing.T) {
	h := newHarness(t)
	qz := h.createQuiz(alice, "Weather")
	assert.Equal(t, "alice", qz.CreatorID)

	saved := h.createTrueFalse(alice, 2, qz.Ref.NID)
	require.Len(t, saved.Result.Memberships.Added, 1)
	assert.False(t, saved.PromptRetarget)
	ref := saved.Result.Question

	var listed struct {
		Items []quiz.Quiz `json:"items"`
		Total int         `json:"total"`
	}
	require.Equal(t, http.StatusOK, h.do(sam, http.MethodGet, "/quizzes", nil, &listed))
	require.Equal(t, 1, listed.Total)
	assert.Equal(t, 2, listed.Items[0].MaxScore)

	var attempt quiz.Attempt
	require.Equal(t, http.StatusCreated, h.do(sam, http.MethodPost, "/attempts", map[string]any{"quiz_nid": qz.Ref.NID}, &attempt))
	assert.Equal(t, qz.Ref, attempt.Quiz)

	responses := fmt.Sprintf("/attempts/%d/responses", attempt.ID)
	var sum quiz.Summary
	require.Equal(t, http.StatusOK, h.do(sam, http.MethodPost, responses,
		map[string]any{"question_nid": ref.NID, "answer": true}, &sum))
	assert.Equal(t, 2, sum.Score)
	assert.True(t, sum.IsCorrect)

	// missing answer is a validation failure, not a stored zero
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(sam, http.MethodPost, responses,
		map[string]any{"question_nid": ref.NID}, nil))
	assert.Equal(t, http.StatusForbidden, h.do(rbac.Actor{ID: "sue", Role: "student"}, http.MethodPost, responses,
		map[string]any{"question_nid": ref.NID, "answer": true}, nil))

	var rep quiz.Report
	require.Equal(t, http.StatusOK, h.do(sam, http.MethodPost, fmt.Sprintf("/attempts/%d/finish", attempt.ID), nil, &rep))
	assert.Equal(t, 2, rep.Score)
	assert.Equal(t, 100, rep.Percent)

	assert.Equal(t, http.StatusConflict, h.do(sam, http.MethodPost, responses,
		map[string]any{"question_nid": ref.NID, "answer": false}, nil))

	var again quiz.Report
	require.Equal(t, http.StatusOK, h.do(alice, http.MethodGet, fmt.Sprintf("/attempts/%d/report", attempt.ID), nil, &again))
	assert.Equal(t, rep.Score, again.Score)

	// the quiz has results now, so editing forces a new version
	var edited saveReply
	code := h.do(alice, http.MethodPut, fmt.Sprintf("/questions/%d", ref.NID), map[string]any{
		"body":       "The sky is green.",
		"definition": map[string]any{"correct": false, "points": 2},
	}, &edited)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, edited.Result.Forced)
	assert.True(t, edited.PromptRetarget)
	assert.NotEqual(t, ref, edited.Result.Question)
}

func TestQuestionAnswerVisibility(t *testing.T) {
	h := newHarness(t)
	ref := h.createTrueFalse(alice, 1).Result.Question
	path := fmt.Sprintf("/questions/%d/%d", ref.NID, ref.VID)

	var got struct {
		Question struct {
			Definition map[string]any `json:"definition"`
		} `json:"question"`
		Answered bool `json:"answered"`
	}
	require.Equal(t, http.StatusOK, h.do(sam, http.MethodGet, path, nil, &got))
	assert.NotContains(t, got.Question.Definition, "correct")
	assert.False(t, got.Answered)

	require.Equal(t, http.StatusOK, h.do(alice, http.MethodGet, path, nil, &got))
	assert.Equal(t, true, got.Question.Definition["correct"])

	assert.Equal(t, http.StatusForbidden, h.do(sam, http.MethodGet, path+"/answer", nil, nil))
	assert.Equal(t, http.StatusForbidden, h.do(bob, http.MethodGet, path+"/answer", nil, nil))
	var ans struct {
		Answer any `json:"answer"`
	}
	require.Equal(t, http.StatusOK, h.do(alice, http.MethodGet, path+"/answer", nil, &ans))
	assert.Equal(t, true, ans.Answer)
}

func TestMembershipEndpoints(t *testing.T) {
	h := newHarness(t)
	mine := h.createQuiz(alice, "Mine")
	theirs := h.createQuiz(bob, "Theirs")
	ref := h.createTrueFalse(alice, 3, mine.Ref.NID).Result.Question
	path := fmt.Sprintf("/questions/%d/%d/memberships", ref.NID, ref.VID)

	var res quiz.ReconcileResult
	require.Equal(t, http.StatusOK, h.do(alice, http.MethodPost, path, map[string]any{
		"keep_or_remove":      []map[string]any{{"quiz_nid": mine.Ref.NID, "keep": false}},
		"add_from_candidates": []int64{theirs.Ref.NID},
	}, &res))
	assert.Len(t, res.Removed, 1)
	assert.Empty(t, res.Added)
	require.Len(t, res.Denied, 1)
	assert.Equal(t, theirs.Ref.NID, res.Denied[0].QuizNID)

	var cur quiz.Quiz
	require.Equal(t, http.StatusOK, h.do(alice, http.MethodGet, fmt.Sprintf("/quizzes/%d", mine.Ref.NID), nil, &cur))
	assert.Zero(t, cur.MaxScore)

	assert.Equal(t, http.StatusForbidden, h.do(sam, http.MethodPost, path, map[string]any{}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(alice, http.MethodPost,
		fmt.Sprintf("/questions/%d/revise", ref.NID), map[string]any{"quizzes": []int64{mine.Ref.NID}}, nil))
}

func TestDeleteQuestion(t *testing.T) {
	h := newHarness(t)
	ref := h.createTrueFalse(alice, 1).Result.Question
	path := fmt.Sprintf("/questions/%d/%d", ref.NID, ref.VID)

	assert.Equal(t, http.StatusForbidden, h.do(bob, http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNoContent, h.do(alice, http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(alice, http.MethodGet, path, nil, nil))
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		actor  rbac.Actor
		method string
		path   string
		body   any
		want   int
	}{
		{"role lacks capability", sam, http.MethodPost, "/quizzes", map[string]any{"title": "x"}, http.StatusForbidden},
		{"no actor", rbac.Actor{}, http.MethodGet, "/quizzes", nil, http.StatusForbidden},
		{"bad path id", alice, http.MethodGet, "/quizzes/abc", nil, http.StatusBadRequest},
		{"unknown quiz", alice, http.MethodGet, "/quizzes/999", nil, http.StatusNotFound},
		{"bad json", alice, http.MethodPost, "/quizzes", "{", http.StatusBadRequest},
		{"blank title", alice, http.MethodPost, "/quizzes", map[string]any{"title": " "}, http.StatusUnprocessableEntity},
		{"unknown type", alice, http.MethodPost, "/questions", map[string]any{"type": "essay", "definition": map[string]any{}}, http.StatusBadRequest},
		{"invalid definition", alice, http.MethodPost, "/questions",
			map[string]any{"type": grading.TypeTrueFalse, "definition": map[string]any{"correct": true, "points": 0}}, http.StatusUnprocessableEntity},
		{"unknown attempt", sam, http.MethodPost, "/attempts/77/finish", nil, http.StatusNotFound},
		{"grade without points", alice, http.MethodPost, "/attempts/1/responses/2/grade", map[string]any{}, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, h.do(tc.actor, tc.method, tc.path, tc.body, nil))
		})
	}
}
