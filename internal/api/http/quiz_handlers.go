package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type createQuizReq struct {
	Title         string             `json:"title"`
	Randomization quiz.Randomization `json:"randomization"`
}

// POST /quizzes
func (a *API) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizReq
	if !decode(w, r, &req) {
		return
	}
	q, err := a.svc.CreateQuiz(r.Context(), rbac.ActorFromContext(r.Context()), req.Title, req.Randomization)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// GET /quizzes
func (a *API) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	qs, err := a.svc.ListQuizzes(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if qs == nil {
		qs = []quiz.Quiz{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": qs, "total": len(qs)})
}

// GET /quizzes/{nid}
func (a *API) GetQuiz(w http.ResponseWriter, r *http.Request) {
	nid, ok := idParam(w, r, "nid")
	if !ok {
		return
	}
	q, err := a.svc.GetQuiz(r.Context(), nid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type quizQuestionView struct {
	Edge     quiz.Edge    `json:"edge"`
	Question questionView `json:"question"`
}

// GET /quizzes/{nid}/questions lists the current revision's questions in
// presentation order.
func (a *API) QuizQuestions(w http.ResponseWriter, r *http.Request) {
	nid, ok := idParam(w, r, "nid")
	if !ok {
		return
	}
	ctx := r.Context()
	q, err := a.svc.GetQuiz(ctx, nid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	edges, err := a.svc.QuizEdges(ctx, q.Ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	actor := rbac.ActorFromContext(ctx)
	out := make([]quizQuestionView, 0, len(edges))
	for _, e := range edges {
		qq, err := a.svc.LoadQuestion(ctx, e.Child)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		out = append(out, quizQuestionView{Edge: e, Question: a.view(r, actor, qq)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": q, "questions": out})
}
