package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// POST /attempts {"quiz_nid": 1}
func (a *API) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuizNID int64 `json:"quiz_nid"`
	}
	if !decode(w, r, &req) {
		return
	}
	at, err := a.svc.StartAttempt(r.Context(), rbac.ActorFromContext(r.Context()), req.QuizNID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, at)
}

type responseReq struct {
	QuestionNID int64           `json:"question_nid"`
	Answer      json.RawMessage `json:"answer"`
	Doubtful    bool            `json:"doubtful"`
	Skip        bool            `json:"skip"`
}

// POST /attempts/{id}/responses
func (a *API) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req responseReq
	if !decode(w, r, &req) {
		return
	}
	actor := rbac.ActorFromContext(r.Context())
	if req.Skip {
		sum, err := a.svc.SkipQuestion(r.Context(), actor, id, req.QuestionNID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}
	res, err := a.svc.SubmitResponse(r.Context(), actor, id, req.QuestionNID, req.Answer, req.Doubtful)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !res.Errors.Empty() {
		writeValidation(w, res.Errors)
		return
	}
	writeJSON(w, http.StatusOK, res.Summary)
}

// POST /attempts/{id}/finish
func (a *API) FinishAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	rep, err := a.svc.FinishAttempt(r.Context(), rbac.ActorFromContext(r.Context()), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /attempts/{id}/report
func (a *API) AttemptReport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	rep, err := a.svc.AttemptReport(r.Context(), rbac.ActorFromContext(r.Context()), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type gradeReq struct {
	Points   *int               `json:"points"`
	Criteria map[string]float64 `json:"criteria"`
}

// criteriaScorer is implemented by definitions with a grading rubric.
type criteriaScorer interface {
	ScoreCriteria(awarded map[string]float64) (int, []string, error)
}

// POST /attempts/{id}/responses/{qnid}/grade with either points or
// per-criterion marks.
func (a *API) GradeResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	qnid, ok := idParam(w, r, "qnid")
	if !ok {
		return
	}
	var req gradeReq
	if !decode(w, r, &req) {
		return
	}
	var notes []string
	points := 0
	switch {
	case req.Points != nil:
		points = *req.Points
	case len(req.Criteria) > 0:
		resp, err := a.svc.LoadResponse(r.Context(), id, qnid)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		cs, ok := resp.Question.Definition.(criteriaScorer)
		if !ok {
			a.fail(w, r, fmt.Errorf("question %s has no rubric: %w", resp.Question.Ref, quiz.ErrInvalid))
			return
		}
		if points, notes, err = cs.ScoreCriteria(req.Criteria); err != nil {
			a.fail(w, r, err)
			return
		}
	default:
		var errs quiz.ValidationErrors
		errs.Add("points", "points or criteria required")
		writeValidation(w, errs)
		return
	}
	sum, err := a.svc.GradeResponse(r.Context(), rbac.ActorFromContext(r.Context()), id, qnid, points)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum, "notes": notes})
}
