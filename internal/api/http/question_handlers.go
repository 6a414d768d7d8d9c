package http

import (
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type questionReq struct {
	Type          string                 `json:"type"`
	Body          string                 `json:"body"`
	TitleOverride string                 `json:"title_override"`
	Definition    json.RawMessage        `json:"definition"`
	NewVersion    bool                   `json:"new_version"`
	Memberships   quiz.MembershipChanges `json:"memberships"`
}

type questionView struct {
	Ref           quiz.VersionRef `json:"ref"`
	Type          string          `json:"type"`
	Body          string          `json:"body,omitempty"`
	TitleOverride string          `json:"title_override,omitempty"`
	MaxScore      int             `json:"max_score"`
	Definition    any             `json:"definition,omitempty"`
}

// view shows the full definition only to actors allowed to see answers.
func (a *API) view(r *http.Request, actor rbac.Actor, q *quiz.Question) questionView {
	v := questionView{Ref: q.Ref, Type: q.Type, Body: q.Body, TitleOverride: q.TitleOverride, MaxScore: q.MaxScore}
	if a.svc.CanRevealCorrectAnswer(r.Context(), actor, q) {
		v.Definition = q.Definition
	} else {
		v.Definition = q.PublicDefinition()
	}
	return v
}

func (a *API) buildQuestion(w http.ResponseWriter, r *http.Request, req questionReq) (*quiz.Question, bool) {
	q, err := a.svc.NewQuestion(req.Type, req.Definition)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	q.Body, q.TitleOverride = req.Body, req.TitleOverride
	return q, true
}

func (a *API) persist(w http.ResponseWriter, r *http.Request, q *quiz.Question, req questionReq, created int) {
	res, err := a.svc.PersistQuestion(r.Context(), rbac.ActorFromContext(r.Context()), q, req.NewVersion, req.Memberships)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !res.Errors.Empty() {
		writeValidation(w, res.Errors)
		return
	}
	status := http.StatusOK
	if res.NewVersion {
		status = created
	}
	writeJSON(w, status, map[string]any{
		"result":          res,
		"prompt_retarget": res.PromptRetarget(),
	})
}

// POST /questions
func (a *API) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionReq
	if !decode(w, r, &req) {
		return
	}
	q, ok := a.buildQuestion(w, r, req)
	if !ok {
		return
	}
	a.persist(w, r, q, req, http.StatusCreated)
}

// PUT /questions/{nid} saves over the current version, or a new one when
// new_version is set or the current one has been answered.
func (a *API) SaveQuestion(w http.ResponseWriter, r *http.Request) {
	nid, ok := idParam(w, r, "nid")
	if !ok {
		return
	}
	var req questionReq
	if !decode(w, r, &req) {
		return
	}
	cur, err := a.svc.LoadCurrentQuestion(r.Context(), nid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = cur.Type
	}
	q, ok := a.buildQuestion(w, r, req)
	if !ok {
		return
	}
	q.Ref, q.CreatorID = cur.Ref, cur.CreatorID
	a.persist(w, r, q, req, http.StatusCreated)
}

// GET /questions/{nid}/{vid}
func (a *API) GetQuestion(w http.ResponseWriter, r *http.Request) {
	ref, ok := refParams(w, r)
	if !ok {
		return
	}
	q, err := a.svc.LoadQuestion(r.Context(), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	answered, err := a.svc.QuestionHasBeenAnswered(r.Context(), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question": a.view(r, rbac.ActorFromContext(r.Context()), q),
		"answered": answered,
	})
}

// DELETE /questions/{nid}/{vid}?all=1
func (a *API) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	ref, ok := refParams(w, r)
	if !ok {
		return
	}
	only := r.URL.Query().Get("all") == ""
	if err := a.svc.DeleteQuestion(r.Context(), rbac.ActorFromContext(r.Context()), ref, only); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /questions/{nid}/{vid}/answer
func (a *API) RevealAnswer(w http.ResponseWriter, r *http.Request) {
	ref, ok := refParams(w, r)
	if !ok {
		return
	}
	ans, err := a.svc.CorrectAnswer(r.Context(), rbac.ActorFromContext(r.Context()), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": ref, "answer": ans})
}

type reviseReq struct {
	FromVID int64   `json:"from_vid"`
	Quizzes []int64 `json:"quizzes"`
}

// POST /questions/{nid}/revise moves quizzes onto the current version.
func (a *API) ReviseMemberships(w http.ResponseWriter, r *http.Request) {
	nid, ok := idParam(w, r, "nid")
	if !ok {
		return
	}
	var req reviseReq
	if !decode(w, r, &req) {
		return
	}
	if req.FromVID <= 0 {
		var errs quiz.ValidationErrors
		errs.Add("from_vid", "is required")
		writeValidation(w, errs)
		return
	}
	res, err := a.svc.ReviseMemberships(r.Context(), rbac.ActorFromContext(r.Context()), nid, req.FromVID, req.Quizzes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /questions/{nid}/{vid}/memberships applies a membership diff alone.
func (a *API) ReconcileMemberships(w http.ResponseWriter, r *http.Request) {
	ref, ok := refParams(w, r)
	if !ok {
		return
	}
	var changes quiz.MembershipChanges
	if !decode(w, r, &changes) {
		return
	}
	res, err := a.svc.ReconcileMemberships(r.Context(), rbac.ActorFromContext(r.Context()), ref, changes)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func refParams(w http.ResponseWriter, r *http.Request) (quiz.VersionRef, bool) {
	nid, ok := idParam(w, r, "nid")
	if !ok {
		return quiz.VersionRef{}, false
	}
	vid, ok := idParam(w, r, "vid")
	if !ok {
		return quiz.VersionRef{}, false
	}
	return quiz.VersionRef{NID: nid, VID: vid}, true
}
