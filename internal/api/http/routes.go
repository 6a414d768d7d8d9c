// Package http exposes the quiz service over a chi router.
package http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type API struct {
	svc *quiz.Service
	log *zap.Logger
}

func New(svc *quiz.Service, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{svc: svc, log: log}
}

// Mount registers every route on r. Callers put authentication in front;
// the checker gates each route by role, and the service then applies the
// ownership-aware checks.
func (a *API) Mount(r chi.Router, c *rbac.Checker) {
	r.Route("/quizzes", func(qr chi.Router) {
		qr.With(c.Require(rbac.PermQuizView)).Get("/", a.ListQuizzes)
		qr.With(c.Require(rbac.PermQuizCreate)).Post("/", a.CreateQuiz)
		qr.With(c.Require(rbac.PermQuizView)).Get("/{nid}", a.GetQuiz)
		qr.With(c.Require(rbac.PermQuizView)).Get("/{nid}/questions", a.QuizQuestions)
	})

	r.Route("/questions", func(qr chi.Router) {
		qr.With(c.Require(rbac.PermQuestionCreate)).Post("/", a.CreateQuestion)
		qr.With(c.RequireAny(rbac.PermQuestionEdit, rbac.PermQuestionEdit+"_own")).Put("/{nid}", a.SaveQuestion)
		qr.With(c.RequireAny(rbac.PermQuestionEdit, rbac.PermQuestionEdit+"_own")).Post("/{nid}/revise", a.ReviseMemberships)
		qr.With(c.RequireAny(rbac.PermQuestionEdit, rbac.PermQuestionEdit+"_own")).Post("/{nid}/{vid}/memberships", a.ReconcileMemberships)
		qr.With(c.Require(rbac.PermQuizView)).Get("/{nid}/{vid}", a.GetQuestion)
		qr.With(c.RequireAny(rbac.PermQuestionDelete, rbac.PermQuestionDelete+"_own")).Delete("/{nid}/{vid}", a.DeleteQuestion)
		qr.Get("/{nid}/{vid}/answer", a.RevealAnswer)
	})

	r.Route("/attempts", func(ar chi.Router) {
		ar.With(c.Require(rbac.PermAttemptCreate)).Post("/", a.StartAttempt)
		ar.With(c.Require(rbac.PermAttemptSave)).Post("/{id}/responses", a.SubmitResponse)
		ar.With(c.Require(rbac.PermAttemptSave)).Post("/{id}/finish", a.FinishAttempt)
		ar.With(c.RequireAny(rbac.PermAttemptViewOwn, rbac.PermAttemptViewAll)).Get("/{id}/report", a.AttemptReport)
		ar.With(c.Require(rbac.PermAttemptGrade)).Post("/{id}/responses/{qnid}/grade", a.GradeResponse)
	})
}
