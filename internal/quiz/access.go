package quiz

import (
	"context"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// Authorizer answers capability questions. rbac.Checker satisfies it.
type Authorizer interface {
	Allowed(actor rbac.Actor, res rbac.Resource, capability string) bool
}

// AllowAll grants everything. Used when no authorizer is configured.
type AllowAll struct{}

func (AllowAll) Allowed(rbac.Actor, rbac.Resource, string) bool { return true }

// AnswersAccessFunc is an extension point consulted when deciding whether an
// actor may see a question's correct answer. Any one returning true grants.
type AnswersAccessFunc func(ctx context.Context, actor rbac.Actor, q *Question) bool

// Observer is notified after an operation has committed.
type Observer interface {
	Reconciled(res ReconcileResult)
	ResponseSaved(questionType string, s Summary)
}
