package rbac

// Capability names checked by the quiz service and the HTTP layer.
const (
	PermQuizCreate          = "quiz:create"
	PermQuizEdit            = "quiz:edit"
	PermQuizView            = "quiz:view"
	PermQuestionCreate      = "question:create"
	PermQuestionEdit        = "question:edit"
	PermQuestionDelete      = "question:delete"
	PermQuestionViewAnswers = "question:view_answers"
	PermAttemptCreate       = "attempt:create"
	PermAttemptSave         = "attempt:save"
	PermAttemptViewOwn      = "attempt:view-own"
	PermAttemptViewAll      = "attempt:view-all"
	PermAttemptGrade        = "attempt:grade"
)

// Simple default policy. Overridden per role by RBAC_POLICY_FILE.
var RolePermissions = map[string][]string{
	"student": {
		PermQuizView,
		PermAttemptCreate,
		PermAttemptSave,
		PermAttemptViewOwn,
	},
	"teacher": {
		PermQuizView,
		PermQuizCreate,
		PermQuizEdit + "_own",
		PermQuestionCreate,
		PermQuestionEdit + "_own",
		PermQuestionDelete + "_own",
		PermAttemptCreate,
		PermAttemptSave,
		PermAttemptViewAll,
		PermAttemptGrade,
	},
	"editor": {
		"quiz:*",
		"question:*",
		PermAttemptViewAll,
		PermAttemptGrade,
	},
	"admin": {
		"*", // everything
	},
}
