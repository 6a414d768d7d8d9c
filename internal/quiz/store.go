package quiz

import (
	"context"

	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// Store is the persistence collaborator. Lookups of missing rows return an
// error wrapping ErrNotFound; Properties reports absence with found=false.
type Store interface {
	// NextID hands out ids from one sequence shared by nids and vids.
	NextID(ctx context.Context) (int64, error)

	CreateQuiz(ctx context.Context, q Quiz) (Quiz, error) // allocates nid/vid when Ref is zero
	InsertQuizVersion(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, ref VersionRef) (Quiz, error)
	CurrentQuiz(ctx context.Context, nid int64) (Quiz, error)
	ListQuizzes(ctx context.Context) ([]Quiz, error) // current versions only
	SetQuizMaxScore(ctx context.Context, ref VersionRef, score int) error
	// LockQuizzes serializes writers of the given quizzes for the rest of
	// the transaction. nids must be sorted.
	LockQuizzes(ctx context.Context, nids []int64) error

	PutQuestion(ctx context.Context, rec QuestionRecord) error
	GetQuestion(ctx context.Context, ref VersionRef) (QuestionRecord, error)
	CurrentQuestion(ctx context.Context, nid int64) (QuestionRecord, error)
	QuestionVersions(ctx context.Context, nid int64) ([]VersionRef, error)
	DeleteQuestion(ctx context.Context, ref VersionRef) error

	InsertProperties(ctx context.Context, ref VersionRef, maxScore int) error
	UpdateProperties(ctx context.Context, ref VersionRef, maxScore int) error
	Properties(ctx context.Context, ref VersionRef) (maxScore int, found bool, err error)
	DeleteProperties(ctx context.Context, ref VersionRef) error

	EdgesForParent(ctx context.Context, parent VersionRef) ([]Edge, error)
	EdgesForChild(ctx context.Context, child VersionRef) ([]Edge, error)
	EdgesForQuestion(ctx context.Context, nid int64) ([]Edge, error)
	InsertEdge(ctx context.Context, e Edge) error
	DeleteEdge(ctx context.Context, parent, child VersionRef) (bool, error)
	SetEdgeMaxScore(ctx context.Context, parent, child VersionRef, maxScore int) error

	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	GetAttempt(ctx context.Context, id int64) (Attempt, error)
	FinishAttempt(ctx context.Context, id int64, score int, at int64) error
	QuizHasResults(ctx context.Context, quiz VersionRef) (bool, error)
	QuestionHasAnswers(ctx context.Context, question VersionRef) (bool, error)
	QuestionInAnsweredQuiz(ctx context.Context, question VersionRef) (bool, error)

	SaveResponse(ctx context.Context, rec ResponseRecord) error
	GetResponse(ctx context.Context, attemptID int64, question VersionRef) (ResponseRecord, error)
	AttemptResponses(ctx context.Context, attemptID int64) ([]ResponseRecord, error)
	DeleteResponse(ctx context.Context, attemptID int64, question VersionRef) error
	DeleteQuestionResponses(ctx context.Context, question VersionRef) error

	AppendEvent(ctx context.Context, e syncx.Event) error

	// InTx runs fn against a transactional view of the store. Either every
	// write made through tx becomes visible or none does. Calling InTx on a
	// transactional view joins the running transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
