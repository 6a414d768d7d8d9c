package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// newSQLiteStore opens a private in-memory database. The sqlite pool is
// pinned to one connection, so the database lives as long as conn.
func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLStore(conn, db.DriverSQLite, "test-site")
}

func TestSQLStoreQuizRevisions(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)

	q, err := st.CreateQuiz(ctx, Quiz{Title: "A", CreatorID: "alice", Randomization: RandomizationPartial})
	require.NoError(t, err)
	assert.Equal(t, VersionRef{NID: 1, VID: 2}, q.Ref)

	child := VersionRef{NID: 40, VID: 41}
	require.NoError(t, st.InsertEdge(ctx, Edge{Parent: q.Ref, Child: child, MaxScore: 3, Weight: 2, Mode: InclusionRandom}))
	require.NoError(t, st.InsertEdge(ctx, Edge{Parent: q.Ref, Child: VersionRef{NID: 42, VID: 43}, MaxScore: 1, Weight: 1, Mode: InclusionRandom}))
	assert.Error(t, st.InsertEdge(ctx, Edge{Parent: q.Ref, Child: child, Mode: InclusionAlways}))

	total, err := RecomputeMaxScore(ctx, st, q.Ref)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	next, err := StoreVersioner{}.NewQuizVersion(ctx, st, q.Ref)
	require.NoError(t, err)
	cur, err := st.CurrentQuiz(ctx, q.Ref.NID)
	require.NoError(t, err)
	assert.Equal(t, next, cur.Ref)
	assert.Equal(t, "A", cur.Title)
	assert.Equal(t, RandomizationPartial, cur.Randomization)
	assert.Equal(t, 4, cur.MaxScore)

	edges, err := st.EdgesForParent(ctx, next)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, 1, edges[0].Weight)
	assert.Equal(t, Edge{Parent: next, Child: child, MaxScore: 3, Weight: 2, Mode: InclusionRandom}, edges[1])

	require.NoError(t, st.SetEdgeMaxScore(ctx, q.Ref, VersionRef{NID: 42, VID: 43}, 2))
	assert.True(t, IsNotFound(st.SetEdgeMaxScore(ctx, q.Ref, VersionRef{NID: 8, VID: 9}, 2)))
	old := mustEdges(t, st, q.Ref)
	require.Len(t, old, 2)
	assert.Equal(t, 2, old[0].MaxScore)

	byQuestion, err := st.EdgesForQuestion(ctx, child.NID)
	require.NoError(t, err)
	assert.Len(t, byQuestion, 2)

	removed, err := st.DeleteEdge(ctx, next, child)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = st.DeleteEdge(ctx, next, child)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, st.LockQuizzes(ctx, []int64{q.Ref.NID}))

	list, err := st.ListQuizzes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, next, list[0].Ref)

	_, err = st.GetQuiz(ctx, VersionRef{NID: 9, VID: 9})
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(st.SetQuizMaxScore(ctx, VersionRef{NID: 9, VID: 9}, 1)))
}

func TestSQLStoreQuestionsAndProperties(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	ref := VersionRef{NID: 7, VID: 8}
	rec := QuestionRecord{Ref: ref, Type: "fake", Body: "b", CreatorID: "alice", Data: json.RawMessage(`{"points":2}`)}
	require.NoError(t, st.PutQuestion(ctx, rec))
	rec.Body = "edited"
	require.NoError(t, st.PutQuestion(ctx, rec))

	got, err := st.GetQuestion(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Body)
	assert.JSONEq(t, `{"points":2}`, string(got.Data))

	_, found, err := st.Properties(ctx, ref)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, IsNotFound(st.UpdateProperties(ctx, ref, 3)))
	require.NoError(t, st.InsertProperties(ctx, ref, 2))
	require.NoError(t, st.UpdateProperties(ctx, ref, 5))
	maxScore, found, err := st.Properties(ctx, ref)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5, maxScore)

	require.NoError(t, st.PutQuestion(ctx, QuestionRecord{Ref: VersionRef{NID: 7, VID: 12}, Type: "fake", Data: json.RawMessage(`{}`)}))
	cur, err := st.CurrentQuestion(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(12), cur.Ref.VID)
	versions, err := st.QuestionVersions(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []VersionRef{ref, {NID: 7, VID: 12}}, versions)

	require.NoError(t, st.DeleteQuestion(ctx, ref))
	_, err = st.GetQuestion(ctx, ref)
	assert.True(t, IsNotFound(err))
}

func TestSQLStoreResponses(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	q := VersionRef{NID: 1, VID: 2}
	quiz := VersionRef{NID: 3, VID: 4}

	err := st.SaveResponse(ctx, ResponseRecord{AttemptID: 99, Question: q, AnsweredAt: 1})
	assert.True(t, IsNotFound(err))

	a, err := st.CreateAttempt(ctx, Attempt{Quiz: quiz, UserID: "sam", StartedAt: 10})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	has, err := st.QuizHasResults(ctx, quiz)
	require.NoError(t, err)
	assert.True(t, has)

	manual := 3
	rec := ResponseRecord{
		AttemptID: a.ID, Question: q, Answer: json.RawMessage(`"x"`), Score: 3, ManualScore: &manual,
		IsCorrect: true, IsEvaluated: true, IsDoubtful: true, AnsweredAt: 11,
	}
	require.NoError(t, st.SaveResponse(ctx, rec))
	got, err := st.GetResponse(ctx, a.ID, q)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// upsert; a skipped response has no answer and no manual score
	skipped := ResponseRecord{AttemptID: a.ID, Question: q, IsSkipped: true, IsEvaluated: true, AnsweredAt: 12}
	require.NoError(t, st.SaveResponse(ctx, skipped))
	all, err := st.AttemptResponses(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, skipped, all[0])

	has, err = st.QuestionHasAnswers(ctx, q)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = st.QuestionInAnsweredQuiz(ctx, q)
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, st.InsertEdge(ctx, Edge{Parent: quiz, Child: q, Mode: InclusionAlways}))
	has, err = st.QuestionInAnsweredQuiz(ctx, q)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, st.FinishAttempt(ctx, a.ID, 3, 20))
	done, err := st.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, done.Finished())
	assert.Equal(t, 3, done.Score)
	assert.True(t, IsNotFound(st.FinishAttempt(ctx, 404, 0, 1)))

	require.NoError(t, st.DeleteQuestionResponses(ctx, q))
	_, err = st.GetResponse(ctx, a.ID, q)
	assert.True(t, IsNotFound(err))
}

func TestSQLStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx Store) error {
		if _, err := tx.CreateQuiz(ctx, Quiz{Title: "gone"}); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, syncx.Event{Type: syncx.TypeQuizRevised, Key: "1/2", DataJSON: "{}"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := st.ListQuizzes(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, countEvents(t, st, ""))
}

func countEvents(t *testing.T, st *SQLStore, typ string) int {
	t.Helper()
	var n int
	query, args := `SELECT COUNT(*) FROM event_log`, []any{}
	if typ != "" {
		query, args = query+` WHERE typ=$1`, []any{typ}
	}
	require.NoError(t, st.q.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

// The copy-on-write scenario end to end on sqlite.
func TestSQLStoreServiceFlow(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	svc := NewService(st, NewRegistry(fakeType{}))

	b := mustQuiz(t, svc, alice, "B", RandomizationNone)
	q := fakeQuestion(10)
	res := mustSave(t, svc, alice, q, false, addTo(b.Ref.NID))
	assert.Equal(t, []Edge{{Parent: b.Ref, Child: q.Ref, MaxScore: 10, Weight: 1, Mode: InclusionAlways}}, res.Memberships.Added)
	other := fakeQuestion(4)
	mustSave(t, svc, alice, other, false, addTo(b.Ref.NID))
	requireAggregate(t, st, b.Ref)

	att := answerOnce(t, svc, sam, b.Ref.NID, q.Ref.NID, "4")

	rr, err := svc.ReconcileMemberships(ctx, alice, q.Ref, removeFrom(b.Ref.NID))
	require.NoError(t, err)
	require.Len(t, rr.Revisions, 1)
	next := rr.Revisions[0].To
	assert.Len(t, mustEdges(t, st, b.Ref), 2)
	assert.Len(t, mustEdges(t, st, next), 1)
	requireAggregate(t, st, b.Ref)
	requireAggregate(t, st, next)

	loaded, err := svc.LoadQuestion(ctx, q.Ref)
	require.NoError(t, err)
	loaded.Body = "changed"
	saved := mustSave(t, svc, alice, loaded, false, MembershipChanges{})
	assert.True(t, saved.Forced)

	rep, err := svc.FinishAttempt(ctx, sam, att.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Ref, rep.Attempt.Quiz)
	assert.Equal(t, 10, rep.Score)
	assert.Equal(t, 14, rep.MaxScore)
	assert.Equal(t, 71, rep.Percent)

	assert.Equal(t, 1, countEvents(t, st, syncx.TypeQuizRevised))
	assert.Equal(t, 1, countEvents(t, st, syncx.TypeMembershipsReconciled))
	assert.Equal(t, 3, countEvents(t, st, syncx.TypeQuestionSaved))

	require.NoError(t, svc.DeleteQuestion(ctx, alice, other.Ref, false))
	assert.Empty(t, mustEdges(t, st, next))
	cur := mustCurrent(t, st, b.Ref.NID)
	assert.Zero(t, cur.MaxScore)
}
