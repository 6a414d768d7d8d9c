package quiz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	boom := errors.New("boom")

	err := st.InTx(ctx, func(tx Store) error {
		if _, err := tx.CreateQuiz(ctx, Quiz{Title: "gone"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	list, err := st.ListQuizzes(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	id, err := st.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMemoryStoreInTxJoinsAndCommits(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	var created Quiz
	err := st.InTx(ctx, func(tx Store) error {
		return tx.InTx(ctx, func(inner Store) error {
			var err error
			created, err = inner.CreateQuiz(ctx, Quiz{Title: "kept"})
			return err
		})
	})
	require.NoError(t, err)
	got, err := st.GetQuiz(ctx, created.Ref)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
}

func TestMemoryStoreInTxHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := NewMemoryStore()
	err := st.InTx(ctx, func(tx Store) error {
		_, err := tx.CreateQuiz(ctx, Quiz{Title: "late"})
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
	list, err := st.ListQuizzes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStoreRevisions(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	q, err := st.CreateQuiz(ctx, Quiz{Title: "A"})
	require.NoError(t, err)
	child := VersionRef{NID: 50, VID: 51}
	require.NoError(t, st.InsertEdge(ctx, Edge{Parent: q.Ref, Child: child, MaxScore: 2, Weight: 1}))
	assert.Error(t, st.InsertEdge(ctx, Edge{Parent: q.Ref, Child: child}))

	next, err := StoreVersioner{}.NewQuizVersion(ctx, st, q.Ref)
	require.NoError(t, err)
	assert.Equal(t, q.Ref.NID, next.NID)

	cur, err := st.CurrentQuiz(ctx, q.Ref.NID)
	require.NoError(t, err)
	assert.Equal(t, next, cur.Ref)
	list, err := st.ListQuizzes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, next, list[0].Ref)

	copied := mustEdges(t, st, next)
	require.Len(t, copied, 1)
	assert.Equal(t, child, copied[0].Child)
	assert.Equal(t, 1, copied[0].Weight)

	require.NoError(t, st.SetEdgeMaxScore(ctx, next, child, 7))
	assert.Equal(t, 7, mustEdges(t, st, next)[0].MaxScore)
	assert.Equal(t, 2, mustEdges(t, st, q.Ref)[0].MaxScore)
	assert.True(t, IsNotFound(st.SetEdgeMaxScore(ctx, next, VersionRef{NID: 1, VID: 99}, 1)))

	ok, err := st.DeleteEdge(ctx, next, child)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.DeleteEdge(ctx, next, child)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, mustEdges(t, st, q.Ref), 1)

	_, err = st.GetQuiz(ctx, VersionRef{NID: 9, VID: 9})
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(st.SetQuizMaxScore(ctx, VersionRef{NID: 9, VID: 9}, 1)))
}

func TestMemoryStoreResponsesNeedAttempt(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	err := st.SaveResponse(ctx, ResponseRecord{AttemptID: 42, Question: VersionRef{NID: 1, VID: 2}})
	assert.True(t, IsNotFound(err))

	a, err := st.CreateAttempt(ctx, Attempt{Quiz: VersionRef{NID: 3, VID: 4}, UserID: "sam"})
	require.NoError(t, err)
	q := VersionRef{NID: 1, VID: 2}
	require.NoError(t, st.SaveResponse(ctx, ResponseRecord{AttemptID: a.ID, Question: q, Score: 1}))

	has, err := st.QuestionHasAnswers(ctx, q)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = st.QuizHasResults(ctx, a.Quiz)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, st.DeleteQuestionResponses(ctx, q))
	has, err = st.QuestionHasAnswers(ctx, q)
	require.NoError(t, err)
	assert.False(t, has)
}
