package quiz

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answerFor(t *testing.T, q *Question, text string) (Answer, json.RawMessage) {
	t.Helper()
	raw, err := json.Marshal(text)
	require.NoError(t, err)
	ans, err := fakeType{}.DecodeAnswer(q.Definition, raw)
	require.NoError(t, err)
	return ans, raw
}

func weight(w float64) *float64 { return &w }

func TestSkippedResponseScoresZero(t *testing.T) {
	q := fakeQuestion(5)
	q.Ref = VersionRef{NID: 1, VID: 2}

	r := NewSkippedResponse(7, q)
	r.ScoreWeight = weight(2)
	assert.Equal(t, 0, r.GetScore(false))
	assert.Equal(t, 0, r.GetScore(true))
	assert.Equal(t, 10, r.GetMaxScore(true))
	assert.True(t, r.IsValid())

	// a correct answer that is then skipped still scores nothing
	st := NewMemoryStore()
	a, err := st.CreateAttempt(context.Background(), Attempt{Quiz: VersionRef{NID: 3, VID: 4}, UserID: "sam"})
	require.NoError(t, err)
	ans, raw := answerFor(t, q, "4")
	r = NewResponse(a.ID, q, ans, raw)
	require.NoError(t, r.Skip(context.Background(), st))
	assert.Equal(t, 0, r.GetScore(false))
	assert.False(t, r.IsCorrect())

	rec, err := st.GetResponse(context.Background(), a.ID, q.Ref)
	require.NoError(t, err)
	assert.True(t, rec.IsSkipped)
	assert.Zero(t, rec.Score)
}

func TestSaveClearsSkip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	a, err := st.CreateAttempt(ctx, Attempt{Quiz: VersionRef{NID: 3, VID: 4}, UserID: "sam"})
	require.NoError(t, err)
	q := fakeQuestion(5)
	q.Ref = VersionRef{NID: 1, VID: 2}
	ans, raw := answerFor(t, q, "4")
	r := NewResponse(a.ID, q, ans, raw)
	require.NoError(t, r.Skip(ctx, st))
	require.NoError(t, r.Save(ctx, st))

	assert.False(t, r.IsSkipped())
	assert.Equal(t, 5, r.GetScore(false))
	rec, err := st.GetResponse(ctx, a.ID, q.Ref)
	require.NoError(t, err)
	assert.False(t, rec.IsSkipped)
	assert.Equal(t, 5, rec.Score)
	assert.True(t, rec.IsCorrect)
}

func TestGetScoreIsMemoized(t *testing.T) {
	q := fakeQuestion(5)
	ans, raw := answerFor(t, q, "4")
	r := NewResponse(1, q, ans, raw)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 5, r.GetScore(false))
		assert.Equal(t, 5, r.GetScore(true))
	}
	assert.Equal(t, 1, ans.(*fakeAnswer).calls)
}

func TestWeightRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		name             string
		points           int
		weight           *float64
		wantScore, wantM int
	}{
		{"unweighted", 5, nil, 5, 5},
		{"half rounds up", 5, weight(0.5), 3, 3},
		{"one and a half", 3, weight(0.5), 2, 2},
		{"down", 3, weight(0.4), 1, 1},
		{"double", 3, weight(2), 6, 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := fakeQuestion(tc.points)
			ans, raw := answerFor(t, q, "4")
			r := NewResponse(1, q, ans, raw)
			r.ScoreWeight = tc.weight
			assert.Equal(t, tc.points, r.GetScore(false))
			assert.Equal(t, tc.wantScore, r.GetScore(true))
			assert.Equal(t, tc.wantM, r.GetMaxScore(true))
			// correctness compares unweighted values
			assert.True(t, r.IsCorrect())
		})
	}
	assert.Equal(t, 3, roundHalfAway(2.5))
	assert.Equal(t, -3, roundHalfAway(-2.5))
	assert.Equal(t, 2, roundHalfAway(2.49))
}

func TestIsCorrectDefaultAndOverride(t *testing.T) {
	q := fakeQuestion(5)
	ans, raw := answerFor(t, q, "5")
	wrong := NewResponse(1, q, ans, raw)
	assert.Equal(t, 0, wrong.GetScore(false))
	assert.False(t, wrong.IsCorrect())

	// PassAt makes the variant judge correctness itself.
	judged := &Question{Type: "fake", Definition: &fakeDef{Points: 5, Key: "4", Manual: true, PassAt: 3}}
	judged.MaxScore = judged.ComputeMaximumScore()
	ans, raw = answerFor(t, judged, "essay")
	r := NewResponse(1, judged, ans, raw)
	require.NoError(t, r.Grade(3))
	assert.Equal(t, 3, r.GetScore(false))
	assert.NotEqual(t, r.GetScore(false), r.GetMaxScore(false))
	assert.True(t, r.IsCorrect())
	require.NoError(t, r.Grade(2))
	assert.False(t, r.IsCorrect())
}

func TestManualGrading(t *testing.T) {
	q := &Question{Type: "fake", Ref: VersionRef{NID: 1, VID: 2}, Definition: &fakeDef{Points: 4, Manual: true}}
	q.MaxScore = q.ComputeMaximumScore()
	ans, raw := answerFor(t, q, "my essay")
	r := NewResponse(9, q, ans, raw)
	assert.False(t, r.IsEvaluated())
	assert.Equal(t, 0, r.GetScore(false))

	require.ErrorIs(t, r.Grade(5), ErrInvalid)
	require.ErrorIs(t, r.Grade(-1), ErrInvalid)
	require.NoError(t, r.Grade(3))
	assert.True(t, r.IsEvaluated())
	assert.Equal(t, 3, r.GetScore(false))

	rec := r.record()
	require.NotNil(t, rec.ManualScore)
	assert.Equal(t, 3, *rec.ManualScore)

	back, err := LoadResponse(NewRegistry(fakeType{}), q, rec)
	require.NoError(t, err)
	assert.True(t, back.IsEvaluated())
	assert.Equal(t, 3, back.GetScore(false))
	assert.Equal(t, "my essay", back.Value())

	auto := fakeQuestion(2)
	ans, raw = answerFor(t, auto, "4")
	r = NewResponse(9, auto, ans, raw)
	assert.True(t, r.IsEvaluated())
	assert.ErrorIs(t, r.Grade(1), ErrInvalid)
	assert.Nil(t, r.record().ManualScore)
}

func TestSummary(t *testing.T) {
	q := fakeQuestion(4)
	q.Ref = VersionRef{NID: 10, VID: 11}
	ans, raw := answerFor(t, q, "4")
	r := NewResponse(3, q, ans, raw)
	r.ScoreWeight = weight(0.5)
	r.SetDoubtful(true)

	assert.Equal(t, Summary{
		AttemptID:   3,
		QuestionNID: 10,
		QuestionVID: 11,
		Score:       2,
		MaxScore:    2,
		IsCorrect:   true,
		IsEvaluated: true,
		IsDoubtful:  true,
		IsValid:     true,
	}, r.Summary())
}

func TestValidateBlocksEmptyAnswer(t *testing.T) {
	q := fakeQuestion(1)
	ans, raw := answerFor(t, q, "  ")
	r := NewResponse(1, q, ans, raw)
	assert.False(t, r.IsValid())
	assert.Contains(t, r.Validate(), "answer")
}

func TestEdgeScoreWeight(t *testing.T) {
	assert.Nil(t, Edge{MaxScore: 10}.ScoreWeight(10))
	assert.Nil(t, Edge{MaxScore: 10}.ScoreWeight(0))
	w := Edge{MaxScore: 5}.ScoreWeight(10)
	require.NotNil(t, w)
	assert.InDelta(t, 0.5, *w, 1e-9)
}
