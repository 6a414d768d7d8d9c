package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

/* ---------------- fake question type ---------------- */

// fakeDef scores Points when the answer equals Key. Manual definitions are
// scored by a grader; PassAt switches on a correctness override.
type fakeDef struct {
	Points int    `json:"points"`
	Key    string `json:"key"`
	Manual bool   `json:"manual,omitempty"`
	PassAt int    `json:"pass_at,omitempty"`
}

func (d *fakeDef) Validate() ValidationErrors {
	var errs ValidationErrors
	if d.Points < 0 {
		errs.Add("points", "must not be negative")
	}
	return errs
}

func (d *fakeDef) MaximumScore() int  { return d.Points }
func (d *fakeDef) CorrectAnswer() any { return d.Key }
func (d *fakeDef) Public() any        { return map[string]int{"points": d.Points} }

type fakeAnswer struct {
	def    *fakeDef
	text   string
	manual *int
	calls  int
}

func (a *fakeAnswer) Score() int {
	a.calls++
	switch {
	case a.manual != nil:
		return *a.manual
	case a.def.Manual:
		return 0
	case a.text == a.def.Key:
		return a.def.Points
	}
	return 0
}

func (a *fakeAnswer) Validate() ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(a.text) == "" {
		errs.Add("answer", "is required")
	}
	return errs
}

func (a *fakeAnswer) Value() any                  { return a.text }
func (a *fakeAnswer) RequiresManualGrading() bool { return a.def.Manual }
func (a *fakeAnswer) SetManualScore(points int)   { a.manual = &points }

// judgedAnswer is correct once it reaches PassAt.
type judgedAnswer struct{ *fakeAnswer }

func (a judgedAnswer) IsCorrect(score, _ int) bool { return score >= a.def.PassAt }

type fakeType struct{}

func (fakeType) Name() string { return "fake" }

func (fakeType) DecodeDefinition(data json.RawMessage) (Definition, error) {
	var d fakeDef
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (fakeType) DecodeAnswer(def Definition, raw json.RawMessage) (Answer, error) {
	d, ok := def.(*fakeDef)
	if !ok {
		return nil, errors.New("not a fake definition")
	}
	a := &fakeAnswer{def: d}
	if err := json.Unmarshal(raw, &a.text); err != nil {
		return nil, err
	}
	if d.PassAt > 0 {
		return judgedAnswer{a}, nil
	}
	return a, nil
}

/* ---------------- fixtures ---------------- */

var (
	alice   = rbac.Actor{ID: "alice", Role: "teacher"}
	bob     = rbac.Actor{ID: "bob", Role: "teacher"}
	sam     = rbac.Actor{ID: "sam", Role: "student"}
	nina    = rbac.Actor{ID: "nina", Role: "student"}
	ed      = rbac.Actor{ID: "ed", Role: "editor"}
	nobody  = rbac.Actor{}
	fixedTS = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	st := NewMemoryStore()
	opts = append([]Option{WithClock(func() time.Time { return fixedTS })}, opts...)
	return NewService(st, NewRegistry(fakeType{}), opts...), st
}

// newRBACService enforces the default role table.
func newRBACService(t *testing.T, opts ...Option) (*Service, *MemoryStore) {
	t.Helper()
	return newTestService(t, append([]Option{WithAuthorizer(rbac.NewChecker(nil))}, opts...)...)
}

func fakeQuestion(points int) *Question {
	return &Question{Type: "fake", Body: "2 + 2 = ?", MaxScore: points, Definition: &fakeDef{Points: points, Key: "4"}}
}

func mustQuiz(t *testing.T, svc *Service, actor rbac.Actor, title string, tier Randomization) Quiz {
	t.Helper()
	q, err := svc.CreateQuiz(context.Background(), actor, title, tier)
	require.NoError(t, err)
	return q
}

func mustSave(t *testing.T, svc *Service, actor rbac.Actor, q *Question, newVersion bool, changes MembershipChanges) SaveResult {
	t.Helper()
	res, err := svc.PersistQuestion(context.Background(), actor, q, newVersion, changes)
	require.NoError(t, err)
	require.True(t, res.Errors.Empty(), "validation: %v", res.Errors)
	return res
}

func addTo(nids ...int64) MembershipChanges { return MembershipChanges{AddFromCandidates: nids} }

func removeFrom(nid int64) MembershipChanges {
	return MembershipChanges{KeepOrRemove: []MembershipDecision{{QuizNID: nid, Keep: false}}}
}

func mustCurrent(t *testing.T, st Store, nid int64) Quiz {
	t.Helper()
	q, err := st.CurrentQuiz(context.Background(), nid)
	require.NoError(t, err)
	return q
}

func mustEdges(t *testing.T, st Store, parent VersionRef) []Edge {
	t.Helper()
	edges, err := st.EdgesForParent(context.Background(), parent)
	require.NoError(t, err)
	return edges
}

// answerOnce starts an attempt on the quiz and submits one answer, which
// marks the quiz's current revision as answered.
func answerOnce(t *testing.T, svc *Service, actor rbac.Actor, quizNID, questionNID int64, answer string) Attempt {
	t.Helper()
	ctx := context.Background()
	a, err := svc.StartAttempt(ctx, actor, quizNID)
	require.NoError(t, err)
	raw, _ := json.Marshal(answer)
	res, err := svc.SubmitResponse(ctx, actor, a.ID, questionNID, raw, false)
	require.NoError(t, err)
	require.True(t, res.Errors.Empty(), "submit: %v", res.Errors)
	return a
}

// requireAggregate checks that a quiz revision's cached max score is the sum
// of its edges.
func requireAggregate(t *testing.T, st Store, ref VersionRef) {
	t.Helper()
	q, err := st.GetQuiz(context.Background(), ref)
	require.NoError(t, err)
	sum := 0
	for _, e := range mustEdges(t, st, ref) {
		sum += e.MaxScore
	}
	require.Equal(t, sum, q.MaxScore, "quiz %s", ref)
}
