package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Response is one taker's answer to one pinned question version inside one
// attempt. The score is computed once and memoized.
type Response struct {
	AttemptID int64
	Question  *Question
	// ScoreWeight scales score and max score when the question is scored
	// inside a quiz whose edge overrides the question's maximum.
	ScoreWeight *float64

	answer    Answer
	raw       json.RawMessage
	skipped   bool
	doubtful  bool
	evaluated bool
	score     *int
}

// NewResponse binds a decoded answer to a question version. Manually graded
// answers start unevaluated.
func NewResponse(attemptID int64, q *Question, answer Answer, raw json.RawMessage) *Response {
	r := &Response{AttemptID: attemptID, Question: q, answer: answer, raw: raw, evaluated: true}
	if mg, ok := answer.(ManuallyGraded); ok && mg.RequiresManualGrading() {
		r.evaluated = false
	}
	return r
}

// NewSkippedResponse represents a question the taker passed over.
func NewSkippedResponse(attemptID int64, q *Question) *Response {
	return &Response{AttemptID: attemptID, Question: q, skipped: true, evaluated: true}
}

// roundHalfAway rounds half away from zero: 2.5 -> 3, -2.5 -> -3.
func roundHalfAway(v float64) int { return int(math.Round(v)) }

// Score is the variant's unweighted score.
func (r *Response) Score() int {
	if r.answer == nil {
		return 0
	}
	return r.answer.Score()
}

// GetScore is 0 for skipped responses, otherwise the memoized variant score,
// optionally scaled by ScoreWeight.
func (r *Response) GetScore(weightAdjusted bool) int {
	if r.skipped {
		return 0
	}
	if r.score == nil {
		s := r.Score()
		r.score = &s
	}
	if weightAdjusted && r.ScoreWeight != nil {
		return roundHalfAway(float64(*r.score) * *r.ScoreWeight)
	}
	return *r.score
}

func (r *Response) GetMaxScore(weightAdjusted bool) int {
	top := r.Question.MaxScore
	if weightAdjusted && r.ScoreWeight != nil {
		return roundHalfAway(float64(top) * *r.ScoreWeight)
	}
	return top
}

func (r *Response) IsCorrect() bool {
	score, top := r.GetScore(false), r.GetMaxScore(false)
	if j, ok := r.answer.(CorrectnessJudge); ok && !r.skipped {
		return j.IsCorrect(score, top)
	}
	return score == top
}

func (r *Response) IsEvaluated() bool { return r.evaluated }
func (r *Response) IsSkipped() bool   { return r.skipped }
func (r *Response) IsDoubtful() bool  { return r.doubtful }

func (r *Response) SetDoubtful(v bool) { r.doubtful = v }

// Validate gates attempt progression; skipped responses are always valid.
func (r *Response) Validate() ValidationErrors {
	if r.skipped || r.answer == nil {
		return nil
	}
	return r.answer.Validate()
}

func (r *Response) IsValid() bool { return r.Validate().Empty() }

// Value is the variant's view of the submitted answer.
func (r *Response) Value() any {
	if r.answer == nil {
		return nil
	}
	return r.answer.Value()
}

// Grade records a manual score and marks the response evaluated.
func (r *Response) Grade(points int) error {
	mg, ok := r.answer.(ManuallyGraded)
	if !ok || !mg.RequiresManualGrading() || r.skipped {
		return fmt.Errorf("question %s is not manually graded: %w", r.Question.Ref, ErrInvalid)
	}
	if points < 0 || points > r.Question.MaxScore {
		return fmt.Errorf("score %d outside 0..%d: %w", points, r.Question.MaxScore, ErrInvalid)
	}
	mg.SetManualScore(points)
	r.score = nil
	r.evaluated = true
	return nil
}

// Summary is the normalized projection used for reports and storage.
type Summary struct {
	AttemptID   int64 `json:"attempt_id"`
	QuestionNID int64 `json:"nid"`
	QuestionVID int64 `json:"vid"`
	Score       int   `json:"score"`
	MaxScore    int   `json:"max_score"`
	IsCorrect   bool  `json:"is_correct"`
	IsEvaluated bool  `json:"is_evaluated"`
	IsSkipped   bool  `json:"is_skipped"`
	IsDoubtful  bool  `json:"is_doubtful"`
	IsValid     bool  `json:"is_valid"`
}

func (r *Response) Summary() Summary {
	return Summary{
		AttemptID:   r.AttemptID,
		QuestionNID: r.Question.Ref.NID,
		QuestionVID: r.Question.Ref.VID,
		Score:       r.GetScore(true),
		MaxScore:    r.GetMaxScore(true),
		IsCorrect:   r.IsCorrect(),
		IsEvaluated: r.IsEvaluated(),
		IsSkipped:   r.IsSkipped(),
		IsDoubtful:  r.IsDoubtful(),
		IsValid:     r.IsValid(),
	}
}

func (r *Response) record() ResponseRecord {
	rec := ResponseRecord{
		AttemptID:   r.AttemptID,
		Question:    r.Question.Ref,
		Answer:      r.raw,
		Score:       r.GetScore(false),
		IsCorrect:   r.IsCorrect(),
		IsSkipped:   r.skipped,
		IsDoubtful:  r.doubtful,
		IsEvaluated: r.evaluated,
		AnsweredAt:  time.Now().Unix(),
	}
	if mg, ok := r.answer.(ManuallyGraded); ok && mg.RequiresManualGrading() && r.evaluated && !r.skipped {
		s := r.GetScore(false)
		rec.ManualScore = &s
	}
	return rec
}

// Save persists the terminal state. A saved response is by definition
// answered, so the skip flag is cleared first.
func (r *Response) Save(ctx context.Context, s Store) error {
	r.skipped = false
	return s.SaveResponse(ctx, r.record())
}

// Skip persists the response as skipped with a zero score.
func (r *Response) Skip(ctx context.Context, s Store) error {
	r.skipped = true
	return s.SaveResponse(ctx, r.record())
}

func (r *Response) Delete(ctx context.Context, s Store) error {
	return s.DeleteResponse(ctx, r.AttemptID, r.Question.Ref)
}

// LoadResponse rebuilds a response from its stored row.
func LoadResponse(reg *Registry, q *Question, rec ResponseRecord) (*Response, error) {
	r := &Response{
		AttemptID: rec.AttemptID,
		Question:  q,
		raw:       rec.Answer,
		skipped:   rec.IsSkipped,
		doubtful:  rec.IsDoubtful,
		evaluated: rec.IsEvaluated,
	}
	if rec.IsSkipped && len(rec.Answer) == 0 {
		return r, nil
	}
	t, ok := reg.Lookup(q.Type)
	if !ok {
		return nil, fmt.Errorf("question %s type %q: %w", q.Ref, q.Type, ErrUnknownType)
	}
	ans, err := t.DecodeAnswer(q.Definition, rec.Answer)
	if err != nil {
		return nil, fmt.Errorf("response %d/%s: decode answer: %w", rec.AttemptID, q.Ref, err)
	}
	if mg, ok := ans.(ManuallyGraded); ok && rec.ManualScore != nil {
		mg.SetManualScore(*rec.ManualScore)
	}
	r.answer = ans
	return r, nil
}
