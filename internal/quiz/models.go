package quiz

import (
	"encoding/json"
	"fmt"
)

// VersionRef pins a quiz or question to one immutable revision.
type VersionRef struct {
	NID int64 `json:"nid"`
	VID int64 `json:"vid"`
}

func (r VersionRef) IsZero() bool   { return r.NID == 0 && r.VID == 0 }
func (r VersionRef) String() string { return fmt.Sprintf("%d/%d", r.NID, r.VID) }

// InclusionMode says whether a question is always presented or drawn as part
// of a randomized subset.
type InclusionMode string

const (
	InclusionAlways InclusionMode = "always"
	InclusionRandom InclusionMode = "random"
)

// Randomization is the quiz-level randomization tier.
type Randomization int

const (
	RandomizationNone        Randomization = 0
	RandomizationOrder       Randomization = 1
	RandomizationPartial     Randomization = 2 // random subset drawn from the pool
	RandomizationCategorized Randomization = 3
)

// ModeFor returns the inclusion mode new edges get in a quiz of this tier.
func (r Randomization) ModeFor() InclusionMode {
	if r == RandomizationPartial {
		return InclusionRandom
	}
	return InclusionAlways
}

type Quiz struct {
	Ref           VersionRef    `json:"ref"`
	Title         string        `json:"title"`
	CreatorID     string        `json:"creator_id,omitempty"`
	Randomization Randomization `json:"randomization"`
	MaxScore      int           `json:"max_score"` // denormalized sum over edges
	CreatedAt     int64         `json:"created_at,omitempty"`
}

// Edge is one quiz-version -> question-version membership.
type Edge struct {
	Parent   VersionRef    `json:"parent"`
	Child    VersionRef    `json:"child"`
	MaxScore int           `json:"max_score"`
	Weight   int           `json:"weight"`
	Mode     InclusionMode `json:"mode"`
}

// ScoreWeight derives the multiplier a question's score gets inside this
// quiz. Nil when the edge does not override the question's own maximum.
func (e Edge) ScoreWeight(questionMax int) *float64 {
	if questionMax <= 0 || e.MaxScore == questionMax {
		return nil
	}
	w := float64(e.MaxScore) / float64(questionMax)
	return &w
}

type Attempt struct {
	ID         int64      `json:"id"`
	Quiz       VersionRef `json:"quiz"`
	UserID     string     `json:"user_id"`
	StartedAt  int64      `json:"started_at"`
	FinishedAt int64      `json:"finished_at,omitempty"`
	Score      int        `json:"score"`
}

func (a Attempt) Finished() bool { return a.FinishedAt != 0 }

// QuestionRecord is the stored form of a question version.
type QuestionRecord struct {
	Ref           VersionRef      `json:"ref"`
	Type          string          `json:"type"`
	Body          string          `json:"body,omitempty"`
	TitleOverride string          `json:"title_override,omitempty"`
	CreatorID     string          `json:"creator_id,omitempty"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     int64           `json:"created_at,omitempty"`
}

// ResponseRecord is the stored terminal state of one response.
type ResponseRecord struct {
	AttemptID   int64           `json:"attempt_id"`
	Question    VersionRef      `json:"question"`
	Answer      json.RawMessage `json:"answer,omitempty"`
	Score       int             `json:"score"`
	ManualScore *int            `json:"manual_score,omitempty"`
	IsCorrect   bool            `json:"is_correct"`
	IsSkipped   bool            `json:"is_skipped"`
	IsDoubtful  bool            `json:"is_doubtful"`
	IsEvaluated bool            `json:"is_evaluated"`
	AnsweredAt  int64           `json:"answered_at"`
}
