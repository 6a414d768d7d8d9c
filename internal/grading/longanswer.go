package grading

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// LongAnswerDefinition is an essay question scored by a person. With a
// rubric the maximum is the rubric total, otherwise Points. PassPoints, when
// set, is the score at which a response counts as correct.
type LongAnswerDefinition struct {
	Points     int     `json:"points"`
	PassPoints int     `json:"pass_points,omitempty"`
	MinWords   int     `json:"min_words,omitempty"`
	Rubric     *Rubric `json:"rubric,omitempty"`
}

func (d *LongAnswerDefinition) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	top := d.MaximumScore()
	if d.Rubric == nil {
		checkPoints(&errs, d.Points)
	}
	if d.PassPoints < 0 || d.PassPoints > top {
		errs.Add("pass_points", "must be between 0 and %d", top)
	}
	if d.MinWords < 0 {
		errs.Add("min_words", "must not be negative")
	}
	if d.Rubric != nil {
		for _, p := range d.Rubric.validate() {
			errs.Add("rubric", "%s", p)
		}
		if d.Rubric.Total() < 1 {
			errs.Add("rubric", "criteria must add up to at least 1 point")
		}
	}
	return errs
}

func (d *LongAnswerDefinition) MaximumScore() int {
	if d.Rubric != nil {
		return d.Rubric.Total()
	}
	return d.Points
}

func (d *LongAnswerDefinition) Public() any {
	return d
}

// ScoreCriteria turns per-criterion marks into points using the rubric.
func (d *LongAnswerDefinition) ScoreCriteria(awarded map[string]float64) (int, []string, error) {
	if d.Rubric == nil {
		return 0, nil, fmt.Errorf("question has no rubric: %w", quiz.ErrInvalid)
	}
	if bad := d.Rubric.unknown(awarded); len(bad) > 0 {
		sort.Strings(bad)
		return 0, nil, fmt.Errorf("unknown criteria %s: %w", strings.Join(bad, ", "), quiz.ErrInvalid)
	}
	score, notes := d.Rubric.Score(awarded, d.MaximumScore())
	return score, notes, nil
}

type longAnswer struct {
	def    *LongAnswerDefinition
	text   string
	manual *int
}

func (a *longAnswer) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	words := len(strings.Fields(a.text))
	switch {
	case words == 0:
		errs.Add("answer", "is required")
	case words < a.def.MinWords:
		errs.Add("answer", "needs at least %d words, got %d", a.def.MinWords, words)
	}
	return errs
}

func (a *longAnswer) Score() int {
	if a.manual == nil {
		return 0
	}
	return *a.manual
}

func (a *longAnswer) Value() any { return a.text }

func (a *longAnswer) RequiresManualGrading() bool { return true }
func (a *longAnswer) SetManualScore(points int)   { a.manual = &points }

func (a *longAnswer) IsCorrect(score, top int) bool {
	if a.def.PassPoints > 0 {
		return a.manual != nil && score >= a.def.PassPoints
	}
	return a.manual != nil && score == top
}

type longAnswerType struct{}

func (longAnswerType) Name() string { return TypeLongAnswer }

func (longAnswerType) DecodeDefinition(data json.RawMessage) (quiz.Definition, error) {
	d := &LongAnswerDefinition{Points: 1}
	if err := decodeStrict(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (longAnswerType) DecodeAnswer(def quiz.Definition, raw json.RawMessage) (quiz.Answer, error) {
	d, err := definitionOf[*LongAnswerDefinition](def)
	if err != nil {
		return nil, err
	}
	a := &longAnswer{def: d}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &a.text); err != nil {
			return nil, err
		}
	}
	return a, nil
}
