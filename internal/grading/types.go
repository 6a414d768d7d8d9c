// Package grading provides the built-in question types: true/false,
// multiple choice, short answer, numeric and manually graded long answer.
package grading

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const (
	TypeTrueFalse   = "truefalse"
	TypeMultiChoice = "multichoice"
	TypeShortAnswer = "short_answer"
	TypeNumeric     = "numeric"
	TypeLongAnswer  = "long_answer"
)

type Option func(*config)

type config struct {
	MaxEditDistance   int  // default fuzzy distance for short answers
	AllowPartialMulti bool // partial credit for multi-select without false positives
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }
func WithPartialMulti(b bool) Option   { return func(c *config) { c.AllowPartialMulti = b } }

// Types returns every built-in question type.
func Types(opts ...Option) []quiz.QuestionType {
	cfg := &config{
		MaxEditDistance:   1,
		AllowPartialMulti: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	return []quiz.QuestionType{
		trueFalseType{},
		multiChoiceType{allowPartial: cfg.AllowPartialMulti},
		shortAnswerType{maxEdit: cfg.MaxEditDistance},
		numericType{},
		longAnswerType{},
	}
}

// NewRegistry is a registry preloaded with the built-in types.
func NewRegistry(opts ...Option) *quiz.Registry {
	return quiz.NewRegistry(Types(opts...)...)
}

var errWrongDefinition = errors.New("definition belongs to another question type")

// decodeStrict rejects unknown fields so a misspelt option is reported
// instead of silently falling back to its default.
func decodeStrict(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after definition")
	}
	return nil
}

func checkPoints(errs *quiz.ValidationErrors, points int) {
	if points < 1 {
		errs.Add("points", "must be at least 1")
	}
}

// partial scales points by num/den, rounding half away from zero.
func partial(points, num, den int) int {
	if den == 0 {
		return 0
	}
	return int(math.Round(float64(points) * float64(num) / float64(den)))
}

func definitionOf[T any](def quiz.Definition) (T, error) {
	d, ok := def.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%T: %w", def, errWrongDefinition)
	}
	return d, nil
}
