package grading

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const maxShortAnswer = 255

// Evaluation modes for short answers.
const (
	MatchCaseSensitive   = "case_sensitive"
	MatchCaseInsensitive = "case_insensitive"
	MatchRegex           = "regex"
	MatchFuzzy           = "fuzzy"
	MatchManual          = "manual"
)

// ShortAnswerDefinition compares a one-line answer against Accepted using
// Mode. In fuzzy mode a near miss within MaxEditDistance earns half points.
// Manual mode leaves scoring to a person.
type ShortAnswerDefinition struct {
	Accepted        []string `json:"accepted,omitempty"`
	Mode            string   `json:"mode"`
	Points          int      `json:"points"`
	MaxEditDistance *int     `json:"max_edit_distance,omitempty"`

	patterns []*regexp.Regexp
}

func (d *ShortAnswerDefinition) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	checkPoints(&errs, d.Points)
	switch d.Mode {
	case MatchCaseSensitive, MatchCaseInsensitive, MatchFuzzy, MatchRegex:
		n := 0
		for _, a := range d.Accepted {
			if strings.TrimSpace(a) != "" {
				n++
			}
		}
		if n == 0 {
			errs.Add("accepted", "need at least one accepted answer")
		}
	case MatchManual:
	default:
		errs.Add("mode", "unknown evaluation mode %q", d.Mode)
	}
	if d.Mode == MatchRegex {
		for _, p := range d.Accepted {
			if _, err := regexp.Compile(p); err != nil {
				errs.Add("accepted", "bad pattern %q: %v", p, err)
			}
		}
	}
	if d.MaxEditDistance != nil && *d.MaxEditDistance < 0 {
		errs.Add("max_edit_distance", "must not be negative")
	}
	return errs
}

func (d *ShortAnswerDefinition) MaximumScore() int { return d.Points }

func (d *ShortAnswerDefinition) CorrectAnswer() any {
	if d.Mode == MatchManual {
		return nil
	}
	return d.Accepted
}

func (d *ShortAnswerDefinition) Public() any {
	return map[string]any{"points": d.Points}
}

func (d *ShortAnswerDefinition) compiled() []*regexp.Regexp {
	if d.patterns == nil {
		for _, p := range d.Accepted {
			if re, err := regexp.Compile(p); err == nil {
				d.patterns = append(d.patterns, re)
			}
		}
	}
	return d.patterns
}

type shortAnswer struct {
	def     *ShortAnswerDefinition
	text    string
	maxEdit int
	manual  *int
}

func (a *shortAnswer) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	switch {
	case strings.TrimSpace(a.text) == "":
		errs.Add("answer", "is required")
	case utf8.RuneCountInString(a.text) > maxShortAnswer:
		errs.Add("answer", "must be at most %d characters", maxShortAnswer)
	}
	return errs
}

func (a *shortAnswer) Score() int {
	d := a.def
	switch d.Mode {
	case MatchManual:
		if a.manual != nil {
			return *a.manual
		}
		return 0
	case MatchCaseSensitive:
		for _, k := range d.Accepted {
			if strings.TrimSpace(a.text) == strings.TrimSpace(k) {
				return d.Points
			}
		}
	case MatchCaseInsensitive:
		if matchText(a.text, d.Accepted, 0) == exactMatch {
			return d.Points
		}
	case MatchRegex:
		for _, re := range d.compiled() {
			if re.MatchString(strings.TrimSpace(a.text)) {
				return d.Points
			}
		}
	case MatchFuzzy:
		switch matchText(a.text, d.Accepted, a.maxEdit) {
		case exactMatch:
			return d.Points
		case fuzzyMatch:
			return partial(d.Points, 1, 2)
		}
	}
	return 0
}

func (a *shortAnswer) Value() any { return a.text }

func (a *shortAnswer) RequiresManualGrading() bool { return a.def.Mode == MatchManual }
func (a *shortAnswer) SetManualScore(points int)   { a.manual = &points }

type shortAnswerType struct{ maxEdit int }

func (shortAnswerType) Name() string { return TypeShortAnswer }

func (shortAnswerType) DecodeDefinition(data json.RawMessage) (quiz.Definition, error) {
	d := &ShortAnswerDefinition{Points: 1, Mode: MatchCaseInsensitive}
	if err := decodeStrict(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (t shortAnswerType) DecodeAnswer(def quiz.Definition, raw json.RawMessage) (quiz.Answer, error) {
	d, err := definitionOf[*ShortAnswerDefinition](def)
	if err != nil {
		return nil, err
	}
	a := &shortAnswer{def: d, maxEdit: t.maxEdit}
	if d.MaxEditDistance != nil {
		a.maxEdit = *d.MaxEditDistance
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &a.text); err != nil {
			return nil, err
		}
	}
	return a, nil
}
