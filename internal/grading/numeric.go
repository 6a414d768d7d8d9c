package grading

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// NumericDefinition passes a response within Tolerance (absolute) or
// RelTolerance (fraction of Answer) of Answer. Both zero means exact.
type NumericDefinition struct {
	Answer       float64 `json:"answer"`
	Tolerance    float64 `json:"tolerance,omitempty"`
	RelTolerance float64 `json:"rel_tolerance,omitempty"`
	Points       int     `json:"points"`
}

func (d *NumericDefinition) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	checkPoints(&errs, d.Points)
	if d.Tolerance < 0 {
		errs.Add("tolerance", "must not be negative")
	}
	if d.RelTolerance < 0 {
		errs.Add("rel_tolerance", "must not be negative")
	}
	if math.IsNaN(d.Answer) || math.IsInf(d.Answer, 0) {
		errs.Add("answer", "must be a finite number")
	}
	return errs
}

func (d *NumericDefinition) MaximumScore() int  { return d.Points }
func (d *NumericDefinition) CorrectAnswer() any { return d.Answer }

func (d *NumericDefinition) Public() any {
	return map[string]any{"points": d.Points}
}

func (d *NumericDefinition) accepts(v float64) bool {
	diff := math.Abs(v - d.Answer)
	if diff == 0 || diff <= d.Tolerance {
		return true
	}
	return d.RelTolerance > 0 && diff <= d.RelTolerance*math.Abs(d.Answer)
}

type numericAnswer struct {
	def    *NumericDefinition
	text   string
	value  float64
	parsed bool
}

func (a *numericAnswer) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	switch {
	case strings.TrimSpace(a.text) == "":
		errs.Add("answer", "is required")
	case !a.parsed:
		errs.Add("answer", "%q is not a number", a.text)
	}
	return errs
}

func (a *numericAnswer) Score() int {
	if a.parsed && a.def.accepts(a.value) {
		return a.def.Points
	}
	return 0
}

func (a *numericAnswer) Value() any {
	if a.parsed {
		return a.value
	}
	return a.text
}

type numericType struct{}

func (numericType) Name() string { return TypeNumeric }

func (numericType) DecodeDefinition(data json.RawMessage) (quiz.Definition, error) {
	d := &NumericDefinition{Points: 1}
	if err := decodeStrict(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeAnswer takes a JSON number or a string such as "9.81 m/s2".
func (numericType) DecodeAnswer(def quiz.Definition, raw json.RawMessage) (quiz.Answer, error) {
	d, err := definitionOf[*NumericDefinition](def)
	if err != nil {
		return nil, err
	}
	a := &numericAnswer{def: d}
	if len(raw) == 0 || string(raw) == "null" {
		return a, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case json.Number:
		a.text = t.String()
	case string:
		a.text = t
	default:
		a.text = strings.TrimSpace(string(raw))
	}
	a.value, a.parsed = parseFloatLoose(a.text)
	return a, nil
}

func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil {
			return v, !math.IsNaN(v) && !math.IsInf(v, 0)
		}
	}
	return 0, false
}
