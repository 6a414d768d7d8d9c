package grading

import (
	"encoding/json"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type TrueFalseDefinition struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
}

func (d *TrueFalseDefinition) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	checkPoints(&errs, d.Points)
	return errs
}

func (d *TrueFalseDefinition) MaximumScore() int  { return d.Points }
func (d *TrueFalseDefinition) CorrectAnswer() any { return d.Correct }

func (d *TrueFalseDefinition) Public() any {
	return map[string]any{"points": d.Points}
}

type trueFalseAnswer struct {
	def   *TrueFalseDefinition
	value *bool
}

func (a *trueFalseAnswer) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	if a.value == nil {
		errs.Add("answer", "choose true or false")
	}
	return errs
}

func (a *trueFalseAnswer) Score() int {
	if a.value != nil && *a.value == a.def.Correct {
		return a.def.Points
	}
	return 0
}

func (a *trueFalseAnswer) Value() any {
	if a.value == nil {
		return nil
	}
	return *a.value
}

type trueFalseType struct{}

func (trueFalseType) Name() string { return TypeTrueFalse }

func (trueFalseType) DecodeDefinition(data json.RawMessage) (quiz.Definition, error) {
	d := &TrueFalseDefinition{Points: 1}
	if err := decodeStrict(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (trueFalseType) DecodeAnswer(def quiz.Definition, raw json.RawMessage) (quiz.Answer, error) {
	d, err := definitionOf[*TrueFalseDefinition](def)
	if err != nil {
		return nil, err
	}
	a := &trueFalseAnswer{def: d}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a.value); err != nil {
			return nil, err
		}
	}
	return a, nil
}
