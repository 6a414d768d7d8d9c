package grading

import (
	"encoding/json"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Choice struct {
	Key     string `json:"key"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// MultiChoiceDefinition is single-select unless Multiple is set. Single
// select is worth one point, multi-select one point per correct choice.
type MultiChoiceDefinition struct {
	Choices  []Choice `json:"choices"`
	Multiple bool     `json:"multiple,omitempty"`
}

func (d *MultiChoiceDefinition) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	if len(d.Choices) < 2 {
		errs.Add("choices", "need at least two choices")
	}
	seen := map[string]bool{}
	correct := 0
	for i, c := range d.Choices {
		key := strings.TrimSpace(c.Key)
		switch {
		case key == "":
			errs.Add("choices", "choice %d has no key", i+1)
		case seen[key]:
			errs.Add("choices", "duplicate key %q", key)
		}
		seen[key] = true
		if c.Correct {
			correct++
		}
	}
	switch {
	case correct == 0:
		errs.Add("choices", "mark at least one choice correct")
	case correct > 1 && !d.Multiple:
		errs.Add("choices", "single-select questions take exactly one correct choice")
	}
	return errs
}

func (d *MultiChoiceDefinition) MaximumScore() int {
	if !d.Multiple {
		return 1
	}
	return len(d.correctKeys())
}

func (d *MultiChoiceDefinition) CorrectAnswer() any { return d.correctKeys() }

type publicChoice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

func (d *MultiChoiceDefinition) Public() any {
	choices := make([]publicChoice, len(d.Choices))
	for i, c := range d.Choices {
		choices[i] = publicChoice{Key: c.Key, Text: c.Text}
	}
	return map[string]any{"choices": choices, "multiple": d.Multiple}
}

func (d *MultiChoiceDefinition) correctKeys() []string {
	var out []string
	for _, c := range d.Choices {
		if c.Correct {
			out = append(out, c.Key)
		}
	}
	return out
}

func (d *MultiChoiceDefinition) has(key string) bool {
	for _, c := range d.Choices {
		if c.Key == key {
			return true
		}
	}
	return false
}

type multiChoiceAnswer struct {
	def          *MultiChoiceDefinition
	selected     []string
	allowPartial bool
}

func (a *multiChoiceAnswer) Validate() quiz.ValidationErrors {
	var errs quiz.ValidationErrors
	if len(a.selected) == 0 {
		errs.Add("answer", "select a choice")
		return errs
	}
	if !a.def.Multiple && len(a.selected) > 1 {
		errs.Add("answer", "select exactly one choice")
	}
	for _, k := range a.selected {
		if !a.def.has(k) {
			errs.Add("answer", "unknown choice %q", k)
		}
	}
	return errs
}

func (a *multiChoiceAnswer) tally() (hits, wrong int) {
	correct := toSet(a.def.correctKeys())
	for k := range toSet(a.selected) {
		if _, ok := correct[k]; ok {
			hits++
		} else {
			wrong++
		}
	}
	return hits, wrong
}

// Score is one point per correct pick minus one per wrong pick, never below
// zero. Without partial credit a multi-select answer is all or nothing.
func (a *multiChoiceAnswer) Score() int {
	hits, wrong := a.tally()
	if !a.def.Multiple || !a.allowPartial {
		if hits == len(a.def.correctKeys()) && wrong == 0 {
			return a.def.MaximumScore()
		}
		return 0
	}
	if s := hits - wrong; s > 0 {
		return s
	}
	return 0
}

// IsCorrect requires every correct choice and no wrong one.
func (a *multiChoiceAnswer) IsCorrect(_, _ int) bool {
	hits, wrong := a.tally()
	return wrong == 0 && hits == len(a.def.correctKeys())
}

func (a *multiChoiceAnswer) Value() any { return a.selected }

type multiChoiceType struct{ allowPartial bool }

func (multiChoiceType) Name() string { return TypeMultiChoice }

func (multiChoiceType) DecodeDefinition(data json.RawMessage) (quiz.Definition, error) {
	d := &MultiChoiceDefinition{}
	if err := decodeStrict(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeAnswer accepts a single key or a list of keys.
func (t multiChoiceType) DecodeAnswer(def quiz.Definition, raw json.RawMessage) (quiz.Answer, error) {
	d, err := definitionOf[*MultiChoiceDefinition](def)
	if err != nil {
		return nil, err
	}
	a := &multiChoiceAnswer{def: d, allowPartial: t.allowPartial}
	if len(raw) == 0 || string(raw) == "null" {
		return a, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one != "" {
			a.selected = []string{one}
		}
		return a, nil
	}
	if err := json.Unmarshal(raw, &a.selected); err != nil {
		return nil, err
	}
	return a, nil
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}
