package quiz

import (
	"encoding/json"
	"sort"
	"sync"
)

// Definition is the type-specific part of a question version.
type Definition interface {
	// Validate checks the variant's own configuration.
	Validate() ValidationErrors
	// MaximumScore must be a pure function of the definition.
	MaximumScore() int
}

// AnswerKeyer is implemented by definitions that can show a correct answer.
type AnswerKeyer interface {
	CorrectAnswer() any
}

// PublicViewer renders a definition without its answer key.
type PublicViewer interface {
	Public() any
}

// Answer is one taker's raw answer bound to a question definition.
type Answer interface {
	// Score must be deterministic for the answer and definition. It is only
	// called on answers whose Validate came back empty.
	Score() int
	Validate() ValidationErrors
	Value() any
}

// CorrectnessJudge lets a variant override the default score == max rule.
type CorrectnessJudge interface {
	IsCorrect(score, maxScore int) bool
}

// ManuallyGraded answers start unevaluated and are scored by a person.
type ManuallyGraded interface {
	RequiresManualGrading() bool
	SetManualScore(points int)
}

// QuestionType decodes stored or submitted payloads for one variant.
type QuestionType interface {
	Name() string
	DecodeDefinition(data json.RawMessage) (Definition, error)
	DecodeAnswer(def Definition, raw json.RawMessage) (Answer, error)
}

// Registry maps type names to question types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]QuestionType
}

func NewRegistry(types ...QuestionType) *Registry {
	r := &Registry{types: map[string]QuestionType{}}
	for _, t := range types {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t QuestionType) {
	if t == nil || t.Name() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name()] = t
}

func (r *Registry) Lookup(name string) (QuestionType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for n := range r.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
