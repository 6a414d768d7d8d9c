package quiz

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxTitleOverride = 255

// Question is one question version: shared fields plus the type-specific
// Definition. A version with responses is never edited in place.
type Question struct {
	Ref           VersionRef `json:"ref"`
	Type          string     `json:"type"`
	Body          string     `json:"body,omitempty"`
	TitleOverride string     `json:"title_override,omitempty"`
	CreatorID     string     `json:"creator_id,omitempty"`
	MaxScore      int        `json:"max_score"`
	Definition    Definition `json:"definition"`
}

// ComputeMaximumScore asks the variant for its scoring ceiling.
func (q *Question) ComputeMaximumScore() int {
	if q.Definition == nil {
		return 0
	}
	return q.Definition.MaximumScore()
}

// Validate returns field-scoped problems with the question as submitted.
func (q *Question) Validate() ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(q.Type) == "" {
		errs.Add("type", "is required")
	}
	if utf8.RuneCountInString(q.TitleOverride) > maxTitleOverride {
		errs.Add("title_override", "must be at most %d characters", maxTitleOverride)
	}
	if q.Definition == nil {
		errs.Add("definition", "is required")
		return errs
	}
	errs.Merge("", q.Definition.Validate())
	if errs.Empty() && q.ComputeMaximumScore() < 0 {
		errs.Add("max_score", "must not be negative")
	}
	return errs
}

// CorrectAnswer returns the variant's answer key, or nil if it has none.
func (q *Question) CorrectAnswer() any {
	if k, ok := q.Definition.(AnswerKeyer); ok {
		return k.CorrectAnswer()
	}
	return nil
}

// PublicDefinition is what a taker may see of the definition: the
// variant's public view, or nothing when it has none.
func (q *Question) PublicDefinition() any {
	if v, ok := q.Definition.(PublicViewer); ok {
		return v.Public()
	}
	return nil
}

func (q *Question) record(createdAt int64) (QuestionRecord, error) {
	data, err := json.Marshal(q.Definition)
	if err != nil {
		return QuestionRecord{}, fmt.Errorf("encode %s definition: %w", q.Type, err)
	}
	return QuestionRecord{
		Ref:           q.Ref,
		Type:          q.Type,
		Body:          q.Body,
		TitleOverride: q.TitleOverride,
		CreatorID:     q.CreatorID,
		Data:          data,
		CreatedAt:     createdAt,
	}, nil
}

// DecodeQuestion builds a Question from its stored record.
func DecodeQuestion(reg *Registry, rec QuestionRecord) (*Question, error) {
	t, ok := reg.Lookup(rec.Type)
	if !ok {
		return nil, fmt.Errorf("question %s type %q: %w", rec.Ref, rec.Type, ErrUnknownType)
	}
	def, err := t.DecodeDefinition(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("question %s: decode %s: %w", rec.Ref, rec.Type, err)
	}
	return &Question{
		Ref:           rec.Ref,
		Type:          rec.Type,
		Body:          rec.Body,
		TitleOverride: rec.TitleOverride,
		CreatorID:     rec.CreatorID,
		MaxScore:      def.MaximumScore(),
		Definition:    def,
	}, nil
}
