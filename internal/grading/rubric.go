package grading

import (
	"fmt"
	"math"
	"strings"
)

type Rubric struct {
	Criteria []Criterion `json:"criteria"`
}

type Criterion struct {
	Key       string `json:"key"`
	Desc      string `json:"desc"`
	MaxPoints int    `json:"max_points"`
}

func (r Rubric) Total() int {
	total := 0
	for _, c := range r.Criteria {
		total += c.MaxPoints
	}
	return total
}

// Score clamps each awarded value to its criterion and sums them, capped at
// limit. The sum is rounded half away from zero.
func (r Rubric) Score(awarded map[string]float64, limit int) (int, []string) {
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := math.Min(math.Max(awarded[c.Key], 0), float64(c.MaxPoints))
		total += v
		notes = append(notes, fmt.Sprintf("%s:%.2f", c.Key, v))
	}
	score := int(math.Round(total))
	if score > limit {
		score = limit
	}
	return score, notes
}

func (r Rubric) unknown(awarded map[string]float64) []string {
	known := map[string]bool{}
	for _, c := range r.Criteria {
		known[c.Key] = true
	}
	var out []string
	for k := range awarded {
		if !known[k] {
			out = append(out, k)
		}
	}
	return out
}

func (r Rubric) validate() []string {
	var probs []string
	seen := map[string]bool{}
	for i, c := range r.Criteria {
		key := strings.TrimSpace(c.Key)
		if key == "" {
			probs = append(probs, fmt.Sprintf("criterion %d has no key", i+1))
		} else if seen[key] {
			probs = append(probs, fmt.Sprintf("duplicate criterion %q", key))
		}
		seen[key] = true
		if c.MaxPoints < 0 {
			probs = append(probs, fmt.Sprintf("criterion %q has negative points", key))
		}
	}
	return probs
}
