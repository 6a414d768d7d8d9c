package quiz

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors collects field-scoped messages. Empty means acceptable.
type ValidationErrors map[string][]string

func (v *ValidationErrors) Add(field, format string, args ...any) {
	if *v == nil {
		*v = ValidationErrors{}
	}
	(*v)[field] = append((*v)[field], fmt.Sprintf(format, args...))
}

// Merge copies other into v, prefixing each field with prefix + ".".
func (v *ValidationErrors) Merge(prefix string, other ValidationErrors) {
	for field, msgs := range other {
		name := field
		if prefix != "" {
			name = prefix + "." + field
		}
		for _, m := range msgs {
			v.Add(name, "%s", m)
		}
	}
}

func (v ValidationErrors) Empty() bool { return len(v) == 0 }

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(v[f], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
