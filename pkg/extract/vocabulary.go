package extract

import (
	"errors"
	"sort"
	"strings"

	"github.com/colorcue/colorcue/pkg/errorsx"
)

// Vocabulary is an immutable set of recognized labels. Matching is
// case-insensitive and exact per token; normalization happens once here so
// the per-segment hot path is a plain map lookup.
type Vocabulary struct {
	labels map[string]struct{}
}

func NewVocabulary(labels ...string) (Vocabulary, error) {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		set[l] = struct{}{}
	}
	if len(set) == 0 {
		return Vocabulary{}, errorsx.Wrap(errors.New("vocabulary has no labels"), errorsx.ReasonVocabularyEmpty)
	}
	return Vocabulary{labels: set}, nil
}

// MustVocabulary panics on an empty vocabulary; for fixed literal sets.
func MustVocabulary(labels ...string) Vocabulary {
	v, err := NewVocabulary(labels...)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Vocabulary) Contains(label string) bool {
	_, ok := v.labels[label]
	return ok
}

func (v Vocabulary) Len() int { return len(v.labels) }

// Labels returns the normalized labels in sorted order.
func (v Vocabulary) Labels() []string {
	out := make([]string, 0, len(v.labels))
	for l := range v.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
