package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAlphabet keeps only ASCII letters, the right class for color names.
const DefaultAlphabet = "a-z"

// Tokenizer lowercases text, splits on runs of whitespace, and strips every
// character outside the configured alphabet from each token.
type Tokenizer struct {
	strip *regexp.Regexp
}

func NewTokenizer(alphabet string) (Tokenizer, error) {
	if strings.TrimSpace(alphabet) == "" {
		alphabet = DefaultAlphabet
	}
	strip, err := regexp.Compile("[^" + alphabet + "]+")
	if err != nil {
		return Tokenizer{}, fmt.Errorf("alphabet %q: %w", alphabet, err)
	}
	return Tokenizer{strip: strip}, nil
}

// Tokenize returns the normalized tokens of text in order. Tokens that are
// empty after stripping are dropped.
func (t Tokenizer) Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := t.strip.ReplaceAllString(f, "")
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// FirstMatch scans tokens left to right and returns the first vocabulary
// member. First match wins; there is no scoring pass, which keeps latency
// flat and the result deterministic on partial text.
func (t Tokenizer) FirstMatch(text string, vocab Vocabulary) (string, bool) {
	for _, tok := range t.Tokenize(text) {
		if vocab.Contains(tok) {
			return tok, true
		}
	}
	return "", false
}
