// Package tokenizer implements the deterministic text tokenizer shared by
// every text-bearing operation in the engine: BM25 indexing and search,
// belief revision, drift detection, and consolidation.
package tokenizer

import "unicode"

// stopWords is the fixed function-word list every tokenized stream is
// filtered against. Order doesn't matter; membership does.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "shall": {}, "can": {},
	"need": {}, "must": {}, "to": {}, "of": {}, "in": {}, "for": {}, "on": {},
	"with": {}, "at": {}, "by": {}, "from": {}, "as": {}, "into": {},
	"about": {}, "but": {}, "not": {}, "or": {}, "and": {}, "if": {}, "it": {},
	"its": {}, "this": {}, "that": {}, "which": {}, "who": {}, "what": {},
	"when": {}, "where": {}, "how": {}, "all": {}, "each": {}, "both": {},
	"few": {}, "more": {}, "most": {}, "other": {}, "some": {}, "such": {},
	"no": {}, "than": {}, "too": {}, "very": {}, "just": {}, "also": {},
}

// Tokenizer splits text into a normalized token stream. It is stateless
// and safe for concurrent use; the zero value is ready to use.
type Tokenizer struct{}

// New returns a ready Tokenizer.
func New() Tokenizer {
	return Tokenizer{}
}

// Tokenize lowercases text, splits on Unicode-aware non-alphanumeric
// boundaries, and drops tokens shorter than 2 runes or in the stop-word
// list. The result preserves the order tokens appear in the input.
//
// Tokenize is idempotent and has no locale or time dependence.
func (Tokenizer) Tokenize(text string) []string {
	fields := splitAlphanumeric(text)
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TermFrequencies tokenizes text and returns a token -> occurrence-count
// map.
func (t Tokenizer) TermFrequencies(text string) map[string]uint32 {
	freqs := make(map[string]uint32)
	for _, tok := range t.Tokenize(text) {
		freqs[tok]++
	}
	return freqs
}

func splitAlphanumeric(text string) []string {
	lower := []rune(toLower(text))
	var out []string
	var cur []rune
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur = append(cur, r)
			continue
		}
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func toLower(text string) string {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
