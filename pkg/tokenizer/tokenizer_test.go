package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeDropsStopWordsAndShortTokens(t *testing.T) {
	tok := New()
	got := tok.Tokenize("The Rust developer is a fan of Go, and of C!")
	assert.Equal(t, []string{"rust", "developer", "fan", "go"}, got)
}

func TestTokenizeIsIdempotent(t *testing.T) {
	tok := New()
	text := "Database cannot handle concurrent writes perfectly."
	require.Equal(t, tok.Tokenize(text), tok.Tokenize(text))
}

func TestTokenizeUnicodeBoundaries(t *testing.T) {
	tok := New()
	got := tok.Tokenize("café-bar_baz中文test")
	assert.Contains(t, got, "café")
	assert.Contains(t, got, "bar")
	assert.Contains(t, got, "baz中文test")
}

func TestTermFrequencies(t *testing.T) {
	tok := New()
	freqs := tok.TermFrequencies("quantum quantum project project project")
	assert.Equal(t, uint32(2), freqs["quantum"])
	assert.Equal(t, uint32(3), freqs["project"])
}

func TestTokenizeEmpty(t *testing.T) {
	tok := New()
	assert.Empty(t, tok.Tokenize(""))
	assert.Empty(t, tok.Tokenize("a an is"))
}
