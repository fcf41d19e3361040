// Package tokenizer turns free text into normalised search tokens. It
// lower-cases input, splits on non-alphanumeric boundaries, applies length
// and stop-word filtering, and de-duplicates preserving first occurrence
// order. Tokenize is deterministic and pure: the same input always yields
// the same output.
package tokenizer

import (
	"strings"
	"sync"
	"unicode"

	"github.com/shopscout/searchcore/pkg/config"
)

// memoLimit caps the memoization cache. The cache is a throughput
// optimisation only and never affects observable results.
const memoLimit = 4096

// Tokenizer holds the normalisation settings for one engine instance.
type Tokenizer struct {
	minLen    int
	maxLen    int
	stopWords map[string]struct{}
	synonyms  map[string][]string

	memoMu sync.Mutex
	memo   map[string][]string
}

// New creates a Tokenizer from immutable index settings.
func New(settings config.IndexSettings) *Tokenizer {
	stop := make(map[string]struct{}, len(settings.StopWords))
	for _, w := range settings.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	minLen := settings.MinTokenLength
	if minLen <= 0 {
		minLen = 3
	}
	maxLen := settings.MaxTokenLength
	if maxLen <= 0 {
		maxLen = 20
	}
	return &Tokenizer{
		minLen:    minLen,
		maxLen:    maxLen,
		stopWords: stop,
		synonyms:  settings.Synonyms,
		memo:      make(map[string][]string),
	}
}

// Tokenize returns the ordered, duplicate-free token sequence for text.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	t.memoMu.Lock()
	if cached, ok := t.memo[text]; ok {
		t.memoMu.Unlock()
		out := make([]string, len(cached))
		copy(out, cached)
		return out
	}
	t.memoMu.Unlock()

	tokens := t.tokenize(text)

	t.memoMu.Lock()
	if len(t.memo) >= memoLimit {
		t.memo = make(map[string][]string)
	}
	t.memo[text] = tokens
	t.memoMu.Unlock()

	out := make([]string, len(tokens))
	copy(out, tokens)
	return out
}

func (t *Tokenizer) tokenize(text string) []string {
	lowered := strings.ToLower(text)
	words := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		if n := len([]rune(word)); n < t.minLen || n > t.maxLen {
			continue
		}
		if _, isStop := t.stopWords[word]; isStop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		tokens = append(tokens, word)
	}
	return tokens
}

// Synonyms returns the configured synonym expansions for a token, or nil.
func (t *Tokenizer) Synonyms(token string) []string {
	return t.synonyms[token]
}

// MemoLen reports the current memoization cache size.
func (t *Tokenizer) MemoLen() int {
	t.memoMu.Lock()
	defer t.memoMu.Unlock()
	return len(t.memo)
}
