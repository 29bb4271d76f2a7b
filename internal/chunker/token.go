package chunker

import (
	"strings"
	"unicode/utf8"
)

// TokenBudget groups sentences into chunks whose estimated token count stays
// within Budget. Tokens are estimated as characters / CharsPerToken. Each new
// chunk repeats the last third of the previous chunk's sentences.
type TokenBudget struct {
	Budget        int
	CharsPerToken int
}

func NewTokenBudget(budget, charsPerToken int) *TokenBudget {
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &TokenBudget{Budget: budget, CharsPerToken: charsPerToken}
}

func (t *TokenBudget) Segment(text string) []string {
	var (
		chunks  []string
		current []string
		size    int
	)
	for _, sentence := range t.sentences(text) {
		n := t.tokens(sentence)
		if size+n > t.Budget && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			keep := len(current) / 3
			current = append([]string(nil), current[len(current)-keep:]...)
			size = 0
			for _, s := range current {
				size += t.tokens(s)
			}
		}
		current = append(current, sentence)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

func (t *TokenBudget) tokens(s string) int {
	return utf8.RuneCountInString(s) / t.CharsPerToken
}

// sentences splits on periods and hard-splits any sentence that alone would
// exceed the budget.
func (t *TokenBudget) sentences(text string) []string {
	maxChars := t.Budget * t.CharsPerToken
	var out []string
	for _, part := range strings.Split(text, ".") {
		s := normalizeSpace(part)
		if s == "" {
			continue
		}
		s += "."
		if t.tokens(s) <= t.Budget {
			out = append(out, s)
			continue
		}
		runes := []rune(s)
		for len(runes) > 0 {
			n := min(maxChars, len(runes))
			if piece := strings.TrimSpace(string(runes[:n])); piece != "" {
				out = append(out, piece)
			}
			runes = runes[n:]
		}
	}
	return out
}
