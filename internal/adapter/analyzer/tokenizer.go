package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into case-folded terms. Any rune that is not a letter
// or digit is a boundary, so punctuation and whitespace never reach the index.
// Every term is kept: no stop list, no minimum length, no stemming, so BM25
// document frequencies count exactly what the text says.
type Tokenizer struct{}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// splitWords splits text on every rune that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
