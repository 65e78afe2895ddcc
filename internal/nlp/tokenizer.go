// Package nlp implements the tokenizer, pipeline components, and model
// artifacts behind recognition: a naive Bayes text categorizer and a
// gazetteer/regex entity recognizer.
package nlp

import (
	"strings"
	"unicode"
)

// Token is a slice of the input text. Start and End are rune offsets,
// End exclusive.
type Token struct {
	Text  string `json:"text"`
	Norm  string `json:"norm"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// IsPunct reports whether the token is a single non-word rune.
func (t Token) IsPunct() bool {
	for _, r := range t.Text {
		return !isWordRune(r)
	}
	return false
}

// Tokenize splits text into word and punctuation tokens. A word is a run
// of letters, digits, marks, or underscores, and may contain apostrophes
// between word runes ("don't"). Every other non-space rune is a token of
// its own.
func Tokenize(text string) []Token {
	runes := []rune(text)
	tokens := make([]Token, 0, len(runes)/4+1)

	for i := 0; i < len(runes); {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}

		start := i
		if isWordRune(r) {
			i++
			for i < len(runes) {
				if isWordRune(runes[i]) {
					i++
					continue
				}
				if isApostrophe(runes[i]) && i+1 < len(runes) && isWordRune(runes[i+1]) {
					i += 2
					continue
				}
				break
			}
		} else {
			i++
		}

		s := string(runes[start:i])
		tokens = append(tokens, Token{
			Text:  s,
			Norm:  normalize(s),
			Start: start,
			End:   i,
		})
	}

	return tokens
}

// Norms returns the normalized form of every token.
func Norms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Norm
	}
	return out
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "’", "'")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}
