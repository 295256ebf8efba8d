package tts

import (
	"strings"
	"unicode"
)

// MaxTokenRunes is the longest text the speech endpoint accepts per request.
const MaxTokenRunes = 100

const (
	// Split after these when followed by whitespace or end of text.
	softPunct = ".,;:?!…)]}¡¿،؛؟"
	// Split after these unconditionally.
	hardPunct = "\n。！？，、；：।"
)

// Tokenize splits text into pieces of at most MaxTokenRunes runes, cutting
// at sentence punctuation first and at whitespace when a sentence is too
// long. Adjacent short pieces are packed together to save requests.
// Pieces holding no letters or digits are dropped.
func Tokenize(text string) []string {
	var pieces []string
	for _, s := range splitSentences(text) {
		pieces = append(pieces, splitLong(s)...)
	}
	return pack(pieces)
}

func splitSentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); speakable(s) {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
		start = end
	}
	for i, r := range runes {
		switch {
		case strings.ContainsRune(hardPunct, r):
			emit(i + 1)
		case strings.ContainsRune(softPunct, r):
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				emit(i + 1)
			}
		}
	}
	emit(len(runes))
	return out
}

func speakable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func splitLong(s string) []string {
	if runeLen(s) <= MaxTokenRunes {
		return []string{s}
	}
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > MaxTokenRunes {
			flush()
			out = append(out, string(w[:MaxTokenRunes]))
			w = w[MaxTokenRunes:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > MaxTokenRunes {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
	}
	flush()
	return out
}

func pack(pieces []string) []string {
	var out []string
	for _, p := range pieces {
		if n := len(out); n > 0 && runeLen(out[n-1])+1+runeLen(p) <= MaxTokenRunes {
			out[n-1] += " " + p
			continue
		}
		out = append(out, p)
	}
	return out
}

func runeLen(s string) int { return len([]rune(s)) }
