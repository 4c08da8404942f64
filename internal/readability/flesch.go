package readability

import (
	"errors"
	"math"
	"strings"
	"unicode"
)

var ErrNoWords = errors.New("readability: text has no words")

// Flesch scores text with the Flesch reading-ease formula using a vowel-group
// syllable heuristic. The result is clamped to [0, 100].
type Flesch struct{}

func (Flesch) Ease(text string) (float64, error) {
	words := tokenize(text)
	if len(words) == 0 {
		return 0, ErrNoWords
	}
	sentences := countSentences(text)
	syllables := 0
	for _, w := range words {
		syllables += Syllables(w)
	}
	wps := float64(len(words)) / float64(sentences)
	spw := float64(syllables) / float64(len(words))
	score := 206.835 - 1.015*wps - 84.6*spw
	return math.Max(0, math.Min(100, score)), nil
}

func tokenize(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		w := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w != "" {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}

func countSentences(text string) int {
	n := 0
	prevTerminal := false
	for _, r := range text {
		terminal := r == '.' || r == '!' || r == '?'
		if terminal && !prevTerminal {
			n++
		}
		prevTerminal = terminal
	}
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if trimmed != "" && !strings.ContainsAny(trimmed[len(trimmed)-1:], ".!?") {
		n++
	}
	return max(n, 1)
}

// Syllables estimates the syllable count of a lower-case word.
func Syllables(word string) int {
	isVowel := func(r rune) bool { return strings.ContainsRune("aeiouy", r) }
	count := 0
	prev := false
	runes := []rune(word)
	for _, r := range runes {
		v := isVowel(r)
		if v && !prev {
			count++
		}
		prev = v
	}
	// silent trailing e, but not "-le" as in "table"
	if n := len(runes); n > 2 && runes[n-1] == 'e' && !isVowel(runes[n-2]) && runes[n-2] != 'l' {
		count--
	}
	return max(count, 1)
}
