package processor

import (
	"math"
	"strings"
	"unicode"
)

// textStats is the readability profile of a block of text.
type textStats struct {
	Words     int
	Sentences int
	Syllables int
}

func analyzeText(text string) textStats {
	ws := words(text)
	s := textStats{Words: len(ws)}
	for _, w := range ws {
		s.Syllables += syllables(w)
	}
	s.Sentences = strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	if s.Sentences == 0 && s.Words > 0 {
		s.Sentences = 1
	}
	return s
}

// ReadingEase is the Flesch reading ease score, higher is easier.
func (s textStats) ReadingEase() float64 {
	if s.Words == 0 || s.Sentences == 0 {
		return 0
	}
	ease := 206.835 - 1.015*float64(s.Words)/float64(s.Sentences) - 84.6*float64(s.Syllables)/float64(s.Words)
	return math.Round(ease*10) / 10
}

// syllables approximates the syllable count of an English word by counting vowel groups.
func syllables(word string) int {
	w := strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range w {
		v := strings.ContainsRune("aeiouy", r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	if count == 0 {
		return 1
	}
	return count
}

// occurrences counts case-insensitive whole-word matches of phrase in text.
func occurrences(text, phrase string) int {
	needle := words(strings.ToLower(phrase))
	if len(needle) == 0 {
		return 0
	}
	hay := words(strings.ToLower(text))
	n := 0
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

func containsPhrase(text, phrase string) bool {
	return occurrences(text, phrase) > 0
}

func normalizeKeyword(k string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(k), unicode.IsSpace), " ")
}
