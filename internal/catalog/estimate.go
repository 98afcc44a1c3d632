package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EstimateSize gives a rough capacity-unit count for text. It counts
// whitespace-delimited words and falls back to a character heuristic
// (~4 runes per unit) when the text has long unbroken runs.
func EstimateSize(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := (utf8.RuneCountInString(text) + 3) / 4
	if chars > words {
		return chars
	}
	return words
}

// Clip returns the longest word-aligned prefix of text whose estimate is
// at most units. It never returns more text than it was given.
func Clip(text string, units int) string {
	text = strings.TrimSpace(text)
	if units <= 0 || text == "" {
		return ""
	}
	if EstimateSize(text) <= units {
		return text
	}
	var (
		words  int
		runes  int
		end    int
		inWord bool
	)
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				size := words
				if c := (runes + 3) / 4; c > size {
					size = c
				}
				if size > units {
					break
				}
				end = i
			}
			inWord = false
			runes++
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
		runes++
	}
	return strings.TrimSpace(text[:end])
}
