// Package moderation censors message text before it is stored.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks blacklisted words, including spellings hidden behind
// leet characters, casing or interleaved punctuation.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

// normalized keeps, for each searchable rune, its index in the original text.
type normalized struct {
	runes   []rune
	origIdx []int
}

func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if p := normalize([]rune(word)).runes; len(p) > 0 {
			patterns = append(patterns, p)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	log.Debug("Moderator ready", "patterns", len(patterns))
	return &Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// Censor replaces every rune of a match, noise included, with the censored
// character. Untouched runes keep their position.
func (m *Moderator) Censor(original string) string {
	origRunes := []rune(original)
	text := normalize(origRunes)
	if len(text.runes) == 0 {
		return original
	}

	terms := m.matcher.MultiPatternSearch(text.runes, false)
	if len(terms) == 0 {
		return original
	}
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(text.origIdx) {
			continue
		}
		for i := text.origIdx[start]; i <= text.origIdx[end-1]; i++ {
			origRunes[i] = m.censoredChar
		}
	}
	m.log.Debug("Text censored", "matches", len(terms))
	return string(origRunes)
}

func normalize(input []rune) normalized {
	out := normalized{
		runes:   make([]rune, 0, len(input)),
		origIdx: make([]int, 0, len(input)),
	}
	for i, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out.runes = append(out.runes, unicode.ToLower(clean))
		out.origIdx = append(out.origIdx, i)
	}
	return out
}

// simplifyRune maps leet speak characters back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
