package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Moderator masks forbidden words in message text. Matching ignores case,
// punctuation and spacing, and reads common leet substitutions as letters,
// so "B.4.d.g.€r" matches "badger".
type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

// NewModerator builds the automaton over the folded forms of words. Words that
// fold to nothing are skipped; with no usable word the moderator is a no-op.
func NewModerator(words []string, replacement rune, log *slog.Logger) (*Moderator, error) {
	patterns := lo.FilterMap(lo.Uniq(words), func(word string, _ int) ([]rune, bool) {
		folded, _ := fold([]rune(word))
		if len(folded) == 0 {
			log.Debug("Ignoring censored word without letters", "word", word)
		}
		return folded, len(folded) > 0
	})

	moderator := &Moderator{replacement: replacement, log: log}
	if len(patterns) == 0 {
		return moderator, nil
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	moderator.machine = machine
	log.Debug("Moderator ready", "words", len(patterns))
	return moderator, nil
}

// Censor replaces every original rune covered by a match, noise included,
// and returns the dictionary words it found.
func (m *Moderator) Censor(text string) (string, []string) {
	if m.machine == nil {
		return text, nil
	}
	runes := []rune(text)
	folded, positions := fold(runes)
	if len(folded) == 0 {
		return text, nil
	}

	var found []string
	for _, term := range m.machine.MultiPatternSearch(folded, false) {
		end := term.Pos + len(term.Word)
		if term.Pos < 0 || end > len(positions) {
			continue
		}
		for i := positions[term.Pos]; i <= positions[end-1]; i++ {
			runes[i] = m.replacement
		}
		found = append(found, string(term.Word))
	}
	if len(found) == 0 {
		return text, nil
	}
	return string(runes), found
}

// fold lowercases runes, maps leet characters to letters and drops noise.
// positions[i] is the index in runes of folded[i].
func fold(runes []rune) (folded []rune, positions []int) {
	folded = make([]rune, 0, len(runes))
	positions = make([]int, 0, len(runes))
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return folded, positions
}

func unleet(r rune) rune {
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
	}
	return r
}
