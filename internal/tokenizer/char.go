package tokenizer

import (
	"fmt"
	"sort"
	"strings"
)

// Char is a character-level tokenizer over a fixed rune vocabulary.
type Char struct {
	runes []rune       // id -> rune
	ids   map[rune]int // rune -> id
}

// NewChar builds a vocabulary from the distinct runes of text, ordered by
// code point.
func NewChar(text string) *Char {
	seen := make(map[rune]struct{})
	for _, r := range text {
		seen[r] = struct{}{}
	}
	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	c, _ := newCharFromRunes(runes) // Distinct by construction
	return c
}

func newCharFromRunes(runes []rune) (*Char, error) {
	ids := make(map[rune]int, len(runes))
	for i, r := range runes {
		if _, dup := ids[r]; dup {
			return nil, fmt.Errorf("duplicate rune %q in vocabulary", r)
		}
		ids[r] = i
	}
	return &Char{runes: runes, ids: ids}, nil
}

// Encode converts text to token IDs. Runes outside the vocabulary are an
// error.
func (c *Char) Encode(text string) ([]int, error) {
	out := make([]int, 0, len(text))
	for i, r := range text {
		id, ok := c.ids[r]
		if !ok {
			return nil, fmt.Errorf("%w: rune %q at byte %d", ErrUnknownToken, r, i)
		}
		out = append(out, id)
	}
	return out, nil
}

// Decode converts token IDs back to text.
func (c *Char) Decode(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(c.runes) {
			return "", fmt.Errorf("%w: id %d (vocabulary size %d)", ErrUnknownToken, id, len(c.runes))
		}
		sb.WriteRune(c.runes[id])
	}
	return sb.String(), nil
}

// VocabSize returns the number of distinct runes.
func (c *Char) VocabSize() int {
	return len(c.runes)
}
