package tokenizer

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnknownToken = errors.New("unknown token")
	ErrUnknownType  = errors.New("unknown tokenizer type")
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int, error)

	// Decode converts token IDs back to text.
	Decode(ids []int) (string, error)

	// VocabSize returns the total vocabulary size. Every id produced by
	// Encode is below it.
	VocabSize() int
}

// Tokenizer types recorded in a Descriptor.
const (
	TypeChar     = "char"
	TypeTikToken = "tiktoken"
)

// Descriptor is the persisted form of a tokenizer.
type Descriptor struct {
	Type     string   `json:"type"`
	Encoding string   `json:"encoding,omitempty"` // TikToken encoding name
	Vocab    []string `json:"vocab,omitempty"`    // Char vocabulary in id order
}

// Describe returns the descriptor of a tokenizer created by this package.
func Describe(tok Tokenizer) (Descriptor, error) {
	switch t := tok.(type) {
	case *Char:
		vocab := make([]string, len(t.runes))
		for i, r := range t.runes {
			vocab[i] = string(r)
		}
		return Descriptor{Type: TypeChar, Vocab: vocab}, nil
	case *TikToken:
		return Descriptor{Type: TypeTikToken, Encoding: t.name}, nil
	default:
		return Descriptor{}, fmt.Errorf("%w: %T", ErrUnknownType, tok)
	}
}

// Tokenizer rebuilds the described tokenizer.
func (d Descriptor) Tokenizer() (Tokenizer, error) {
	switch d.Type {
	case TypeChar:
		runes := make([]rune, len(d.Vocab))
		for i, s := range d.Vocab {
			r := []rune(s)
			if len(r) != 1 {
				return nil, fmt.Errorf("char vocabulary entry %d: %q is not a single rune", i, s)
			}
			runes[i] = r[0]
		}
		c, err := newCharFromRunes(runes)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TypeTikToken:
		t, err := NewTikToken(d.Encoding)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
	}
}
