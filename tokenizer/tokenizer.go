// Package tokenizer provides text tokenization for gptgraph models.
//
// This package wraps the internal tokenizer implementations and provides
// a clean public API for tokenization tasks.
//
// Supported tokenizers:
//   - Char: one token per distinct rune of a training text
//   - TikToken: OpenAI BPE tokenizers (GPT-3, GPT-4)
//
// Example usage:
//
//	import "github.com/born-ml/gptgraph/tokenizer"
//
//	tok := tokenizer.NewChar(text)
//
//	// Encode text
//	ids, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Decode tokens
//	text, err := tok.Decode(ids)
//	if err != nil {
//	    log.Fatal(err)
//	}
package tokenizer

import (
	"github.com/born-ml/gptgraph/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations must implement this interface.
type Tokenizer = tokenizer.Tokenizer

// Char is a character-level tokenizer.
type Char = tokenizer.Char

// Descriptor is the persisted form of a tokenizer.
type Descriptor = tokenizer.Descriptor

// Errors returned by tokenizers.
var (
	ErrUnknownToken = tokenizer.ErrUnknownToken
	ErrUnknownType  = tokenizer.ErrUnknownType
)

// NewChar builds a character vocabulary from the distinct runes of text.
func NewChar(text string) *Char {
	return tokenizer.NewChar(text)
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
//
// Supported encodings: "cl100k_base" (GPT-4), "p50k_base" and "r50k_base" (GPT-3).
func NewTikToken(encodingName string) (Tokenizer, error) {
	tok, err := tokenizer.NewTikToken(encodingName)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Describe returns the persisted form of a tokenizer from this package.
func Describe(tok Tokenizer) (Descriptor, error) {
	return tokenizer.Describe(tok)
}
