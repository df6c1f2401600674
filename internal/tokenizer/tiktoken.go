package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingR50kBase is the encoding name for older GPT-3 models.
	encodingR50kBase = "r50k_base"
)

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// Supported encodings:
//   - cl100k_base: GPT-4, GPT-3.5-turbo
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
//
// Special-token text is encoded as ordinary text, so every id is a regular
// BPE rank below VocabSize.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
// The encoding tables are fetched and cached by tiktoken-go on first use.
func NewTikToken(encodingName string) (*TikToken, error) {
	switch encodingName {
	case encodingCL100kBase, encodingP50kBase, encodingR50kBase:
	default:
		return nil, fmt.Errorf("%w: tiktoken encoding %q", ErrUnknownType, encodingName)
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// Encode converts text to token IDs.
func (t *TikToken) Encode(text string) ([]int, error) {
	return t.encoding.EncodeOrdinary(text), nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(ids []int) (string, error) {
	for _, id := range ids {
		if id < 0 || id >= t.VocabSize() {
			return "", fmt.Errorf("%w: id %d (vocabulary size %d)", ErrUnknownToken, id, t.VocabSize())
		}
	}
	return t.encoding.Decode(ids), nil
}

// VocabSize returns the number of regular BPE ranks of the encoding.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case encodingCL100kBase:
		return 100256
	case encodingP50kBase:
		return 50281
	default:
		return 50256 // 50256 is <|endoftext|>
	}
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}
