package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTikTokenOrSkip loads an encoding, skipping when the encoding tables
// cannot be fetched (offline runs).
func newTikTokenOrSkip(t *testing.T, name string) *TikToken {
	t.Helper()
	if testing.Short() {
		t.Skip("tiktoken encodings are downloaded on first use")
	}
	tok, err := NewTikToken(name)
	if err != nil {
		t.Skipf("encoding %s unavailable: %v", name, err)
	}
	return tok
}

func TestTikToken_InvalidEncoding(t *testing.T) {
	tok, err := NewTikToken("invalid_encoding_xyz")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Nil(t, tok)
}

func TestTikToken_Roundtrip(t *testing.T) {
	tok := newTikTokenOrSkip(t, "cl100k_base")
	assert.Equal(t, 100256, tok.VocabSize())

	tests := []struct {
		name string
		text string
	}{
		{"simple text", "Hello, world!"},
		{"with newlines", "Hello\nWorld\n"},
		{"unicode", "Hello 世界! 🌍"},
		{"empty string", ""},
		{"special token text", "a<|endoftext|>b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tok.Encode(tt.text)
			require.NoError(t, err)
			for _, id := range ids {
				assert.Less(t, id, tok.VocabSize())
			}

			decoded, err := tok.Decode(ids)
			require.NoError(t, err)
			assert.Equal(t, tt.text, decoded)
		})
	}

	_, err := tok.Decode([]int{tok.VocabSize()})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestTikToken_Descriptor(t *testing.T) {
	tok := newTikTokenOrSkip(t, "p50k_base")

	desc, err := Describe(tok)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Type: TypeTikToken, Encoding: "p50k_base"}, desc)

	back, err := desc.Tokenizer()
	require.NoError(t, err)
	assert.Equal(t, 50281, back.VocabSize())
}
