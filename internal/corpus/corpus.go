// Package corpus holds the flat token stream a model trains on and draws
// (input, target) samples from it.
package corpus

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/born-ml/gptgraph/internal/tokenizer"
)

// ErrEmpty is returned for a corpus with no tokens.
var ErrEmpty = errors.New("corpus is empty")

// Corpus is an immutable sequence of token ids.
type Corpus struct {
	ids []int
}

// New wraps ids. The slice is copied.
func New(ids []int) (*Corpus, error) {
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	return &Corpus{ids: append([]int(nil), ids...)}, nil
}

// Load reads a text file and encodes it with tok.
func Load(path string, tok tokenizer.Tokenizer) (*Corpus, error) {
	//nolint:gosec // G304: corpus path comes from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	ids, err := tok.Encode(string(data))
	if err != nil {
		return nil, fmt.Errorf("encode corpus %s: %w", path, err)
	}
	c, err := New(ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Len returns the number of tokens.
func (c *Corpus) Len() int {
	return len(c.ids)
}

// MaxID returns the largest token id.
func (c *Corpus) MaxID() int {
	maxID := c.ids[0]
	for _, id := range c.ids[1:] {
		maxID = max(maxID, id)
	}
	return maxID
}

// Window returns n ids starting at start, wrapping around the end of the
// corpus as often as needed.
func (c *Corpus) Window(start, n int) []int {
	out := make([]int, n)
	start %= len(c.ids)
	if start < 0 {
		start += len(c.ids)
	}
	for i := range out {
		out[i] = c.ids[(start+i)%len(c.ids)]
	}
	return out
}

// Sample draws a uniformly random start offset and returns n input ids and
// the n target ids shifted one position to the right.
func (c *Corpus) Sample(rng *rand.Rand, n int) (xs, ys []int) {
	w := c.Window(rng.Intn(len(c.ids)), n+1)
	return w[:n], w[1:]
}
