package generate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_MatchesShiftingSlice(t *testing.T) {
	for _, length := range []int{1, 2, 5} {
		rng := rand.New(rand.NewSource(int64(length)))
		w := NewWindow(length)
		var naive []int
		var dst []int

		for step := range 40 {
			id := rng.Intn(100) + 1
			w.Push(id)
			if len(naive) == length {
				naive = naive[1:]
			}
			naive = append(naive, id)

			dst = w.Tokens(dst)
			require.Len(t, dst, length)
			assert.Equal(t, len(naive), w.Len(), "step %d", step)
			assert.LessOrEqual(t, w.Len(), w.Cap())
			assert.Equal(t, naive, dst[:w.Len()], "step %d", step)
			for _, pad := range dst[w.Len():] {
				assert.Zero(t, pad)
			}
		}
	}
}

func TestWindow_Empty(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, []int{0, 0, 0}, w.Tokens([]int{9, 9, 9, 9}))
}
