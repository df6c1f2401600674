package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	seen := make([]int, 0, 100)
	For(100, func(i int) {
		seen = append(seen, i)
	}, cfg)

	require.Len(t, seen, 100)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestFor_DisjointWrites(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	out := make([]int, 37)
	For(len(out), func(i int) { out[i] = i * i }, cfg)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestMap_PreservesOrder(t *testing.T) {
	for _, cfg := range []Config{{Enabled: false}, {Enabled: true, NumWorkers: 3}} {
		got, err := Map(10, func(i int) (int, error) { return i * 2, nil }, cfg)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, got)
	}
}

func TestMap_ErrorAbortsGroup(t *testing.T) {
	boom := errors.New("boom")
	for _, cfg := range []Config{{Enabled: false}, {Enabled: true, NumWorkers: 2}} {
		got, err := Map(8, func(i int) (int, error) {
			if i == 3 {
				return 0, boom
			}
			return i, nil
		}, cfg)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got, "partial results must be discarded")
	}
}
