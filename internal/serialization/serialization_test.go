package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTensor(t *testing.T) *tensor.Tensor {
	t.Helper()
	x, err := tensor.New(tensor.Shape{2, 3}, []float32{
		1.5, -0, float32(math.Inf(1)), math.SmallestNonzeroFloat32, -7.25, math.MaxFloat32,
	})
	require.NoError(t, err)
	return x
}

func TestBlob_RoundTrip(t *testing.T) {
	a := sampleTensor(t)
	b := tensor.Full(tensor.Shape{4}, 0.125)

	var buf bytes.Buffer
	require.NoError(t, WriteBlob(&buf, KindTensor, []Entry{{"a", a}, {"b", b}}, nil))

	blob, err := ReadBlob(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindTensor, blob.Header.Kind)
	assert.Nil(t, blob.Header.Optimizer)
	require.Len(t, blob.Tensors, 2)
	assert.True(t, blob.Tensors["a"].Equal(a), "values must survive bit for bit")
	assert.True(t, blob.Tensors["b"].Equal(b))
}

func TestReadBlob_Corruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBlob(&buf, KindTensor, []Entry{{"a", sampleTensor(t)}}, nil))
	valid := buf.Bytes()

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{
			name: "payload",
			mutate: func(b []byte) []byte {
				b[len(b)-ChecksumSize-1] ^= 0xff
				return b
			},
			wantErr: ErrChecksumMismatch,
		},
		{
			name: "magic",
			mutate: func(b []byte) []byte {
				b[0] = 'X'
				return b
			},
			wantErr: ErrInvalidMagic,
		},
		{
			name: "version",
			mutate: func(b []byte) []byte {
				b[len(MagicBytes)] = 9
				return b
			},
			wantErr: ErrUnsupportedVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), valid...))
			_, err := ReadBlob(bytes.NewReader(data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadBlob(bytes.NewReader(valid[:len(valid)/2]))
		assert.Error(t, err)
	})
}

// rawBlob frames a hand-written header and payload the way WriteBlob does.
func rawBlob(t *testing.T, header Header, payload []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(headerJSON)
	buf.Write(payload)
	checksum := ComputeChecksum(payload)
	buf.Write(checksum[:])
	return buf.Bytes()
}

func TestReadBlob_OutOfBounds(t *testing.T) {
	payload := make([]byte, 8)

	tests := []struct {
		name string
		meta TensorMeta
	}{
		{"past_end", TensorMeta{Name: "a", Shape: []int{2}, Offset: 4, Size: 8}},
		{"negative_offset", TensorMeta{Name: "a", Shape: []int{1}, Offset: -4, Size: 4}},
		{"offset_overflows", TensorMeta{Name: "a", Shape: []int{1}, Offset: math.MaxInt64 - 3, Size: 4}},
		{"size_overflows", TensorMeta{Name: "a", Shape: []int{1}, Offset: 4, Size: math.MaxInt64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := Header{FormatVersion: FormatVersion, Kind: KindTensor, Tensors: []TensorMeta{tt.meta}}
			_, err := ReadBlob(bytes.NewReader(rawBlob(t, header, payload)))
			assert.ErrorIs(t, err, ErrOutOfBounds)
		})
	}
}

func TestStore_Tensor(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpt")
	s := NewStore(dir)
	assert.False(t, s.Exists())

	x := sampleTensor(t)
	require.NoError(t, s.SaveTensor(3, x))
	assert.True(t, s.Exists())
	assert.FileExists(t, filepath.Join(dir, "tensor_3.bin"))

	got, err := s.LoadTensor(3)
	require.NoError(t, err)
	assert.True(t, got.Equal(x))

	// Overwrite replaces the previous blob.
	y := tensor.Zeros(tensor.Shape{1})
	require.NoError(t, s.SaveTensor(3, y))
	got, err = s.LoadTensor(3)
	require.NoError(t, err)
	assert.True(t, got.Equal(y))

	_, err = s.LoadTensor(4)
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestStore_Optimizer(t *testing.T) {
	s := NewStore(t.TempDir())

	opt := optim.NewAdam(optim.AdamConfig{})
	p := optim.Param{ID: 5, Value: tensor.Full(tensor.Shape{3}, 1), Grad: tensor.Full(tensor.Shape{3}, 0.2)}
	require.NoError(t, opt.Step([]optim.Param{p}, 0.01))
	state := opt.State()

	require.NoError(t, s.SaveOptimizer(state))
	got, err := s.LoadOptimizer()
	require.NoError(t, err)

	assert.Equal(t, state.Type, got.Type)
	assert.Equal(t, state.Step, got.Step)
	assert.Equal(t, state.Config, got.Config)
	require.Len(t, got.Slots, len(state.Slots))
	for name, slot := range state.Slots {
		assert.True(t, got.Slots[name].Equal(slot), name)
	}

	_, err = s.LoadTensor(0)
	assert.Error(t, err)
}

func TestStore_WrongKind(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.SaveTensor(0, tensor.Zeros(tensor.Shape{1})))
	require.NoError(t, os.Rename(filepath.Join(s.Dir(), "tensor_0.bin"), filepath.Join(s.Dir(), optimizerFile)))

	_, err := s.LoadOptimizer()
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestStore_JSON(t *testing.T) {
	s := NewStore(t.TempDir())
	type meta struct {
		Vocab int    `json:"vocab"`
		Name  string `json:"name"`
	}
	require.NoError(t, s.SaveJSON("meta.json", meta{Vocab: 65, Name: "x"}))

	var got meta
	require.NoError(t, s.LoadJSON("meta.json", &got))
	assert.Equal(t, meta{Vocab: 65, Name: "x"}, got)

	assert.Error(t, s.LoadJSON("missing.json", &got))
}
