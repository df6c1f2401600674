package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/born-ml/gptgraph/internal/tensor"
)

// Entry is one named tensor of a blob.
type Entry struct {
	Name   string
	Tensor *tensor.Tensor
}

// WriteBlob encodes entries, in order, as a blob of the given kind.
// opt is recorded in the header when non-nil.
func WriteBlob(w io.Writer, kind string, entries []Entry, opt *OptimizerMeta) error {
	header := Header{
		FormatVersion: FormatVersion,
		Kind:          kind,
		CreatedAt:     time.Now().UTC(),
		Tensors:       make([]TensorMeta, 0, len(entries)),
		Optimizer:     opt,
	}

	// Calculate tensor offsets
	var currentOffset int64
	for _, e := range entries {
		size := int64(e.Tensor.NumElements() * float32Size)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   e.Name,
			Shape:  []int(e.Tensor.Shape()),
			Offset: currentOffset,
			Size:   size,
		})
		currentOffset += size
	}

	payload := make([]byte, currentOffset)
	for i, e := range entries {
		off := header.Tensors[i].Offset
		for j, v := range e.Tensor.Data() {
			binary.LittleEndian.PutUint32(payload[off+int64(j*float32Size):], math.Float32bits(v))
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := io.WriteString(w, MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	checksum := ComputeChecksum(payload)
	if _, err := w.Write(checksum[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	return nil
}
