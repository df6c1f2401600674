package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/born-ml/gptgraph/internal/tensor"
)

// Blob is a decoded blob.
type Blob struct {
	Header  Header
	Tensors map[string]*tensor.Tensor
}

// ReadBlob decodes a blob written by WriteBlob, verifying its checksum and
// tensor layout.
func ReadBlob(r io.Reader) (*Blob, error) {
	magic := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return nil, ErrInvalidMagic
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if len(rest) < ChecksumSize {
		return nil, fmt.Errorf("failed to read checksum: %w", io.ErrUnexpectedEOF)
	}
	payload := rest[:len(rest)-ChecksumSize]
	var stored [ChecksumSize]byte
	copy(stored[:], rest[len(rest)-ChecksumSize:])
	if err := ValidateChecksum(ComputeChecksum(payload), stored); err != nil {
		return nil, err
	}

	blob := &Blob{Header: header, Tensors: make(map[string]*tensor.Tensor, len(header.Tensors))}
	for _, meta := range header.Tensors {
		t, err := decodeTensor(meta, payload)
		if err != nil {
			return nil, err
		}
		blob.Tensors[meta.Name] = t
	}
	return blob, nil
}

func decodeTensor(meta TensorMeta, payload []byte) (*tensor.Tensor, error) {
	shape := tensor.Shape(meta.Shape)
	if meta.Offset < 0 || meta.Size < 0 || meta.Offset > int64(len(payload)) || meta.Size > int64(len(payload))-meta.Offset {
		return nil, &ValidationError{
			Type:    "out_of_bounds",
			Tensor:  meta.Name,
			Details: fmt.Sprintf("offset=%d size=%d data=%d", meta.Offset, meta.Size, len(payload)),
		}
	}
	if int64(shape.NumElements()*float32Size) != meta.Size {
		return nil, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  meta.Name,
			Details: fmt.Sprintf("shape %v needs %d bytes, header says %d", meta.Shape, shape.NumElements()*float32Size, meta.Size),
		}
	}

	data := make([]float32, shape.NumElements())
	raw := payload[meta.Offset : meta.Offset+meta.Size]
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*float32Size:]))
	}
	t, err := tensor.New(shape, data)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", meta.Name, err)
	}
	return t, nil
}
