package serialization

import "time"

// Format constants.
const (
	MagicBytes    = "GPTB"
	FormatVersion = 1
	MaxHeaderSize = 16 * 1024 * 1024 // Upper bound on the JSON header
	ChecksumSize  = 32               // SHA-256 checksum size (32 bytes)
	float32Size   = 4
)

// Blob kinds.
const (
	KindTensor    = "tensor"
	KindOptimizer = "optimizer"
)

// Header represents the JSON header of a blob.
type Header struct {
	FormatVersion int            `json:"format_version"`
	Kind          string         `json:"kind"`
	CreatedAt     time.Time      `json:"created_at"`
	Tensors       []TensorMeta   `json:"tensors"`
	Optimizer     *OptimizerMeta `json:"optimizer,omitempty"`
}

// TensorMeta describes one tensor of the payload.
type TensorMeta struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // Bytes from the start of the payload
	Size   int64  `json:"size"`   // Size in bytes
}

// OptimizerMeta carries the scalar part of an optimizer state.
type OptimizerMeta struct {
	Type   string             `json:"type"`
	Step   int                `json:"step"`
	Config map[string]float64 `json:"config"`
}
