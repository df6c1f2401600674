package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/tensor"
)

const (
	optimizerFile = "optimizer.bin"
	valueEntry    = "value"
)

// Store is a checkpoint directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. Nothing is created until the first
// save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether the checkpoint directory exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// SaveTensor writes the blob for parameter id, replacing any previous one.
func (s *Store) SaveTensor(id int, t *tensor.Tensor) error {
	var buf bytes.Buffer
	if err := WriteBlob(&buf, KindTensor, []Entry{{Name: valueEntry, Tensor: t}}, nil); err != nil {
		return fmt.Errorf("encode tensor %d: %w", id, err)
	}
	return s.writeFile(tensorFile(id), buf.Bytes())
}

// LoadTensor reads the blob for parameter id.
func (s *Store) LoadTensor(id int) (*tensor.Tensor, error) {
	blob, err := s.readBlob(tensorFile(id), KindTensor)
	if err != nil {
		return nil, err
	}
	t, ok := blob.Tensors[valueEntry]
	if !ok {
		return nil, fmt.Errorf("%s: missing %q entry", tensorFile(id), valueEntry)
	}
	return t, nil
}

// SaveOptimizer writes the optimizer blob, replacing any previous one.
func (s *Store) SaveOptimizer(state optim.State) error {
	names := make([]string, 0, len(state.Slots))
	for name := range state.Slots {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, len(names))
	for i, name := range names {
		entries[i] = Entry{Name: name, Tensor: state.Slots[name]}
	}

	meta := &OptimizerMeta{Type: state.Type, Step: state.Step, Config: state.Config}
	var buf bytes.Buffer
	if err := WriteBlob(&buf, KindOptimizer, entries, meta); err != nil {
		return fmt.Errorf("encode optimizer: %w", err)
	}
	return s.writeFile(optimizerFile, buf.Bytes())
}

// LoadOptimizer reads the optimizer blob.
func (s *Store) LoadOptimizer() (optim.State, error) {
	blob, err := s.readBlob(optimizerFile, KindOptimizer)
	if err != nil {
		return optim.State{}, err
	}
	meta := blob.Header.Optimizer
	if meta == nil {
		return optim.State{}, fmt.Errorf("%s: missing optimizer metadata", optimizerFile)
	}
	return optim.State{
		Type:   meta.Type,
		Step:   meta.Step,
		Config: meta.Config,
		Slots:  blob.Tensors,
	}, nil
}

// SaveJSON writes v as an indented JSON sidecar file.
func (s *Store) SaveJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.writeFile(name, data)
}

// LoadJSON decodes a JSON sidecar file into v.
func (s *Store) LoadJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) readBlob(name, kind string) (*Blob, error) {
	//nolint:gosec // G304: checkpoint path comes from the operator
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	blob, err := ReadBlob(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if blob.Header.Kind != kind {
		return nil, fmt.Errorf("%s: %w: %q", name, ErrWrongKind, blob.Header.Kind)
	}
	return blob, nil
}

func (s *Store) writeFile(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func tensorFile(id int) string {
	return fmt.Sprintf("tensor_%d.bin", id)
}
