package gpt

import (
	"errors"
	"fmt"

	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/serialization"
	"github.com/born-ml/gptgraph/internal/tensor"
)

// ErrCheckpoint wraps every checkpoint read or write failure. After it the
// model and the directory may disagree, so callers treat it as fatal.
var ErrCheckpoint = errors.New("checkpoint")

// ConfigFile is the sidecar holding the model Config inside a checkpoint
// directory.
const ConfigFile = "config.json"

// Save writes the config, every parameter and the optimizer state to dir,
// overwriting any previous checkpoint there.
func (m *Model) Save(dir string) error {
	if m.opt == nil {
		return fmt.Errorf("%w: %w", ErrCheckpoint, ErrNoOptimizer)
	}
	store := serialization.NewStore(dir)
	if err := store.SaveJSON(ConfigFile, m.cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	for _, id := range m.topo.Params {
		value, err := m.graph.Value(id)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
		if err := store.SaveTensor(int(id), value); err != nil {
			return fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
	}
	if err := store.SaveOptimizer(m.opt.State()); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	return nil
}

// Load restores parameters and optimizer state from dir. It reports false
// without error when dir does not exist. The stored config must match the
// model's; the stored optimizer replaces the model's optimizer. Nothing is
// applied to the model unless every parameter and the optimizer state decode
// and match the model's shapes.
func (m *Model) Load(dir string) (bool, error) {
	store := serialization.NewStore(dir)
	if !store.Exists() {
		return false, nil
	}

	cfg, err := ReadConfig(dir)
	if err != nil {
		return false, err
	}
	if cfg != m.cfg {
		return false, fmt.Errorf("%w: %s holds config %+v, model has %+v", ErrCheckpoint, dir, cfg, m.cfg)
	}

	values := make([]*tensor.Tensor, len(m.topo.Params))
	for i, id := range m.topo.Params {
		value, err := store.LoadTensor(int(id))
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
		shape, err := m.graph.Shape(id)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
		if !shape.Equal(value.Shape()) {
			return false, fmt.Errorf("%w: parameter %d: %w", ErrCheckpoint, id, &tensor.ShapeError{
				Op: "load", Shapes: []tensor.Shape{shape, value.Shape()},
			})
		}
		values[i] = value
	}

	state, err := store.LoadOptimizer()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	opt, err := optim.FromState(state)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	for i, id := range m.topo.Params {
		if err := m.graph.SetValue(id, values[i]); err != nil {
			return false, fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
	}
	m.opt = opt
	return true, nil
}

// ReadConfig reads the model config stored in a checkpoint directory.
func ReadConfig(dir string) (Config, error) {
	var cfg Config
	if err := serialization.NewStore(dir).LoadJSON(ConfigFile, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	return cfg, nil
}
