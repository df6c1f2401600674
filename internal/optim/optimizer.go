// Package optim implements the optimization algorithms that update graph
// parameters from their gradient buffers.
//
// This package provides:
//   - Optimizer interface: stateful update rule with a step counter
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//   - Schedule: learning-rate functions of the optimizer step counter
//
// Optimizer state is keyed by parameter id, so it can be persisted next to
// the parameter tensors and restored into a freshly built graph.
//
// Example usage:
//
//	opt := optim.NewAdam(optim.AdamConfig{})
//	schedule := optim.WarmupCosine(1e-5, 1e-3, 100, 10000)
//
//	for range steps {
//	    // ... populate gradients ...
//	    lr := schedule(opt.StepNum())
//	    if err := opt.Step(params, lr); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/gptgraph/internal/tensor"
)

// ErrStateType is returned when restoring state produced by another optimizer.
var ErrStateType = errors.New("optimizer state type mismatch")

// Param pairs a learnable tensor with its gradient. Value is updated in place.
type Param struct {
	ID    int
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every parameter using learning rate lr and
	// advances the step counter. Parameters with a nil gradient are skipped.
	Step(params []Param, lr float32) error

	// StepNum returns the number of completed steps.
	StepNum() int

	// State exports the optimizer's internal state for checkpointing.
	State() State

	// LoadState replaces the internal state with a previously exported one.
	LoadState(state State) error
}

// State is the serializable form of an optimizer.
type State struct {
	Type   string                    // Optimizer type ("adam", "sgd")
	Step   int                       // Completed steps
	Config map[string]float64        // Hyperparameters
	Slots  map[string]*tensor.Tensor // Per-parameter buffers, keyed "<slot>/<param id>"
}

// FromState constructs the optimizer a State was exported from.
func FromState(state State) (Optimizer, error) {
	var opt Optimizer
	switch state.Type {
	case adamType:
		opt = NewAdam(AdamConfig{})
	case sgdType:
		opt = NewSGD(SGDConfig{})
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", ErrStateType, state.Type)
	}
	if err := opt.LoadState(state); err != nil {
		return nil, err
	}
	return opt, nil
}

func slotKey(slot string, id int) string {
	return fmt.Sprintf("%s/%d", slot, id)
}

func parseSlotKey(key string) (string, int, error) {
	slot, rest, ok := strings.Cut(key, "/")
	if !ok {
		return "", 0, fmt.Errorf("optim: malformed slot key %q", key)
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return "", 0, fmt.Errorf("optim: malformed slot key %q: %w", key, err)
	}
	return slot, id, nil
}

func checkGrad(p Param) error {
	if !p.Value.Shape().Equal(p.Grad.Shape()) {
		return fmt.Errorf("optim: parameter %d: %w", p.ID, &tensor.ShapeError{
			Op:      "step",
			Shapes:  []tensor.Shape{p.Value.Shape(), p.Grad.Shape()},
			Details: "gradient shape differs from parameter",
		})
	}
	return nil
}

func cloneSlots(src map[string]*tensor.Tensor) map[string]*tensor.Tensor {
	dst := make(map[string]*tensor.Tensor, len(src))
	for k, v := range src {
		dst[k] = v.Clone()
	}
	return dst
}
