package optim

import (
	"fmt"

	"github.com/born-ml/gptgraph/internal/tensor"
)

const sgdType = "sgd"

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	momentum   float32
	t          int
	velocities map[int]*tensor.Tensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	return &SGD{
		momentum:   config.Momentum,
		velocities: make(map[int]*tensor.Tensor),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(params []Param, lr float32) error {
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		if err := checkGrad(p); err != nil {
			return err
		}
	}

	s.t++
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		paramData := p.Value.Data()
		gradData := p.Grad.Data()

		if s.momentum == 0 {
			for i, g := range gradData {
				paramData[i] -= lr * g
			}
			continue
		}

		vel, ok := s.velocities[p.ID]
		if !ok {
			vel = tensor.Zeros(p.Value.Shape())
			s.velocities[p.ID] = vel
		}
		velData := vel.Data()
		for i, g := range gradData {
			velData[i] = s.momentum*velData[i] + g
			paramData[i] -= lr * velData[i]
		}
	}
	return nil
}

// StepNum returns the number of completed steps.
func (s *SGD) StepNum() int {
	return s.t
}

// State exports the velocity buffers.
func (s *SGD) State() State {
	slots := make(map[string]*tensor.Tensor, len(s.velocities))
	for id, v := range s.velocities {
		slots[slotKey("velocity", id)] = v.Clone()
	}
	return State{
		Type:   sgdType,
		Step:   s.t,
		Config: map[string]float64{"momentum": float64(s.momentum)},
		Slots:  slots,
	}
}

// LoadState restores state exported by State.
func (s *SGD) LoadState(state State) error {
	if state.Type != sgdType {
		return fmt.Errorf("%w: want %q, got %q", ErrStateType, sgdType, state.Type)
	}

	velocities := make(map[int]*tensor.Tensor)
	for key, t := range cloneSlots(state.Slots) {
		slot, id, err := parseSlotKey(key)
		if err != nil {
			return err
		}
		if slot != "velocity" {
			return fmt.Errorf("optim: unknown sgd slot %q", key)
		}
		velocities[id] = t
	}

	s.t = state.Step
	s.velocities = velocities
	if m, ok := state.Config["momentum"]; ok {
		s.momentum = float32(m)
	}
	return nil
}
