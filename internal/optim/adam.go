package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/gptgraph/internal/tensor"
)

const adamType = "adam"

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	beta1 float32
	beta2 float32
	eps   float32
	t     int                    // Timestep for bias correction
	m     map[int]*tensor.Tensor // First moment estimates
	v     map[int]*tensor.Tensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero fields take their defaults.
func NewAdam(config AdamConfig) *Adam {
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[int]*tensor.Tensor),
		v:     make(map[int]*tensor.Tensor),
	}
}

// Step performs a single optimization step using Adam algorithm.
func (a *Adam) Step(params []Param, lr float32) error {
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		if err := checkGrad(p); err != nil {
			return err
		}
	}

	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, p := range params {
		if p.Grad == nil {
			// Parameter didn't participate in forward pass, skip
			continue
		}

		m, ok := a.m[p.ID]
		if !ok {
			m = tensor.Zeros(p.Value.Shape())
			a.m[p.ID] = m
		}
		v, ok := a.v[p.ID]
		if !ok {
			v = tensor.Zeros(p.Value.Shape())
			a.v[p.ID] = v
		}

		gradData := p.Grad.Data()
		mData := m.Data()
		vData := v.Data()
		paramData := p.Value.Data()
		for i := range paramData {
			g := gradData[i]
			mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
			vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g
			mHat := mData[i] / biasCorrection1
			vHat := vData[i] / biasCorrection2
			paramData[i] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
	return nil
}

// StepNum returns the current timestep.
func (a *Adam) StepNum() int {
	return a.t
}

// State exports the moment estimates and hyperparameters.
func (a *Adam) State() State {
	slots := make(map[string]*tensor.Tensor, len(a.m)+len(a.v))
	for id, m := range a.m {
		slots[slotKey("m", id)] = m.Clone()
	}
	for id, v := range a.v {
		slots[slotKey("v", id)] = v.Clone()
	}
	return State{
		Type: adamType,
		Step: a.t,
		Config: map[string]float64{
			"beta1": float64(a.beta1),
			"beta2": float64(a.beta2),
			"eps":   float64(a.eps),
		},
		Slots: slots,
	}
}

// LoadState restores state exported by State.
func (a *Adam) LoadState(state State) error {
	if state.Type != adamType {
		return fmt.Errorf("%w: want %q, got %q", ErrStateType, adamType, state.Type)
	}

	m := make(map[int]*tensor.Tensor)
	v := make(map[int]*tensor.Tensor)
	for key, t := range cloneSlots(state.Slots) {
		slot, id, err := parseSlotKey(key)
		if err != nil {
			return err
		}
		switch slot {
		case "m":
			m[id] = t
		case "v":
			v[id] = t
		default:
			return fmt.Errorf("optim: unknown adam slot %q", key)
		}
	}

	a.t = state.Step
	a.m, a.v = m, v
	if b, ok := state.Config["beta1"]; ok {
		a.beta1 = float32(b)
	}
	if b, ok := state.Config["beta2"]; ok {
		a.beta2 = float32(b)
	}
	if e, ok := state.Config["eps"]; ok {
		a.eps = float32(e)
	}
	return nil
}
