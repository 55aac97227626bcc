package optim

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/backend/cpu"
	"github.com/born-ml/gradlayers/internal/nn"
)

// SGD implements Stochastic Gradient Descent with optional momentum and
// L2 weight decay.
//
// Update rule for each updatable parameter:
//
//	grad     = diff + weight_decay * decay_mult * data
//	velocity = momentum * velocity + lr * lr_mult * grad
//	data     = data - velocity
//
// Local and frozen parameters are skipped; see the package documentation.
//
// Example:
//
//	solver := optim.NewSGD(layers, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	layers      []nn.Layer
	params      []*nn.Param
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  [][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor (default: 0.0, range: [0, 1))
	WeightDecay float32 // L2 penalty (default: 0.0)
}

// NewSGD creates a new SGD optimizer over the parameters of layers.
// The layers must be set up so their parameters exist.
func NewSGD(layers []nn.Layer, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	ps := params(layers)
	velocities := make([][]float32, len(ps))
	for i, p := range ps {
		velocities[i] = make([]float32, len(p.Data()))
	}
	return &SGD{
		layers:      layers,
		params:      ps,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  velocities,
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() error {
	if err := localUpdate(s.layers); err != nil {
		return err
	}
	for i, p := range s.params {
		if !updatable(p) {
			continue
		}
		data, diff, v := p.Data(), p.Diff(), s.velocities[i]
		if decay := s.weightDecay * p.DecayMult(); decay != 0 {
			cpu.Axpy(decay, data, diff)
		}
		cpu.Scal(s.momentum, v)
		cpu.Axpy(s.lr*p.LrMult(), diff, v)
		cpu.Axpy(-1, v, data)
	}
	s.ZeroGrad()
	return nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrad(s.params)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// StateDict returns a copy of the velocity buffers keyed "velocity.<i>",
// where i is the parameter index in layer order.
func (s *SGD) StateDict() map[string][]float32 {
	state := make(map[string][]float32, len(s.velocities))
	for i, v := range s.velocities {
		state[fmt.Sprintf("velocity.%d", i)] = append([]float32(nil), v...)
	}
	return state
}

// LoadStateDict restores velocity buffers saved by StateDict. Missing keys
// leave the corresponding buffer unchanged.
//
// Returns an error if a buffer length does not match its parameter.
func (s *SGD) LoadStateDict(state map[string][]float32) error {
	for i, p := range s.params {
		v, ok := state[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if len(v) != len(p.Data()) {
			return fmt.Errorf("velocity length mismatch for parameter %d (%s): expected %d, got %d",
				i, p.Name(), len(p.Data()), len(v))
		}
		copy(s.velocities[i], v)
	}
	return nil
}
