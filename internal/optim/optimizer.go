// Package optim implements the solver step that applies layer gradients.
//
// This package provides:
//   - Optimizer interface: base interface for all optimizers
//   - SGD: stochastic gradient descent with momentum and weight decay
//   - Adam: adaptive moment estimation
//
// Optimizers work on layers rather than on loose parameters, so that one
// Step can honor what the layers decided during Backward:
//
//  1. Layers implementing nn.LocalUpdater apply their own policy first.
//  2. The global rule updates every parameter that is neither Local nor
//     Frozen and has a non-zero lr_mult.
//  3. All gradients are cleared, frozen parameters included.
//
// Example usage:
//
//	solver := optim.NewSGD(layers, optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//
//	for iter := range iters {
//	    forward(layers)
//	    backward(layers)
//	    if err := solver.Step(); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/nn"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies local policies, then the global update, then clears
	// all gradients.
	Step() error

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current global learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// params collects layer parameters in layer order.
func params(layers []nn.Layer) []*nn.Param {
	var out []*nn.Param
	for _, l := range layers {
		out = append(out, l.Params()...)
	}
	return out
}

// localUpdate runs the local policy of every layer that has one.
func localUpdate(layers []nn.Layer) error {
	for i, l := range layers {
		u, ok := l.(nn.LocalUpdater)
		if !ok {
			continue
		}
		if err := u.LocalUpdate(); err != nil {
			return fmt.Errorf("optim: local update of layer %d (%s): %w", i, l.Type(), err)
		}
	}
	return nil
}

// updatable reports whether the global rule may change p in this step.
func updatable(p *nn.Param) bool {
	return !p.Local() && !p.Frozen() && p.LrMult() != 0
}

func zeroGrad(ps []*nn.Param) {
	for _, p := range ps {
		p.ZeroGrad()
	}
}
