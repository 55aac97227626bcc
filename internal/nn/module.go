// Package nn implements layers with explicit forward and backward passes.
//
// This package provides:
//   - Layer interface: SetUp -> Reshape -> Forward -> Backward lifecycle
//   - Param: trainable blob with multipliers and update flags
//   - Convolution: GEMM convolution with optional clip-by-value for WGAN critics
//   - DLSTMUnit, DLSTM: decoder LSTM driven by external initial state
//   - LocalLSTM: LSTM with a layer-local parameter update policy
//   - ScalarScale: multiplication by a single scalar
//   - Fillers and a registry keyed by layer type
//
// Layers read bottom blobs and write top blobs. Gradients travel through the
// blobs' diff buffers: Backward reads top diffs, accumulates parameter diffs
// and overwrites bottom diffs for the inputs it is asked to propagate to.
//
// Layers are not safe for concurrent use; forward, backward and update calls
// on one layer must be serialized by the caller.
package nn

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/born-ml/gradlayers/internal/blob"
)

var (
	// ErrConfig reports an invalid layer configuration.
	ErrConfig = errors.New("invalid layer configuration")

	// ErrShape reports bottom/top shapes the layer cannot work with.
	ErrShape = errors.New("shape mismatch")

	// ErrBottomGradient reports a request to backpropagate into an input
	// that has no gradient (e.g. sequence continuation indicators).
	ErrBottomGradient = errors.New("cannot backpropagate to input")
)

// Layer is the lifecycle contract implemented by every layer.
//
// Typical use:
//
//	layer, _ := nn.New(param)
//	if err := layer.SetUp(bottom, top); err != nil { ... }
//	layer.Forward(bottom, top)
//	// fill top diffs
//	layer.Backward(top, []bool{true}, bottom)
type Layer interface {
	// Type returns the registry name of the layer ("Convolution", ...).
	Type() string

	// SetUp validates the configuration and the bottom blobs, allocates
	// parameters on first use and shapes the top blobs.
	SetUp(bottom, top []*blob.Blob) error

	// Reshape recomputes top shapes and internal buffers from the
	// current bottom shapes. It must be called whenever a bottom changes shape.
	Reshape(bottom, top []*blob.Blob) error

	// Forward computes top data from bottom data.
	Forward(bottom, top []*blob.Blob) error

	// Backward accumulates parameter gradients from top diffs and writes
	// bottom diffs where propagateDown[i] is set.
	Backward(top []*blob.Blob, propagateDown []bool, bottom []*blob.Blob) error

	// Params returns the trainable parameters in a stable order.
	Params() []*Param
}

// LocalUpdater is implemented by layers that own a parameter update policy
// separate from the global solver.
type LocalUpdater interface {
	// LocalUpdate applies the layer's policy to its local parameters and
	// clears their gradients.
	LocalUpdate() error
}

var logger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used by layers. Passing nil restores slog.Default().
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func log() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Base carries the state shared by all layers: configuration, parameters
// and per-parameter gradient switches.
type Base struct {
	param              LayerParameter
	params             []*Param
	paramPropagateDown []bool
}

func newBase(param LayerParameter) Base {
	return Base{param: param}
}

// Name returns the configured layer name.
func (b *Base) Name() string {
	return b.param.Name
}

// LayerParam returns the layer configuration.
func (b *Base) LayerParam() LayerParameter {
	return b.param
}

// Params returns the trainable parameters.
func (b *Base) Params() []*Param {
	return b.params
}

// ParamPropagateDown reports whether gradients are computed for param i.
func (b *Base) ParamPropagateDown(i int) bool {
	return i < len(b.paramPropagateDown) && b.paramPropagateDown[i]
}

// SetParamPropagateDown toggles gradient computation for param i.
func (b *Base) SetParamPropagateDown(i int, v bool) {
	if i >= len(b.paramPropagateDown) {
		panic(fmt.Sprintf("nn: param index %d out of range (%d params)", i, len(b.paramPropagateDown)))
	}
	b.paramPropagateDown[i] = v
}

// setParams installs the parameters and applies the configured ParamSpecs.
// A zero lr_mult disables gradient computation for that parameter.
func (b *Base) setParams(params []*Param) {
	b.params = params
	b.paramPropagateDown = make([]bool, len(params))
	for i, p := range params {
		if i < len(b.param.Params) {
			p.spec = b.param.Params[i]
		}
		b.paramPropagateDown[i] = p.LrMult() != 0
	}
}

// errorf prefixes layer errors with type and name and wraps kind.
func (b *Base) errorf(typ string, kind error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if b.param.Name != "" {
		return fmt.Errorf("%s %q: %s: %w", typ, b.param.Name, msg, kind)
	}
	return fmt.Errorf("%s: %s: %w", typ, msg, kind)
}

// checkBlobCount validates the number of bottom and top blobs.
// A negative bound disables that check.
func (b *Base) checkBlobCount(typ string, bottom, top []*blob.Blob, exactBottom, minTop, maxTop int) error {
	if exactBottom >= 0 && len(bottom) != exactBottom {
		return b.errorf(typ, ErrShape, "expected %d bottom blobs, got %d", exactBottom, len(bottom))
	}
	if minTop >= 0 && len(top) < minTop {
		return b.errorf(typ, ErrShape, "expected at least %d top blobs, got %d", minTop, len(top))
	}
	if maxTop >= 0 && len(top) > maxTop {
		return b.errorf(typ, ErrShape, "expected at most %d top blobs, got %d", maxTop, len(top))
	}
	return nil
}

// checkBottomShapes rejects bottoms with a zero or negative dimension.
func (b *Base) checkBottomShapes(typ string, bottom []*blob.Blob) error {
	for i, x := range bottom {
		if err := x.Shape().Validate(); err != nil {
			return b.errorf(typ, ErrShape, "bottom[%d]: %v", i, err)
		}
	}
	return nil
}

// checkPropagateDown validates the length of a propagateDown slice.
func (b *Base) checkPropagateDown(typ string, propagateDown []bool, bottom []*blob.Blob) error {
	if len(propagateDown) != len(bottom) {
		return b.errorf(typ, ErrShape, "propagateDown has %d entries for %d bottom blobs", len(propagateDown), len(bottom))
	}
	return nil
}

// markUpdate records the outcome of one Backward call on every parameter.
// An allowed call unfreezes the parameter; a disallowed one freezes it only
// if no allowed gradient has been accumulated since the last ZeroGrad.
func (b *Base) markUpdate(allowed bool) {
	for _, p := range b.params {
		if allowed {
			p.accumulated = true
			p.frozen = false
		} else if !p.accumulated {
			p.frozen = true
		}
	}
}
