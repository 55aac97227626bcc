package nn

import (
	"github.com/born-ml/gradlayers/internal/blob"
)

// Param represents a trainable parameter owned by a layer.
//
// The solver reads the update flags:
//   - Frozen: set by the layer during Backward when nothing it computed
//     since the last ZeroGrad may change the parameter (fixed weights,
//     adversarial schedule). Such gradients never reach Diff.
//   - Local: the owning layer applies its own update policy; the global
//     step skips the parameter.
//
// Example:
//
//	w := nn.NewParam("weight", blob.Shape{4, 3})
//	w.Data()[0] = 0.1
//	grad := w.Diff()
type Param struct {
	name   string
	blob   *blob.Blob
	spec   ParamSpec
	frozen bool
	local  bool

	// accumulated is set once an allowed gradient reaches Diff.
	accumulated bool
}

// NewParam creates a zero-initialized parameter.
func NewParam(name string, shape blob.Shape) *Param {
	return &Param{
		name: name,
		blob: blob.New(shape),
	}
}

// Name returns the parameter name.
func (p *Param) Name() string {
	return p.name
}

// Blob returns the underlying blob.
func (p *Param) Blob() *blob.Blob {
	return p.blob
}

// Data returns the parameter values.
func (p *Param) Data() []float32 {
	return p.blob.Data()
}

// Diff returns the accumulated gradient.
func (p *Param) Diff() []float32 {
	return p.blob.Diff()
}

// Shape returns the parameter shape.
func (p *Param) Shape() blob.Shape {
	return p.blob.Shape()
}

// Spec returns the configured multipliers.
func (p *Param) Spec() ParamSpec {
	return p.spec
}

// LrMult returns the learning-rate multiplier (default 1).
func (p *Param) LrMult() float32 {
	return p.spec.LR()
}

// DecayMult returns the weight-decay multiplier (default 1).
func (p *Param) DecayMult() float32 {
	return p.spec.Decay()
}

// Frozen reports whether the next solver step must leave the parameter unchanged.
func (p *Param) Frozen() bool {
	return p.frozen
}

// SetFrozen sets the frozen flag.
func (p *Param) SetFrozen(frozen bool) {
	p.frozen = frozen
}

// Local reports whether the owning layer updates this parameter itself.
func (p *Param) Local() bool {
	return p.local
}

// ZeroGrad clears the gradient.
//
// This should be called after each update step, since layers accumulate
// parameter gradients across Backward calls.
func (p *Param) ZeroGrad() {
	p.blob.ZeroDiff()
	p.accumulated = false
}
