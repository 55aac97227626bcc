package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/gradlayers/internal/backend/cpu"
)

// Regularization types accepted by local_decay_type.
const (
	DecayL1 = "L1"
	DecayL2 = "L2"
)

// LocalPolicy is an SGD update owned by a single layer, configured by the
// local_* options of RecurrentParameter.
//
// Each Apply performs, for parameter i with multipliers local_param[i]:
//
//	rate  = local_lr * local_lr_decay^iter
//	diff *= local_gradient_clip / ||all diffs||     (when the norm exceeds the clip)
//	diff += local_decay*decay_mult * reg(data)      (reg: data for L2, sign(data) for L1)
//	v     = local_momentum*v + rate*lr_mult*diff
//	data -= v
//
// and then clears the gradients and advances iter.
type LocalPolicy struct {
	lr        float32
	lrDecay   float32
	clip      float32
	momentum  float32
	decay     float32
	decayType string
	specs     []ParamSpec

	iter    int
	history [][]float32
}

// NewLocalPolicy validates the local options and creates a policy.
func NewLocalPolicy(r RecurrentParameter) (*LocalPolicy, error) {
	decayType := r.LocalDecayType
	if decayType == "" {
		decayType = DecayL2
	}
	lrDecay := r.LocalLRDecay
	if lrDecay == 0 {
		lrDecay = 1
	}
	switch {
	case r.LocalLR < 0:
		return nil, fmt.Errorf("local policy: local_lr %v < 0: %w", r.LocalLR, ErrConfig)
	case lrDecay < 0:
		return nil, fmt.Errorf("local policy: local_lr_decay %v < 0: %w", lrDecay, ErrConfig)
	case r.LocalMomentum < 0 || r.LocalMomentum >= 1:
		return nil, fmt.Errorf("local policy: local_momentum %v outside [0, 1): %w", r.LocalMomentum, ErrConfig)
	case r.LocalGradientClip < 0:
		return nil, fmt.Errorf("local policy: local_gradient_clip %v < 0: %w", r.LocalGradientClip, ErrConfig)
	case decayType != DecayL1 && decayType != DecayL2:
		return nil, fmt.Errorf("local policy: unknown local_decay_type %q: %w", decayType, ErrConfig)
	}
	return &LocalPolicy{
		lr:        r.LocalLR,
		lrDecay:   lrDecay,
		clip:      r.LocalGradientClip,
		momentum:  r.LocalMomentum,
		decay:     r.LocalDecay,
		decayType: decayType,
		specs:     r.LocalParam,
	}, nil
}

// Enabled reports whether the policy updates anything.
func (p *LocalPolicy) Enabled() bool {
	return p.lr > 0
}

// Rate returns the learning rate of the next Apply.
func (p *LocalPolicy) Rate() float32 {
	return p.lr * math32.Pow(p.lrDecay, float32(p.iter))
}

// Iter returns the number of updates applied so far.
func (p *LocalPolicy) Iter() int {
	return p.iter
}

// spec returns the multipliers of parameter i.
func (p *LocalPolicy) spec(i int) ParamSpec {
	if i < len(p.specs) {
		return p.specs[i]
	}
	return ParamSpec{}
}

// Apply updates params in place and clears their gradients. The params must
// be passed in the same order on every call.
func (p *LocalPolicy) Apply(params []*Param) error {
	if p.history == nil {
		p.history = make([][]float32, len(params))
		for i, param := range params {
			p.history[i] = make([]float32, len(param.Data()))
		}
	}
	if len(p.history) != len(params) {
		return fmt.Errorf("local policy: got %d params, history has %d", len(params), len(p.history))
	}

	rate := p.Rate()
	if p.clip > 0 {
		p.clipGradients(params)
	}
	for i, param := range params {
		data, diff, v := param.Data(), param.Diff(), p.history[i]
		if len(v) != len(data) {
			return fmt.Errorf("local policy: param %s has %d values, history has %d", param.Name(), len(data), len(v))
		}
		spec := p.spec(i)
		if decay := p.decay * spec.Decay(); decay != 0 {
			p.regularize(decay, data, diff)
		}
		cpu.Scal(p.momentum, v)
		cpu.Axpy(rate*spec.LR(), diff, v)
		cpu.Axpy(-1, v, data)
		param.ZeroGrad()
	}
	p.iter++
	return nil
}

func (p *LocalPolicy) regularize(decay float32, data, diff []float32) {
	switch p.decayType {
	case DecayL1:
		for j, w := range data {
			diff[j] += decay * cpu.Sign(w)
		}
	default:
		cpu.Axpy(decay, data, diff)
	}
}

// clipGradients rescales all diffs together when their joint L2 norm exceeds the clip.
func (p *LocalPolicy) clipGradients(params []*Param) {
	var sumsq float32
	for _, param := range params {
		n := cpu.Nrm2(param.Diff())
		sumsq += n * n
	}
	norm := math32.Sqrt(sumsq)
	if norm <= p.clip {
		return
	}
	scale := p.clip / norm
	log().Debug("local gradient clip", "norm", norm, "clip", p.clip, "scale", scale)
	for _, param := range params {
		cpu.Scal(scale, param.Diff())
	}
}
