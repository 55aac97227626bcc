package nn

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ints is a list of integers that also accepts a single scalar in YAML,
// so both "kernel_size: 3" and "kernel_size: [3, 2]" decode.
type Ints []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Ints) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var x int
		if err := node.Decode(&x); err != nil {
			return err
		}
		*v = Ints{x}
		return nil
	}
	var xs []int
	if err := node.Decode(&xs); err != nil {
		return err
	}
	*v = xs
	return nil
}

// ParamSpec holds per-parameter multipliers. Nil multipliers default to 1.
type ParamSpec struct {
	Name      string   `yaml:"name,omitempty" json:"name,omitempty"`
	LrMult    *float32 `yaml:"lr_mult,omitempty" json:"lr_mult,omitempty"`
	DecayMult *float32 `yaml:"decay_mult,omitempty" json:"decay_mult,omitempty"`
}

// NewParamSpec returns a spec with both multipliers set.
func NewParamSpec(lrMult, decayMult float32) ParamSpec {
	return ParamSpec{LrMult: &lrMult, DecayMult: &decayMult}
}

// LR returns the learning-rate multiplier.
func (s ParamSpec) LR() float32 {
	if s.LrMult == nil {
		return 1
	}
	return *s.LrMult
}

// Decay returns the decay multiplier.
func (s ParamSpec) Decay() float32 {
	if s.DecayMult == nil {
		return 1
	}
	return *s.DecayMult
}

// FillerParameter selects how a parameter blob is initialized.
//
// Types: "constant" (Value), "uniform" (Min, Max), "gaussian" (Mean, Std),
// "xavier" and "msra" (scaled by fan-in/fan-out per VarianceNorm).
type FillerParameter struct {
	Type         string  `yaml:"type" json:"type"`
	Value        float32 `yaml:"value" json:"value"`
	Min          float32 `yaml:"min" json:"min"`
	Max          float32 `yaml:"max" json:"max"`
	Mean         float32 `yaml:"mean" json:"mean"`
	Std          float32 `yaml:"std" json:"std"`
	VarianceNorm string  `yaml:"variance_norm" json:"variance_norm"`
}

// ConvolutionParameter configures the Convolution layer.
//
// KernelSize, Stride, Pad and Dilation take either one value for both
// spatial axes or one value per axis; the *H/*W fields override them.
type ConvolutionParameter struct {
	NumOutput    int             `yaml:"num_output" json:"num_output"`
	BiasTerm     *bool           `yaml:"bias_term,omitempty" json:"bias_term,omitempty"`
	KernelSize   Ints            `yaml:"kernel_size" json:"kernel_size"`
	Stride       Ints            `yaml:"stride" json:"stride"`
	Pad          Ints            `yaml:"pad" json:"pad"`
	Dilation     Ints            `yaml:"dilation" json:"dilation"`
	KernelH      int             `yaml:"kernel_h" json:"kernel_h"`
	KernelW      int             `yaml:"kernel_w" json:"kernel_w"`
	StrideH      int             `yaml:"stride_h" json:"stride_h"`
	StrideW      int             `yaml:"stride_w" json:"stride_w"`
	PadH         int             `yaml:"pad_h" json:"pad_h"`
	PadW         int             `yaml:"pad_w" json:"pad_w"`
	Group        int             `yaml:"group" json:"group"`
	WeightFiller FillerParameter `yaml:"weight_filler" json:"weight_filler"`
	BiasFiller   FillerParameter `yaml:"bias_filler" json:"bias_filler"`

	// Clip-by-value keeps the critic Lipschitz-bounded in WGAN training.
	ClipByValue bool    `yaml:"clip_by_value" json:"clip_by_value"`
	ClipLower   float32 `yaml:"clip_lower" json:"clip_lower"`
	ClipUpper   float32 `yaml:"clip_upper" json:"clip_upper"`

	// Adversarial schedule switches, see GANPhase.
	WeightFixed bool `yaml:"weight_fixed" json:"weight_fixed"`
	GenMode     bool `yaml:"gen_mode" json:"gen_mode"`
	DisMode     bool `yaml:"dis_mode" json:"dis_mode"`
}

// HasBias reports whether the layer learns a bias (default true).
func (c ConvolutionParameter) HasBias() bool {
	return c.BiasTerm == nil || *c.BiasTerm
}

// InnerProductParameter configures the affine maps inside recurrent layers.
type InnerProductParameter struct {
	NumOutput    int             `yaml:"num_output" json:"num_output"`
	WeightFiller FillerParameter `yaml:"weight_filler" json:"weight_filler"`
	BiasFiller   FillerParameter `yaml:"bias_filler" json:"bias_filler"`
}

// RecurrentParameter configures DLSTM and LocalLSTM.
type RecurrentParameter struct {
	// DLSTM
	Conditional bool `yaml:"conditional" json:"conditional"`
	OutputDim   int  `yaml:"output_dim" json:"output_dim"`
	Delay       bool `yaml:"delay" json:"delay"`

	// LocalLSTM. BackLength <= 0 means full backpropagation through time.
	BackLength        int         `yaml:"back_length" json:"back_length"`
	LocalLR           float32     `yaml:"local_lr" json:"local_lr"`
	LocalLRDecay      float32     `yaml:"local_lr_decay" json:"local_lr_decay"`
	LocalGradientClip float32     `yaml:"local_gradient_clip" json:"local_gradient_clip"`
	LocalBiasTerm     bool        `yaml:"local_bias_term" json:"local_bias_term"`
	LocalMomentum     float32     `yaml:"local_momentum" json:"local_momentum"`
	LocalDecayType    string      `yaml:"local_decay_type" json:"local_decay_type"`
	LocalDecay        float32     `yaml:"local_decay" json:"local_decay"`
	LocalParam        []ParamSpec `yaml:"local_param" json:"local_param"`
}

// ScaleParameter configures ScalarScale. A nil Scale defaults to 1.
type ScaleParameter struct {
	Scale *float32 `yaml:"scale,omitempty" json:"scale,omitempty"`
	Fixed bool     `yaml:"fixed" json:"fixed"`
}

// Value returns the configured scale.
func (s ScaleParameter) Value() float32 {
	if s.Scale == nil {
		return 1
	}
	return *s.Scale
}

// LayerParameter is the full configuration of one layer.
//
// Example YAML:
//
//	name: critic_conv1
//	type: Convolution
//	convolution_param:
//	  num_output: 1
//	  kernel_size: 2
//	  clip_by_value: true
//	  clip_lower: -0.01
//	  clip_upper: 0.01
type LayerParameter struct {
	Name         string                `yaml:"name" json:"name"`
	Type         string                `yaml:"type" json:"type"`
	Params       []ParamSpec           `yaml:"param" json:"param"`
	Convolution  ConvolutionParameter  `yaml:"convolution_param" json:"convolution_param"`
	InnerProduct InnerProductParameter `yaml:"inner_product_param" json:"inner_product_param"`
	Recurrent    RecurrentParameter    `yaml:"recurrent_param" json:"recurrent_param"`
	Scale        ScaleParameter        `yaml:"scale_param" json:"scale_param"`
}

// SetDefaults fills unset options with their documented defaults.
func (p *LayerParameter) SetDefaults() {
	c := &p.Convolution
	if c.Group == 0 {
		c.Group = 1
	}
	if c.ClipByValue && c.ClipLower == 0 && c.ClipUpper == 0 {
		c.ClipLower, c.ClipUpper = -0.01, 0.01
	}
	setFillerDefaults(&c.WeightFiller)
	setFillerDefaults(&c.BiasFiller)
	setFillerDefaults(&p.InnerProduct.WeightFiller)
	setFillerDefaults(&p.InnerProduct.BiasFiller)

	r := &p.Recurrent
	if r.LocalLRDecay == 0 {
		r.LocalLRDecay = 1
	}
	if r.LocalDecayType == "" {
		r.LocalDecayType = "L2"
	}
}

func setFillerDefaults(f *FillerParameter) {
	if f.Type == "" {
		f.Type = "constant"
	}
	if f.Type == "gaussian" && f.Std == 0 {
		f.Std = 1
	}
	if f.Type == "uniform" && f.Min == 0 && f.Max == 0 {
		f.Max = 1
	}
	if f.VarianceNorm == "" {
		f.VarianceNorm = "fan_in"
	}
}

// ParseLayerParameter decodes a YAML layer configuration and applies defaults.
// Unknown fields are rejected.
func ParseLayerParameter(data []byte) (LayerParameter, error) {
	var p LayerParameter
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return LayerParameter{}, fmt.Errorf("parse layer parameter: %w", err)
	}
	if p.Type == "" {
		return LayerParameter{}, fmt.Errorf("parse layer parameter: missing type: %w", ErrConfig)
	}
	p.SetDefaults()
	return p, nil
}

// LoadLayerParameter reads and parses a YAML layer configuration file.
func LoadLayerParameter(path string) (LayerParameter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LayerParameter{}, fmt.Errorf("load layer parameter: %w", err)
	}
	return ParseLayerParameter(data)
}
