// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import "github.com/born-ml/gradlayers/internal/nn"

// Layer type names accepted by New.
const (
	ConvolutionType = nn.ConvolutionType
	DLSTMType       = nn.DLSTMType
	DLSTMUnitType   = nn.DLSTMUnitType
	LocalLSTMType   = nn.LocalLSTMType
	ScalarScaleType = nn.ScalarScaleType
)

// Convolution

// Convolution is a 2D convolution layer with optional weight clipping.
type Convolution = nn.Convolution

// NewConvolution creates a Convolution layer. Parameters are allocated by SetUp.
//
// Example:
//
//	p := nn.LayerParameter{Name: "critic_conv1", Type: nn.ConvolutionType}
//	p.Convolution.NumOutput = 16
//	p.Convolution.KernelSize = nn.Ints{3}
//	p.Convolution.ClipByValue = true
//	p.SetDefaults()
//	conv := nn.NewConvolution(p)
func NewConvolution(param LayerParameter) *Convolution {
	return nn.NewConvolution(param)
}

// ComputeOutputShape returns the spatial output extent of a convolution:
// (in + 2*pad - (dilation*(kernel-1)+1)) / stride + 1 per axis.
func ComputeOutputShape(input, kernel, stride, pad, dilation []int) ([]int, error) {
	return nn.ComputeOutputShape(input, kernel, stride, pad, dilation)
}

// GANPhase is the position of a layer in the adversarial training schedule.
type GANPhase = nn.GANPhase

// GeneratorPhase is the phase in which generator layers are trained.
const GeneratorPhase = nn.GeneratorPhase

// UpdateWeight reports whether a layer may change its parameters in phase p.
func UpdateWeight(p GANPhase, weightFixed, genMode, disMode bool) bool {
	return nn.UpdateWeight(p, weightFixed, genMode, disMode)
}

// Recurrent layers

// DLSTM is a decoder LSTM over a [T, N, ...] sequence.
type DLSTM = nn.DLSTM

// NewDLSTM creates a DLSTM layer.
//
// Bottoms: c0, h0, cont, x. Tops: y, then optionally the final cell and
// hidden states. With conditional the previous output feeds the gates.
func NewDLSTM(param LayerParameter) *DLSTM {
	return nn.NewDLSTM(param)
}

// DLSTMUnit is a single LSTM cell step.
type DLSTMUnit = nn.DLSTMUnit

// NewDLSTMUnit creates a DLSTMUnit layer with bottoms (c_prev, gates) and
// tops (c, h).
func NewDLSTMUnit(param LayerParameter) *DLSTMUnit {
	return nn.NewDLSTMUnit(param)
}

// LocalLSTM is an LSTM with truncated BPTT and a local update policy.
type LocalLSTM = nn.LocalLSTM

// NewLocalLSTM creates a LocalLSTM layer with bottoms (x, cont) and tops
// (h, c).
//
// Example:
//
//	p := nn.LayerParameter{Name: "lstm", Type: nn.LocalLSTMType}
//	p.InnerProduct.NumOutput = 8
//	p.Recurrent.LocalLR = 0.1
//	p.Recurrent.BackLength = 3
//	p.SetDefaults()
//	lstm := nn.NewLocalLSTM(p)
func NewLocalLSTM(param LayerParameter) *LocalLSTM {
	return nn.NewLocalLSTM(param)
}

// LocalPolicy is the SGD rule a LocalLSTM applies to its own parameters.
type LocalPolicy = nn.LocalPolicy

// NewLocalPolicy validates the local_* options of r and builds the policy.
func NewLocalPolicy(r RecurrentParameter) (*LocalPolicy, error) {
	return nn.NewLocalPolicy(r)
}

// ScalarScale

// ScalarScale multiplies its input by a single scalar.
type ScalarScale = nn.ScalarScale

// NewScalarScale creates a ScalarScale layer.
//
// Example:
//
//	scale := float32(0.5)
//	p := nn.LayerParameter{Name: "scale", Type: nn.ScalarScaleType}
//	p.Scale.Scale = &scale
//	layer := nn.NewScalarScale(p)
func NewScalarScale(param LayerParameter) *ScalarScale {
	return nn.NewScalarScale(param)
}

// Containers

// Sequential chains single-input, single-output layers.
type Sequential = nn.Sequential

// NewSequential creates a container running layers in order.
//
// Example:
//
//	critic := nn.NewSequential(conv1, conv2, scale)
//	if err := critic.SetUp(x); err != nil { ... }
func NewSequential(layers ...Layer) *Sequential {
	return nn.NewSequential(layers...)
}
