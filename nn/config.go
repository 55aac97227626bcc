// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import "github.com/born-ml/gradlayers/internal/nn"

// LayerParameter is the full configuration of one layer.
type LayerParameter = nn.LayerParameter

// ParamSpec holds per-parameter learning-rate and decay multipliers.
type ParamSpec = nn.ParamSpec

// FillerParameter selects how a parameter blob is initialized.
type FillerParameter = nn.FillerParameter

// ConvolutionParameter configures Convolution.
type ConvolutionParameter = nn.ConvolutionParameter

// InnerProductParameter configures the affine maps inside recurrent layers.
type InnerProductParameter = nn.InnerProductParameter

// RecurrentParameter configures DLSTM and LocalLSTM.
type RecurrentParameter = nn.RecurrentParameter

// ScaleParameter configures ScalarScale.
type ScaleParameter = nn.ScaleParameter

// Ints is a list of integers that also decodes from a YAML scalar.
type Ints = nn.Ints

// Weight decay types of a LocalPolicy.
const (
	DecayL1 = nn.DecayL1
	DecayL2 = nn.DecayL2
)

// NewParamSpec returns a spec with both multipliers set.
func NewParamSpec(lrMult, decayMult float32) ParamSpec {
	return nn.NewParamSpec(lrMult, decayMult)
}

// ParseLayerParameter decodes a YAML layer configuration and applies defaults.
//
// Example:
//
//	param, err := nn.ParseLayerParameter([]byte(`
//	name: scale
//	type: ScalarScale
//	scale_param:
//	  scale: 0.5
//	`))
func ParseLayerParameter(data []byte) (LayerParameter, error) {
	return nn.ParseLayerParameter(data)
}

// LoadLayerParameter reads and parses a YAML layer configuration file.
func LoadLayerParameter(path string) (LayerParameter, error) {
	return nn.LoadLayerParameter(path)
}
