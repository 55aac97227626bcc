package nn

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/backend/cpu"
	"github.com/born-ml/gradlayers/internal/blob"
)

// ScalarScaleType is the registry name of ScalarScale.
const ScalarScaleType = "ScalarScale"

// ScalarScale multiplies its input by a single scalar.
//
// Forward:  top = bottom * scale
// Backward: bottom_diff = top_diff * scale
//
//	scale_diff += sum(top_diff * bottom)
//
// The scale is a learnable parameter of shape [1] initialized from
// scale_param.scale, unless scale_param.fixed is set, in which case the layer
// has no parameters.
type ScalarScale struct {
	Base
	conf  ScaleParameter
	fixed float32
}

// NewScalarScale creates a ScalarScale layer.
func NewScalarScale(param LayerParameter) *ScalarScale {
	param.SetDefaults()
	return &ScalarScale{
		Base:  newBase(param),
		conf:  param.Scale,
		fixed: param.Scale.Value(),
	}
}

// Type implements Layer.
func (s *ScalarScale) Type() string {
	return ScalarScaleType
}

// SetUp implements Layer.
func (s *ScalarScale) SetUp(bottom, top []*blob.Blob) error {
	if err := s.checkBlobCount(ScalarScaleType, bottom, top, 1, 1, 1); err != nil {
		return err
	}
	if !s.conf.Fixed && len(s.params) == 0 {
		scale := NewParam("scale", blob.Shape{1})
		scale.Data()[0] = s.conf.Value()
		s.setParams([]*Param{scale})
	}
	return s.Reshape(bottom, top)
}

// Reshape implements Layer.
func (s *ScalarScale) Reshape(bottom, top []*blob.Blob) error {
	top[0].ReshapeLike(bottom[0])
	return nil
}

// Scale returns the current scale. Before SetUp it is the configured value.
func (s *ScalarScale) Scale() float32 {
	if len(s.params) == 0 {
		return s.fixed
	}
	return s.params[0].Data()[0]
}

// Forward implements Layer.
func (s *ScalarScale) Forward(bottom, top []*blob.Blob) error {
	out := top[0].Data()
	copy(out, bottom[0].Data())
	cpu.Scal(s.Scale(), out)
	return nil
}

// Backward implements Layer.
func (s *ScalarScale) Backward(top []*blob.Blob, propagateDown []bool, bottom []*blob.Blob) error {
	if err := s.checkPropagateDown(ScalarScaleType, propagateDown, bottom); err != nil {
		return err
	}
	topDiff := top[0].Diff()
	if !s.conf.Fixed && s.ParamPropagateDown(0) {
		s.params[0].Diff()[0] += cpu.Dot(topDiff, bottom[0].Data())
	}
	if propagateDown[0] {
		bottomDiff := bottom[0].Diff()
		scale := s.Scale()
		for i, d := range topDiff {
			bottomDiff[i] = d * scale
		}
	}
	return nil
}

// String returns a string representation of the layer.
func (s *ScalarScale) String() string {
	return fmt.Sprintf("ScalarScale(scale=%g, fixed=%v)", s.Scale(), s.conf.Fixed)
}
