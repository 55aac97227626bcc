// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradlayers/blob"
	"github.com/born-ml/gradlayers/nn"
)

// TestLayerInterface verifies that every concrete layer implements Layer.
func TestLayerInterface(t *testing.T) {
	var _ nn.Layer = (*nn.Convolution)(nil)
	var _ nn.Layer = (*nn.DLSTM)(nil)
	var _ nn.Layer = (*nn.DLSTMUnit)(nil)
	var _ nn.Layer = (*nn.LocalLSTM)(nil)
	var _ nn.Layer = (*nn.ScalarScale)(nil)
	var _ nn.LocalUpdater = (*nn.LocalLSTM)(nil)
}

func TestTypesRegistered(t *testing.T) {
	types := nn.Types()
	for _, typ := range []string{nn.ConvolutionType, nn.DLSTMType, nn.DLSTMUnitType, nn.LocalLSTMType, nn.ScalarScaleType} {
		assert.Contains(t, types, typ)
	}
}

func TestParseAndRun(t *testing.T) {
	param, err := nn.ParseLayerParameter([]byte(`
name: scale
type: ScalarScale
scale_param:
  scale: 0.5
`))
	require.NoError(t, err)

	layer, err := nn.New(param)
	require.NoError(t, err)

	x, err := blob.FromSlice([]float32{1, -2, 4}, blob.Shape{3})
	require.NoError(t, err)
	bottom, top := []*blob.Blob{x}, []*blob.Blob{blob.New(nil)}
	require.NoError(t, layer.SetUp(bottom, top))
	require.NoError(t, layer.Forward(bottom, top))

	want := []float32{0.5, -1, 2}
	for i, v := range top[0].Data() {
		if v != want[i] {
			t.Errorf("top[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestComputeOutputShape(t *testing.T) {
	out, err := nn.ComputeOutputShape([]int{8, 8}, []int{3, 3}, []int{2, 2}, []int{1, 1}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, out)

	_, err = nn.ComputeOutputShape([]int{2, 2}, []int{5, 5}, []int{1, 1}, []int{0, 0}, []int{1, 1})
	assert.ErrorIs(t, err, nn.ErrShape)
}

func TestUpdateWeight(t *testing.T) {
	assert.True(t, nn.UpdateWeight(nn.GeneratorPhase, false, true, false))
	assert.False(t, nn.UpdateWeight(nn.GeneratorPhase, false, false, true))
	assert.False(t, nn.UpdateWeight(1, true, false, false))
}
