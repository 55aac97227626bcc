package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradlayers/internal/nn"
)

func TestRegistry_Types(t *testing.T) {
	assert.Equal(t, []string{"Convolution", "DLSTM", "DLSTMUnit", "LocalLSTM", "ScalarScale"}, nn.Types())
}

func TestRegistry_New(t *testing.T) {
	for _, typ := range nn.Types() {
		layer, err := nn.New(nn.LayerParameter{Name: "x", Type: typ})
		require.NoError(t, err, typ)
		assert.Equal(t, typ, layer.Type())
	}

	_, err := nn.New(nn.LayerParameter{Type: "InnerProduct"})
	assert.ErrorIs(t, err, nn.ErrConfig)
}

func TestRegistry_FromYAML(t *testing.T) {
	p, err := nn.ParseLayerParameter([]byte(criticYAML))
	require.NoError(t, err)
	layer, err := nn.New(p)
	require.NoError(t, err)

	conv, ok := layer.(*nn.Convolution)
	require.True(t, ok)
	assert.Contains(t, conv.String(), "clip=true")
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		nn.Register(nn.ConvolutionType, func(p nn.LayerParameter) nn.Layer { return nn.NewConvolution(p) })
	})
}
