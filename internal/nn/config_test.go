package nn_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradlayers/internal/nn"
)

const criticYAML = `
name: critic_conv1
type: Convolution
param:
  - lr_mult: 1
    decay_mult: 1
  - lr_mult: 2
    decay_mult: 0
convolution_param:
  num_output: 4
  kernel_size: 3
  stride: [2, 1]
  pad: 1
  weight_filler:
    type: gaussian
    std: 0.02
  clip_by_value: true
  dis_mode: true
`

func TestParseLayerParameter_Convolution(t *testing.T) {
	p, err := nn.ParseLayerParameter([]byte(criticYAML))
	require.NoError(t, err)

	assert.Equal(t, "critic_conv1", p.Name)
	assert.Equal(t, nn.ConvolutionType, p.Type)
	c := p.Convolution
	assert.Equal(t, 4, c.NumOutput)
	assert.Equal(t, nn.Ints{3}, c.KernelSize)
	assert.Equal(t, nn.Ints{2, 1}, c.Stride)
	assert.Equal(t, nn.Ints{1}, c.Pad)
	assert.True(t, c.HasBias())
	assert.True(t, c.DisMode)
	assert.Equal(t, 1, c.Group)
	assert.Equal(t, float32(-0.01), c.ClipLower)
	assert.Equal(t, float32(0.01), c.ClipUpper)
	assert.Equal(t, "gaussian", c.WeightFiller.Type)
	assert.Equal(t, float32(0.02), c.WeightFiller.Std)
	assert.Equal(t, "constant", c.BiasFiller.Type)

	require.Len(t, p.Params, 2)
	assert.Equal(t, float32(2), p.Params[1].LR())
	assert.Equal(t, float32(0), p.Params[1].Decay())
}

func TestParseLayerParameter_Recurrent(t *testing.T) {
	src := `
type: LocalLSTM
inner_product_param:
  num_output: 3
  weight_filler: {type: gaussian, std: 0.1}
recurrent_param:
  back_length: -1
  local_lr: 0.1
  local_momentum: 0.9
  local_param:
    - {lr_mult: 1, decay_mult: 1}
    - {lr_mult: 2}
`
	p, err := nn.ParseLayerParameter([]byte(src))
	require.NoError(t, err)
	r := p.Recurrent
	assert.Equal(t, -1, r.BackLength)
	assert.Equal(t, float32(0.1), r.LocalLR)
	assert.Equal(t, float32(1), r.LocalLRDecay, "default decay rate")
	assert.Equal(t, nn.DecayL2, r.LocalDecayType)
	require.Len(t, r.LocalParam, 2)
	assert.Equal(t, float32(1), r.LocalParam[1].Decay(), "missing multiplier defaults to 1")
	assert.Equal(t, 3, p.InnerProduct.NumOutput)
}

func TestParseLayerParameter_Errors(t *testing.T) {
	_, err := nn.ParseLayerParameter([]byte("name: x\n"))
	assert.ErrorIs(t, err, nn.ErrConfig, "missing type")

	_, err = nn.ParseLayerParameter([]byte("type: Convolution\nconvolution_param:\n  kernal_size: 3\n"))
	assert.Error(t, err, "unknown field")

	_, err = nn.ParseLayerParameter([]byte("type: Convolution\nconvolution_param:\n  kernel_size: [a]\n"))
	assert.Error(t, err)
}

func TestLoadLayerParameter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(criticYAML), 0o600))

	p, err := nn.LoadLayerParameter(path)
	require.NoError(t, err)
	assert.Equal(t, "critic_conv1", p.Name)

	_, err = nn.LoadLayerParameter(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestScaleParameter_Value(t *testing.T) {
	p, err := nn.ParseLayerParameter([]byte("type: ScalarScale\nscale_param:\n  scale: 0.5\n"))
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), p.Scale.Value())
	assert.Equal(t, float32(1), nn.ScaleParameter{}.Value())
}
