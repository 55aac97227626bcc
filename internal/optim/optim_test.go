package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradlayers/internal/blob"
	"github.com/born-ml/gradlayers/internal/nn"
	"github.com/born-ml/gradlayers/internal/optim"
)

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	return math.Abs(float64(a-b)) < float64(eps)
}

// newScale returns a set-up ScalarScale layer whose single parameter starts at value.
func newScale(t *testing.T, value float32, specs ...nn.ParamSpec) *nn.ScalarScale {
	t.Helper()
	p := nn.LayerParameter{Name: "scale", Type: nn.ScalarScaleType, Params: specs}
	p.Scale.Scale = &value
	layer := nn.NewScalarScale(p)
	require.NoError(t, layer.SetUp([]*blob.Blob{blob.New(blob.Shape{2})}, []*blob.Blob{blob.New(nil)}))
	return layer
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	layer := newScale(t, 2)
	param := layer.Params()[0]
	param.Diff()[0] = 1

	solver := optim.NewSGD([]nn.Layer{layer}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, solver.Step())

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if got := param.Data()[0]; !floatEqual(got, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want %f", got, 1.9)
	}
	assert.Equal(t, float32(0), param.Diff()[0], "Step must clear gradients")
}

// TestSGD_WithMomentum tests SGD with momentum over two steps.
func TestSGD_WithMomentum(t *testing.T) {
	layer := newScale(t, 2)
	param := layer.Params()[0]
	solver := optim.NewSGD([]nn.Layer{layer}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// Step 1: v = 0.1, x = 1.9
	param.Diff()[0] = 1
	require.NoError(t, solver.Step())
	if got := param.Data()[0]; !floatEqual(got, 1.9, 1e-6) {
		t.Errorf("step 1: got %f, want 1.9", got)
	}

	// Step 2: v = 0.9*0.1 + 0.1 = 0.19, x = 1.71
	param.Diff()[0] = 1
	require.NoError(t, solver.Step())
	if got := param.Data()[0]; !floatEqual(got, 1.71, 1e-6) {
		t.Errorf("step 2: got %f, want 1.71", got)
	}
}

func TestSGD_WeightDecay(t *testing.T) {
	half := float32(0.5)
	layer := newScale(t, 2, nn.ParamSpec{DecayMult: &half})
	param := layer.Params()[0]

	solver := optim.NewSGD([]nn.Layer{layer}, optim.SGDConfig{LR: 0.1, WeightDecay: 1})
	require.NoError(t, solver.Step())

	// grad = 0 + 1 * 0.5 * 2 = 1
	assert.InDelta(t, 1.9, param.Data()[0], 1e-6)
}

func TestSGD_LrMult(t *testing.T) {
	zero := layerWithLrMult(t, 0)
	double := layerWithLrMult(t, 2)

	solver := optim.NewSGD([]nn.Layer{zero, double}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, solver.Step())

	assert.Equal(t, float32(2), zero.Params()[0].Data()[0], "lr_mult 0 must not update")
	assert.InDelta(t, 1.8, double.Params()[0].Data()[0], 1e-6)
	assert.Equal(t, float32(0), zero.Params()[0].Diff()[0])
}

func layerWithLrMult(t *testing.T, lrMult float32) *nn.ScalarScale {
	t.Helper()
	layer := newScale(t, 2, nn.NewParamSpec(lrMult, 1))
	layer.Params()[0].Diff()[0] = 1
	return layer
}

// TestSGD_SkipsFrozen runs a generator convolution through a full
// adversarial cycle: only the generator phase may change its weights.
func TestSGD_SkipsFrozen(t *testing.T) {
	p := nn.LayerParameter{Name: "gen", Type: nn.ConvolutionType}
	p.Convolution.NumOutput = 1
	p.Convolution.KernelSize = nn.Ints{2}
	p.Convolution.GenMode = true
	p.Convolution.WeightFiller = nn.FillerParameter{Type: "constant", Value: 0.5}
	conv := nn.NewConvolution(p)

	x, err := blob.FromSlice([]float32{1, 2, 3, 4}, blob.Shape{1, 1, 2, 2})
	require.NoError(t, err)
	y := blob.New(nil)
	bottom, top := []*blob.Blob{x}, []*blob.Blob{y}
	require.NoError(t, conv.SetUp(bottom, top))

	solver := optim.NewSGD([]nn.Layer{conv}, optim.SGDConfig{LR: 0.1})
	weight := conv.Params()[0]

	// Phases 0, 1, 2: frozen.
	for step := 0; step < 3; step++ {
		require.NoError(t, conv.Forward(bottom, top))
		y.Diff()[0] = 1
		require.NoError(t, conv.Backward(top, []bool{false}, bottom))
		assert.Equal(t, []float32{0, 0, 0, 0}, weight.Diff(), "frozen gradient must not reach the diff")
		assert.Equal(t, []float32{1, 2, 3, 4}, conv.HeldDiff(0), "gradient is computed while frozen")
		require.True(t, weight.Frozen(), "step %d", step)

		require.NoError(t, solver.Step())
		assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, weight.Data(), "step %d", step)
		assert.Equal(t, []float32{0, 0, 0, 0}, weight.Diff(), "frozen gradients are still cleared")
	}

	// Phase 3: generator step.
	require.NoError(t, conv.Forward(bottom, top))
	y.Diff()[0] = 1
	require.NoError(t, conv.Backward(top, []bool{false}, bottom))
	require.False(t, weight.Frozen())
	require.NoError(t, solver.Step())
	assert.InDeltaSlice(t, []float32{0.4, 0.3, 0.2, 0.1}, weight.Data(), 1e-6)
}

// TestSGD_AccumulatesAcrossPhaseBoundary runs two backward passes, one
// allowed and one forbidden, before a single solver step. Only the allowed
// gradient may move the weights, in whichever order the phases come.
func TestSGD_AccumulatesAcrossPhaseBoundary(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *nn.ConvolutionParameter)
	}{
		{"discriminator allowed then forbidden", func(p *nn.ConvolutionParameter) { p.DisMode = true }},
		{"generator forbidden then allowed", func(p *nn.ConvolutionParameter) { p.GenMode = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := nn.LayerParameter{Name: "conv", Type: nn.ConvolutionType}
			p.Convolution.NumOutput = 1
			p.Convolution.KernelSize = nn.Ints{2}
			p.Convolution.WeightFiller = nn.FillerParameter{Type: "constant", Value: 0.5}
			tt.setup(&p.Convolution)
			conv := nn.NewConvolution(p)

			x, err := blob.FromSlice([]float32{1, 2, 3, 4}, blob.Shape{1, 1, 2, 2})
			require.NoError(t, err)
			y := blob.New(nil)
			bottom, top := []*blob.Blob{x}, []*blob.Blob{y}
			require.NoError(t, conv.SetUp(bottom, top))
			conv.SetPhase(2)

			for range 2 {
				require.NoError(t, conv.Forward(bottom, top))
				y.Diff()[0] = 1
				require.NoError(t, conv.Backward(top, []bool{false}, bottom))
			}
			weight := conv.Params()[0]
			assert.Equal(t, []float32{1, 2, 3, 4}, weight.Diff())
			assert.Equal(t, []float32{1, 2, 3, 4}, conv.HeldDiff(0))
			require.False(t, weight.Frozen())

			solver := optim.NewSGD([]nn.Layer{conv}, optim.SGDConfig{LR: 0.1})
			require.NoError(t, solver.Step())
			want := []float32{0.4, 0.3, 0.2, 0.1}
			for i, v := range weight.Data() {
				if !floatEqual(v, want[i], 1e-6) {
					t.Errorf("weight[%d]: got %f, want %f", i, v, want[i])
				}
			}
		})
	}
}

// TestSGD_LocalUpdateFirst checks that local parameters follow the layer
// policy and are not touched by the global rule.
func TestSGD_LocalUpdateFirst(t *testing.T) {
	p := nn.LayerParameter{Name: "lstm", Type: nn.LocalLSTMType}
	p.InnerProduct.NumOutput = 2
	p.InnerProduct.WeightFiller = nn.FillerParameter{Type: "gaussian", Std: 0.1}
	p.Recurrent.LocalLR = 0.05
	lstm := nn.NewLocalLSTM(p)

	x, err := blob.FromSlice([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, blob.Shape{3, 1, 2})
	require.NoError(t, err)
	cont, err := blob.FromSlice([]float32{0, 1, 1}, blob.Shape{3, 1})
	require.NoError(t, err)
	h, c := blob.New(nil), blob.New(nil)
	bottom, top := []*blob.Blob{x, cont}, []*blob.Blob{h, c}
	require.NoError(t, lstm.SetUp(bottom, top))
	require.NoError(t, lstm.Forward(bottom, top))
	for i := range h.Diff() {
		h.Diff()[i] = 1
	}
	require.NoError(t, lstm.Backward(top, []bool{false, false}, bottom))

	type snapshot struct{ data, diff []float32 }
	var before []snapshot
	for _, param := range lstm.Params() {
		require.True(t, param.Local())
		before = append(before, snapshot{
			data: append([]float32(nil), param.Data()...),
			diff: append([]float32(nil), param.Diff()...),
		})
	}

	// A huge global rate would dominate if the global rule touched local params.
	solver := optim.NewSGD([]nn.Layer{lstm}, optim.SGDConfig{LR: 1000})
	require.NoError(t, solver.Step())

	for i, param := range lstm.Params() {
		for j, v := range param.Data() {
			want := before[i].data[j] - 0.05*before[i].diff[j]
			assert.InDelta(t, want, v, 1e-6, "%s[%d]", param.Name(), j)
		}
	}
	assert.Equal(t, 1, lstm.Policy().Iter())
}

func TestSGD_StateDict(t *testing.T) {
	layer := newScale(t, 2)
	solver := optim.NewSGD([]nn.Layer{layer}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	layer.Params()[0].Diff()[0] = 1
	require.NoError(t, solver.Step())

	state := solver.StateDict()
	assert.InDeltaSlice(t, []float32{0.1}, state["velocity.0"], 1e-7)

	restored := optim.NewSGD([]nn.Layer{layer}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, restored.LoadStateDict(state))
	layer.Params()[0].Diff()[0] = 1
	require.NoError(t, restored.Step())
	assert.InDelta(t, 1.71, layer.Params()[0].Data()[0], 1e-6)

	err := restored.LoadStateDict(map[string][]float32{"velocity.0": {1, 2}})
	assert.Error(t, err)
}

func TestSGD_Defaults(t *testing.T) {
	solver := optim.NewSGD(nil, optim.SGDConfig{})
	assert.Equal(t, float32(0.01), solver.GetLR())
	solver.SetLR(0.5)
	assert.Equal(t, float32(0.5), solver.GetLR())
	assert.NoError(t, solver.Step())
}

// TestAdam_FirstStep tests that the first bias-corrected Adam step moves
// each parameter by about lr in the direction opposite to its gradient.
func TestAdam_FirstStep(t *testing.T) {
	layer := newScale(t, 2)
	param := layer.Params()[0]
	param.Diff()[0] = 0.5

	var opt optim.Optimizer = optim.NewAdam([]nn.Layer{layer}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, opt.Step())

	if got := param.Data()[0]; !floatEqual(got, 1.9, 1e-5) {
		t.Errorf("Adam update: got %f, want %f", got, 1.9)
	}
	assert.Equal(t, float32(0), param.Diff()[0])
}

func TestAdam_Defaults(t *testing.T) {
	adam := optim.NewAdam(nil, optim.AdamConfig{})
	assert.Equal(t, float32(0.001), adam.GetLR())
	require.NoError(t, adam.Step())
	assert.Equal(t, 1, adam.GetTimestep())
}

func TestAdam_SkipsFrozen(t *testing.T) {
	layer := newScale(t, 2)
	param := layer.Params()[0]
	param.Diff()[0] = 1
	param.SetFrozen(true)

	adam := optim.NewAdam([]nn.Layer{layer}, optim.AdamConfig{LR: 0.1})
	require.NoError(t, adam.Step())
	assert.Equal(t, float32(2), param.Data()[0])
	assert.Equal(t, float32(0), param.Diff()[0])
}
