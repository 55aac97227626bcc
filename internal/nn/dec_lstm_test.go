package nn_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradlayers/internal/blob"
	"github.com/born-ml/gradlayers/internal/nn"
)

const (
	seqLen = 5
	hidden = 3
)

// resetPattern restarts the sequence at steps 0 and 2.
var resetPattern = []float32{0, 1, 0, 1, 1}

func dlstmParam(conditional, delay bool, outputDim int) nn.LayerParameter {
	p := nn.LayerParameter{Name: "decoder", Type: nn.DLSTMType}
	p.InnerProduct.NumOutput = hidden
	p.InnerProduct.WeightFiller = nn.FillerParameter{Type: "gaussian", Std: 0.1}
	p.InnerProduct.BiasFiller = nn.FillerParameter{Type: "constant", Value: 0}
	p.Recurrent.Conditional = conditional
	p.Recurrent.OutputDim = outputDim
	p.Recurrent.Delay = delay
	return p
}

// dlstmBottom returns c0, h0, cont and x for a single sequence.
func dlstmBottom(t *testing.T) []*blob.Blob {
	t.Helper()
	c0 := blob.New(blob.Shape{1, 1, hidden})
	h0 := blob.New(blob.Shape{1, 1, hidden})
	for j := range hidden {
		c0.Data()[j] = float32(j) * 0.5
		h0.Data()[j] = 0.1 * float32(j+1)
	}
	cont := mustBlob(t, resetPattern, blob.Shape{seqLen, 1})
	x := blob.New(blob.Shape{seqLen, 1, 3})
	for c := range seqLen {
		for j := range 3 {
			x.Data()[c*3+j] = float32(c)*0.1 + float32(j)*0.3
		}
	}
	return []*blob.Blob{c0, h0, cont, x}
}

func TestDLSTM_SetUp(t *testing.T) {
	layer := nn.NewDLSTM(dlstmParam(true, true, 4))
	top := blobs(1)
	require.NoError(t, layer.SetUp(dlstmBottom(t), top))
	assert.Equal(t, blob.Shape{seqLen, 1, 4}, top[0].Shape())

	// Wxc, bc, Whc, Wyc, Why, by
	var shapes []blob.Shape
	for _, p := range layer.Params() {
		shapes = append(shapes, p.Shape())
	}
	assert.Equal(t, []blob.Shape{{12, 3}, {12}, {12, 3}, {12, 4}, {4, 3}, {4}}, shapes)
}

func TestDLSTM_SetUpDefaultOutput(t *testing.T) {
	layer := nn.NewDLSTM(dlstmParam(false, false, 0))
	top := blobs(3)
	require.NoError(t, layer.SetUp(dlstmBottom(t), top))
	assert.Equal(t, blob.Shape{seqLen, 1, hidden}, top[0].Shape())
	assert.Equal(t, blob.Shape{1, 1, hidden}, top[1].Shape())
	assert.Equal(t, blob.Shape{1, 1, hidden}, top[2].Shape())
	assert.Len(t, layer.Params(), 5)
}

// TestDLSTM_ContinuationResets perturbs the state carried out of step 1 and
// checks that only step 1 changes: steps 2.. restart from c0/h0 at step 2.
func TestDLSTM_ContinuationResets(t *testing.T) {
	for _, delay := range []bool{false, true} {
		layer := nn.NewDLSTM(dlstmParam(true, delay, 4))
		bottom, top := dlstmBottom(t), blobs(1)
		require.NoError(t, layer.SetUp(bottom, top))
		require.NoError(t, layer.Forward(bottom, top))
		before := append([]float32(nil), top[0].Data()...)

		// x[1] feeds step 1 without delay and step 2 only through a carry
		// (delay), which cont[2] = 0 discards. x[0] feeds step 1 with delay.
		x := bottom[3].Data()
		for j := range 3 {
			x[3+j] += 1
			x[j] += 1
		}
		require.NoError(t, layer.Forward(bottom, top))
		after := top[0].Data()

		const o = 4
		assert.NotEqual(t, before[o:2*o], after[o:2*o], "delay=%v: step 1 carries state", delay)
		assert.Equal(t, before[2*o:], after[2*o:], "delay=%v: steps after the reset at 2 must not change", delay)
		if delay {
			assert.Equal(t, before[:o], after[:o], "step 0 ignores its input under delay")
		}
	}
}

// TestDLSTM_ResetUsesInitialState checks that a reset step equals step 0 of a
// fresh sequence fed the same input.
func TestDLSTM_ResetUsesInitialState(t *testing.T) {
	layer := nn.NewDLSTM(dlstmParam(true, false, 0))
	bottom, top := dlstmBottom(t), blobs(1)
	x := bottom[3].Data()
	copy(x[6:9], x[0:3])
	require.NoError(t, layer.SetUp(bottom, top))
	require.NoError(t, layer.Forward(bottom, top))

	y := top[0].Data()
	assert.Equal(t, y[0:hidden], y[2*hidden:3*hidden])

	// Changing c0 changes both reset steps.
	before := append([]float32(nil), y...)
	bottom[0].Data()[1] += 1
	require.NoError(t, layer.Forward(bottom, top))
	assert.NotEqual(t, before[0:hidden], y[0:hidden])
	assert.NotEqual(t, before[2*hidden:3*hidden], y[2*hidden:3*hidden])
}

// TestDLSTM_FinalState checks a one-step decoder against DLSTMUnit fed
// with the gate pre-activations computed by hand.
func TestDLSTM_FinalState(t *testing.T) {
	full := dlstmBottom(t)
	x := mustBlob(t, full[3].Data()[:3], blob.Shape{1, 1, 3})
	bottom := []*blob.Blob{full[0], full[1], mustBlob(t, []float32{1}, blob.Shape{1, 1}), x}
	top := blobs(3)
	layer := nn.NewDLSTM(dlstmParam(false, false, 0))
	require.NoError(t, layer.SetUp(bottom, top))
	require.NoError(t, layer.Forward(bottom, top))

	params := layer.Params()
	wxc, bc, whc := params[0].Data(), params[1].Data(), params[2].Data()
	h0 := full[1].Data()
	gates := blob.New(blob.Shape{1, 1, 4 * hidden})
	for k := range 4 * hidden {
		a := bc[k]
		for j := range 3 {
			a += wxc[k*3+j] * x.Data()[j]
		}
		for j := range hidden {
			a += whc[k*hidden+j] * h0[j]
		}
		gates.Data()[k] = a
	}
	unit := nn.NewDLSTMUnit(nn.LayerParameter{Type: nn.DLSTMUnitType})
	unitBottom, unitTop := []*blob.Blob{full[0], gates}, blobs(2)
	require.NoError(t, unit.SetUp(unitBottom, unitTop))
	require.NoError(t, unit.Forward(unitBottom, unitTop))

	assert.InDeltaSlice(t, unitTop[0].Data(), top[1].Data(), 1e-6, "c_T")
	assert.InDeltaSlice(t, unitTop[1].Data(), top[2].Data(), 1e-6, "h_T")

	why, by := params[3].Data(), params[4].Data()
	for o := range hidden {
		y := by[o]
		for j := range hidden {
			y += why[o*hidden+j] * unitTop[1].Data()[j]
		}
		assert.InDelta(t, y, top[0].Data()[o], 1e-6, "y[%d]", o)
	}

	// Step 0 of the full sequence starts from the same state.
	fullTop := blobs(1)
	require.NoError(t, layer.SetUp(full, fullTop))
	require.NoError(t, layer.Forward(full, fullTop))
	assert.InDeltaSlice(t, top[0].Data(), fullTop[0].Data()[:hidden], 1e-6)
}

func TestDLSTM_Gradient(t *testing.T) {
	tests := []struct {
		name        string
		conditional bool
		delay       bool
		outputDim   int
		tops        int
	}{
		{"conditional delay", true, true, 4, 1},
		{"plain", false, false, 0, 1},
		{"final state", false, false, 2, 3},
		{"conditional final state", true, false, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := nn.NewDLSTM(dlstmParam(tt.conditional, tt.delay, tt.outputDim))
			checker := newChecker()
			for _, checkBottom := range []int{0, 1, 3} {
				bottom := dlstmBottom(t)
				require.NoError(t, checker.CheckExhaustive(layer, bottom, blobs(tt.tops), checkBottom), "bottom %d", checkBottom)
			}
		})
	}
}

func TestDLSTM_GradientBatch(t *testing.T) {
	p := dlstmParam(true, true, 2)
	layer := nn.NewDLSTM(p)
	bottom := []*blob.Blob{
		gaussianBlob(t, blob.Shape{1, 2, hidden}, 1, 50),
		gaussianBlob(t, blob.Shape{1, 2, hidden}, 1, 51),
		mustBlob(t, []float32{0, 0, 1, 0, 1, 1}, blob.Shape{3, 2}),
		gaussianBlob(t, blob.Shape{3, 2, 2}, 1, 52),
	}
	require.NoError(t, newChecker().CheckExhaustive(layer, bottom, blobs(3), 3))
	require.NoError(t, newChecker().CheckExhaustive(layer, bottom, blobs(3), 0))
}

func TestDLSTM_ContGradientRejected(t *testing.T) {
	layer := nn.NewDLSTM(dlstmParam(false, false, 0))
	bottom, top := dlstmBottom(t), blobs(1)
	require.NoError(t, layer.SetUp(bottom, top))
	require.NoError(t, layer.Forward(bottom, top))
	err := layer.Backward(top, []bool{false, false, true, false}, bottom)
	assert.ErrorIs(t, err, nn.ErrBottomGradient)
}

func TestDLSTM_ShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b []*blob.Blob)
	}{
		{"c0 hidden size", func(b []*blob.Blob) { b[0].Reshape(blob.Shape{1, 1, 2}) }},
		{"h0 batch", func(b []*blob.Blob) { b[1].Reshape(blob.Shape{1, 2, hidden}) }},
		{"cont length", func(b []*blob.Blob) { b[2].Reshape(blob.Shape{4, 1}) }},
		{"x rank", func(b []*blob.Blob) { b[3].Reshape(blob.Shape{seqLen, 3}) }},
		{"empty sequence", func(b []*blob.Blob) {
			b[2].Reshape(blob.Shape{0, 1})
			b[3].Reshape(blob.Shape{0, 1, 3})
		}},
		{"empty batch", func(b []*blob.Blob) {
			b[0].Reshape(blob.Shape{1, 0, hidden})
			b[1].Reshape(blob.Shape{1, 0, hidden})
			b[2].Reshape(blob.Shape{seqLen, 0})
			b[3].Reshape(blob.Shape{seqLen, 0, 3})
		}},
		{"empty input", func(b []*blob.Blob) { b[3].Reshape(blob.Shape{seqLen, 1, 0}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bottom := dlstmBottom(t)
			tt.mutate(bottom)
			err := nn.NewDLSTM(dlstmParam(false, false, 0)).SetUp(bottom, blobs(1))
			assert.ErrorIs(t, err, nn.ErrShape)
		})
	}

	// A layer that is already set up rejects an empty sequence on Reshape.
	layer := nn.NewDLSTM(dlstmParam(false, false, 0))
	bottom, top := dlstmBottom(t), blobs(3)
	require.NoError(t, layer.SetUp(bottom, top))
	bottom[2].Reshape(blob.Shape{0, 1})
	bottom[3].Reshape(blob.Shape{0, 1, 3})
	if err := layer.Reshape(bottom, top); !errors.Is(err, nn.ErrShape) {
		t.Errorf("Reshape with T=0: got %v, want ErrShape", err)
	}

	p := dlstmParam(false, false, 0)
	p.InnerProduct.NumOutput = 0
	assert.ErrorIs(t, nn.NewDLSTM(p).SetUp(dlstmBottom(t), blobs(1)), nn.ErrConfig)
	assert.ErrorIs(t, nn.NewDLSTM(dlstmParam(false, false, 0)).SetUp(dlstmBottom(t), blobs(4)), nn.ErrShape)
}
