package nn

import (
	"github.com/born-ml/gradlayers/internal/backend/cpu"
	"github.com/born-ml/gradlayers/internal/blob"
)

// DLSTMUnitType is the registry name of DLSTMUnit.
const DLSTMUnitType = "DLSTMUnit"

// Gate blocks inside a [4H] pre-activation row.
const (
	gateInput = iota
	gateForget
	gateOutput
	gateCell
	numGates
)

// lstmUnitForward computes one LSTM cell step for a single row.
//
//	i, f, o = sigmoid(pre[i|f|o]),  g = tanh(pre[g])
//	c = cont*f*cPrev + i*g
//	h = o*tanh(c)
//
// gate receives the activated [i|f|o|g] values used by lstmUnitBackward.
func lstmUnitForward(hidden int, cont float32, cPrev, pre, gate, c, h []float32) {
	for j := 0; j < hidden; j++ {
		i := cpu.Sigmoid(pre[gateInput*hidden+j])
		f := cpu.Sigmoid(pre[gateForget*hidden+j])
		o := cpu.Sigmoid(pre[gateOutput*hidden+j])
		g := cpu.Tanh(pre[gateCell*hidden+j])
		gate[gateInput*hidden+j] = i
		gate[gateForget*hidden+j] = f
		gate[gateOutput*hidden+j] = o
		gate[gateCell*hidden+j] = g

		c[j] = cont*f*cPrev[j] + i*g
		h[j] = o * cpu.Tanh(c[j])
	}
}

// lstmUnitBackward propagates dc and dh of one row through the cell.
//
// dPre receives the gradient w.r.t. the [i|f|o|g] pre-activations; dcPrev,
// if non-nil, receives the gradient w.r.t. cPrev. Both are overwritten.
func lstmUnitBackward(hidden int, cont float32, cPrev, gate, c, dc, dh, dPre, dcPrev []float32) {
	for j := 0; j < hidden; j++ {
		i := gate[gateInput*hidden+j]
		f := gate[gateForget*hidden+j]
		o := gate[gateOutput*hidden+j]
		g := gate[gateCell*hidden+j]
		tc := cpu.Tanh(c[j])

		dcTotal := dc[j] + dh[j]*o*(1-tc*tc)
		if dcPrev != nil {
			dcPrev[j] = cont * dcTotal * f
		}
		dPre[gateInput*hidden+j] = dcTotal * g * i * (1 - i)
		dPre[gateForget*hidden+j] = cont * dcTotal * cPrev[j] * f * (1 - f)
		dPre[gateOutput*hidden+j] = dh[j] * tc * o * (1 - o)
		dPre[gateCell*hidden+j] = dcTotal * i * (1 - g*g)
	}
}

// DLSTMUnit is a single LSTM cell step without parameters.
//
// Bottoms: c_prev [1, N, H], gates [1, N, 4H] (pre-activations, [i|f|o|g])
// Tops:    c [1, N, H], h [1, N, H]
//
// DLSTM uses the same cell computation for every time step.
type DLSTMUnit struct {
	Base
	hidden int
	num    int
	gate   []float32
}

// NewDLSTMUnit creates a DLSTMUnit layer.
func NewDLSTMUnit(param LayerParameter) *DLSTMUnit {
	param.SetDefaults()
	return &DLSTMUnit{Base: newBase(param)}
}

// Type implements Layer.
func (u *DLSTMUnit) Type() string {
	return DLSTMUnitType
}

// SetUp implements Layer.
func (u *DLSTMUnit) SetUp(bottom, top []*blob.Blob) error {
	if err := u.checkBlobCount(DLSTMUnitType, bottom, top, 2, 2, 2); err != nil {
		return err
	}
	return u.Reshape(bottom, top)
}

// Reshape implements Layer.
func (u *DLSTMUnit) Reshape(bottom, top []*blob.Blob) error {
	cPrev, gates := bottom[0], bottom[1]
	if cPrev.NumAxes() != 3 || cPrev.Dim(0) != 1 {
		return u.errorf(DLSTMUnitType, ErrShape, "c_prev must be [1,N,H], got %s", cPrev.ShapeString())
	}
	u.num, u.hidden = cPrev.Dim(1), cPrev.Dim(2)
	want := blob.Shape{1, u.num, numGates * u.hidden}
	if !gates.Shape().Equal(want) {
		return u.errorf(DLSTMUnitType, ErrShape, "gates must be %v for c_prev %s, got %s", want, cPrev.ShapeString(), gates.ShapeString())
	}
	top[0].ReshapeLike(cPrev)
	top[1].ReshapeLike(cPrev)
	u.gate = make([]float32, gates.Count())
	return nil
}

// Forward implements Layer.
func (u *DLSTMUnit) Forward(bottom, top []*blob.Blob) error {
	h, g := u.hidden, numGates*u.hidden
	cPrev, pre := bottom[0].Data(), bottom[1].Data()
	c, hOut := top[0].Data(), top[1].Data()
	for n := 0; n < u.num; n++ {
		lstmUnitForward(h, 1, cPrev[n*h:(n+1)*h], pre[n*g:(n+1)*g], u.gate[n*g:(n+1)*g], c[n*h:(n+1)*h], hOut[n*h:(n+1)*h])
	}
	return nil
}

// Backward implements Layer.
func (u *DLSTMUnit) Backward(top []*blob.Blob, propagateDown []bool, bottom []*blob.Blob) error {
	if err := u.checkPropagateDown(DLSTMUnitType, propagateDown, bottom); err != nil {
		return err
	}
	if !propagateDown[0] && !propagateDown[1] {
		return nil
	}
	h, g := u.hidden, numGates*u.hidden
	cPrev := bottom[0].Data()
	c := top[0].Data()
	dc, dh := top[0].Diff(), top[1].Diff()
	dPre := make([]float32, g)
	dcPrev := make([]float32, h)
	for n := 0; n < u.num; n++ {
		lstmUnitBackward(h, 1, cPrev[n*h:(n+1)*h], u.gate[n*g:(n+1)*g], c[n*h:(n+1)*h],
			dc[n*h:(n+1)*h], dh[n*h:(n+1)*h], dPre, dcPrev)
		if propagateDown[0] {
			copy(bottom[0].Diff()[n*h:(n+1)*h], dcPrev)
		}
		if propagateDown[1] {
			copy(bottom[1].Diff()[n*g:(n+1)*g], dPre)
		}
	}
	return nil
}
