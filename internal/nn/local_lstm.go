package nn

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/backend/cpu"
	"github.com/born-ml/gradlayers/internal/blob"
)

// LocalLSTMType is the registry name of LocalLSTM.
const LocalLSTMType = "LocalLSTM"

// LocalLSTM is an LSTM over a sequence, starting from a zero state, whose
// parameters are trained by a layer-local update policy.
//
// Bottoms: x [T, N, D], cont [T, N]
// Tops:    h [T, N, H], c [T, N, H]
//
// At step t:
//
//	h' = cont[t] * h[t-1]
//	a  = Wxc*x[t] + bxc + Whc*h' (+ bhc)
//	c  = cont[t]*f*c[t-1] + i*g
//	h  = o*tanh(c)
//
// back_length k > 0 truncates backpropagation through time: no gradient
// flows from step t into step t-1 when t%k == 0. k <= 0 backpropagates
// through the whole sequence.
//
// With local_lr > 0 every parameter is marked Local and is updated by
// LocalUpdate instead of the global solver step.
type LocalLSTM struct {
	Base
	conf   RecurrentParameter
	ip     InnerProductParameter
	policy *LocalPolicy

	steps, num, inputDim, hidden int

	hPrev, gate []float32
	ones        []float32
}

// NewLocalLSTM creates a LocalLSTM layer.
func NewLocalLSTM(param LayerParameter) *LocalLSTM {
	param.SetDefaults()
	return &LocalLSTM{
		Base: newBase(param),
		conf: param.Recurrent,
		ip:   param.InnerProduct,
	}
}

// Type implements Layer.
func (l *LocalLSTM) Type() string {
	return LocalLSTMType
}

// Policy returns the local update policy, or nil before SetUp.
func (l *LocalLSTM) Policy() *LocalPolicy {
	return l.policy
}

// SetUp implements Layer.
func (l *LocalLSTM) SetUp(bottom, top []*blob.Blob) error {
	if err := l.checkBlobCount(LocalLSTMType, bottom, top, 2, 2, 2); err != nil {
		return err
	}
	if err := l.checkBottomShapes(LocalLSTMType, bottom); err != nil {
		return err
	}
	l.hidden = l.ip.NumOutput
	if l.hidden <= 0 {
		return l.errorf(LocalLSTMType, ErrConfig, "inner_product_param.num_output must be positive, got %d", l.hidden)
	}
	if l.policy == nil {
		policy, err := NewLocalPolicy(l.conf)
		if err != nil {
			return l.errorf(LocalLSTMType, ErrConfig, "%v", err)
		}
		l.policy = policy
	}
	x := bottom[0]
	if x.NumAxes() != 3 {
		return l.errorf(LocalLSTMType, ErrShape, "x must be [T,N,D], got %s", x.ShapeString())
	}
	l.inputDim = x.Dim(2)

	g := numGates * l.hidden
	names := []string{"Wxc", "bxc", "Whc"}
	shapes := []blob.Shape{{g, l.inputDim}, {g}, {g, l.hidden}}
	if l.conf.LocalBiasTerm {
		names = append(names, "bhc")
		shapes = append(shapes, blob.Shape{g})
	}
	if len(l.params) > 0 {
		if err := matchParamShapes(&l.Base, LocalLSTMType, shapes); err != nil {
			return err
		}
		return l.Reshape(bottom, top)
	}

	params := make([]*Param, len(shapes))
	for i, shape := range shapes {
		p := NewParam(names[i], shape)
		filler := l.ip.WeightFiller
		if len(shape) == 1 {
			filler = l.ip.BiasFiller
		}
		if err := fillParam(p, filler); err != nil {
			return l.errorf(LocalLSTMType, ErrConfig, "%s filler: %v", names[i], err)
		}
		p.local = l.policy.Enabled()
		params[i] = p
	}
	l.setParams(params)
	return l.Reshape(bottom, top)
}

// Reshape implements Layer.
func (l *LocalLSTM) Reshape(bottom, top []*blob.Blob) error {
	if err := l.checkBottomShapes(LocalLSTMType, bottom); err != nil {
		return err
	}
	x, cont := bottom[0], bottom[1]
	if x.NumAxes() != 3 || x.Dim(2) != l.inputDim {
		return l.errorf(LocalLSTMType, ErrShape, "x must be [T,N,%d], got %s", l.inputDim, x.ShapeString())
	}
	l.steps, l.num = x.Dim(0), x.Dim(1)
	if !cont.Shape().Equal(blob.Shape{l.steps, l.num}) {
		return l.errorf(LocalLSTMType, ErrShape, "cont must be [%d,%d], got %s", l.steps, l.num, cont.ShapeString())
	}
	seq := blob.Shape{l.steps, l.num, l.hidden}
	top[0].Reshape(seq)
	top[1].Reshape(seq)

	tn := l.steps * l.num
	l.hPrev = make([]float32, tn*l.hidden)
	l.gate = make([]float32, tn*numGates*l.hidden)
	l.ones = make([]float32, l.num)
	cpu.Fill(l.ones, 1)
	return nil
}

// Forward implements Layer.
func (l *LocalLSTM) Forward(bottom, top []*blob.Blob) error {
	x, cont := bottom[0].Data(), bottom[1].Data()
	h, c := top[0].Data(), top[1].Data()
	N, D, H, G := l.num, l.inputDim, l.hidden, numGates*l.hidden

	zero := make([]float32, H)
	pre := make([]float32, N*G)
	for t := 0; t < l.steps; t++ {
		hPrev := l.hPrev[t*N*H : (t+1)*N*H]
		if t == 0 {
			clear(hPrev)
		} else {
			copy(hPrev, h[(t-1)*N*H:t*N*H])
			for n := 0; n < N; n++ {
				cpu.Scal(cont[t*N+n], hPrev[n*H:(n+1)*H])
			}
		}

		cpu.Gemm(false, true, N, G, D, 1, x[t*N*D:(t+1)*N*D], l.params[0].Data(), 0, pre)
		cpu.Gemm(false, false, N, G, 1, 1, l.ones, l.params[1].Data(), 1, pre)
		cpu.Gemm(false, true, N, G, H, 1, hPrev, l.params[2].Data(), 1, pre)
		if l.conf.LocalBiasTerm {
			cpu.Gemm(false, false, N, G, 1, 1, l.ones, l.params[3].Data(), 1, pre)
		}

		for n := 0; n < N; n++ {
			r := t*N + n
			cPrev := zero
			if t > 0 {
				cPrev = c[r*H-N*H : r*H-N*H+H]
			}
			lstmUnitForward(H, cont[r], cPrev, pre[n*G:(n+1)*G],
				l.gate[r*G:(r+1)*G], c[r*H:(r+1)*H], h[r*H:(r+1)*H])
		}
	}
	return nil
}

// Backward implements Layer.
func (l *LocalLSTM) Backward(top []*blob.Blob, propagateDown []bool, bottom []*blob.Blob) error {
	if err := l.checkPropagateDown(LocalLSTMType, propagateDown, bottom); err != nil {
		return err
	}
	if propagateDown[1] {
		return l.errorf(LocalLSTMType, ErrBottomGradient, "sequence continuation indicators (bottom[1])")
	}
	x, cont := bottom[0].Data(), bottom[1].Data()
	c := top[1].Data()
	dhTop, dcTop := top[0].Diff(), top[1].Diff()
	N, D, H, G := l.num, l.inputDim, l.hidden, numGates*l.hidden

	var xDiff []float32
	if propagateDown[0] {
		xDiff = bottom[0].Diff()
	}

	zero := make([]float32, H)
	dhNext := make([]float32, N*H)
	dcNext := make([]float32, N*H)
	dh := make([]float32, N*H)
	dc := make([]float32, N*H)
	dPre := make([]float32, N*G)
	dcPrev := make([]float32, N*H)
	dhPrev := make([]float32, N*H)

	for t := l.steps - 1; t >= 0; t-- {
		copy(dh, dhTop[t*N*H:(t+1)*N*H])
		cpu.Axpy(1, dhNext, dh)
		copy(dc, dcTop[t*N*H:(t+1)*N*H])
		cpu.Axpy(1, dcNext, dc)

		for n := 0; n < N; n++ {
			r := t*N + n
			cPrev := zero
			if t > 0 {
				cPrev = c[r*H-N*H : r*H-N*H+H]
			}
			lstmUnitBackward(H, cont[r], cPrev, l.gate[r*G:(r+1)*G], c[r*H:(r+1)*H],
				dc[n*H:(n+1)*H], dh[n*H:(n+1)*H], dPre[n*G:(n+1)*G], dcPrev[n*H:(n+1)*H])
		}

		xt := x[t*N*D : (t+1)*N*D]
		if l.ParamPropagateDown(0) {
			cpu.Gemm(true, false, G, D, N, 1, dPre, xt, 1, l.params[0].Diff())
		}
		if l.ParamPropagateDown(1) {
			cpu.Gemv(true, N, G, 1, dPre, l.ones, 1, l.params[1].Diff())
		}
		if l.ParamPropagateDown(2) {
			cpu.Gemm(true, false, G, H, N, 1, dPre, l.hPrev[t*N*H:(t+1)*N*H], 1, l.params[2].Diff())
		}
		if l.conf.LocalBiasTerm && l.ParamPropagateDown(3) {
			cpu.Gemv(true, N, G, 1, dPre, l.ones, 1, l.params[3].Diff())
		}
		if xDiff != nil {
			cpu.Gemm(false, false, N, D, G, 1, dPre, l.params[0].Data(), 0, xDiff[t*N*D:(t+1)*N*D])
		}

		if t == 0 || l.truncated(t) {
			clear(dhNext)
			clear(dcNext)
			continue
		}
		cpu.Gemm(false, false, N, H, G, 1, dPre, l.params[2].Data(), 0, dhPrev)
		for n := 0; n < N; n++ {
			cpu.Scal(cont[t*N+n], dhPrev[n*H:(n+1)*H])
		}
		copy(dhNext, dhPrev)
		copy(dcNext, dcPrev)
	}
	return nil
}

// truncated reports whether the gradient carry into step t-1 is cut at step t.
func (l *LocalLSTM) truncated(t int) bool {
	k := l.conf.BackLength
	return k > 0 && t%k == 0
}

// LocalUpdate implements LocalUpdater. It is a no-op when local_lr is 0.
func (l *LocalLSTM) LocalUpdate() error {
	if l.policy == nil || !l.policy.Enabled() {
		return nil
	}
	if err := l.policy.Apply(l.params); err != nil {
		return l.errorf(LocalLSTMType, ErrConfig, "%v", err)
	}
	return nil
}

// String returns a string representation of the layer.
func (l *LocalLSTM) String() string {
	return fmt.Sprintf("LocalLSTM(hidden=%d, back_length=%d, local_lr=%g, local_bias=%v)",
		l.ip.NumOutput, l.conf.BackLength, l.conf.LocalLR, l.conf.LocalBiasTerm)
}
