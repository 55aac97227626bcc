package nn

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/backend/cpu"
	"github.com/born-ml/gradlayers/internal/blob"
)

// DLSTMType is the registry name of DLSTM.
const DLSTMType = "DLSTM"

// Indices of DLSTM parameters. paramWyc exists only for conditional
// decoders; the output projection follows it.
const (
	paramWxc = iota
	paramBc
	paramWhc
)

// DLSTM is a decoder LSTM that starts from an externally supplied state.
//
// Bottoms: c0 [1, N, H], h0 [1, N, H], cont [T, N], x [T, N, D]
// Tops:    y [T, N, O], optional c_T [1, N, H], optional h_T [1, N, H]
//
// H is inner_product_param.num_output; O is recurrent_param.output_dim and
// defaults to H.
//
// At step t a row resets when t == 0 or cont[t] == 0: its previous state
// is (c0, h0) and its previous output is zero, so the step depends on the
// initial state only. Otherwise the state and output of step t-1 are carried.
//
//	u   = x[t]                      (delay: x[t-1], or 0 on reset)
//	a   = Wxc*u + Whc*h_prev + bc   (conditional: + Wyc*y_prev)
//	c,h = lstm(a, c_prev)
//	y   = Why*h + by
//
// Parameters: Wxc [4H,D], bc [4H], Whc [4H,H], Wyc [4H,O] (conditional),
// Why [O,H], by [O].
type DLSTM struct {
	Base
	conf RecurrentParameter
	ip   InnerProductParameter

	steps, num, inputDim, hidden, outputDim int

	// Per-step inputs to the gate affine map, kept for backward.
	u, hPrev, cPrev, yPrev []float32
	gate, c, h             []float32
	ones                   []float32
}

// NewDLSTM creates a DLSTM layer.
func NewDLSTM(param LayerParameter) *DLSTM {
	param.SetDefaults()
	return &DLSTM{
		Base: newBase(param),
		conf: param.Recurrent,
		ip:   param.InnerProduct,
	}
}

// Type implements Layer.
func (l *DLSTM) Type() string {
	return DLSTMType
}

func (l *DLSTM) whyIndex() int {
	if l.conf.Conditional {
		return paramWhc + 2
	}
	return paramWhc + 1
}

// SetUp implements Layer.
func (l *DLSTM) SetUp(bottom, top []*blob.Blob) error {
	if err := l.checkBlobCount(DLSTMType, bottom, top, 4, 1, 3); err != nil {
		return err
	}
	if err := l.checkBottomShapes(DLSTMType, bottom); err != nil {
		return err
	}
	l.hidden = l.ip.NumOutput
	if l.hidden <= 0 {
		return l.errorf(DLSTMType, ErrConfig, "inner_product_param.num_output must be positive, got %d", l.hidden)
	}
	l.outputDim = l.conf.OutputDim
	if l.outputDim < 0 {
		return l.errorf(DLSTMType, ErrConfig, "output_dim must not be negative, got %d", l.outputDim)
	}
	if l.outputDim == 0 {
		l.outputDim = l.hidden
	}
	x := bottom[3]
	if x.NumAxes() != 3 {
		return l.errorf(DLSTMType, ErrShape, "x must be [T,N,D], got %s", x.ShapeString())
	}
	l.inputDim = x.Dim(2)

	g, hd, o := numGates*l.hidden, l.hidden, l.outputDim
	shapes := []blob.Shape{{g, l.inputDim}, {g}, {g, hd}}
	names := []string{"Wxc", "bc", "Whc"}
	if l.conf.Conditional {
		shapes = append(shapes, blob.Shape{g, o})
		names = append(names, "Wyc")
	}
	shapes = append(shapes, blob.Shape{o, hd}, blob.Shape{o})
	names = append(names, "Why", "by")
	if err := l.setUpParams(names, shapes); err != nil {
		return err
	}
	return l.Reshape(bottom, top)
}

// setUpParams allocates and fills parameters once. Biases are the 1D shapes.
func (l *DLSTM) setUpParams(names []string, shapes []blob.Shape) error {
	if len(l.params) > 0 {
		return matchParamShapes(&l.Base, DLSTMType, shapes)
	}
	params := make([]*Param, len(shapes))
	for i, shape := range shapes {
		p := NewParam(names[i], shape)
		filler := l.ip.WeightFiller
		if len(shape) == 1 {
			filler = l.ip.BiasFiller
		}
		if err := fillParam(p, filler); err != nil {
			return l.errorf(DLSTMType, ErrConfig, "%s filler: %v", names[i], err)
		}
		params[i] = p
	}
	l.setParams(params)
	return nil
}

// matchParamShapes checks that a repeated SetUp would produce the existing parameter shapes.
func matchParamShapes(b *Base, typ string, shapes []blob.Shape) error {
	if len(b.params) != len(shapes) {
		return b.errorf(typ, ErrShape, "have %d params, configuration needs %d", len(b.params), len(shapes))
	}
	for i, p := range b.params {
		if !p.Shape().Equal(shapes[i]) {
			return b.errorf(typ, ErrShape, "param %s has shape %v, input needs %v", p.Name(), p.Shape(), shapes[i])
		}
	}
	return nil
}

// Reshape implements Layer.
func (l *DLSTM) Reshape(bottom, top []*blob.Blob) error {
	if err := l.checkBottomShapes(DLSTMType, bottom); err != nil {
		return err
	}
	c0, h0, cont, x := bottom[0], bottom[1], bottom[2], bottom[3]
	if x.NumAxes() != 3 || x.Dim(2) != l.inputDim {
		return l.errorf(DLSTMType, ErrShape, "x must be [T,N,%d], got %s", l.inputDim, x.ShapeString())
	}
	l.steps, l.num = x.Dim(0), x.Dim(1)
	state := blob.Shape{1, l.num, l.hidden}
	if !c0.Shape().Equal(state) {
		return l.errorf(DLSTMType, ErrShape, "c0 must be %v, got %s", state, c0.ShapeString())
	}
	if !h0.Shape().Equal(state) {
		return l.errorf(DLSTMType, ErrShape, "h0 must be %v, got %s", state, h0.ShapeString())
	}
	if !cont.Shape().Equal(blob.Shape{l.steps, l.num}) {
		return l.errorf(DLSTMType, ErrShape, "cont must be [%d,%d], got %s", l.steps, l.num, cont.ShapeString())
	}

	top[0].Reshape(blob.Shape{l.steps, l.num, l.outputDim})
	for _, t := range top[1:] {
		t.Reshape(state)
	}

	tn := l.steps * l.num
	l.u = make([]float32, tn*l.inputDim)
	l.hPrev = make([]float32, tn*l.hidden)
	l.cPrev = make([]float32, tn*l.hidden)
	l.yPrev = make([]float32, tn*l.outputDim)
	l.gate = make([]float32, tn*numGates*l.hidden)
	l.c = make([]float32, tn*l.hidden)
	l.h = make([]float32, tn*l.hidden)
	l.ones = make([]float32, l.num)
	cpu.Fill(l.ones, 1)
	return nil
}

// resets reports, per row of step t, whether the state restarts from (c0, h0).
func resets(cont []float32, t, num, row int) bool {
	return t == 0 || cont[t*num+row] == 0
}

// Forward implements Layer.
func (l *DLSTM) Forward(bottom, top []*blob.Blob) error {
	c0, h0 := bottom[0].Data(), bottom[1].Data()
	cont, x := bottom[2].Data(), bottom[3].Data()
	y := top[0].Data()

	N, D, H, O, G := l.num, l.inputDim, l.hidden, l.outputDim, numGates*l.hidden
	pre := make([]float32, N*G)
	for t := 0; t < l.steps; t++ {
		u := l.u[t*N*D : (t+1)*N*D]
		hPrev := l.hPrev[t*N*H : (t+1)*N*H]
		cPrev := l.cPrev[t*N*H : (t+1)*N*H]
		yPrev := l.yPrev[t*N*O : (t+1)*N*O]
		for n := 0; n < N; n++ {
			reset := resets(cont, t, N, n)
			switch {
			case reset:
				copy(cPrev[n*H:(n+1)*H], c0[n*H:(n+1)*H])
				copy(hPrev[n*H:(n+1)*H], h0[n*H:(n+1)*H])
				clear(yPrev[n*O : (n+1)*O])
			default:
				prev := ((t-1)*N + n) * H
				copy(cPrev[n*H:(n+1)*H], l.c[prev:prev+H])
				copy(hPrev[n*H:(n+1)*H], l.h[prev:prev+H])
				copy(yPrev[n*O:(n+1)*O], y[((t-1)*N+n)*O:((t-1)*N+n+1)*O])
			}
			row := u[n*D : (n+1)*D]
			switch {
			case !l.conf.Delay:
				copy(row, x[(t*N+n)*D:(t*N+n+1)*D])
			case reset:
				clear(row)
			default:
				copy(row, x[((t-1)*N+n)*D:((t-1)*N+n+1)*D])
			}
		}

		cpu.Gemm(false, true, N, G, D, 1, u, l.params[paramWxc].Data(), 0, pre)
		cpu.Gemm(false, true, N, G, H, 1, hPrev, l.params[paramWhc].Data(), 1, pre)
		if l.conf.Conditional {
			cpu.Gemm(false, true, N, G, O, 1, yPrev, l.params[paramWhc+1].Data(), 1, pre)
		}
		cpu.Gemm(false, false, N, G, 1, 1, l.ones, l.params[paramBc].Data(), 1, pre)

		for n := 0; n < N; n++ {
			r := t*N + n
			lstmUnitForward(H, 1, cPrev[n*H:(n+1)*H], pre[n*G:(n+1)*G],
				l.gate[r*G:(r+1)*G], l.c[r*H:(r+1)*H], l.h[r*H:(r+1)*H])
		}

		why := l.whyIndex()
		yt := y[t*N*O : (t+1)*N*O]
		cpu.Gemm(false, true, N, O, H, 1, l.h[t*N*H:(t+1)*N*H], l.params[why].Data(), 0, yt)
		cpu.Gemm(false, false, N, O, 1, 1, l.ones, l.params[why+1].Data(), 1, yt)
	}

	last := (l.steps - 1) * N * H
	if len(top) > 1 {
		copy(top[1].Data(), l.c[last:last+N*H])
	}
	if len(top) > 2 {
		copy(top[2].Data(), l.h[last:last+N*H])
	}
	return nil
}

// Backward implements Layer. It backpropagates through all T steps.
// Gradients into c0 and h0 collect the contributions of every reset row.
func (l *DLSTM) Backward(top []*blob.Blob, propagateDown []bool, bottom []*blob.Blob) error {
	if err := l.checkPropagateDown(DLSTMType, propagateDown, bottom); err != nil {
		return err
	}
	if propagateDown[2] {
		return l.errorf(DLSTMType, ErrBottomGradient, "sequence continuation indicators (bottom[2])")
	}
	N, D, H, O, G := l.num, l.inputDim, l.hidden, l.outputDim, numGates*l.hidden
	cont := bottom[2].Data()
	dy := top[0].Diff()

	var c0Diff, h0Diff, xDiff []float32
	if propagateDown[0] {
		c0Diff = bottom[0].Diff()
		clear(c0Diff)
	}
	if propagateDown[1] {
		h0Diff = bottom[1].Diff()
		clear(h0Diff)
	}
	if propagateDown[3] {
		xDiff = bottom[3].Diff()
		clear(xDiff)
	}

	// Gradients flowing into step t from step t+1.
	dhNext := make([]float32, N*H)
	dcNext := make([]float32, N*H)
	dyNext := make([]float32, N*O)
	if len(top) > 1 {
		copy(dcNext, top[1].Diff())
	}
	if len(top) > 2 {
		copy(dhNext, top[2].Diff())
	}

	why := l.whyIndex()
	wxc, whc, wy := l.params[paramWxc], l.params[paramWhc], l.params[why]
	dyt := make([]float32, N*O)
	dh := make([]float32, N*H)
	dPre := make([]float32, N*G)
	dcPrev := make([]float32, N*H)
	dhPrev := make([]float32, N*H)
	dyPrev := make([]float32, N*O)
	du := make([]float32, N*D)

	for t := l.steps - 1; t >= 0; t-- {
		ht := l.h[t*N*H : (t+1)*N*H]
		copy(dyt, dy[t*N*O:(t+1)*N*O])
		cpu.Axpy(1, dyNext, dyt)

		// Output projection.
		if l.ParamPropagateDown(why) {
			cpu.Gemm(true, false, O, H, N, 1, dyt, ht, 1, wy.Diff())
		}
		if l.ParamPropagateDown(why + 1) {
			cpu.Gemv(true, N, O, 1, dyt, l.ones, 1, l.params[why+1].Diff())
		}
		copy(dh, dhNext)
		cpu.Gemm(false, false, N, H, O, 1, dyt, wy.Data(), 1, dh)

		for n := 0; n < N; n++ {
			r := t*N + n
			lstmUnitBackward(H, 1, l.cPrev[r*H:(r+1)*H], l.gate[r*G:(r+1)*G], l.c[r*H:(r+1)*H],
				dcNext[n*H:(n+1)*H], dh[n*H:(n+1)*H], dPre[n*G:(n+1)*G], dcPrev[n*H:(n+1)*H])
		}

		// Gate affine map.
		u := l.u[t*N*D : (t+1)*N*D]
		hPrev := l.hPrev[t*N*H : (t+1)*N*H]
		if l.ParamPropagateDown(paramWxc) {
			cpu.Gemm(true, false, G, D, N, 1, dPre, u, 1, wxc.Diff())
		}
		if l.ParamPropagateDown(paramBc) {
			cpu.Gemv(true, N, G, 1, dPre, l.ones, 1, l.params[paramBc].Diff())
		}
		if l.ParamPropagateDown(paramWhc) {
			cpu.Gemm(true, false, G, H, N, 1, dPre, hPrev, 1, whc.Diff())
		}
		cpu.Gemm(false, false, N, H, G, 1, dPre, whc.Data(), 0, dhPrev)
		clear(dyPrev)
		if l.conf.Conditional {
			wyc := l.params[paramWhc+1]
			if l.ParamPropagateDown(paramWhc + 1) {
				cpu.Gemm(true, false, G, O, N, 1, dPre, l.yPrev[t*N*O:(t+1)*N*O], 1, wyc.Diff())
			}
			cpu.Gemm(false, false, N, O, G, 1, dPre, wyc.Data(), 0, dyPrev)
		}
		if xDiff != nil {
			cpu.Gemm(false, false, N, D, G, 1, dPre, wxc.Data(), 0, du)
		}

		for n := 0; n < N; n++ {
			hOff, yOff, xOff := n*H, n*O, n*D
			reset := resets(cont, t, N, n)
			if reset {
				if c0Diff != nil {
					cpu.Axpy(1, dcPrev[hOff:hOff+H], c0Diff[hOff:hOff+H])
				}
				if h0Diff != nil {
					cpu.Axpy(1, dhPrev[hOff:hOff+H], h0Diff[hOff:hOff+H])
				}
				clear(dcNext[hOff : hOff+H])
				clear(dhNext[hOff : hOff+H])
				clear(dyNext[yOff : yOff+O])
			} else {
				copy(dcNext[hOff:hOff+H], dcPrev[hOff:hOff+H])
				copy(dhNext[hOff:hOff+H], dhPrev[hOff:hOff+H])
				copy(dyNext[yOff:yOff+O], dyPrev[yOff:yOff+O])
			}

			if xDiff == nil {
				continue
			}
			switch {
			case !l.conf.Delay:
				copy(xDiff[(t*N+n)*D:(t*N+n+1)*D], du[xOff:xOff+D])
			case !reset:
				cpu.Axpy(1, du[xOff:xOff+D], xDiff[((t-1)*N+n)*D:((t-1)*N+n+1)*D])
			}
		}
	}
	return nil
}

// String returns a string representation of the layer.
func (l *DLSTM) String() string {
	return fmt.Sprintf("DLSTM(hidden=%d, output_dim=%d, conditional=%v, delay=%v)",
		l.ip.NumOutput, l.conf.OutputDim, l.conf.Conditional, l.conf.Delay)
}
