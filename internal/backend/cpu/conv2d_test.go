package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvGeometry_OutputDims(t *testing.T) {
	tests := []struct {
		name string
		g    ConvGeometry
		outH int
		outW int
	}{
		{
			name: "3x3 input, 2x2 kernel",
			g:    ConvGeometry{Channels: 1, Height: 3, Width: 3, KernelH: 2, KernelW: 2, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1},
			outH: 2, outW: 2,
		},
		{
			name: "padding and stride",
			g:    ConvGeometry{Channels: 3, Height: 6, Width: 4, KernelH: 3, KernelW: 3, PadH: 1, PadW: 1, StrideH: 2, StrideW: 2, DilationH: 1, DilationW: 1},
			outH: 3, outW: 2,
		},
		{
			name: "dilation",
			g:    ConvGeometry{Channels: 1, Height: 7, Width: 7, KernelH: 3, KernelW: 3, StrideH: 1, StrideW: 1, DilationH: 2, DilationW: 2},
			outH: 3, outW: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.outH, tt.g.OutH())
			assert.Equal(t, tt.outW, tt.g.OutW())
		})
	}
}

func TestIm2Col_KnownValues(t *testing.T) {
	// Input [1, 3, 3] with values 1-9, kernel 2x2.
	g := ConvGeometry{Channels: 1, Height: 3, Width: 3, KernelH: 2, KernelW: 2, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}
	col := make([]float32, g.ColSize())
	Im2Col(data, g, col)

	// One row per kernel tap, one column per output position.
	want := []float32{
		1, 2, 4, 5, // tap (0,0)
		2, 3, 5, 6, // tap (0,1)
		4, 5, 7, 8, // tap (1,0)
		5, 6, 8, 9, // tap (1,1)
	}
	assert.Equal(t, want, col)

	// Convolution as GEMM with weights [1 2; 3 4]:
	// [0,0]: 1*1 + 2*2 + 3*4 + 4*5 = 37
	weight := []float32{1, 2, 3, 4}
	out := make([]float32, 4)
	Gemm(false, false, 1, 4, 4, 1, weight, col, 0, out)
	assert.Equal(t, []float32{37, 47, 67, 77}, out)
}

func TestIm2Col_Padding(t *testing.T) {
	g := ConvGeometry{Channels: 1, Height: 2, Width: 2, KernelH: 3, KernelW: 3, PadH: 1, PadW: 1, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}
	data := []float32{1, 2, 3, 4}
	col := make([]float32, g.ColSize())
	Im2Col(data, g, col)

	// Centre tap (1,1) sees the image itself.
	centre := col[4*4 : 5*4]
	assert.Equal(t, []float32{1, 2, 3, 4}, centre)
	// Top-left tap (0,0) only reaches pixel 1 from output (1,1).
	assert.Equal(t, []float32{0, 0, 0, 1}, col[0:4])
}

// TestCol2Im_Adjoint checks <im2col(x), y> == <x, col2im(y)>, which is what
// makes the input gradient of convolution correct.
func TestCol2Im_Adjoint(t *testing.T) {
	g := ConvGeometry{Channels: 2, Height: 5, Width: 4, KernelH: 3, KernelW: 2, PadH: 1, PadW: 0, StrideH: 2, StrideW: 1, DilationH: 1, DilationW: 2}
	require.Positive(t, g.OutH())
	require.Positive(t, g.OutW())

	rng := rand.New(rand.NewSource(7))
	x := make([]float32, g.Channels*g.Height*g.Width)
	y := make([]float32, g.ColSize())
	for i := range x {
		x[i] = rng.Float32() - 0.5
	}
	for i := range y {
		y[i] = rng.Float32() - 0.5
	}

	col := make([]float32, g.ColSize())
	Im2Col(x, g, col)
	img := make([]float32, len(x))
	Col2Im(y, g, img)

	assert.InDelta(t, Dot(col, y), Dot(x, img), 1e-4)
}

func TestIm2Col_ShortBufferPanics(t *testing.T) {
	g := ConvGeometry{Channels: 1, Height: 3, Width: 3, KernelH: 2, KernelW: 2, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}
	assert.Panics(t, func() { Im2Col(make([]float32, 9), g, make([]float32, 3)) })
}
