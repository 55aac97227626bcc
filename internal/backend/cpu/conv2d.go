package cpu

import "fmt"

// ConvGeometry describes one image and the sliding window applied to it.
type ConvGeometry struct {
	Channels, Height, Width int
	KernelH, KernelW        int
	PadH, PadW              int
	StrideH, StrideW        int
	DilationH, DilationW    int
}

// OutH returns the number of window positions along the height axis.
//
//	out_h = (H + 2*pad_h - (dilation_h*(K_h-1)+1)) / stride_h + 1
func (g ConvGeometry) OutH() int {
	return outputDim(g.Height, g.KernelH, g.PadH, g.StrideH, g.DilationH)
}

// OutW returns the number of window positions along the width axis.
func (g ConvGeometry) OutW() int {
	return outputDim(g.Width, g.KernelW, g.PadW, g.StrideW, g.DilationW)
}

// ColRows returns the number of rows of the column buffer (C * K_h * K_w).
func (g ConvGeometry) ColRows() int {
	return g.Channels * g.KernelH * g.KernelW
}

// ColSize returns the number of elements in the column buffer.
func (g ConvGeometry) ColSize() int {
	return g.ColRows() * g.OutH() * g.OutW()
}

func outputDim(in, kernel, pad, stride, dilation int) int {
	extent := dilation*(kernel-1) + 1
	return (in+2*pad-extent)/stride + 1
}

// Im2Col unfolds one image [C, H, W] into a column buffer
// [C * K_h * K_w, out_h * out_w].
//
// Row (c, kh, kw) of the buffer holds, for every output position, the input
// value under that kernel tap; taps falling into the zero padding read as 0.
// With this layout convolution is a single GEMM:
//
//	top[C_out, out_h*out_w] = weight[C_out, C*K_h*K_w] * col
func Im2Col(data []float32, g ConvGeometry, col []float32) {
	outH, outW := g.OutH(), g.OutW()
	if len(col) < g.ColSize() {
		panic(fmt.Sprintf("im2col: column buffer has %d elements, need %d", len(col), g.ColSize()))
	}
	channelSize := g.Height * g.Width

	idx := 0
	for c := 0; c < g.Channels; c++ {
		plane := data[c*channelSize : (c+1)*channelSize]
		for kh := 0; kh < g.KernelH; kh++ {
			for kw := 0; kw < g.KernelW; kw++ {
				inRow := kh*g.DilationH - g.PadH
				for oh := 0; oh < outH; oh++ {
					if inRow < 0 || inRow >= g.Height {
						for ow := 0; ow < outW; ow++ {
							col[idx] = 0
							idx++
						}
					} else {
						inCol := kw*g.DilationW - g.PadW
						for ow := 0; ow < outW; ow++ {
							if inCol >= 0 && inCol < g.Width {
								col[idx] = plane[inRow*g.Width+inCol]
							} else {
								col[idx] = 0
							}
							idx++
							inCol += g.StrideW
						}
					}
					inRow += g.StrideH
				}
			}
		}
	}
}

// Col2Im folds a column buffer back into an image, summing the contributions
// of overlapping windows. The image is overwritten.
func Col2Im(col []float32, g ConvGeometry, data []float32) {
	outH, outW := g.OutH(), g.OutW()
	channelSize := g.Height * g.Width
	clear(data[:g.Channels*channelSize])

	idx := 0
	for c := 0; c < g.Channels; c++ {
		plane := data[c*channelSize : (c+1)*channelSize]
		for kh := 0; kh < g.KernelH; kh++ {
			for kw := 0; kw < g.KernelW; kw++ {
				inRow := kh*g.DilationH - g.PadH
				for oh := 0; oh < outH; oh++ {
					if inRow < 0 || inRow >= g.Height {
						idx += outW
					} else {
						inCol := kw*g.DilationW - g.PadW
						for ow := 0; ow < outW; ow++ {
							if inCol >= 0 && inCol < g.Width {
								plane[inRow*g.Width+inCol] += col[idx]
							}
							idx++
							inCol += g.StrideW
						}
					}
					inRow += g.StrideH
				}
			}
		}
	}
}
