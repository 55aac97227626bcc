package nn

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/backend/cpu"
	"github.com/born-ml/gradlayers/internal/blob"
	"github.com/born-ml/gradlayers/internal/parallel"
)

// ConvolutionType is the registry name of Convolution.
const ConvolutionType = "Convolution"

// numClipLogged is how many leading weights are logged around clipping.
const numClipLogged = 20

// ComputeOutputShape returns the spatial output dimensions of a convolution.
//
// For every spatial axis:
//
//	out = (in + 2*pad - (dilation*(kernel-1)+1)) / stride + 1
//
// An error is returned when the argument lengths differ, when kernel,
// stride or dilation is below 1, when pad is negative, or when the dilated
// kernel does not fit in the padded input.
func ComputeOutputShape(input, kernel, stride, pad, dilation []int) ([]int, error) {
	n := len(input)
	if len(kernel) != n || len(stride) != n || len(pad) != n || len(dilation) != n {
		return nil, fmt.Errorf("conv output shape: %d spatial axes but kernel=%v stride=%v pad=%v dilation=%v: %w",
			n, kernel, stride, pad, dilation, ErrConfig)
	}
	out := make([]int, n)
	for i := range input {
		switch {
		case kernel[i] < 1:
			return nil, fmt.Errorf("conv output shape: axis %d: kernel %d < 1: %w", i, kernel[i], ErrConfig)
		case stride[i] < 1:
			return nil, fmt.Errorf("conv output shape: axis %d: stride %d < 1: %w", i, stride[i], ErrConfig)
		case dilation[i] < 1:
			return nil, fmt.Errorf("conv output shape: axis %d: dilation %d < 1: %w", i, dilation[i], ErrConfig)
		case pad[i] < 0:
			return nil, fmt.Errorf("conv output shape: axis %d: pad %d < 0: %w", i, pad[i], ErrConfig)
		}
		extent := dilation[i]*(kernel[i]-1) + 1
		padded := input[i] + 2*pad[i]
		if extent > padded {
			return nil, fmt.Errorf("conv output shape: axis %d: kernel extent %d exceeds padded input %d: %w",
				i, extent, padded, ErrShape)
		}
		out[i] = (padded-extent)/stride[i] + 1
	}
	return out, nil
}

// Convolution is a 2D convolution computed with im2col and GEMM.
//
// Bottom shape: [N, C, H, W] (every bottom must share this shape)
// Weight shape: [num_output, C/group, kernel_h, kernel_w]
// Bias shape:   [num_output]
// Top shape:    [N, num_output, out_h, out_w]
//
// When clip_by_value is set, Forward first clamps the weights (and bias) in
// place to [clip_lower, clip_upper], the weight clipping of Wasserstein GAN
// critics. The clamp persists: it changes the stored parameters.
//
// Backward always computes gradients. Whether they reach the parameter
// diffs is decided by the adversarial schedule (see GANPhase and
// UpdateWeight): in a phase that forbids updates they go to a layer-owned
// buffer instead (see HeldDiff), and Param.Frozen reports whether nothing
// has been accumulated since the last ZeroGrad.
//
// Example:
//
//	p := nn.LayerParameter{Name: "conv1", Type: nn.ConvolutionType}
//	p.Convolution.NumOutput = 1
//	p.Convolution.KernelSize = nn.Ints{2}
//	conv := nn.NewConvolution(p)
//	err := conv.SetUp([]*blob.Blob{x}, []*blob.Blob{y}) // x: [5,1,3,3] -> y: [5,1,2,2]
type Convolution struct {
	Base
	conf ConvolutionParameter

	kernel   [2]int
	stride   [2]int
	pad      [2]int
	dilation [2]int

	numOutput int
	group     int
	channels  int
	biasTerm  bool

	num            int
	geom           cpu.ConvGeometry
	outSpatial     int
	bottomDim      int
	topDim         int
	kernelDim      int
	weightOffset   int
	colOffset      int
	outputOffset   int
	cols           [][]float32 // one im2col buffer per worker
	biasMultiplier []float32
	held           [][]float32 // parameter gradients of disallowed phases
	workers        parallel.Config

	phase GANPhase
}

// NewConvolution creates an unconfigured Convolution layer. SetUp resolves
// and validates the configuration.
func NewConvolution(param LayerParameter) *Convolution {
	param.SetDefaults()
	return &Convolution{
		Base:    newBase(param),
		conf:    param.Convolution,
		workers: parallel.SampleConfig(),
	}
}

// Type implements Layer.
func (c *Convolution) Type() string {
	return ConvolutionType
}

// SetUp implements Layer.
func (c *Convolution) SetUp(bottom, top []*blob.Blob) error {
	if len(bottom) == 0 || len(top) != len(bottom) {
		return c.errorf(ConvolutionType, ErrShape, "need matching bottom/top pairs, got %d bottom and %d top", len(bottom), len(top))
	}
	if err := c.checkBottomShapes(ConvolutionType, bottom); err != nil {
		return err
	}
	if err := c.resolveGeometry(); err != nil {
		return err
	}
	in := bottom[0]
	if in.NumAxes() != 4 {
		return c.errorf(ConvolutionType, ErrShape, "expected 4D bottom [N,C,H,W], got shape %s", in.ShapeString())
	}
	c.channels = in.Dim(1)
	c.numOutput = c.conf.NumOutput
	c.group = c.conf.Group
	c.biasTerm = c.conf.HasBias()

	switch {
	case c.numOutput <= 0:
		return c.errorf(ConvolutionType, ErrConfig, "num_output must be positive, got %d", c.numOutput)
	case c.group <= 0:
		return c.errorf(ConvolutionType, ErrConfig, "group must be positive, got %d", c.group)
	case c.channels%c.group != 0:
		return c.errorf(ConvolutionType, ErrConfig, "channels %d not divisible by group %d", c.channels, c.group)
	case c.numOutput%c.group != 0:
		return c.errorf(ConvolutionType, ErrConfig, "num_output %d not divisible by group %d", c.numOutput, c.group)
	case c.conf.ClipByValue && c.conf.ClipLower > c.conf.ClipUpper:
		return c.errorf(ConvolutionType, ErrConfig, "clip_lower %v > clip_upper %v", c.conf.ClipLower, c.conf.ClipUpper)
	}

	weightShape := blob.Shape{c.numOutput, c.channels / c.group, c.kernel[0], c.kernel[1]}
	if err := c.setUpParams(weightShape); err != nil {
		return err
	}
	return c.Reshape(bottom, top)
}

// setUpParams allocates and fills weight and bias on first use. A second
// SetUp keeps the existing values if their shapes still match.
func (c *Convolution) setUpParams(weightShape blob.Shape) error {
	if len(c.params) > 0 {
		if !c.params[0].Shape().Equal(weightShape) {
			return c.errorf(ConvolutionType, ErrShape, "weight shape %v does not match existing %v", weightShape, c.params[0].Shape())
		}
		return nil
	}
	weight := NewParam("weight", weightShape)
	if err := fillParam(weight, c.conf.WeightFiller); err != nil {
		return c.errorf(ConvolutionType, ErrConfig, "weight filler: %v", err)
	}
	params := []*Param{weight}
	if c.biasTerm {
		bias := NewParam("bias", blob.Shape{c.numOutput})
		if err := fillParam(bias, c.conf.BiasFiller); err != nil {
			return c.errorf(ConvolutionType, ErrConfig, "bias filler: %v", err)
		}
		params = append(params, bias)
	}
	c.setParams(params)
	return nil
}

// resolveGeometry turns the repeated/axis-specific options into per-axis values.
func (c *Convolution) resolveGeometry() error {
	var err error
	if c.kernel, err = perAxis("kernel_size", c.conf.KernelSize, c.conf.KernelH, c.conf.KernelW, 0); err != nil {
		return c.errorf(ConvolutionType, ErrConfig, "%v", err)
	}
	if c.stride, err = perAxis("stride", c.conf.Stride, c.conf.StrideH, c.conf.StrideW, 1); err != nil {
		return c.errorf(ConvolutionType, ErrConfig, "%v", err)
	}
	if c.pad, err = perAxis("pad", c.conf.Pad, c.conf.PadH, c.conf.PadW, 0); err != nil {
		return c.errorf(ConvolutionType, ErrConfig, "%v", err)
	}
	if c.dilation, err = perAxis("dilation", c.conf.Dilation, 0, 0, 1); err != nil {
		return c.errorf(ConvolutionType, ErrConfig, "%v", err)
	}
	for i := range 2 {
		if c.kernel[i] < 1 || c.stride[i] < 1 || c.dilation[i] < 1 || c.pad[i] < 0 {
			return c.errorf(ConvolutionType, ErrConfig, "axis %d: kernel %d, stride %d, dilation %d, pad %d",
				i, c.kernel[i], c.stride[i], c.dilation[i], c.pad[i])
		}
	}
	return nil
}

func perAxis(name string, values Ints, h, w, def int) ([2]int, error) {
	var out [2]int
	switch len(values) {
	case 0:
		out = [2]int{def, def}
	case 1:
		out = [2]int{values[0], values[0]}
	case 2:
		out = [2]int{values[0], values[1]}
	default:
		return out, fmt.Errorf("%s: expected 1 or 2 values, got %d", name, len(values))
	}
	if h != 0 || w != 0 {
		if len(values) != 0 {
			return out, fmt.Errorf("%s: set either the list or the _h/_w fields, not both", name)
		}
		out = [2]int{h, w}
	}
	return out, nil
}

// Reshape implements Layer.
func (c *Convolution) Reshape(bottom, top []*blob.Blob) error {
	if err := c.checkBottomShapes(ConvolutionType, bottom); err != nil {
		return err
	}
	in := bottom[0]
	if in.NumAxes() != 4 {
		return c.errorf(ConvolutionType, ErrShape, "expected 4D bottom [N,C,H,W], got shape %s", in.ShapeString())
	}
	if in.Dim(1) != c.channels {
		return c.errorf(ConvolutionType, ErrShape, "bottom has %d channels, layer was set up with %d", in.Dim(1), c.channels)
	}
	for i, b := range bottom[1:] {
		if !b.Shape().Equal(in.Shape()) {
			return c.errorf(ConvolutionType, ErrShape, "bottom[%d] shape %s differs from bottom[0] shape %s", i+1, b.ShapeString(), in.ShapeString())
		}
	}

	spatial := []int{in.Dim(2), in.Dim(3)}
	out, err := ComputeOutputShape(spatial, c.kernel[:], c.stride[:], c.pad[:], c.dilation[:])
	if err != nil {
		return c.errorf(ConvolutionType, ErrShape, "bottom %s: %v", in.ShapeString(), err)
	}

	c.num = in.Dim(0)
	c.geom = cpu.ConvGeometry{
		Channels: c.channels, Height: spatial[0], Width: spatial[1],
		KernelH: c.kernel[0], KernelW: c.kernel[1],
		PadH: c.pad[0], PadW: c.pad[1],
		StrideH: c.stride[0], StrideW: c.stride[1],
		DilationH: c.dilation[0], DilationW: c.dilation[1],
	}
	for _, t := range top {
		t.Reshape(blob.Shape{c.num, c.numOutput, out[0], out[1]})
	}

	c.outSpatial = out[0] * out[1]
	c.bottomDim = in.CountFrom(1)
	c.topDim = c.numOutput * c.outSpatial
	c.kernelDim = c.channels / c.group * c.kernel[0] * c.kernel[1]
	c.weightOffset = c.numOutput / c.group * c.kernelDim
	c.colOffset = c.kernelDim * c.outSpatial
	c.outputOffset = c.numOutput / c.group * c.outSpatial
	c.cols = resizeBuffers(c.cols, c.workers.Workers(), c.geom.ColSize())
	c.biasMultiplier = make([]float32, c.outSpatial)
	cpu.Fill(c.biasMultiplier, 1)
	return nil
}

// Forward implements Layer. With clip_by_value it clamps the parameters
// before computing; see ApplyClip.
func (c *Convolution) Forward(bottom, top []*blob.Blob) error {
	if c.conf.ClipByValue {
		c.ApplyClip()
	}
	return c.ForwardUnclipped(bottom, top)
}

// ApplyClip clamps the weights, and the bias if present, into
// [clip_lower, clip_upper] in place. It ignores the clip_by_value switch.
func (c *Convolution) ApplyClip() {
	lower, upper := c.conf.ClipLower, c.conf.ClipUpper
	weight := c.params[0].Data()
	l := log()
	l.Debug("clip by value", "layer", c.Name(), "stage", "before", "weights", head(weight, numClipLogged))
	cpu.ClipByValue(lower, upper, weight)
	l.Debug("clip by value", "layer", c.Name(), "stage", "after", "weights", head(weight, numClipLogged))
	if c.biasTerm {
		cpu.ClipByValue(lower, upper, c.params[1].Data())
	}
}

func head(x []float32, n int) []float32 {
	if len(x) < n {
		return x
	}
	return x[:n]
}

// ForwardUnclipped computes the convolution with the current parameters,
// never clipping them.
func (c *Convolution) ForwardUnclipped(bottom, top []*blob.Blob) error {
	if len(top) != len(bottom) {
		return c.errorf(ConvolutionType, ErrShape, "need matching bottom/top pairs, got %d bottom and %d top", len(bottom), len(top))
	}
	weight := c.params[0].Data()
	for i := range bottom {
		bottomData := bottom[i].Data()
		topData := top[i].Data()
		c.forSamples(func(n int, col []float32) {
			out := topData[n*c.topDim : (n+1)*c.topDim]
			c.forwardGemm(bottomData[n*c.bottomDim:(n+1)*c.bottomDim], weight, out, col)
			if c.biasTerm {
				c.forwardBias(out, c.params[1].Data())
			}
		})
	}
	return nil
}

// forSamples runs f for every sample of the batch, spread over workers.
// Each worker gets its own im2col buffer.
func (c *Convolution) forSamples(f func(n int, col []float32)) {
	parallel.ForChunks(c.num, func(worker, start, end int) {
		col := c.cols[worker]
		for n := start; n < end; n++ {
			f(n, col)
		}
	}, c.workers)
}

// resizeBuffers returns n buffers of length size, reusing bufs when they
// already fit.
func resizeBuffers(bufs [][]float32, n, size int) [][]float32 {
	if len(bufs) == n && (n == 0 || len(bufs[0]) == size) {
		return bufs
	}
	bufs = make([][]float32, n)
	for i := range bufs {
		bufs[i] = make([]float32, size)
	}
	return bufs
}

// forwardGemm computes output[C_out, out_h*out_w] = weight * im2col(input), per group.
func (c *Convolution) forwardGemm(input, weight, output, col []float32) {
	cpu.Im2Col(input, c.geom, col)
	for g := 0; g < c.group; g++ {
		cpu.Gemm(false, false, c.numOutput/c.group, c.outSpatial, c.kernelDim,
			1, weight[g*c.weightOffset:], col[g*c.colOffset:],
			0, output[g*c.outputOffset:])
	}
}

// forwardBias adds bias[c] to every spatial position of channel c.
func (c *Convolution) forwardBias(output, bias []float32) {
	cpu.Gemm(false, false, c.numOutput, c.outSpatial, 1,
		1, bias, c.biasMultiplier, 1, output)
}

// Backward implements Layer.
//
// Weight and bias gradients are summed over the batch. When UpdateWeight
// holds they are accumulated into the existing parameter diffs; otherwise
// they overwrite the held buffers and the parameter diffs are left alone.
// Bottom diffs are overwritten for bottoms with propagateDown set.
// Afterwards the phase advances.
func (c *Convolution) Backward(top []*blob.Blob, propagateDown []bool, bottom []*blob.Blob) error {
	if err := c.checkPropagateDown(ConvolutionType, propagateDown, bottom); err != nil {
		return err
	}
	updateWeight := c.UpdateWeight()
	if updateWeight {
		log().Debug("update weight", "layer", c.Name(), "phase", int(c.phase))
	}

	weight := c.params[0].Data()
	weightDiff, biasDiff := c.paramDiffs(updateWeight)
	for i := range top {
		topDiff := top[i].Diff()
		bottomData := bottom[i].Data()
		bottomDiff := bottom[i].Diff()

		if c.biasTerm && c.ParamPropagateDown(1) {
			for n := 0; n < c.num; n++ {
				c.backwardBias(biasDiff, topDiff[n*c.topDim:(n+1)*c.topDim])
			}
		}
		if c.ParamPropagateDown(0) {
			for n := 0; n < c.num; n++ {
				c.weightGemm(bottomData[n*c.bottomDim:(n+1)*c.bottomDim], topDiff[n*c.topDim:(n+1)*c.topDim], weightDiff)
			}
		}
		if propagateDown[i] {
			c.forSamples(func(n int, col []float32) {
				c.backwardGemm(topDiff[n*c.topDim:(n+1)*c.topDim], weight, bottomDiff[n*c.bottomDim:(n+1)*c.bottomDim], col)
			})
		}
	}

	c.markUpdate(updateWeight)
	c.phase = c.phase.Next()
	return nil
}

// paramDiffs returns the buffers that receive the weight and bias
// gradients of this Backward call: the parameter diffs when the update is
// allowed, the cleared held buffers otherwise.
func (c *Convolution) paramDiffs(updateWeight bool) (weightDiff, biasDiff []float32) {
	if updateWeight {
		weightDiff = c.params[0].Diff()
		if c.biasTerm {
			biasDiff = c.params[1].Diff()
		}
		return weightDiff, biasDiff
	}
	if len(c.held) != len(c.params) {
		c.held = make([][]float32, len(c.params))
		for i, p := range c.params {
			c.held[i] = make([]float32, p.Blob().Count())
		}
	}
	for _, h := range c.held {
		clear(h)
	}
	weightDiff = c.held[0]
	if c.biasTerm {
		biasDiff = c.held[1]
	}
	return weightDiff, biasDiff
}

// HeldDiff returns the gradient of parameter i computed by the most recent
// Backward call whose phase forbade updates, or nil if there was none.
func (c *Convolution) HeldDiff(i int) []float32 {
	if i < 0 || i >= len(c.held) {
		return nil
	}
	return c.held[i]
}

// backwardBias accumulates the spatial sum of each output channel.
func (c *Convolution) backwardBias(biasDiff, outDiff []float32) {
	cpu.Gemv(false, c.numOutput, c.outSpatial, 1, outDiff, c.biasMultiplier, 1, biasDiff)
}

// weightGemm accumulates weightDiff += outDiff * im2col(input)^T, per group.
// It uses the first worker buffer, so it must run sequentially.
func (c *Convolution) weightGemm(input, outDiff, weightDiff []float32) {
	col := c.cols[0]
	cpu.Im2Col(input, c.geom, col)
	for g := 0; g < c.group; g++ {
		cpu.Gemm(false, true, c.numOutput/c.group, c.kernelDim, c.outSpatial,
			1, outDiff[g*c.outputOffset:], col[g*c.colOffset:],
			1, weightDiff[g*c.weightOffset:])
	}
}

// backwardGemm writes inputDiff = col2im(weight^T * outDiff), per group.
func (c *Convolution) backwardGemm(outDiff, weight, inputDiff, col []float32) {
	for g := 0; g < c.group; g++ {
		cpu.Gemm(true, false, c.kernelDim, c.outSpatial, c.numOutput/c.group,
			1, weight[g*c.weightOffset:], outDiff[g*c.outputOffset:],
			0, col[g*c.colOffset:])
	}
	cpu.Col2Im(col, c.geom, inputDiff)
}

// Phase returns the current adversarial phase.
func (c *Convolution) Phase() GANPhase {
	return c.phase
}

// SetPhase moves the layer to phase p.
func (c *Convolution) SetPhase(p GANPhase) {
	c.phase = p
}

// UpdateWeight reports whether the parameters may be updated in the current phase.
func (c *Convolution) UpdateWeight() bool {
	return UpdateWeight(c.phase, c.conf.WeightFixed, c.conf.GenMode, c.conf.DisMode)
}

// OutputShape returns the spatial output dims computed by the last Reshape.
func (c *Convolution) OutputShape() []int {
	if c.outSpatial == 0 {
		return nil
	}
	return []int{c.geom.OutH(), c.geom.OutW()}
}

// String returns a string representation of the layer.
func (c *Convolution) String() string {
	return fmt.Sprintf("Convolution(num_output=%d, kernel=%v, stride=%v, pad=%v, dilation=%v, group=%d, bias=%v, clip=%v)",
		c.conf.NumOutput, c.kernel, c.stride, c.pad, c.dilation, c.conf.Group, c.conf.HasBias(), c.conf.ClipByValue)
}
