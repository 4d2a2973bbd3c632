package nn

import (
	"fmt"
	"math"

	"github.com/sentivox/go-emotion/tensor"
)

// Conv1d applies a 1D convolution over [batch, channels, length] input.
// Used by the speech encoder's feature extractor; no padding.
type Conv1d struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	training bool
}

func NewConv1d(inChannels, outChannels, kernelSize, stride int, bias bool) (*Conv1d, error) {
	if kernelSize <= 0 || stride <= 0 {
		return nil, fmt.Errorf("invalid conv1d geometry: kernel %d, stride %d", kernelSize, stride)
	}
	fanIn := inChannels * kernelSize
	bound := math.Sqrt(6.0 / float64(fanIn+outChannels*kernelSize))
	weight, err := initUniform([]int{outChannels, inChannels, kernelSize}, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to create conv1d weight: %w", err)
	}
	weight.SetRequiresGrad(true)

	c := &Conv1d{weight: weight, stride: stride, training: true}
	if bias {
		b, err := tensor.Zeros([]int{outChannels}, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("failed to create conv1d bias: %w", err)
		}
		b.SetRequiresGrad(true)
		c.bias = b
	}
	return c, nil
}

func (c *Conv1d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Conv1dAutograd(input, c.weight, c.bias, c.stride)
}

func (c *Conv1d) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

func (c *Conv1d) Train()           { c.training = true }
func (c *Conv1d) Eval()            { c.training = false }
func (c *Conv1d) IsTraining() bool { return c.training }

// OutLen returns the output length for a given input length.
func (c *Conv1d) OutLen(inLen int) int {
	return tensor.Conv1dOutLen(inLen, c.weight.Shape[2], c.stride)
}

// Conv2d applies a 2D convolution over [batch, channels, height, width].
type Conv2d struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	padding  int
	training bool
}

func NewConv2d(inChannels, outChannels, kernelSize, stride, padding int, bias bool) (*Conv2d, error) {
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("invalid conv2d geometry: kernel %d, stride %d, padding %d", kernelSize, stride, padding)
	}
	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	weight, err := initUniform([]int{outChannels, inChannels, kernelSize, kernelSize}, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to create conv2d weight: %w", err)
	}
	weight.SetRequiresGrad(true)

	c := &Conv2d{weight: weight, stride: stride, padding: padding, training: true}
	if bias {
		b, err := tensor.Zeros([]int{outChannels}, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("failed to create conv2d bias: %w", err)
		}
		b.SetRequiresGrad(true)
		c.bias = b
	}
	return c, nil
}

func (c *Conv2d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Conv2dAutograd(input, c.weight, c.bias, c.stride, c.padding)
}

func (c *Conv2d) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

func (c *Conv2d) Train()           { c.training = true }
func (c *Conv2d) Eval()            { c.training = false }
func (c *Conv2d) IsTraining() bool { return c.training }

// MaxPool2d applies max pooling over [batch, channels, height, width].
type MaxPool2d struct {
	kernel   int
	stride   int
	training bool
}

func NewMaxPool2d(kernelSize, stride int) *MaxPool2d {
	if stride <= 0 {
		stride = kernelSize
	}
	return &MaxPool2d{kernel: kernelSize, stride: stride, training: true}
}

func (m *MaxPool2d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.MaxPool2dAutograd(input, m.kernel, m.stride)
}

func (m *MaxPool2d) Parameters() []*tensor.Tensor { return nil }
func (m *MaxPool2d) Train()                       { m.training = true }
func (m *MaxPool2d) Eval()                        { m.training = false }
func (m *MaxPool2d) IsTraining() bool             { return m.training }

// GlobalAvgPool2d reduces [batch, channels, height, width] to
// [batch, channels] by spatial averaging.
type GlobalAvgPool2d struct {
	training bool
}

func NewGlobalAvgPool2d() *GlobalAvgPool2d { return &GlobalAvgPool2d{training: true} }

func (g *GlobalAvgPool2d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.GlobalAvgPool2dAutograd(input)
}

func (g *GlobalAvgPool2d) Parameters() []*tensor.Tensor { return nil }
func (g *GlobalAvgPool2d) Train()                       { g.training = true }
func (g *GlobalAvgPool2d) Eval()                        { g.training = false }
func (g *GlobalAvgPool2d) IsTraining() bool             { return g.training }
