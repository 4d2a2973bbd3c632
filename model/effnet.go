package model

import (
	"fmt"
	"strings"

	"github.com/sentivox/go-emotion/checkpoints"
	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

// backboneWidths scales the stage widths per architecture name, the
// coarse equivalent of the width multiplier the names encode.
var backboneWidths = map[string][]int{
	"efficientnet-b0": {32, 64, 128},
	"efficientnet-b1": {32, 80, 160},
	"efficientnet-b2": {40, 96, 192},
}

// ImageBackbone adapts an image-classifier layout to single-channel
// spectrogram input: strided conv stages with batch norm, a global
// average pool, and a linear head. The whole network is trainable.
type ImageBackbone struct {
	net *nn.Sequential
}

// NewImageBackbone builds the network for the named architecture. A
// non-empty weightsPath restores pretrained weights saved from the
// same architecture and class count; empty keeps the random
// initialization.
func NewImageBackbone(arch string, numClasses int, weightsPath string) (*ImageBackbone, error) {
	if arch == "" {
		arch = "efficientnet-b0"
	}
	widths, ok := backboneWidths[strings.ToLower(arch)]
	if !ok {
		return nil, fmt.Errorf("%w: effnet arch %q", ErrUnknownModel, arch)
	}

	net := nn.NewSequential()
	in := 1
	for _, out := range widths {
		conv, err := nn.NewConv2d(in, out, 3, 2, 1, false)
		if err != nil {
			return nil, err
		}
		bn, err := nn.NewBatchNorm2d(out, 1e-5, 0.1)
		if err != nil {
			return nil, err
		}
		net.Add(conv, bn, nn.NewReLU())
		in = out
	}

	head, err := nn.NewLinear(in, numClasses, true)
	if err != nil {
		return nil, err
	}
	net.Add(nn.NewGlobalAvgPool2d(), head)

	m := &ImageBackbone{net: net}
	if weightsPath != "" {
		cp, err := checkpoints.Load(weightsPath)
		if err != nil {
			return nil, fmt.Errorf("loading pretrained backbone: %w", err)
		}
		if err := checkpoints.Apply(m.net.Parameters(), cp.Params); err != nil {
			return nil, fmt.Errorf("pretrained weights do not fit %s: %w", arch, err)
		}
	}
	return m, nil
}

func (m *ImageBackbone) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.net.Forward(x)
}

func (m *ImageBackbone) TrainMode() { m.net.Train() }
func (m *ImageBackbone) EvalMode()  { m.net.Eval() }

func (m *ImageBackbone) Parameters() []*tensor.Tensor { return m.net.Parameters() }

func (m *ImageBackbone) TrainableParameters() []*tensor.Tensor {
	trainable, _ := partition(m.net.Parameters())
	return trainable
}

func (m *ImageBackbone) FrozenParameters() []*tensor.Tensor {
	_, frozen := partition(m.net.Parameters())
	return frozen
}
