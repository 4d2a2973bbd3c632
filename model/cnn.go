package model

import (
	"fmt"

	"github.com/sentivox/go-emotion/dataset"
	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

// SpectrogramCNN is a small convolutional classifier over
// [B, 1, bins, frames] log spectrograms: three conv/norm/pool stages
// and a linear head. Everything is trainable.
type SpectrogramCNN struct {
	net *nn.Sequential
}

// NewSpectrogramCNN sizes the head from the spectrogram geometry the
// dataset produces for audioSize samples.
func NewSpectrogramCNN(numClasses, audioSize int) (*SpectrogramCNN, error) {
	frames := dataset.SpectrogramFrames(audioSize)
	if frames <= 0 {
		return nil, fmt.Errorf("audio size %d is too short for a spectrogram input", audioSize)
	}

	channels := []int{16, 32, 64}
	net := nn.NewSequential()
	in := 1
	h, w := dataset.SpectrogramBins, frames
	for _, out := range channels {
		conv, err := nn.NewConv2d(in, out, 3, 1, 1, true)
		if err != nil {
			return nil, err
		}
		bn, err := nn.NewBatchNorm2d(out, 1e-5, 0.1)
		if err != nil {
			return nil, err
		}
		net.Add(conv, bn, nn.NewReLU(), nn.NewMaxPool2d(2, 2))
		in = out
		h = tensor.Conv2dOutDim(h, 2, 2, 0)
		w = tensor.Conv2dOutDim(w, 2, 2, 0)
		if h <= 0 || w <= 0 {
			return nil, fmt.Errorf("spectrogram %dx%d collapses before the head", dataset.SpectrogramBins, frames)
		}
	}

	head, err := nn.NewLinear(in*h*w, numClasses, true)
	if err != nil {
		return nil, err
	}
	net.Add(nn.NewFlatten(), head)
	return &SpectrogramCNN{net: net}, nil
}

func (m *SpectrogramCNN) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.net.Forward(x)
}

func (m *SpectrogramCNN) TrainMode() { m.net.Train() }
func (m *SpectrogramCNN) EvalMode()  { m.net.Eval() }

func (m *SpectrogramCNN) Parameters() []*tensor.Tensor          { return m.net.Parameters() }
func (m *SpectrogramCNN) TrainableParameters() []*tensor.Tensor {
	trainable, _ := partition(m.net.Parameters())
	return trainable
}
func (m *SpectrogramCNN) FrozenParameters() []*tensor.Tensor {
	_, frozen := partition(m.net.Parameters())
	return frozen
}
