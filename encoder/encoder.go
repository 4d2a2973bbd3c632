// Package encoder implements a pretrained speech encoder: a strided
// convolutional feature extractor followed by a stack of residual
// projection blocks over the downsampled sequence. Classifier heads
// treat it as an opaque feature source whose parameter groups can be
// frozen independently.
package encoder

import (
	"fmt"

	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

// ConvLayer describes one layer of the feature extractor.
type ConvLayer struct {
	Out    int
	Kernel int
	Stride int
}

// Config fixes the encoder architecture. Checkpoints only load into an
// encoder built from the same Config.
type Config struct {
	ConvLayers   []ConvLayer
	Hidden       int
	Blocks       int
	SummaryToken bool
}

// DefaultConfig mirrors the usual speech-encoder geometry: seven conv
// layers downsampling raw audio 320x into 512 channels, projected to a
// 256-wide sequence refined by four residual blocks.
func DefaultConfig() Config {
	return Config{
		ConvLayers: []ConvLayer{
			{Out: 512, Kernel: 10, Stride: 5},
			{Out: 512, Kernel: 3, Stride: 2},
			{Out: 512, Kernel: 3, Stride: 2},
			{Out: 512, Kernel: 3, Stride: 2},
			{Out: 512, Kernel: 3, Stride: 2},
			{Out: 512, Kernel: 2, Stride: 2},
			{Out: 512, Kernel: 2, Stride: 2},
		},
		Hidden: 256,
		Blocks: 4,
	}
}

type residualBlock struct {
	norm *nn.LayerNorm
	fc1  *nn.Linear
	fc2  *nn.Linear
	mix  *nn.Linear
}

// SpeechEncoder transforms [B, 1, L] waveforms into [B, T', Hidden]
// feature sequences. With a summary token the output is
// [B, T'+1, Hidden] and position 0 aggregates the whole sequence.
type SpeechEncoder struct {
	cfg Config

	convs     []*nn.Conv1d
	convNorms []*nn.LayerNorm

	projNorm   *nn.LayerNorm
	projLinear *nn.Linear

	summaryToken *tensor.Tensor

	blocks []*residualBlock
}

// New builds a randomly initialized encoder.
func New(cfg Config) (*SpeechEncoder, error) {
	if len(cfg.ConvLayers) == 0 {
		return nil, fmt.Errorf("encoder needs at least one conv layer")
	}
	if cfg.Hidden <= 0 || cfg.Blocks < 0 {
		return nil, fmt.Errorf("invalid encoder dims: hidden %d, blocks %d", cfg.Hidden, cfg.Blocks)
	}

	e := &SpeechEncoder{cfg: cfg}
	in := 1
	for i, cl := range cfg.ConvLayers {
		conv, err := nn.NewConv1d(in, cl.Out, cl.Kernel, cl.Stride, false)
		if err != nil {
			return nil, fmt.Errorf("conv layer %d: %w", i, err)
		}
		norm, err := nn.NewLayerNorm(cl.Out, 1e-5)
		if err != nil {
			return nil, err
		}
		e.convs = append(e.convs, conv)
		e.convNorms = append(e.convNorms, norm)
		in = cl.Out
	}

	var err error
	if e.projNorm, err = nn.NewLayerNorm(in, 1e-5); err != nil {
		return nil, err
	}
	if e.projLinear, err = nn.NewLinear(in, cfg.Hidden, true); err != nil {
		return nil, err
	}

	if cfg.SummaryToken {
		token, err := tensor.Zeros([]int{1, 1, cfg.Hidden}, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		token.SetRequiresGrad(true)
		e.summaryToken = token
	}

	for i := 0; i < cfg.Blocks; i++ {
		norm, err := nn.NewLayerNorm(cfg.Hidden, 1e-5)
		if err != nil {
			return nil, err
		}
		fc1, err := nn.NewLinear(cfg.Hidden, cfg.Hidden*4, true)
		if err != nil {
			return nil, err
		}
		fc2, err := nn.NewLinear(cfg.Hidden*4, cfg.Hidden, true)
		if err != nil {
			return nil, err
		}
		mix, err := nn.NewLinear(cfg.Hidden, cfg.Hidden, true)
		if err != nil {
			return nil, err
		}
		e.blocks = append(e.blocks, &residualBlock{norm: norm, fc1: fc1, fc2: fc2, mix: mix})
	}
	return e, nil
}

// Hidden returns the feature width of the output sequence.
func (e *SpeechEncoder) Hidden() int { return e.cfg.Hidden }

// FeatureChannels returns the channel count of the conv extractor output.
func (e *SpeechEncoder) FeatureChannels() int {
	return e.cfg.ConvLayers[len(e.cfg.ConvLayers)-1].Out
}

// HasSummaryToken reports whether Forward prepends a summary position.
func (e *SpeechEncoder) HasSummaryToken() bool { return e.cfg.SummaryToken }

// FeatureLength returns the downsampled sequence length the extractor
// produces for a waveform of audioSize samples.
func (e *SpeechEncoder) FeatureLength(audioSize int) int {
	l := audioSize
	for _, cl := range e.cfg.ConvLayers {
		l = tensor.Conv1dOutLen(l, cl.Kernel, cl.Stride)
		if l <= 0 {
			return 0
		}
	}
	return l
}

// ExtractFeatures runs only the conv stack: [B, 1, L] -> [B, C, T'].
func (e *SpeechEncoder) ExtractFeatures(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	var err error
	for i, conv := range e.convs {
		if out, err = conv.Forward(out); err != nil {
			return nil, fmt.Errorf("conv layer %d: %w", i, err)
		}
		// Normalize over channels, which sit on the middle axis here.
		if out, err = tensor.Permute021Autograd(out); err != nil {
			return nil, err
		}
		if out, err = e.convNorms[i].Forward(out); err != nil {
			return nil, err
		}
		if out, err = tensor.GELUAutograd(out); err != nil {
			return nil, err
		}
		if out, err = tensor.Permute021Autograd(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Forward produces the full feature sequence [B, T', Hidden], with the
// summary token prepended when configured.
func (e *SpeechEncoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	features, err := e.ExtractFeatures(x)
	if err != nil {
		return nil, err
	}
	seq, err := tensor.Permute021Autograd(features)
	if err != nil {
		return nil, err
	}

	batch, t := seq.Shape[0], seq.Shape[1]
	if seq, err = e.projNorm.Forward(seq); err != nil {
		return nil, err
	}
	flat, err := seq.Reshape([]int{batch * t, e.FeatureChannels()})
	if err != nil {
		return nil, err
	}
	if flat, err = e.projLinear.Forward(flat); err != nil {
		return nil, err
	}
	seq, err = flat.Reshape([]int{batch, t, e.cfg.Hidden})
	if err != nil {
		return nil, err
	}

	if e.summaryToken != nil {
		if seq, err = tensor.ConcatDim1Autograd(e.summaryToken, seq); err != nil {
			return nil, err
		}
		t++
	}

	flat, err = seq.Reshape([]int{batch * t, e.cfg.Hidden})
	if err != nil {
		return nil, err
	}
	for _, blk := range e.blocks {
		h, err := blk.norm.Forward(flat)
		if err != nil {
			return nil, err
		}
		if h, err = blk.fc1.Forward(h); err != nil {
			return nil, err
		}
		if h, err = tensor.GELUAutograd(h); err != nil {
			return nil, err
		}
		if h, err = blk.fc2.Forward(h); err != nil {
			return nil, err
		}
		if flat, err = tensor.AddAutograd(flat, h); err != nil {
			return nil, err
		}

		// Mix a global context back into every position, including the
		// summary token, so no output stays purely position-wise.
		if seq, err = flat.Reshape([]int{batch, t, e.cfg.Hidden}); err != nil {
			return nil, err
		}
		ctx, err := tensor.MeanDim1(seq)
		if err != nil {
			return nil, err
		}
		if ctx, err = blk.mix.Forward(ctx); err != nil {
			return nil, err
		}
		if ctx, err = tensor.GELUAutograd(ctx); err != nil {
			return nil, err
		}
		if seq, err = tensor.AddVecDim1Autograd(seq, ctx); err != nil {
			return nil, err
		}
		if flat, err = seq.Reshape([]int{batch * t, e.cfg.Hidden}); err != nil {
			return nil, err
		}
	}
	return flat.Reshape([]int{batch, t, e.cfg.Hidden})
}
