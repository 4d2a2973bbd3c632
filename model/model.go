// Package model builds emotion classifiers from a model name and an
// optional architecture variant, the way run configs select them.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sentivox/go-emotion/encoder"
	"github.com/sentivox/go-emotion/tensor"
)

// ErrUnknownModel is returned for model or architecture names the
// factory does not recognize. Lookup happens before any data loads.
var ErrUnknownModel = errors.New("unknown model")

// Classifier is the contract every model variant satisfies.
type Classifier interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	TrainMode()
	EvalMode()
	Parameters() []*tensor.Tensor
	TrainableParameters() []*tensor.Tensor
	FrozenParameters() []*tensor.Tensor
}

// StagedClassifier is implemented by variants that fine-tune in two
// stages with separate parameter groups.
type StagedClassifier interface {
	Classifier
	HeadParameters() []*tensor.Tensor
	FineTuneParameters() []*tensor.Tensor
}

// BuildConfig carries everything the factory needs beyond the name.
type BuildConfig struct {
	// AudioSize is the fixed waveform length in samples. It sizes the
	// flattened heads of the feature-extractor variants and the
	// spectrogram CNN input.
	AudioSize int

	// Encoder overrides the speech encoder geometry. The zero value
	// selects encoder.DefaultConfig().
	Encoder encoder.Config

	// PretrainedEncoderPath points at saved encoder weights. Empty
	// leaves the encoder randomly initialized.
	PretrainedEncoderPath string

	// PretrainedBackbonePath points at saved image-backbone weights
	// for the effnet family. Empty leaves the backbone randomly
	// initialized.
	PretrainedBackbonePath string
}

func (c BuildConfig) encoderConfig(summaryToken bool) encoder.Config {
	cfg := c.Encoder
	if len(cfg.ConvLayers) == 0 {
		cfg = encoder.DefaultConfig()
	}
	cfg.SummaryToken = summaryToken
	return cfg
}

// Known lists the model family names Build accepts.
func Known() []string {
	return []string{"cnn", "effnet", "wav2vec"}
}

// KnownWav2VecArchs lists the architecture variants of the wav2vec family.
func KnownWav2VecArchs() []string {
	return []string{"all", "partial", "cnn", "cnn_avg", "cls_token", "cls_token_not_pretrained", "paper"}
}

// Build constructs a classifier. Unknown names fail here, before any
// dataset or weight file is touched.
func Build(name, arch string, numClasses int, cfg BuildConfig) (Classifier, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}
	switch strings.ToLower(name) {
	case "cnn":
		return NewSpectrogramCNN(numClasses, cfg.AudioSize)
	case "effnet":
		return NewImageBackbone(arch, numClasses, cfg.PretrainedBackbonePath)
	case "wav2vec":
		return buildWav2Vec(strings.ToLower(arch), numClasses, cfg)
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownModel, name, strings.Join(Known(), ", "))
	}
}

// partition splits parameters into trainable and frozen by their
// gradient requirement at build time.
func partition(params []*tensor.Tensor) (trainable, frozen []*tensor.Tensor) {
	for _, p := range params {
		if p.RequiresGrad() {
			trainable = append(trainable, p)
		} else {
			frozen = append(frozen, p)
		}
	}
	return trainable, frozen
}
