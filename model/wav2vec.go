package model

import (
	"fmt"
	"strings"

	"github.com/sentivox/go-emotion/encoder"
	"github.com/sentivox/go-emotion/nn"
	"github.com/sentivox/go-emotion/tensor"
)

type poolKind int

const (
	poolMean    poolKind = iota // average the output sequence over time
	poolToken                   // take the summary token position
	poolFlatten                 // flatten the raw feature map
	poolConvMap                 // conv head over the feature map + global pool
)

// Wav2Vec wraps the speech encoder with one of several pooling and
// freezing strategies. Which encoder parts run, which are trainable,
// and how the sequence collapses to an embedding all depend on the
// architecture variant.
type Wav2Vec struct {
	enc  *encoder.SpeechEncoder
	pool poolKind
	head *nn.Sequential

	// detachEncoder cuts the autograd graph at the encoder output for
	// variants that never fine-tune it.
	detachEncoder bool

	params         []*tensor.Tensor
	headParams     []*tensor.Tensor
	fineTuneParams []*tensor.Tensor
}

func buildWav2Vec(arch string, numClasses int, cfg BuildConfig) (Classifier, error) {
	switch arch {
	case "all":
		return newWav2VecPooled(numClasses, cfg, poolMean, freezeAll)
	case "partial":
		return newWav2VecPooled(numClasses, cfg, poolMean, freezeBlocksExceptNorm)
	case "cnn":
		return newWav2VecFeatures(numClasses, cfg, poolFlatten)
	case "cnn_avg":
		return newWav2VecFeatures(numClasses, cfg, poolConvMap)
	case "cls_token":
		return newWav2VecToken(numClasses, cfg, true, freezeNothing)
	case "cls_token_not_pretrained":
		return newWav2VecToken(numClasses, cfg, false, freezeNothing)
	case "paper":
		return newWav2VecToken(numClasses, cfg, true, freezeExtractor)
	default:
		return nil, fmt.Errorf("%w: wav2vec arch %q (known: %s)", ErrUnknownModel, arch, strings.Join(KnownWav2VecArchs(), ", "))
	}
}

type freezePolicy int

const (
	freezeNothing freezePolicy = iota
	freezeAll
	freezeExtractor
	freezeBlocksExceptNorm
)

func applyFreeze(enc *encoder.SpeechEncoder, policy freezePolicy) {
	switch policy {
	case freezeAll:
		encoder.Freeze(enc.Parameters())
	case freezeExtractor:
		encoder.Freeze(enc.FeatureExtractorParams())
	case freezeBlocksExceptNorm:
		encoder.FreezeExceptLayerNorm(enc.BlockParams(), enc.BlockLayerNormParams())
	}
}

// newWav2VecPooled covers the mean-pooling variants over the full
// encoder output sequence.
func newWav2VecPooled(numClasses int, cfg BuildConfig, pool poolKind, policy freezePolicy) (*Wav2Vec, error) {
	enc, err := encoder.New(cfg.encoderConfig(false))
	if err != nil {
		return nil, err
	}
	if err := enc.LoadPretrained(cfg.PretrainedEncoderPath); err != nil {
		return nil, err
	}
	applyFreeze(enc, policy)

	head, err := nn.NewLinear(enc.Hidden(), numClasses, true)
	if err != nil {
		return nil, err
	}
	m := &Wav2Vec{
		enc:           enc,
		pool:          pool,
		head:          nn.NewSequential(head),
		detachEncoder: policy == freezeAll,
	}
	m.params = append(enc.Parameters(), m.head.Parameters()...)
	return m, nil
}

// newWav2VecToken covers the summary-token variants.
func newWav2VecToken(numClasses int, cfg BuildConfig, pretrained bool, policy freezePolicy) (*Wav2Vec, error) {
	enc, err := encoder.New(cfg.encoderConfig(true))
	if err != nil {
		return nil, err
	}
	if pretrained {
		if err := enc.LoadPretrained(cfg.PretrainedEncoderPath); err != nil {
			return nil, err
		}
	}
	applyFreeze(enc, policy)

	head, err := nn.NewLinear(enc.Hidden(), numClasses, true)
	if err != nil {
		return nil, err
	}
	m := &Wav2Vec{enc: enc, pool: poolToken, head: nn.NewSequential(head)}
	m.params = append(enc.Parameters(), m.head.Parameters()...)

	// Staged fine-tuning groups: the head alone, then the head plus
	// everything past the (frozen) feature extractor.
	m.headParams = m.head.Parameters()
	m.fineTuneParams = append(append(append([]*tensor.Tensor{},
		enc.FeatureProjectionParams()...),
		enc.BlockParams()...),
		m.head.Parameters()...)
	return m, nil
}

// newWav2VecFeatures covers the variants that classify straight off the
// conv feature extractor, skipping the projection and blocks entirely.
func newWav2VecFeatures(numClasses int, cfg BuildConfig, pool poolKind) (*Wav2Vec, error) {
	encCfg := cfg.encoderConfig(false)
	encCfg.Blocks = 0
	enc, err := encoder.New(encCfg)
	if err != nil {
		return nil, err
	}
	if err := enc.LoadPretrained(cfg.PretrainedEncoderPath); err != nil {
		return nil, err
	}

	featLen := enc.FeatureLength(cfg.AudioSize)
	if featLen <= 0 {
		return nil, fmt.Errorf("audio size %d is too short for the feature extractor", cfg.AudioSize)
	}

	var head *nn.Sequential
	switch pool {
	case poolFlatten:
		linear, err := nn.NewLinear(enc.FeatureChannels()*featLen, numClasses, true)
		if err != nil {
			return nil, err
		}
		head = nn.NewSequential(linear)
	case poolConvMap:
		if enc.FeatureChannels() < 5 || featLen < 5 {
			return nil, fmt.Errorf("feature map %dx%d is too small for the conv head", enc.FeatureChannels(), featLen)
		}
		conv1, err := nn.NewConv2d(1, 64, 3, 1, 0, true)
		if err != nil {
			return nil, err
		}
		conv2, err := nn.NewConv2d(64, numClasses, 3, 1, 0, true)
		if err != nil {
			return nil, err
		}
		head = nn.NewSequential(conv1, nn.NewSigmoid(), conv2, nn.NewGlobalAvgPool2d())
	default:
		return nil, fmt.Errorf("unsupported pooling for feature variant")
	}

	m := &Wav2Vec{enc: enc, pool: pool, head: head}
	m.params = append(enc.FeatureExtractorParams(), head.Parameters()...)
	return m, nil
}

func (m *Wav2Vec) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch m.pool {
	case poolMean, poolToken:
		seq, err := m.enc.Forward(x)
		if err != nil {
			return nil, err
		}
		if m.detachEncoder {
			seq = seq.Detach()
		}
		var emb *tensor.Tensor
		if m.pool == poolToken {
			emb, err = tensor.SelectDim1Autograd(seq, 0)
		} else {
			emb, err = tensor.MeanDim1(seq)
		}
		if err != nil {
			return nil, err
		}
		return m.head.Forward(emb)

	case poolFlatten:
		features, err := m.enc.ExtractFeatures(x)
		if err != nil {
			return nil, err
		}
		flat, err := features.Reshape([]int{features.Shape[0], features.Shape[1] * features.Shape[2]})
		if err != nil {
			return nil, err
		}
		return m.head.Forward(flat)

	case poolConvMap:
		features, err := m.enc.ExtractFeatures(x)
		if err != nil {
			return nil, err
		}
		img, err := features.Reshape([]int{features.Shape[0], 1, features.Shape[1], features.Shape[2]})
		if err != nil {
			return nil, err
		}
		return m.head.Forward(img)
	}
	return nil, fmt.Errorf("unsupported pooling kind %d", m.pool)
}

func (m *Wav2Vec) TrainMode() { m.head.Train() }
func (m *Wav2Vec) EvalMode()  { m.head.Eval() }

func (m *Wav2Vec) Parameters() []*tensor.Tensor { return m.params }

func (m *Wav2Vec) TrainableParameters() []*tensor.Tensor {
	trainable, _ := partition(m.params)
	return trainable
}

func (m *Wav2Vec) FrozenParameters() []*tensor.Tensor {
	_, frozen := partition(m.params)
	return frozen
}

// HeadParameters returns the classification head group for staged
// fine-tuning.
func (m *Wav2Vec) HeadParameters() []*tensor.Tensor { return m.headParams }

// FineTuneParameters returns the head plus the encoder portion that
// joins training after the warm stage.
func (m *Wav2Vec) FineTuneParameters() []*tensor.Tensor { return m.fineTuneParams }
