package nn

import (
	"fmt"

	"github.com/sentivox/go-emotion/tensor"
)

// LayerNorm normalizes the last dimension of its input with a learned
// affine transform.
type LayerNorm struct {
	gamma    *tensor.Tensor
	beta     *tensor.Tensor
	eps      float64
	training bool
}

func NewLayerNorm(dim int, eps float64) (*LayerNorm, error) {
	if eps <= 0 {
		eps = 1e-5
	}
	gamma, err := tensor.Ones([]int{dim}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create layernorm gamma: %w", err)
	}
	beta, err := tensor.Zeros([]int{dim}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create layernorm beta: %w", err)
	}
	gamma.SetRequiresGrad(true)
	beta.SetRequiresGrad(true)
	return &LayerNorm{gamma: gamma, beta: beta, eps: eps, training: true}, nil
}

func (ln *LayerNorm) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LayerNormAutograd(input, ln.gamma, ln.beta, ln.eps)
}

func (ln *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{ln.gamma, ln.beta}
}

func (ln *LayerNorm) Train()           { ln.training = true }
func (ln *LayerNorm) Eval()            { ln.training = false }
func (ln *LayerNorm) IsTraining() bool { return ln.training }

// BatchNorm2d normalizes [batch, channels, height, width] per channel.
// In training mode it uses batch statistics and updates the running
// estimates; in evaluation mode it applies the stored statistics without
// touching them, which is what keeps frozen sub-modules stable.
type BatchNorm2d struct {
	gamma       *tensor.Tensor
	beta        *tensor.Tensor
	runningMean *tensor.Tensor
	runningVar  *tensor.Tensor
	momentum    float64
	eps         float64
	training    bool
}

func NewBatchNorm2d(numFeatures int, eps, momentum float64) (*BatchNorm2d, error) {
	if eps <= 0 {
		eps = 1e-5
	}
	if momentum <= 0 || momentum >= 1 {
		momentum = 0.1
	}
	gamma, err := tensor.Ones([]int{numFeatures}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create batchnorm gamma: %w", err)
	}
	beta, err := tensor.Zeros([]int{numFeatures}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create batchnorm beta: %w", err)
	}
	mean, err := tensor.Zeros([]int{numFeatures}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create running mean: %w", err)
	}
	variance, err := tensor.Ones([]int{numFeatures}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create running variance: %w", err)
	}
	gamma.SetRequiresGrad(true)
	beta.SetRequiresGrad(true)
	return &BatchNorm2d{
		gamma:       gamma,
		beta:        beta,
		runningMean: mean,
		runningVar:  variance,
		momentum:    momentum,
		eps:         eps,
		training:    true,
	}, nil
}

func (bn *BatchNorm2d) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if bn.training {
		return tensor.BatchNorm2dAutograd(input, bn.gamma, bn.beta, bn.runningMean, bn.runningVar, bn.momentum, bn.eps)
	}
	return tensor.BatchNorm2dInference(input, bn.gamma, bn.beta, bn.runningMean, bn.runningVar, bn.eps)
}

// Parameters returns the affine parameters plus the running statistics so
// that checkpoints capture the full layer state. Only gamma and beta carry
// requiresGrad.
func (bn *BatchNorm2d) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{bn.gamma, bn.beta, bn.runningMean, bn.runningVar}
}

func (bn *BatchNorm2d) Train()           { bn.training = true }
func (bn *BatchNorm2d) Eval()            { bn.training = false }
func (bn *BatchNorm2d) IsTraining() bool { return bn.training }
