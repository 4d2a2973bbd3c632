package nn

import (
	"fmt"

	"github.com/sentivox/go-emotion/tensor"
)

// Loss computes a scalar loss tensor from predictions and targets. The
// returned tensor participates in the autograd graph so Backward reaches
// the model parameters.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// CrossEntropyLoss computes mean cross-entropy over a batch of logits
// [batch, classes] and integer labels [batch] (or [batch, 1]).
type CrossEntropyLoss struct{}

func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

func (ce *CrossEntropyLoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	labels := target
	if len(labels.Shape) == 2 && labels.Shape[1] == 1 {
		reshaped, err := labels.Reshape([]int{labels.Shape[0]})
		if err != nil {
			return nil, fmt.Errorf("failed to reshape labels: %w", err)
		}
		labels = reshaped
	}
	return tensor.CrossEntropyAutograd(predicted, labels)
}
