package encoder

import "github.com/sentivox/go-emotion/tensor"

// Parameter grouping. Order within each group is fixed, and Parameters
// concatenates the groups in a fixed order, so checkpoints restore by
// position.

// FeatureExtractorParams returns the conv stack parameters, including
// the per-layer normalization affines.
func (e *SpeechEncoder) FeatureExtractorParams() []*tensor.Tensor {
	var out []*tensor.Tensor
	for i, conv := range e.convs {
		out = append(out, conv.Parameters()...)
		out = append(out, e.convNorms[i].Parameters()...)
	}
	return out
}

// FeatureProjectionParams returns the projection norm and linear.
func (e *SpeechEncoder) FeatureProjectionParams() []*tensor.Tensor {
	out := append([]*tensor.Tensor{}, e.projNorm.Parameters()...)
	out = append(out, e.projLinear.Parameters()...)
	if e.summaryToken != nil {
		out = append(out, e.summaryToken)
	}
	return out
}

// BlockParams returns every parameter of the residual blocks.
func (e *SpeechEncoder) BlockParams() []*tensor.Tensor {
	var out []*tensor.Tensor
	for _, blk := range e.blocks {
		out = append(out, blk.norm.Parameters()...)
		out = append(out, blk.fc1.Parameters()...)
		out = append(out, blk.fc2.Parameters()...)
		out = append(out, blk.mix.Parameters()...)
	}
	return out
}

// BlockLayerNormParams returns only the normalization affines inside
// the residual blocks. These stay trainable in partial fine-tuning.
func (e *SpeechEncoder) BlockLayerNormParams() []*tensor.Tensor {
	var out []*tensor.Tensor
	for _, blk := range e.blocks {
		out = append(out, blk.norm.Parameters()...)
	}
	return out
}

// Parameters returns all encoder parameters in checkpoint order.
func (e *SpeechEncoder) Parameters() []*tensor.Tensor {
	out := e.FeatureExtractorParams()
	out = append(out, e.FeatureProjectionParams()...)
	out = append(out, e.BlockParams()...)
	return out
}

// Freeze clears the gradient requirement on a parameter group.
func Freeze(params []*tensor.Tensor) {
	for _, p := range params {
		p.SetRequiresGrad(false)
	}
}

// FreezeExceptLayerNorm freezes a group but keeps any parameters listed
// in keep trainable.
func FreezeExceptLayerNorm(params, keep []*tensor.Tensor) {
	kept := make(map[*tensor.Tensor]bool, len(keep))
	for _, p := range keep {
		kept[p] = true
	}
	for _, p := range params {
		if !kept[p] {
			p.SetRequiresGrad(false)
		}
	}
}
