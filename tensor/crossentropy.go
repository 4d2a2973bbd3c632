package tensor

import (
	"fmt"
	"math"
)

type crossEntropyOp struct {
	logits *Tensor
	labels []int32
	probs  []float32 // softmax of the logits, reused in backward
}

func (op *crossEntropyOp) Inputs() []*Tensor { return []*Tensor{op.logits} }

// CrossEntropyAutograd computes the mean cross-entropy between logits
// [B, C] and integer class labels [B], with a numerically stable softmax.
// The returned scalar participates in the autograd graph; its gradient is
// (softmax - onehot) / B.
func CrossEntropyAutograd(logits, labels *Tensor) (*Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("cross-entropy expects 2D logits [batch, classes], got %v", logits.Shape)
	}
	if labels.DType != Int32 {
		return nil, fmt.Errorf("cross-entropy expects Int32 labels, got %s", labels.DType)
	}
	b, c := logits.Shape[0], logits.Shape[1]
	lab := labels.Data.([]int32)
	if len(lab) != b {
		return nil, fmt.Errorf("label count %d does not match batch size %d", len(lab), b)
	}

	in := logits.Data.([]float32)
	probs := make([]float32, b*c)
	var total float64
	for i := 0; i < b; i++ {
		row := in[i*c : (i+1)*c]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - maxV))
			probs[i*c+j] = float32(e)
			sum += e
		}
		for j := range row {
			probs[i*c+j] /= float32(sum)
		}
		cls := int(lab[i])
		if cls < 0 || cls >= c {
			return nil, fmt.Errorf("label %d out of range for %d classes", cls, c)
		}
		total += -math.Log(float64(probs[i*c+cls]) + 1e-12)
	}

	loss, err := NewTensor([]int{1}, Float32, logits.Device, []float32{float32(total / float64(b))})
	if err != nil {
		return nil, err
	}
	recordOp(loss, &crossEntropyOp{logits: logits, labels: lab, probs: probs})
	return loss, nil
}

func (op *crossEntropyOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	b, c := op.logits.Shape[0], op.logits.Shape[1]
	grad, err := Zeros(op.logits.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	scale := gradOut.Data.([]float32)[0] / float32(b)
	gd := grad.Data.([]float32)
	for i := 0; i < b; i++ {
		for j := 0; j < c; j++ {
			p := op.probs[i*c+j]
			if int32(j) == op.labels[i] {
				gd[i*c+j] = (p - 1) * scale
			} else {
				gd[i*c+j] = p * scale
			}
		}
	}
	return []*Tensor{grad}, nil
}

// Softmax computes row-wise softmax for a 2D tensor without recording a
// graph. Useful for reporting probabilities.
func Softmax(logits *Tensor) (*Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("softmax expects a 2D tensor, got %v", logits.Shape)
	}
	b, c := logits.Shape[0], logits.Shape[1]
	out, err := Zeros(logits.Shape, Float32, logits.Device)
	if err != nil {
		return nil, err
	}
	in := logits.Data.([]float32)
	o := out.Data.([]float32)
	for i := 0; i < b; i++ {
		row := in[i*c : (i+1)*c]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - maxV))
			o[i*c+j] = float32(e)
			sum += e
		}
		for j := range row {
			o[i*c+j] /= float32(sum)
		}
	}
	return out, nil
}
