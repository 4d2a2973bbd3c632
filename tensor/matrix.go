package tensor

import (
	"fmt"
)

// MatMul computes the matrix product of two 2D Float32 tensors.
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if t1.DType != Float32 {
		return nil, fmt.Errorf("matmul requires Float32 tensors, got %s", t1.DType)
	}
	if len(t1.Shape) != 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got %v and %v", t1.Shape, t2.Shape)
	}
	m, k := t1.Shape[0], t1.Shape[1]
	k2, n := t2.Shape[0], t2.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions do not match: %v x %v", t1.Shape, t2.Shape)
	}

	result, err := Zeros([]int{m, n}, Float32, t1.Device)
	if err != nil {
		return nil, err
	}
	a := t1.Data.([]float32)
	b := t2.Data.([]float32)
	c := result.Data.([]float32)
	for i := 0; i < m; i++ {
		arow := a[i*k : (i+1)*k]
		crow := c[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := arow[p]
			if av == 0 {
				continue
			}
			brow := b[p*n : (p+1)*n]
			for j := 0; j < n; j++ {
				crow[j] += av * brow[j]
			}
		}
	}
	return result, nil
}

// Transpose swaps the two dimensions of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose requires a 2D tensor, got %v", t.Shape)
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("transpose requires a Float32 tensor, got %s", t.DType)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	result, err := Zeros([]int{cols, rows}, Float32, t.Device)
	if err != nil {
		return nil, err
	}
	src := t.Data.([]float32)
	dst := result.Data.([]float32)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result, nil
}

// Reshape returns a view-copy of the tensor with a new shape covering the
// same number of elements.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, t.NumElems, newShape)
	}
	out := &Tensor{
		Shape:    append([]int{}, newShape...),
		Strides:  calculateStrides(newShape),
		DType:    t.DType,
		Device:   t.Device,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
	// Reshape shares storage, so gradients flow through unchanged.
	op := &reshapeOp{input: t, fromShape: append([]int{}, t.Shape...)}
	recordOp(out, op)
	return out, nil
}

type reshapeOp struct {
	input     *Tensor
	fromShape []int
}

func (op *reshapeOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *reshapeOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Zeros(op.fromShape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	copy(grad.Data.([]float32), gradOut.Data.([]float32))
	return []*Tensor{grad}, nil
}

// SumAll reduces a Float32 tensor to a [1] scalar.
func SumAll(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("sum requires a Float32 tensor, got %s", t.DType)
	}
	var sum float32
	for _, v := range t.Data.([]float32) {
		sum += v
	}
	result, err := NewTensor([]int{1}, Float32, t.Device, []float32{sum})
	if err != nil {
		return nil, err
	}
	recordOp(result, &sumAllOp{input: t})
	return result, nil
}

type sumAllOp struct {
	input *Tensor
}

func (op *sumAllOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *sumAllOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Full(op.input.Shape, gradOut.Data.([]float32)[0], gradOut.Device)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// MeanDim1 averages a 3D tensor [B, T, H] over the middle dimension,
// producing [B, H]. This is the mean-pooling used over encoder output
// sequences.
func MeanDim1(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("mean over dim 1 requires a 3D tensor, got %v", t.Shape)
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("mean requires a Float32 tensor, got %s", t.DType)
	}
	b, tt, h := t.Shape[0], t.Shape[1], t.Shape[2]
	result, err := Zeros([]int{b, h}, Float32, t.Device)
	if err != nil {
		return nil, err
	}
	src := t.Data.([]float32)
	dst := result.Data.([]float32)
	inv := 1.0 / float32(tt)
	for i := 0; i < b; i++ {
		for s := 0; s < tt; s++ {
			row := src[(i*tt+s)*h : (i*tt+s+1)*h]
			orow := dst[i*h : (i+1)*h]
			for j := 0; j < h; j++ {
				orow[j] += row[j] * inv
			}
		}
	}
	op := &meanDim1Op{input: t, b: b, t: tt, h: h}
	recordOp(result, op)
	return result, nil
}

type meanDim1Op struct {
	input   *Tensor
	b, t, h int
}

func (op *meanDim1Op) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *meanDim1Op) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Zeros([]int{op.b, op.t, op.h}, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	inv := 1.0 / float32(op.t)
	for i := 0; i < op.b; i++ {
		for s := 0; s < op.t; s++ {
			for j := 0; j < op.h; j++ {
				gd[(i*op.t+s)*op.h+j] = g[i*op.h+j] * inv
			}
		}
	}
	return []*Tensor{grad}, nil
}

// ArgMaxRows returns, for a 2D [B, C] tensor, the index of the maximum
// entry in each row as an Int32 [B] tensor.
func ArgMaxRows(t *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("argmax requires a 2D tensor, got %v", t.Shape)
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("argmax requires a Float32 tensor, got %s", t.DType)
	}
	b, c := t.Shape[0], t.Shape[1]
	data := t.Data.([]float32)
	out := make([]int32, b)
	for i := 0; i < b; i++ {
		row := data[i*c : (i+1)*c]
		best := 0
		for j := 1; j < c; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = int32(best)
	}
	return NewTensor([]int{b}, Int32, t.Device, out)
}
