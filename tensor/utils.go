package tensor

import (
	"fmt"
)

// Clone returns a deep copy of the tensor's shape and data. The copy does
// not carry gradient state or graph history.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := make([]float32, t.NumElems)
		copy(data, t.Data.([]float32))
		return NewTensor(t.Shape, t.DType, t.Device, data)
	case Int32:
		data := make([]int32, t.NumElems)
		copy(data, t.Data.([]int32))
		return NewTensor(t.Shape, t.DType, t.Device, data)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() (interface{}, error) {
	if t.NumElems != 1 {
		return nil, fmt.Errorf("item requires a one-element tensor, got %d elements", t.NumElems)
	}
	switch t.DType {
	case Float32:
		return t.Data.([]float32)[0], nil
	case Int32:
		return t.Data.([]int32)[0], nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// GetFloat32Data returns the backing float32 slice.
func (t *Tensor) GetFloat32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// GetInt32Data returns the backing int32 slice.
func (t *Tensor) GetInt32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("tensor is %s, not Int32", t.DType)
	}
	return t.Data.([]int32), nil
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) (interface{}, error) {
	if len(indices) != len(t.Shape) {
		return nil, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}
	idx := 0
	for i, ix := range indices {
		if ix < 0 || ix >= t.Shape[i] {
			return nil, fmt.Errorf("index %d out of range for dimension %d (size %d)", ix, i, t.Shape[i])
		}
		idx += ix * t.Strides[i]
	}
	switch t.DType {
	case Float32:
		return t.Data.([]float32)[idx], nil
	case Int32:
		return t.Data.([]int32)[idx], nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Equal reports whether two tensors have identical shape, dtype and data.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.DType != other.DType || !shapesEqual(t.Shape, other.Shape) {
		return false
	}
	switch t.DType {
	case Float32:
		a := t.Data.([]float32)
		b := other.Data.([]float32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	case Int32:
		a := t.Data.([]int32)
		b := other.Data.([]int32)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// ZeroGrad clears the gradients of all given tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		t.grad = nil
	}
}

// Detach drops graph history so a tensor can be used as a leaf (for frozen
// sub-module boundaries).
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		Shape:    t.Shape,
		Strides:  t.Strides,
		DType:    t.DType,
		Device:   t.Device,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
}
