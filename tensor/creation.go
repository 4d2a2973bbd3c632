package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor creates a tensor backed by the provided data slice. The slice
// length must match the shape's element count; the data is used directly,
// not copied.
func NewTensor(shape []int, dtype DType, device DeviceType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	numElems := calculateNumElements(shape)

	t := &Tensor{
		Shape:    append([]int{}, shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		Device:   device,
		NumElems: numElems,
	}
	if err := t.SetData(data); err != nil {
		return nil, err
	}
	return t, nil
}

// SetData replaces the tensor's backing data, validating type and length.
func (t *Tensor) SetData(data interface{}) error {
	switch t.DType {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("expected []float32 data for Float32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return fmt.Errorf("expected []int32 data for Int32 tensor, got %T", data)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length %d does not match shape %v (%d elements)", len(d), t.Shape, t.NumElems)
		}
		t.Data = d
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, device, make([]float32, n))
	case Int32:
		return NewTensor(shape, dtype, device, make([]int32, n))
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Ones creates a one-filled tensor.
func Ones(shape []int, dtype DType, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = 1
		}
		return NewTensor(shape, dtype, device, data)
	case Int32:
		data := make([]int32, n)
		for i := range data {
			data[i] = 1
		}
		return NewTensor(shape, dtype, device, data)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Full creates a tensor filled with a single float value.
func Full(shape []int, value float32, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	data := make([]float32, n)
	for i := range data {
		data[i] = value
	}
	return NewTensor(shape, Float32, device, data)
}

// FromScalar wraps a single value in a [1] tensor.
func FromScalar(value float64, dtype DType, device DeviceType) *Tensor {
	var t *Tensor
	switch dtype {
	case Int32:
		t, _ = NewTensor([]int{1}, Int32, device, []int32{int32(value)})
	default:
		t, _ = NewTensor([]int{1}, Float32, device, []float32{float32(value)})
	}
	return t
}

// RandomUniform creates a Float32 tensor with entries drawn uniformly from
// [-bound, bound) using the provided source.
func RandomUniform(shape []int, bound float64, rng *rand.Rand, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	data := make([]float32, n)
	for i := range data {
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return NewTensor(shape, Float32, device, data)
}

// RandomNormal creates a Float32 tensor with entries drawn from a normal
// distribution with the given mean and standard deviation.
func RandomNormal(shape []int, mean, std float64, rng *rand.Rand, device DeviceType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64()*std + mean)
	}
	return NewTensor(shape, Float32, device, data)
}
