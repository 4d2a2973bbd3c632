package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("dtype mismatch: %s vs %s", t1.DType, t2.DType)
	}
	if t1.Device != t2.Device {
		return fmt.Errorf("device mismatch: %s vs %s", t1.Device, t2.Device)
	}
	return nil
}

// broadcastIndex maps a linear index in the output shape to a linear index
// in the (possibly smaller) operand shape. Supported forms: identical shape,
// scalar, and a shape matching the trailing dimensions of the output
// (the bias-add case).
func broadcastIndex(outShape []int, opShape []int, outIdx int) int {
	if shapesEqual(outShape, opShape) {
		return outIdx
	}
	opElems := calculateNumElements(opShape)
	if opElems == 1 {
		return 0
	}
	return outIdx % opElems
}

func broadcastable(a, b []int) bool {
	if shapesEqual(a, b) {
		return true
	}
	if calculateNumElements(b) == 1 {
		return true
	}
	if len(b) <= len(a) {
		off := len(a) - len(b)
		for i := range b {
			if b[i] != a[off+i] {
				return false
			}
		}
		return true
	}
	return false
}

// elementwise applies fn over two Float32 tensors with limited broadcasting
// of the second operand (or of the first, when it is the smaller one).
func elementwise(t1, t2 *Tensor, fn func(a, b float32) float32) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	if t1.DType != Float32 {
		return nil, fmt.Errorf("elementwise operations require Float32 tensors, got %s", t1.DType)
	}

	// The larger operand determines the output shape.
	out, small := t1, t2
	swapped := false
	if !broadcastable(t1.Shape, t2.Shape) {
		if broadcastable(t2.Shape, t1.Shape) {
			out, small = t2, t1
			swapped = true
		} else {
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", t1.Shape, t2.Shape)
		}
	}

	result, err := Zeros(out.Shape, Float32, out.Device)
	if err != nil {
		return nil, err
	}
	rd := result.Data.([]float32)
	od := out.Data.([]float32)
	sd := small.Data.([]float32)
	for i := range rd {
		j := broadcastIndex(out.Shape, small.Shape, i)
		if swapped {
			rd[i] = fn(sd[j], od[i])
		} else {
			rd[i] = fn(od[i], sd[j])
		}
	}
	return result, nil
}

// Add computes t1 + t2 element-wise.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a + b })
}

// Sub computes t1 - t2 element-wise.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a - b })
}

// Mul computes t1 * t2 element-wise.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a * b })
}

// Div computes t1 / t2 element-wise.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	return elementwise(t1, t2, func(a, b float32) float32 { return a / b })
}

func unary(t *Tensor, fn func(x float32) float32) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("unary operations require Float32 tensors, got %s", t.DType)
	}
	result, err := Zeros(t.Shape, Float32, t.Device)
	if err != nil {
		return nil, err
	}
	rd := result.Data.([]float32)
	td := t.Data.([]float32)
	for i := range rd {
		rd[i] = fn(td[i])
	}
	return result, nil
}

// ReLU computes max(0, x) element-wise.
func ReLU(t *Tensor) (*Tensor, error) {
	return unary(t, func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
}

// Exp computes e^x element-wise.
func Exp(t *Tensor) (*Tensor, error) {
	return unary(t, func(x float32) float32 { return float32(math.Exp(float64(x))) })
}

// Log computes the natural logarithm element-wise.
func Log(t *Tensor) (*Tensor, error) {
	return unary(t, func(x float32) float32 { return float32(math.Log(float64(x))) })
}

// Sqrt computes the square root element-wise.
func Sqrt(t *Tensor) (*Tensor, error) {
	return unary(t, func(x float32) float32 { return float32(math.Sqrt(float64(x))) })
}

// Tanh computes the hyperbolic tangent element-wise.
func Tanh(t *Tensor) (*Tensor, error) {
	return unary(t, func(x float32) float32 { return float32(math.Tanh(float64(x))) })
}

// Scale multiplies every element by a constant.
func Scale(t *Tensor, factor float64) (*Tensor, error) {
	f := float32(factor)
	return unary(t, func(x float32) float32 { return x * f })
}
