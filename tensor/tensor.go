package tensor

import (
	"fmt"
)

// DType identifies the element type of a tensor.
type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// DeviceType identifies where tensor data lives. Only the CPU backend is
// compiled in; Accelerator is accepted so that a HardwareConfig can request
// it, and currently runs the same kernels.
type DeviceType int

const (
	CPU DeviceType = iota
	Accelerator
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case Accelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// Operation is a node in the autograd graph. Backward receives the gradient
// of the loss with respect to the operation's output and returns gradients
// for each input, aligned with Inputs().
type Operation interface {
	Backward(gradOut *Tensor) ([]*Tensor, error)
	Inputs() []*Tensor
}

// Tensor is a dense n-dimensional array with optional gradient tracking.
type Tensor struct {
	Shape    []int
	Strides  []int
	DType    DType
	Device   DeviceType
	Data     interface{}
	NumElems int

	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s, elements=%d)",
		t.Shape, t.DType, t.Device, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// gradEnabled globally gates autograd graph recording. Evaluation loops
// disable it so forward passes build no graph.
var gradEnabled = true

// SetGradEnabled toggles autograd graph recording and returns the previous
// setting, so callers can restore it with defer.
func SetGradEnabled(enabled bool) bool {
	prev := gradEnabled
	gradEnabled = enabled
	return prev
}

// GradEnabled reports whether autograd graph recording is active.
func GradEnabled() bool {
	return gradEnabled
}

// recordOp attaches op as the creator of out when gradient tracking applies.
func recordOp(out *Tensor, op Operation) {
	if !gradEnabled {
		return
	}
	for _, in := range op.Inputs() {
		if in.requiresGrad || in.creator != nil {
			out.creator = op
			return
		}
	}
}

// Backward propagates gradients from a scalar tensor through the recorded
// graph, accumulating into the grad of every tensor that requires one.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a scalar tensor, got shape %v", t.Shape)
	}
	if t.DType != Float32 {
		return fmt.Errorf("backward requires a Float32 tensor, got %s", t.DType)
	}
	seed, err := Ones(t.Shape, t.DType, t.Device)
	if err != nil {
		return err
	}
	return t.backward(seed)
}

func (t *Tensor) backward(grad *Tensor) error {
	if t.requiresGrad {
		if t.grad == nil {
			g, err := grad.Clone()
			if err != nil {
				return fmt.Errorf("gradient clone failed: %w", err)
			}
			t.grad = g
		} else {
			if err := accumulateInto(t.grad, grad); err != nil {
				return fmt.Errorf("gradient accumulation failed: %w", err)
			}
		}
	}
	if t.creator == nil {
		return nil
	}
	inGrads, err := t.creator.Backward(grad)
	if err != nil {
		return err
	}
	inputs := t.creator.Inputs()
	if len(inGrads) != len(inputs) {
		return fmt.Errorf("operation returned %d gradients for %d inputs", len(inGrads), len(inputs))
	}
	for i, in := range inputs {
		if inGrads[i] == nil {
			continue
		}
		if err := in.backward(inGrads[i]); err != nil {
			return err
		}
	}
	return nil
}

// accumulateInto adds src element-wise into dst. Both must be Float32 with
// identical shapes.
func accumulateInto(dst, src *Tensor) error {
	if dst.NumElems != src.NumElems {
		return fmt.Errorf("shape mismatch: %v vs %v", dst.Shape, src.Shape)
	}
	d := dst.Data.([]float32)
	s := src.Data.([]float32)
	for i := range d {
		d[i] += s[i]
	}
	return nil
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: must have at least one dimension")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
