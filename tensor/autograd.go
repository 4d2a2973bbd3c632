package tensor

import (
	"math"
)

// reduceGradientToShape sums a gradient down to the shape of a broadcast
// operand. Needed when a bias [K] participated in an operation over [N, K].
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad, nil
	}
	out, err := Zeros(targetShape, Float32, grad.Device)
	if err != nil {
		return nil, err
	}
	gd := grad.Data.([]float32)
	od := out.Data.([]float32)
	for i := range gd {
		od[broadcastIndex(grad.Shape, targetShape, i)] += gd[i]
	}
	return out, nil
}

type addOp struct {
	a, b *Tensor
}

func (op *addOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *addOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradientToShape(gradOut, op.a.Shape)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(gradOut, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// AddAutograd computes a + b and records the operation for backward.
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	recordOp(out, &addOp{a: a, b: b})
	return out, nil
}

type subOp struct {
	a, b *Tensor
}

func (op *subOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *subOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradientToShape(gradOut, op.a.Shape)
	if err != nil {
		return nil, err
	}
	neg, err := Scale(gradOut, -1)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(neg, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// SubAutograd computes a - b and records the operation for backward.
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Sub(a, b)
	if err != nil {
		return nil, err
	}
	recordOp(out, &subOp{a: a, b: b})
	return out, nil
}

type mulOp struct {
	a, b *Tensor
}

func (op *mulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *mulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	ga, err := Mul(gradOut, op.b)
	if err != nil {
		return nil, err
	}
	gradA, err := reduceGradientToShape(ga, op.a.Shape)
	if err != nil {
		return nil, err
	}
	gb, err := Mul(gradOut, op.a)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(gb, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// MulAutograd computes a * b element-wise and records the operation.
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	recordOp(out, &mulOp{a: a, b: b})
	return out, nil
}

type matMulOp struct {
	a, b *Tensor
}

func (op *matMulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *matMulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// dL/dA = dL/dY . B^T, dL/dB = A^T . dL/dY
	bT, err := Transpose(op.b)
	if err != nil {
		return nil, err
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		return nil, err
	}
	aT, err := Transpose(op.a)
	if err != nil {
		return nil, err
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

// MatMulAutograd computes the matrix product and records the operation.
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	recordOp(out, &matMulOp{a: a, b: b})
	return out, nil
}

type reluOp struct {
	input *Tensor
}

func (op *reluOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *reluOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	in := op.input.Data.([]float32)
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	for i := range in {
		if in[i] > 0 {
			gd[i] = g[i]
		}
	}
	return []*Tensor{grad}, nil
}

// ReLUAutograd computes max(0, x) and records the operation.
func ReLUAutograd(a *Tensor) (*Tensor, error) {
	out, err := ReLU(a)
	if err != nil {
		return nil, err
	}
	recordOp(out, &reluOp{input: a})
	return out, nil
}

type tanhOp struct {
	input  *Tensor
	output *Tensor
}

func (op *tanhOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *tanhOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d tanh(x)/dx = 1 - tanh(x)^2, reusing the forward output.
	grad, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	y := op.output.Data.([]float32)
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	for i := range y {
		gd[i] = g[i] * (1 - y[i]*y[i])
	}
	return []*Tensor{grad}, nil
}

// TanhAutograd computes tanh(x) and records the operation.
func TanhAutograd(a *Tensor) (*Tensor, error) {
	out, err := Tanh(a)
	if err != nil {
		return nil, err
	}
	recordOp(out, &tanhOp{input: a, output: out})
	return out, nil
}

type sigmoidOp struct {
	input  *Tensor
	output *Tensor
}

func (op *sigmoidOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *sigmoidOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	y := op.output.Data.([]float32)
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	for i := range y {
		gd[i] = g[i] * y[i] * (1 - y[i])
	}
	return []*Tensor{grad}, nil
}

// SigmoidAutograd computes 1/(1+e^-x) and records the operation.
func SigmoidAutograd(a *Tensor) (*Tensor, error) {
	out, err := unary(a, func(x float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(x))))
	})
	if err != nil {
		return nil, err
	}
	recordOp(out, &sigmoidOp{input: a, output: out})
	return out, nil
}

const (
	geluCoeff = 0.044715
	sqrt2Pi   = 0.7978845608028654 // sqrt(2/pi)
)

type geluOp struct {
	input *Tensor
}

func (op *geluOp) Inputs() []*Tensor { return []*Tensor{op.input} }

func (op *geluOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := Zeros(op.input.Shape, Float32, gradOut.Device)
	if err != nil {
		return nil, err
	}
	in := op.input.Data.([]float32)
	g := gradOut.Data.([]float32)
	gd := grad.Data.([]float32)
	for i := range in {
		x := float64(in[i])
		u := sqrt2Pi * (x + geluCoeff*x*x*x)
		tanhU := math.Tanh(u)
		du := sqrt2Pi * (1 + 3*geluCoeff*x*x)
		d := 0.5*(1+tanhU) + 0.5*x*(1-tanhU*tanhU)*du
		gd[i] = g[i] * float32(d)
	}
	return []*Tensor{grad}, nil
}

// GELUAutograd computes the tanh approximation of GELU and records the
// operation.
func GELUAutograd(a *Tensor) (*Tensor, error) {
	out, err := unary(a, func(x float32) float32 {
		xf := float64(x)
		return float32(0.5 * xf * (1 + math.Tanh(sqrt2Pi*(xf+geluCoeff*xf*xf*xf))))
	})
	if err != nil {
		return nil, err
	}
	recordOp(out, &geluOp{input: a})
	return out, nil
}
