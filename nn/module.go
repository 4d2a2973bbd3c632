package nn

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sentivox/go-emotion/tensor"
)

// Package-level random source for deterministic weight initialization.
var (
	rngMu     sync.Mutex
	globalRng = rand.New(rand.NewSource(1))
)

// SetRandomSeed resets the global random seed used for weight
// initialization, making model construction reproducible.
func SetRandomSeed(seed int64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	globalRng = rand.New(rand.NewSource(seed))
}

func initUniform(shape []int, bound float64) (*tensor.Tensor, error) {
	rngMu.Lock()
	defer rngMu.Unlock()
	return tensor.RandomUniform(shape, bound, globalRng, tensor.CPU)
}

func initNormal(shape []int, mean, std float64) (*tensor.Tensor, error) {
	rngMu.Lock()
	defer rngMu.Unlock()
	return tensor.RandomNormal(shape, mean, std, globalRng, tensor.CPU)
}

// Module is the interface all network layers implement.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	Train()
	Eval()
	IsTraining() bool
}

// Linear implements a fully connected layer: y = xW + b.
type Linear struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	training bool
}

// NewLinear creates a Linear layer with Xavier-uniform initialized weights
// of shape [inputSize, outputSize].
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	weight, err := initUniform([]int{inputSize, outputSize}, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %w", err)
	}
	weight.SetRequiresGrad(true)

	l := &Linear{weight: weight, training: true}
	if bias {
		b, err := tensor.Zeros([]int{outputSize}, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %w", err)
		}
		b.SetRequiresGrad(true)
		l.bias = b
	}
	return l, nil
}

// Forward expects a 2D input [batch, inputSize].
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("linear layer expects 2D input [batch, features], got %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.Shape[1])
	}
	out, err := tensor.MatMulAutograd(input, l.weight)
	if err != nil {
		return nil, err
	}
	if l.bias != nil {
		out, err = tensor.AddAutograd(out, l.bias)
		if err != nil {
			return nil, fmt.Errorf("bias addition failed: %w", err)
		}
	}
	return out, nil
}

func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

func (l *Linear) Train()           { l.training = true }
func (l *Linear) Eval()            { l.training = false }
func (l *Linear) IsTraining() bool { return l.training }

// InFeatures returns the expected input width.
func (l *Linear) InFeatures() int { return l.weight.Shape[0] }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.weight.Shape[1] }

// ReLU applies the rectified linear activation.
type ReLU struct {
	training bool
}

func NewReLU() *ReLU { return &ReLU{training: true} }

func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLUAutograd(input)
}

func (r *ReLU) Parameters() []*tensor.Tensor { return nil }
func (r *ReLU) Train()                       { r.training = true }
func (r *ReLU) Eval()                        { r.training = false }
func (r *ReLU) IsTraining() bool             { return r.training }

// GELU applies the Gaussian error linear unit (tanh approximation).
type GELU struct {
	training bool
}

func NewGELU() *GELU { return &GELU{training: true} }

func (g *GELU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.GELUAutograd(input)
}

func (g *GELU) Parameters() []*tensor.Tensor { return nil }
func (g *GELU) Train()                       { g.training = true }
func (g *GELU) Eval()                        { g.training = false }
func (g *GELU) IsTraining() bool             { return g.training }

// Sigmoid applies the logistic activation.
type Sigmoid struct {
	training bool
}

func NewSigmoid() *Sigmoid { return &Sigmoid{training: true} }

func (s *Sigmoid) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.SigmoidAutograd(input)
}

func (s *Sigmoid) Parameters() []*tensor.Tensor { return nil }
func (s *Sigmoid) Train()                       { s.training = true }
func (s *Sigmoid) Eval()                        { s.training = false }
func (s *Sigmoid) IsTraining() bool             { return s.training }

// Softmax turns logits into probabilities along the last axis. The
// training loss applies its own log-softmax, so this belongs on
// inference paths only.
type Softmax struct {
	training bool
}

func NewSoftmax() *Softmax { return &Softmax{training: true} }

func (s *Softmax) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Softmax(input)
}

func (s *Softmax) Parameters() []*tensor.Tensor { return nil }
func (s *Softmax) Train()                       { s.training = true }
func (s *Softmax) Eval()                        { s.training = false }
func (s *Softmax) IsTraining() bool             { return s.training }

// Dropout zeroes elements with probability p during training and
// rescales the survivors by 1/(1-p). Eval mode is the identity.
type Dropout struct {
	p        float64
	training bool
}

func NewDropout(p float64) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout probability must be in [0, 1), got %v", p)
	}
	return &Dropout{p: p, training: true}, nil
}

func (d *Dropout) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.p == 0 {
		return input, nil
	}
	mask, err := tensor.Zeros(input.Shape, tensor.Float32, input.Device)
	if err != nil {
		return nil, err
	}
	maskData, err := mask.GetFloat32Data()
	if err != nil {
		return nil, err
	}
	keep := float32(1 / (1 - d.p))
	rngMu.Lock()
	for i := range maskData {
		if globalRng.Float64() >= d.p {
			maskData[i] = keep
		}
	}
	rngMu.Unlock()
	return tensor.MulAutograd(input, mask)
}

func (d *Dropout) Parameters() []*tensor.Tensor { return nil }
func (d *Dropout) Train()                       { d.training = true }
func (d *Dropout) Eval()                        { d.training = false }
func (d *Dropout) IsTraining() bool             { return d.training }

// Flatten reshapes [batch, ...] to [batch, features].
type Flatten struct {
	training bool
}

func NewFlatten() *Flatten { return &Flatten{training: true} }

func (f *Flatten) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("flatten expects at least 2D input, got %v", input.Shape)
	}
	features := input.NumElems / input.Shape[0]
	return input.Reshape([]int{input.Shape[0], features})
}

func (f *Flatten) Parameters() []*tensor.Tensor { return nil }
func (f *Flatten) Train()                       { f.training = true }
func (f *Flatten) Eval()                        { f.training = false }
func (f *Flatten) IsTraining() bool             { return f.training }

// Sequential chains modules, feeding each output to the next input.
type Sequential struct {
	modules []Module
}

func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for i, m := range s.modules {
		out, err = m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("module %d forward failed: %w", i, err)
		}
	}
	return out, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

func (s *Sequential) Train() {
	for _, m := range s.modules {
		m.Train()
	}
}

func (s *Sequential) Eval() {
	for _, m := range s.modules {
		m.Eval()
	}
}

func (s *Sequential) IsTraining() bool {
	for _, m := range s.modules {
		if m.IsTraining() {
			return true
		}
	}
	return false
}

// Add appends modules to the chain.
func (s *Sequential) Add(ms ...Module) {
	s.modules = append(s.modules, ms...)
}
