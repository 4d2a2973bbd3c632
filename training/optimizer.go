package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/sentivox/go-emotion/tensor"
)

// Optimizer interface defines the methods that all optimizers must implement
type Optimizer interface {
	Step() error      // Updates model parameters based on gradients
	ZeroGrad()        // Resets gradients for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// SGD implements stochastic gradient descent with optional momentum
// and weight decay.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
	momentum     float64
	weightDecay  float64
	velocities   map[*tensor.Tensor][]float32
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer over the given parameters.
func NewSGD(parameters []*tensor.Tensor, lr, momentum, weightDecay float64) *SGD {
	return &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		velocities:   make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single optimization step. Parameters without a
// gradient are skipped.
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for _, param := range sgd.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		data, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter data: %w", err)
		}
		grad, err := param.Grad().GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter gradient: %w", err)
		}

		velocity := sgd.velocities[param]
		if sgd.momentum > 0 && velocity == nil {
			velocity = make([]float32, len(data))
			sgd.velocities[param] = velocity
		}

		lr := float32(sgd.learningRate)
		wd := float32(sgd.weightDecay)
		mom := float32(sgd.momentum)
		for i := range data {
			g := grad[i]
			if wd > 0 {
				g += wd * data[i]
			}
			if mom > 0 {
				velocity[i] = mom*velocity[i] + g
				g = velocity[i]
			}
			data[i] -= lr * g
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate.
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

// SetLR sets the learning rate.
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}

// Adam implements the Adam optimizer with bias-corrected moment
// estimates.
type Adam struct {
	parameters  []*tensor.Tensor
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	step        int64
	m           map[*tensor.Tensor][]float32
	v           map[*tensor.Tensor][]float32
	mutex       sync.RWMutex
}

// NewAdam creates a new Adam optimizer with the usual defaults when
// betas or eps are zero.
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	if beta1 == 0 {
		beta1 = 0.9
	}
	if beta2 == 0 {
		beta2 = 0.999
	}
	if eps == 0 {
		eps = 1e-8
	}
	return &Adam{
		parameters:  parameters,
		lr:          lr,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           make(map[*tensor.Tensor][]float32),
		v:           make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single optimization step.
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.step++
	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, param := range adam.parameters {
		if !param.RequiresGrad() || param.Grad() == nil {
			continue
		}
		data, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter data: %w", err)
		}
		grad, err := param.Grad().GetFloat32Data()
		if err != nil {
			return fmt.Errorf("parameter gradient: %w", err)
		}

		m := adam.m[param]
		v := adam.v[param]
		if m == nil {
			m = make([]float32, len(data))
			v = make([]float32, len(data))
			adam.m[param] = m
			adam.v[param] = v
		}

		for i := range data {
			g := float64(grad[i])
			if adam.weightDecay > 0 {
				g += adam.weightDecay * float64(data[i])
			}
			m[i] = float32(adam.beta1*float64(m[i]) + (1-adam.beta1)*g)
			v[i] = float32(adam.beta2*float64(v[i]) + (1-adam.beta2)*g*g)
			mHat := float64(m[i]) / bias1
			vHat := float64(v[i]) / bias2
			data[i] -= float32(adam.lr * mHat / (math.Sqrt(vHat) + adam.eps))
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate.
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

// SetLR sets the learning rate.
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}
