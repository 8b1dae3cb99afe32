package optim

import (
	"fmt"
	"math"

	"github.com/san-kum/hgn/internal/autograd"
)

// Optimizer updates a fixed parameter set from its accumulated gradients.
type Optimizer interface {
	ZeroGrad()
	Step()
	LearningRate() float64
	SetLearningRate(lr float64)
}

// New returns an optimizer by name.
func New(name string, params []*autograd.Tensor, lr float64) (Optimizer, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", lr)
	}
	switch name {
	case "sgd":
		return NewSGD(params, lr, 0), nil
	case "adam":
		return NewAdam(params, lr, 0.9, 0.999, 1e-8), nil
	default:
		return nil, fmt.Errorf("unknown optimizer: %s", name)
	}
}

func zeroGrad(params []*autograd.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// SGD is plain gradient descent with optional momentum.
type SGD struct {
	params   []*autograd.Tensor
	lr       float64
	momentum float64
	velocity [][]float64
}

func NewSGD(params []*autograd.Tensor, lr, momentum float64) *SGD {
	velocity := make([][]float64, len(params))
	for i, p := range params {
		velocity[i] = make([]float64, p.Len())
	}
	return &SGD{params: params, lr: lr, momentum: momentum, velocity: velocity}
}

func (s *SGD) ZeroGrad() { zeroGrad(s.params) }

func (s *SGD) Step() {
	for i, p := range s.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data, grad, v := p.Data(), g.Data(), s.velocity[i]
		for j := range data {
			v[j] = s.momentum*v[j] + grad[j]
			data[j] -= s.lr * v[j]
		}
	}
}

func (s *SGD) LearningRate() float64      { return s.lr }
func (s *SGD) SetLearningRate(lr float64) { s.lr = lr }

// Adam keeps bias-corrected first and second moment estimates per weight.
type Adam struct {
	params  []*autograd.Tensor
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	m, v    [][]float64
	t       int
}

func NewAdam(params []*autograd.Tensor, lr, beta1, beta2, epsilon float64) *Adam {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, p.Len())
		v[i] = make([]float64, p.Len())
	}
	return &Adam{params: params, lr: lr, beta1: beta1, beta2: beta2, epsilon: epsilon, m: m, v: v}
}

func (a *Adam) ZeroGrad() { zeroGrad(a.params) }

func (a *Adam) Step() {
	a.t++
	bias1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	bias2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for i, p := range a.params {
		g := p.Grad()
		if g == nil {
			continue
		}
		data, grad := p.Data(), g.Data()
		m, v := a.m[i], a.v[i]
		for j := range data {
			m[j] = a.beta1*m[j] + (1-a.beta1)*grad[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*grad[j]*grad[j]
			mHat := m[j] / bias1
			vHat := v[j] / bias2
			data[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
}

func (a *Adam) LearningRate() float64      { return a.lr }
func (a *Adam) SetLearningRate(lr float64) { a.lr = lr }
