package model

import "math"

// param is one flat trainable tensor with its gradient accumulator and
// Adam moment buffers.
type param struct {
	val  []float64
	grad []float64
	m    []float64
	v    []float64
}

func newParam(size int) *param {
	return &param{
		val:  make([]float64, size),
		grad: make([]float64, size),
		m:    make([]float64, size),
		v:    make([]float64, size),
	}
}

// adam applies one Adam update across all registered parameters and clears
// their gradients.
type adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	t       int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, epsilon: 1e-8}
}

func (a *adam) step(params []*param) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, p := range params {
		for i, g := range p.grad {
			p.m[i] = a.beta1*p.m[i] + (1-a.beta1)*g
			p.v[i] = a.beta2*p.v[i] + (1-a.beta2)*g*g
			mHat := p.m[i] / c1
			vHat := p.v[i] / c2
			p.val[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
			p.grad[i] = 0
		}
	}
}
