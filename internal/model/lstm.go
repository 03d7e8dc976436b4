package model

import (
	"math"
	"math/rand"
)

// lstmLayer is a single LSTM layer with flat weight tensors. Gate rows are
// laid out input, forget, cell, output at offsets 0, H, 2H, 3H.
type lstmLayer struct {
	inSize int
	hidden int
	wx     *param // 4H x inSize
	wh     *param // 4H x hidden
	b      *param // 4H
}

func newLSTMLayer(inSize, hidden int, rng *rand.Rand) *lstmLayer {
	l := &lstmLayer{
		inSize: inSize,
		hidden: hidden,
		wx:     newParam(4 * hidden * inSize),
		wh:     newParam(4 * hidden * hidden),
		b:      newParam(4 * hidden),
	}
	// Uniform(-k, k) with k = 1/sqrt(hidden)
	k := 1.0 / math.Sqrt(float64(hidden))
	for i := range l.wx.val {
		l.wx.val[i] = (rng.Float64()*2 - 1) * k
	}
	for i := range l.wh.val {
		l.wh.val[i] = (rng.Float64()*2 - 1) * k
	}
	for i := range l.b.val {
		l.b.val[i] = (rng.Float64()*2 - 1) * k
	}
	return l
}

func (l *lstmLayer) params() []*param {
	return []*param{l.wx, l.wh, l.b}
}

// lstmStep holds the per-timestep values needed for backpropagation.
type lstmStep struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	i     []float64
	f     []float64
	g     []float64
	o     []float64
	c     []float64
	tanhC []float64
}

type lstmCache struct {
	steps []lstmStep
}

// forward runs the layer over a full sequence and returns the hidden state
// at every timestep. The cache is nil-able for inference-only passes.
func (l *lstmLayer) forward(seq [][]float64, withCache bool) ([][]float64, *lstmCache) {
	h := make([]float64, l.hidden)
	c := make([]float64, l.hidden)
	hs := make([][]float64, len(seq))

	var cache *lstmCache
	if withCache {
		cache = &lstmCache{steps: make([]lstmStep, len(seq))}
	}

	for t, x := range seq {
		z := make([]float64, 4*l.hidden)
		copy(z, l.b.val)
		for r := 0; r < 4*l.hidden; r++ {
			sum := z[r]
			wxRow := l.wx.val[r*l.inSize : (r+1)*l.inSize]
			for j, xv := range x {
				sum += wxRow[j] * xv
			}
			whRow := l.wh.val[r*l.hidden : (r+1)*l.hidden]
			for j, hv := range h {
				sum += whRow[j] * hv
			}
			z[r] = sum
		}

		H := l.hidden
		gi := make([]float64, H)
		gf := make([]float64, H)
		gg := make([]float64, H)
		gout := make([]float64, H)
		cNew := make([]float64, H)
		hNew := make([]float64, H)
		tc := make([]float64, H)
		for j := 0; j < H; j++ {
			gi[j] = sigmoid(z[j])
			gf[j] = sigmoid(z[H+j])
			gg[j] = math.Tanh(z[2*H+j])
			gout[j] = sigmoid(z[3*H+j])
			cNew[j] = gf[j]*c[j] + gi[j]*gg[j]
			tc[j] = math.Tanh(cNew[j])
			hNew[j] = gout[j] * tc[j]
		}

		if withCache {
			cache.steps[t] = lstmStep{
				x: x, hPrev: h, cPrev: c,
				i: gi, f: gf, g: gg, o: gout,
				c: cNew, tanhC: tc,
			}
		}

		h, c = hNew, cNew
		hs[t] = hNew
	}

	return hs, cache
}

// backward runs truncated-free BPTT over the cached sequence. dHs carries
// the gradient flowing into each timestep's hidden output; the returned
// slice carries the gradient w.r.t. each timestep's input. Weight gradients
// accumulate into the layer's params.
func (l *lstmLayer) backward(cache *lstmCache, dHs [][]float64) [][]float64 {
	H := l.hidden
	T := len(cache.steps)
	dXs := make([][]float64, T)
	dhNext := make([]float64, H)
	dcNext := make([]float64, H)

	for t := T - 1; t >= 0; t-- {
		s := cache.steps[t]

		dh := make([]float64, H)
		for j := 0; j < H; j++ {
			dh[j] = dhNext[j]
			if dHs[t] != nil {
				dh[j] += dHs[t][j]
			}
		}

		dz := make([]float64, 4*H)
		dcPrev := make([]float64, H)
		for j := 0; j < H; j++ {
			do := dh[j] * s.tanhC[j]
			dc := dh[j]*s.o[j]*(1-s.tanhC[j]*s.tanhC[j]) + dcNext[j]

			di := dc * s.g[j]
			df := dc * s.cPrev[j]
			dg := dc * s.i[j]
			dcPrev[j] = dc * s.f[j]

			dz[j] = di * s.i[j] * (1 - s.i[j])
			dz[H+j] = df * s.f[j] * (1 - s.f[j])
			dz[2*H+j] = dg * (1 - s.g[j]*s.g[j])
			dz[3*H+j] = do * s.o[j] * (1 - s.o[j])
		}

		dx := make([]float64, l.inSize)
		dhPrev := make([]float64, H)
		for r := 0; r < 4*H; r++ {
			d := dz[r]
			if d == 0 {
				continue
			}
			wxRow := l.wx.val[r*l.inSize : (r+1)*l.inSize]
			gxRow := l.wx.grad[r*l.inSize : (r+1)*l.inSize]
			for j := 0; j < l.inSize; j++ {
				gxRow[j] += d * s.x[j]
				dx[j] += d * wxRow[j]
			}
			whRow := l.wh.val[r*H : (r+1)*H]
			ghRow := l.wh.grad[r*H : (r+1)*H]
			for j := 0; j < H; j++ {
				ghRow[j] += d * s.hPrev[j]
				dhPrev[j] += d * whRow[j]
			}
			l.b.grad[r] += d
		}

		dXs[t] = dx
		dhNext = dhPrev
		dcNext = dcPrev
	}

	return dXs
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
