package autograd

import (
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"
)

// numericGrad estimates d f / d x[i] with central differences.
func numericGrad(f func(x *Tensor) float64, x *Tensor) []float64 {
	const h = 1e-6
	out := make([]float64, x.Len())
	for i := range x.data {
		orig := x.data[i]
		x.data[i] = orig + h
		fp := f(x)
		x.data[i] = orig - h
		fm := f(x)
		x.data[i] = orig
		out[i] = (fp - fm) / (2 * h)
	}
	return out
}

func TestGradMatchesFiniteDifferences(t *testing.T) {
	w := Param(3, 2, []float64{0.1, -0.2, 0.3, 0.4, -0.5, 0.6})
	b := Param(1, 2, []float64{0.05, -0.05})

	tests := []struct {
		name string
		fn   func(x *Tensor) *Tensor
	}{
		{"tanh mlp", func(x *Tensor) *Tensor { return Sum(Tanh(AddBias(MatMul(x, w), b))) }},
		{"sigmoid", func(x *Tensor) *Tensor { return Mean(Sigmoid(x)) }},
		{"exp log", func(x *Tensor) *Tensor { return Sum(Log(AddScalar(Exp(x), 1))) }},
		{"reciprocal", func(x *Tensor) *Tensor { return Sum(Reciprocal(AddScalar(Mul(x, x), 1))) }},
		{"sum rows", func(x *Tensor) *Tensor { return Sum(Mul(SumRows(x), SumRows(x))) }},
		{"sum cols", func(x *Tensor) *Tensor { return Sum(Tanh(SumCols(x))) }},
		{"transpose", func(x *Tensor) *Tensor { return Sum(MatMul(Transpose(x), x)) }},
		{"sub scale", func(x *Tensor) *Tensor { return Sum(Scale(Sub(x, Mul(x, x)), 0.5)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			x := Param(2, 3, []float64{0.3, -0.7, 1.1, 0.2, 0.9, -0.4})

			grads, err := Grad(tt.fn(x), []*Tensor{x}, false)
			g.Expect(err).NotTo(HaveOccurred())

			want := numericGrad(func(x *Tensor) float64 { return tt.fn(x.Detach()).Item() }, x)
			for i, v := range grads[0].Data() {
				g.Expect(v).To(BeNumerically("~", want[i], 1e-5), "element %d", i)
			}
		})
	}
}

func TestGradSecondOrder(t *testing.T) {
	g := NewWithT(t)

	x := Param(1, 1, []float64{1.5})
	y := Mul(Mul(x, x), x)

	first, err := Grad(y, []*Tensor{x}, true)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(first[0].Item()).To(BeNumerically("~", 3*1.5*1.5, 1e-12))
	g.Expect(first[0].RequiresGrad()).To(BeTrue())

	second, err := Grad(first[0], []*Tensor{x}, false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(second[0].Item()).To(BeNumerically("~", 6*1.5, 1e-12))
}

func TestGradSecondOrderThroughTanh(t *testing.T) {
	g := NewWithT(t)

	x := Param(1, 1, []float64{0.4})
	first, err := Grad(Sum(Tanh(x)), []*Tensor{x}, true)
	g.Expect(err).NotTo(HaveOccurred())

	second, err := Grad(Sum(first[0]), []*Tensor{x}, false)
	g.Expect(err).NotTo(HaveOccurred())

	th := math.Tanh(0.4)
	g.Expect(second[0].Item()).To(BeNumerically("~", -2*th*(1-th*th), 1e-12))
}

func TestGradTargetsAreBoundaries(t *testing.T) {
	g := NewWithT(t)

	p := Param(1, 1, []float64{2})
	q := Scale(p, 3)
	h := Mul(q, p)

	grads, err := Grad(h, []*Tensor{q, p}, false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(grads[0].Item()).To(Equal(2.0))
	g.Expect(grads[1].Item()).To(Equal(6.0))
}

func TestGradUnreachableTargetIsZero(t *testing.T) {
	g := NewWithT(t)

	x := Param(2, 2, []float64{1, 2, 3, 4})
	other := Param(2, 2, []float64{1, 1, 1, 1})

	grads, err := Grad(Sum(x), []*Tensor{other}, true)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(grads[0].Data()).To(Equal([]float64{0, 0, 0, 0}))

	grads, err = Grad(Scalar(0), []*Tensor{x}, false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(grads[0].Data()).To(Equal([]float64{0, 0, 0, 0}))
}

func TestGradRequiresScalar(t *testing.T) {
	x := Param(2, 1, []float64{1, 2})
	_, err := Grad(x, []*Tensor{x}, false)
	if !errors.Is(err, ErrNotScalar) {
		t.Fatalf("expected ErrNotScalar, got %v", err)
	}
}

func TestBackwardAccumulates(t *testing.T) {
	g := NewWithT(t)

	w := Param(1, 2, []float64{1, -1})
	loss := Sum(Mul(w, w))

	g.Expect(Backward(loss, []*Tensor{w})).To(Succeed())
	g.Expect(w.Grad().Data()).To(Equal([]float64{2, -2}))

	g.Expect(Backward(loss, []*Tensor{w})).To(Succeed())
	g.Expect(w.Grad().Data()).To(Equal([]float64{4, -4}))
	g.Expect(w.Grad().RequiresGrad()).To(BeFalse())

	w.ZeroGrad()
	g.Expect(w.Grad()).To(BeNil())
}

func TestTrackDoesNotMutate(t *testing.T) {
	x := New(1, 2, []float64{1, 2})
	tracked := x.Track()

	if x.RequiresGrad() {
		t.Error("Track mutated the receiver")
	}
	if !tracked.RequiresGrad() {
		t.Error("Track returned an untracked tensor")
	}
	if tracked.Track() != tracked {
		t.Error("Track on a tracked tensor should return it unchanged")
	}
}

func TestShapePanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrShape) {
			t.Fatalf("expected ErrShape panic, got %v", r)
		}
	}()
	Add(Zeros(2, 2), Zeros(2, 3))
}
