package hamiltonian

import (
	"errors"
	"math/rand"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
)

func TestShapeMismatch(t *testing.T) {
	q := autograd.Zeros(2, 3)
	p := autograd.Zeros(2, 4)

	funcs := map[string]Func{
		"network":  NewNetwork(3, 8, rand.New(rand.NewSource(1))),
		"harmonic": Harmonic{},
		"zero":     Zero{},
	}
	for name, h := range funcs {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Energy(q, p); !errors.Is(err, dynamo.ErrShapeMismatch) {
				t.Errorf("expected ErrShapeMismatch, got %v", err)
			}
		})
	}
}

func TestHarmonicEnergyAndGradients(t *testing.T) {
	g := NewWithT(t)

	q := autograd.Param(2, 1, []float64{1, 0.5})
	p := autograd.Param(2, 1, []float64{0, -2})

	e, err := Harmonic{}.Energy(q, p)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(e.Data()).To(Equal([]float64{0.5, 0.5*0.25 + 2}))

	total, err := Total(Harmonic{}, q, p)
	g.Expect(err).NotTo(HaveOccurred())
	grads, err := autograd.Grad(total, []*autograd.Tensor{q, p}, false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(grads[0].Data()).To(Equal([]float64{1, 0.5}))
	g.Expect(grads[1].Data()).To(Equal([]float64{0, -2}))
}

func TestNetworkEnergyPerBatchElement(t *testing.T) {
	g := NewWithT(t)
	h := NewNetwork(2, 6, rand.New(rand.NewSource(5)))

	q := autograd.Param(3, 2, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6})
	p := autograd.Param(3, 2, []float64{-0.1, 0, 0.2, 0.1, -0.3, 0.9})

	e, err := h.Energy(q, p)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(e.Rows()).To(Equal(3))
	g.Expect(e.Cols()).To(Equal(1))

	total, err := Total(h, q, p)
	g.Expect(err).NotTo(HaveOccurred())
	grads, err := autograd.Grad(total, []*autograd.Tensor{q, p}, true)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(grads[0].SameShape(q)).To(BeTrue())
	g.Expect(grads[1].SameShape(p)).To(BeTrue())
	g.Expect(grads[0].RequiresGrad()).To(BeTrue())
	g.Expect(h.Params()).To(HaveLen(7))
}

func TestZeroEnergyHasNoGradient(t *testing.T) {
	g := NewWithT(t)
	q := autograd.Param(1, 2, []float64{3, 4})
	p := autograd.Param(1, 2, []float64{5, 6})

	total, err := Total(Zero{}, q, p)
	g.Expect(err).NotTo(HaveOccurred())
	grads, err := autograd.Grad(total, []*autograd.Tensor{q, p}, false)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(grads[0].Data()).To(Equal([]float64{0, 0}))
	g.Expect(grads[1].Data()).To(Equal([]float64{0, 0}))
}
