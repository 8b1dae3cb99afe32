package networks

import (
	"math/rand"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/hgn/internal/autograd"
)

func TestLinearShapes(t *testing.T) {
	g := NewWithT(t)
	l := NewLinear(4, 3, rand.New(rand.NewSource(1)))

	out := l.Forward(autograd.Zeros(5, 4))
	g.Expect(out.Rows()).To(Equal(5))
	g.Expect(out.Cols()).To(Equal(3))
	g.Expect(l.Params()).To(HaveLen(2))
	g.Expect(l.W.RequiresGrad()).To(BeTrue())
}

func TestEncoderProducesPositiveStd(t *testing.T) {
	g := NewWithT(t)
	rng := rand.New(rand.NewSource(7))
	enc := NewMLPEncoder(12, 8, 3, rng)

	x := autograd.New(2, 12, make([]float64, 24))
	for i := range x.Data() {
		x.Data()[i] = rng.Float64()
	}

	latent, err := enc.Encode(x)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(latent.Sample.Rows()).To(Equal(2))
	g.Expect(latent.Sample.Cols()).To(Equal(3))
	for _, v := range latent.Std.Data() {
		g.Expect(v).To(BeNumerically(">", 0))
	}
}

func TestEncoderZeroNoiseReturnsMean(t *testing.T) {
	g := NewWithT(t)
	enc := NewMLPEncoder(6, 4, 2, rand.New(rand.NewSource(3)), ZeroNoise())

	latent, err := enc.Encode(autograd.Ones(1, 6))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(latent.Sample.Data()).To(Equal(latent.Mean.Data()))
}

func TestEncoderRejectsWrongWidth(t *testing.T) {
	enc := NewMLPEncoder(6, 4, 2, rand.New(rand.NewSource(3)))
	if _, err := enc.Encode(autograd.Ones(1, 5)); err == nil {
		t.Error("expected error for wrong input width")
	}
}

func TestTransformerAndDecoder(t *testing.T) {
	g := NewWithT(t)
	rng := rand.New(rand.NewSource(11))
	tr := NewLinearTransformer(3, 2, rng)
	dec := NewMLPDecoder(2, 5, 12, rng)

	q, p, err := tr.ToPhaseSpace(autograd.Ones(4, 3))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(q.SameShape(p)).To(BeTrue())
	g.Expect(q.Cols()).To(Equal(2))

	frame, err := dec.Decode(q)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(frame.Rows()).To(Equal(4))
	g.Expect(frame.Cols()).To(Equal(12))
	for _, v := range frame.Data() {
		g.Expect(v).To(And(BeNumerically(">", 0), BeNumerically("<", 1)))
	}
	g.Expect(tr.Params()).To(HaveLen(4))
	g.Expect(dec.Params()).To(HaveLen(4))
}
