package losses

import (
	"math"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/san-kum/hgn/internal/autograd"
)

func frames(values ...[]float64) []*autograd.Tensor {
	out := make([]*autograd.Tensor, len(values))
	for i, v := range values {
		out[i] = autograd.New(1, len(v), v)
	}
	return out
}

func TestMSE(t *testing.T) {
	g := NewWithT(t)

	observed := frames([]float64{0, 1}, []float64{1, 1})
	reconstructed := frames([]float64{0, 0}, []float64{1, 1})

	loss, err := MSE{}.Loss(observed, reconstructed)
	g.Expect(err).NotTo(HaveOccurred())
	// frame 0: mean(0, 1) = 0.5, frame 1: 0 -> average 0.25
	g.Expect(loss.Item()).To(BeNumerically("~", 0.25, 1e-12))
}

func TestBCEIsMinimalAtTarget(t *testing.T) {
	g := NewWithT(t)
	bce := BCE{Epsilon: 1e-7}

	observed := frames([]float64{0.2, 0.8})
	atTarget, err := bce.Loss(observed, frames([]float64{0.2, 0.8}))
	g.Expect(err).NotTo(HaveOccurred())
	offTarget, err := bce.Loss(observed, frames([]float64{0.5, 0.5}))
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(atTarget.Item()).To(BeNumerically("<", offTarget.Item()))
}

func TestLossFrameMismatch(t *testing.T) {
	for _, name := range Names() {
		l, err := Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.Loss(frames([]float64{1}), frames([]float64{1}, []float64{1})); err == nil {
			t.Errorf("%s: expected error for mismatched frame count", name)
		}
		if _, err := l.Loss(nil, nil); err == nil {
			t.Errorf("%s: expected error for empty input", name)
		}
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := Get("hinge"); err == nil {
		t.Error("expected error for unknown loss")
	}
}

func TestKLDivergence(t *testing.T) {
	g := NewWithT(t)

	zero, err := KLDivergence(autograd.Zeros(2, 3), autograd.Ones(2, 3))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(zero.Item()).To(BeNumerically("~", 0, 1e-12))

	mean := autograd.New(1, 1, []float64{1})
	std := autograd.New(1, 1, []float64{2})
	kl, err := KLDivergence(mean, std)
	g.Expect(err).NotTo(HaveOccurred())
	want := 0.5 * (1 + 4 - 1 - 2*math.Log(2))
	g.Expect(kl.Item()).To(BeNumerically("~", want, 1e-12))

	_, err = KLDivergence(autograd.Zeros(1, 2), autograd.Ones(1, 3))
	g.Expect(err).To(HaveOccurred())
}
