package integrators

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/hamiltonian"
)

func harmonicEnergy(q, p *autograd.Tensor) float64 {
	e := 0.0
	for i := range q.Data() {
		e += 0.5 * (q.Data()[i]*q.Data()[i] + p.Data()[i]*p.Data()[i])
	}
	return e
}

func mustNew(t *testing.T, method Method, dt float64) *Integrator {
	t.Helper()
	integ, err := New(string(method), dt)
	if err != nil {
		t.Fatalf("New(%s, %g): %v", method, dt, err)
	}
	return integ
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	for _, name := range []string{"", "Euler", "rk45", "verlet"} {
		if _, err := New(name, 0.1); !errors.Is(err, dynamo.ErrUnsupportedMethod) {
			t.Errorf("New(%q) = %v, want ErrUnsupportedMethod", name, err)
		}
	}
}

func TestNewRejectsNonPositiveStep(t *testing.T) {
	for _, dt := range []float64{0, -0.1} {
		if _, err := New("euler", dt); !errors.Is(err, dynamo.ErrInvalidStep) {
			t.Errorf("New(euler, %g) = %v, want ErrInvalidStep", dt, err)
		}
	}
}

func TestMethods(t *testing.T) {
	got := Methods()
	want := []Method{Euler, Leapfrog, RK4}
	if len(got) != len(want) {
		t.Fatalf("Methods() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Methods()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStepPreservesShapeAndInputs(t *testing.T) {
	h := hamiltonian.NewNetwork(3, 8, rand.New(rand.NewSource(2)))

	for _, m := range Methods() {
		t.Run(string(m), func(t *testing.T) {
			integ := mustNew(t, m, 0.1)
			q := autograd.New(2, 3, []float64{0.1, 0.2, 0.3, -0.1, -0.2, -0.3})
			p := autograd.New(2, 3, []float64{1, 0, -1, 0.5, 0.5, 0.5})
			qBefore := q.Clone().Data()
			pBefore := p.Clone().Data()

			qNext, pNext, err := integ.Step(q, p, h)
			if err != nil {
				t.Fatalf("step failed: %v", err)
			}
			if !qNext.SameShape(q) || !pNext.SameShape(p) {
				t.Errorf("shape changed: q %dx%d, p %dx%d", qNext.Rows(), qNext.Cols(), pNext.Rows(), pNext.Cols())
			}
			if qNext == q || pNext == p {
				t.Error("step returned its inputs")
			}
			for i := range qBefore {
				if q.Data()[i] != qBefore[i] || p.Data()[i] != pBefore[i] {
					t.Fatal("step mutated its inputs")
				}
			}
			if q.RequiresGrad() || p.RequiresGrad() {
				t.Error("step changed gradient tracking on its inputs")
			}
		})
	}
}

func TestStepShapeMismatch(t *testing.T) {
	integ := mustNew(t, Euler, 0.1)
	_, _, err := integ.Step(autograd.Zeros(1, 2), autograd.Zeros(1, 3), hamiltonian.Harmonic{})
	if !errors.Is(err, dynamo.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestZeroHamiltonianIsStationary(t *testing.T) {
	for _, m := range Methods() {
		for _, dt := range []float64{0.001, 0.1, 1, 10} {
			integ := mustNew(t, m, dt)
			q := autograd.New(1, 2, []float64{0.7, -1.3})
			p := autograd.New(1, 2, []float64{2.5, 0.1})

			qNext, pNext, err := integ.Step(q, p, hamiltonian.Zero{})
			if err != nil {
				t.Fatalf("%s dt=%g: %v", m, dt, err)
			}
			for i := range q.Data() {
				if qNext.Data()[i] != q.Data()[i] || pNext.Data()[i] != p.Data()[i] {
					t.Errorf("%s dt=%g: state moved to q=%v p=%v", m, dt, qNext.Data(), pNext.Data())
				}
			}
		}
	}
}

func TestHarmonicEnergyConservation(t *testing.T) {
	tests := []struct {
		method    Method
		steps     int
		tolerance float64
	}{
		{Euler, 2000, 1e-2},
		{Leapfrog, 2000, 1e-4},
		{RK4, 1000, 1e-6},
	}

	dt := 0.01
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			integ := mustNew(t, tt.method, dt)
			q := autograd.New(1, 1, []float64{1})
			p := autograd.New(1, 1, []float64{0})
			initial := harmonicEnergy(q, p)

			maxDrift := 0.0
			var err error
			for i := 0; i < tt.steps; i++ {
				q, p, err = integ.Step(q.Detach(), p.Detach(), hamiltonian.Harmonic{})
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
				drift := math.Abs(harmonicEnergy(q, p)-initial) / initial
				maxDrift = math.Max(maxDrift, drift)
			}

			if maxDrift > tt.tolerance {
				t.Errorf("%s energy drift too high: %e", tt.method, maxDrift)
			}
		})
	}
}

func TestSymplecticEulerMatchesClosedForm(t *testing.T) {
	integ := mustNew(t, Euler, 0.1)
	q := autograd.New(1, 1, []float64{1})
	p := autograd.New(1, 1, []float64{0.5})

	qNext, pNext, err := integ.Step(q, p, hamiltonian.Harmonic{})
	if err != nil {
		t.Fatal(err)
	}

	// p' = p - dt*q, q' = q + dt*p'
	wantP := 0.5 - 0.1*1
	wantQ := 1 + 0.1*wantP
	if math.Abs(pNext.Item()-wantP) > 1e-12 || math.Abs(qNext.Item()-wantQ) > 1e-12 {
		t.Errorf("got q=%v p=%v, want q=%v p=%v", qNext.Item(), pNext.Item(), wantQ, wantP)
	}
}

func TestGradientFlowsThroughUnrolledSteps(t *testing.T) {
	h := hamiltonian.NewNetwork(2, 6, rand.New(rand.NewSource(9)))
	params := h.Params()
	integ := mustNew(t, Euler, 0.1)

	rollout := func() *autograd.Tensor {
		q := autograd.New(1, 2, []float64{0.3, -0.2})
		p := autograd.New(1, 2, []float64{0.1, 0.4})
		for i := 0; i < 4; i++ {
			var err error
			q, p, err = integ.Step(q, p, h)
			if err != nil {
				t.Fatal(err)
			}
		}
		return autograd.Sum(autograd.Add(q, p))
	}

	loss := rollout()
	for _, param := range params {
		param.ZeroGrad()
	}
	if err := autograd.Backward(loss, params); err != nil {
		t.Fatal(err)
	}

	// second-order check on the first weight against central differences
	w := params[0]
	const eps = 1e-6
	for idx := 0; idx < w.Len(); idx += 3 {
		orig := w.Data()[idx]
		w.Data()[idx] = orig + eps
		plus := rollout().Item()
		w.Data()[idx] = orig - eps
		minus := rollout().Item()
		w.Data()[idx] = orig

		numeric := (plus - minus) / (2 * eps)
		analytic := w.Grad().Data()[idx]
		if math.Abs(numeric-analytic) > 1e-5 {
			t.Errorf("weight %d: analytic %e, numeric %e", idx, analytic, numeric)
		}
	}
}
