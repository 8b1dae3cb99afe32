package hgn_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hgn/internal/autograd"
	"github.com/san-kum/hgn/internal/dynamo"
	"github.com/san-kum/hgn/internal/hamiltonian"
	"github.com/san-kum/hgn/internal/hgn"
	"github.com/san-kum/hgn/internal/integrators"
	"github.com/san-kum/hgn/internal/losses"
	"github.com/san-kum/hgn/internal/networks"
	"github.com/san-kum/hgn/internal/optim"
	"gorgonia.org/tensor"
)

type countingEncoder struct {
	networks.Encoder
	calls int
}

func (c *countingEncoder) Encode(x *autograd.Tensor) (networks.Latent, error) {
	c.calls++
	return c.Encoder.Encode(x)
}

type fixture struct {
	hp         hgn.HyperParameters
	components hgn.Components
	encoder    *countingEncoder
}

func newFixture(hp hgn.HyperParameters, lr float64) fixture {
	rng := rand.New(rand.NewSource(11))
	const latent, state, hidden = 4, 2, 16
	frame := hp.Channels * hp.Height * hp.Width

	enc := &countingEncoder{Encoder: networks.NewMLPEncoder(frame*hp.SeqLen, hidden, latent, rng, networks.ZeroNoise())}
	integ, err := integrators.New(hp.Method, hp.Dt)
	Expect(err).NotTo(HaveOccurred())

	c := hgn.Components{
		Encoder:     enc,
		Transformer: networks.NewLinearTransformer(latent, state, rng),
		Hamiltonian: hamiltonian.NewNetwork(state, hidden, rng),
		Decoder:     networks.NewMLPDecoder(state, hidden, frame, rng),
		Integrator:  integ,
		Loss:        losses.MSE{},
	}
	c.Optimizer = optim.NewSGD(hgn.Parameters(c), lr, 0)
	return fixture{hp: hp, components: c, encoder: enc}
}

func (f fixture) model() *hgn.Model {
	m, err := hgn.New(f.hp, f.components)
	Expect(err).NotTo(HaveOccurred())
	return m
}

func randomRollout(batch int, hp hgn.HyperParameters, seed int64) *tensor.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, batch*hp.Channels*hp.SeqLen*hp.Height*hp.Width)
	for i := range data {
		data[i] = rng.Float64()
	}
	return tensor.New(
		tensor.WithShape(batch, hp.Channels*hp.SeqLen, hp.Height, hp.Width),
		tensor.WithBacking(data),
	)
}

var _ = Describe("Model", func() {
	var hp hgn.HyperParameters

	BeforeEach(func() {
		hp = hgn.HyperParameters{
			ExperimentID: "test",
			Dt:           0.1,
			Method:       "euler",
			SeqLen:       10,
			Channels:     3,
			Height:       4,
			Width:        4,
		}
	})

	Describe("New", func() {
		It("reports the first missing component", func() {
			f := newFixture(hp, 1e-3)
			f.components.Decoder = nil
			_, err := hgn.New(hp, f.components)
			Expect(err).To(MatchError(dynamo.ErrMissingComponent))
			Expect(err.Error()).To(ContainSubstring("decoder"))
		})

		It("rejects an integrator that disagrees with the hyper-parameters", func() {
			f := newFixture(hp, 1e-3)
			hp.Method = "leapfrog"
			_, err := hgn.New(hp, f.components)
			Expect(err).To(HaveOccurred())
		})

		It("collects parameters from every network", func() {
			m := newFixture(hp, 1e-3).model()
			Expect(m.Parameters()).To(HaveLen(6 + 4 + 7 + 4))
		})
	})

	Describe("Forward", func() {
		It("produces seq_len+1 states for the default step count", func() {
			m := newFixture(hp, 1e-3).model()
			traj, err := m.Forward(randomRollout(2, hp, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Len()).To(Equal(11))
			Expect(traj.Reconstructions).To(HaveLen(11))

			for _, s := range traj.States {
				Expect(s.Q.Rows()).To(Equal(2))
				Expect(s.Q.Cols()).To(Equal(2))
				Expect(s.P.SameShape(s.Q)).To(BeTrue())
			}
			for _, r := range traj.Reconstructions {
				Expect(r.Rows()).To(Equal(2))
				Expect(r.Cols()).To(Equal(3 * 4 * 4))
			}
		})

		DescribeTable("produces k+1 states for k steps",
			func(method string, k int) {
				hp.Method = method
				m := newFixture(hp, 1e-3).model()
				traj, err := m.Forward(randomRollout(1, hp, 2), hgn.WithSteps(k))
				Expect(err).NotTo(HaveOccurred())
				Expect(traj.Len()).To(Equal(k + 1))
				Expect(traj.Reconstructions).To(HaveLen(k + 1))
			},
			Entry("euler, no steps", "euler", 0),
			Entry("euler", "euler", 3),
			Entry("leapfrog", "leapfrog", 5),
			Entry("rk4", "rk4", 2),
		)

		It("rejects a malformed rollout before encoding", func() {
			f := newFixture(hp, 1e-3)
			m := f.model()

			bad := []*tensor.Dense{
				tensor.New(tensor.WithShape(2, 29, 4, 4), tensor.WithBacking(make([]float64, 2*29*16))),
				tensor.New(tensor.WithShape(2, 30, 16), tensor.WithBacking(make([]float64, 2*30*16))),
				tensor.New(tensor.WithShape(2, 30, 4, 5), tensor.WithBacking(make([]float64, 2*30*20))),
				tensor.New(tensor.WithShape(1, 30, 4, 4), tensor.WithBacking(make([]float32, 30*16))),
				tensor.New(tensor.WithShape(0, 30, 4, 4), tensor.WithBacking([]float64{})),
				nil,
			}
			for _, r := range bad {
				_, err := m.Forward(r)
				Expect(err).To(MatchError(dynamo.ErrInvalidInputShape))
			}
			Expect(f.encoder.calls).To(BeZero())
		})

		It("rejects negative step counts", func() {
			m := newFixture(hp, 1e-3).model()
			_, err := m.Forward(randomRollout(1, hp, 3), hgn.WithSteps(-1))
			Expect(err).To(HaveOccurred())
		})

		It("leaves q0 and p0 at the transformer output", func() {
			f := newFixture(hp, 1e-3)
			m := f.model()
			rollout := randomRollout(1, hp, 4)

			traj, err := m.Forward(rollout, hgn.WithSteps(2))
			Expect(err).NotTo(HaveOccurred())

			flat := autograd.New(1, 3*10*16, rollout.Data().([]float64))
			latent, err := f.components.Encoder.Encode(flat)
			Expect(err).NotTo(HaveOccurred())
			q0, p0, err := f.components.Transformer.ToPhaseSpace(latent.Sample)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.States[0].Q.Data()).To(Equal(q0.Data()))
			Expect(traj.States[0].P.Data()).To(Equal(p0.Data()))
		})

		It("stays put under a zero Hamiltonian", func() {
			f := newFixture(hp, 1e-3)
			f.components.Hamiltonian = hamiltonian.Zero{}
			m := f.model()

			traj, err := m.Forward(randomRollout(2, hp, 5), hgn.WithSteps(4))
			Expect(err).NotTo(HaveOccurred())
			for _, s := range traj.States[1:] {
				Expect(s.Q.Data()).To(Equal(traj.States[0].Q.Data()))
				Expect(s.P.Data()).To(Equal(traj.States[0].P.Data()))
			}
		})
	})

	Describe("Trajectory", func() {
		It("splits the input and restacks the reconstructions in the same layout", func() {
			hp.SeqLen, hp.Channels, hp.Height, hp.Width = 3, 2, 2, 2
			m := newFixture(hp, 1e-3).model()
			rollout := randomRollout(2, hp, 6)

			traj, err := m.Forward(rollout, hgn.WithSteps(2))
			Expect(err).NotTo(HaveOccurred())

			frames := traj.InputFrames()
			Expect(frames).To(HaveLen(3))
			data := rollout.Data().([]float64)
			// batch 1, frame 2, first element
			Expect(frames[2].At(1, 0)).To(Equal(data[1*24+2*8]))

			out := traj.ReconstructedRollout()
			Expect([]int(out.Shape())).To(Equal([]int{2, 6, 2, 2}))
			outData := out.Data().([]float64)
			Expect(outData[1*24+2*8]).To(Equal(traj.Reconstructions[2].At(1, 0)))
		})
	})

	Describe("Fit", func() {
		It("reduces the reconstruction loss on a fixed batch", func() {
			m := newFixture(hp, 1e-2).model()
			rollout := randomRollout(2, hp, 7)

			before, traj, err := m.Fit(rollout)
			Expect(err).NotTo(HaveOccurred())
			Expect(traj.Len()).To(Equal(hp.SeqLen))

			after, _, err := m.Evaluate(rollout)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Reconstruction).To(BeNumerically("<", before.Reconstruction))
		})

		It("keeps improving over several iterations", func() {
			hp.SeqLen, hp.Channels = 4, 1
			m := newFixture(hp, 5e-2).model()
			rollout := randomRollout(2, hp, 8)

			first, _, err := m.Fit(rollout)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 20; i++ {
				_, _, err = m.Fit(rollout)
				Expect(err).NotTo(HaveOccurred())
			}
			last, _, err := m.Evaluate(rollout)
			Expect(err).NotTo(HaveOccurred())
			Expect(last.Reconstruction).To(BeNumerically("<", first.Reconstruction))
		})

		It("adds the weighted KL term to the total", func() {
			hp.KLWeight = 0.5
			m := newFixture(hp, 1e-3).model()

			l, _, err := m.Evaluate(randomRollout(1, hp, 9))
			Expect(err).NotTo(HaveOccurred())
			Expect(l.Total).To(BeNumerically("~", l.Reconstruction+0.5*l.KL, 1e-12))
		})

		It("propagates malformed input errors", func() {
			m := newFixture(hp, 1e-3).model()
			bad := tensor.New(tensor.WithShape(1, 3, 4, 4), tensor.WithBacking(make([]float64, 48)))
			_, _, err := m.Fit(bad)
			Expect(err).To(MatchError(dynamo.ErrInvalidInputShape))
		})
	})

	Describe("persistence", func() {
		It("is not implemented", func() {
			m := newFixture(hp, 1e-3).model()
			Expect(m.Save("weights")).To(MatchError(dynamo.ErrNotImplemented))
			Expect(m.Load("weights")).To(MatchError(dynamo.ErrNotImplemented))
		})
	})
})
