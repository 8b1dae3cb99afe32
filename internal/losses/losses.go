// Package losses holds the reconstruction and regularisation terms used to
// train the model.
package losses

import (
	"fmt"
	"sort"

	"github.com/san-kum/hgn/internal/autograd"
)

// Reconstruction scores reconstructed frames against the observed ones.
// Both slices are in time order; each element is [batch, channels*H*W].
type Reconstruction interface {
	Name() string
	Loss(observed, reconstructed []*autograd.Tensor) (*autograd.Tensor, error)
}

var registry = map[string]func() Reconstruction{
	"mse": func() Reconstruction { return MSE{} },
	"bce": func() Reconstruction { return BCE{Epsilon: 1e-7} },
}

// Get returns a reconstruction loss by name.
func Get(name string) (Reconstruction, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown loss: %s (available: %v)", name, Names())
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkFrames(observed, reconstructed []*autograd.Tensor) error {
	if len(observed) == 0 {
		return fmt.Errorf("no frames to compare")
	}
	if len(observed) != len(reconstructed) {
		return fmt.Errorf("frame count mismatch: %d observed, %d reconstructed", len(observed), len(reconstructed))
	}
	for i := range observed {
		if !observed[i].SameShape(reconstructed[i]) {
			return fmt.Errorf("frame %d: observed %dx%d, reconstructed %dx%d", i,
				observed[i].Rows(), observed[i].Cols(), reconstructed[i].Rows(), reconstructed[i].Cols())
		}
	}
	return nil
}

// MSE is the mean squared pixel error averaged over time steps.
type MSE struct{}

func (MSE) Name() string { return "mse" }

func (MSE) Loss(observed, reconstructed []*autograd.Tensor) (*autograd.Tensor, error) {
	if err := checkFrames(observed, reconstructed); err != nil {
		return nil, err
	}
	var total *autograd.Tensor
	for i := range observed {
		diff := autograd.Sub(reconstructed[i], observed[i])
		term := autograd.Mean(autograd.Mul(diff, diff))
		if total == nil {
			total = term
		} else {
			total = autograd.Add(total, term)
		}
	}
	return autograd.Scale(total, 1/float64(len(observed))), nil
}

// BCE is pixel-wise binary cross entropy averaged over time steps. Targets
// must lie in [0, 1].
type BCE struct {
	Epsilon float64
}

func (BCE) Name() string { return "bce" }

func (b BCE) Loss(observed, reconstructed []*autograd.Tensor) (*autograd.Tensor, error) {
	if err := checkFrames(observed, reconstructed); err != nil {
		return nil, err
	}
	var total *autograd.Tensor
	for i := range observed {
		x, y := reconstructed[i], observed[i]
		logX := autograd.Log(autograd.AddScalar(x, b.Epsilon))
		log1mX := autograd.Log(autograd.AddScalar(autograd.Neg(x), 1+b.Epsilon))
		oneMinusY := autograd.AddScalar(autograd.Neg(y), 1)
		term := autograd.Neg(autograd.Mean(autograd.Add(autograd.Mul(y, logX), autograd.Mul(oneMinusY, log1mX))))
		if total == nil {
			total = term
		} else {
			total = autograd.Add(total, term)
		}
	}
	return autograd.Scale(total, 1/float64(len(observed))), nil
}

// KLDivergence is KL(N(mean, std²) || N(0, 1)) summed over latent features
// and averaged over the batch.
func KLDivergence(mean, std *autograd.Tensor) (*autograd.Tensor, error) {
	if !mean.SameShape(std) {
		return nil, fmt.Errorf("mean %dx%d and std %dx%d differ", mean.Rows(), mean.Cols(), std.Rows(), std.Cols())
	}
	if mean.Rows() == 0 {
		return autograd.Scalar(0), nil
	}
	// 0.5 * (mean² + std² - 1 - log std²)
	terms := autograd.Sub(
		autograd.AddScalar(autograd.Add(autograd.Mul(mean, mean), autograd.Mul(std, std)), -1),
		autograd.Scale(autograd.Log(std), 2),
	)
	return autograd.Scale(autograd.Sum(terms), 0.5/float64(mean.Rows())), nil
}
