package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/hgn/internal/config"
	"github.com/san-kum/hgn/internal/optim"
	"github.com/sirupsen/logrus"
)

// Tunable lists the configuration fields a sweep can vary.
var Tunable = map[string]func(c *config.Config, v float64){
	"learning_rate": func(c *config.Config, v float64) { c.Training.LearningRate = v },
	"dt":            func(c *config.Config, v float64) { c.Dt = v },
	"kl_weight":     func(c *config.Config, v float64) { c.Training.KLWeight = v },
	"hidden_dim":    func(c *config.Config, v float64) { c.Network.HiddenDim = int(v) },
	"latent_dim":    func(c *config.Config, v float64) { c.Network.LatentDim = int(v) },
}

// Override returns a copy of base with the named values applied.
func Override(base *config.Config, values map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range values {
		set, ok := Tunable[name]
		if !ok {
			return nil, fmt.Errorf("parameter %q cannot be swept", name)
		}
		set(cfg, v)
	}
	return cfg, nil
}

// Sweep trains one model per grid point and returns the point with the
// lowest final reconstruction loss.
func Sweep(ctx context.Context, base *config.Config, log logrus.FieldLogger, names []string, ranges [][]float64) (map[string]float64, float64, []optim.Trial, error) {
	for _, name := range names {
		if _, ok := Tunable[name]; !ok {
			return nil, 0, nil, fmt.Errorf("parameter %q cannot be swept", name)
		}
	}

	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return nil, 0, nil, err
	}
	log.WithField("trials", gs.Size()).Info("starting sweep")

	eval := func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg, err := Override(base, params)
		if err != nil {
			return 0, err
		}
		trialLog := log.WithFields(logrus.Fields(toFields(params)))

		exp, err := New(cfg, trialLog)
		if err != nil {
			return 0, err
		}
		res, err := exp.Run(ctx)
		if err != nil {
			return 0, err
		}
		return res.Final.Reconstruction, nil
	}

	return gs.Search(ctx, eval)
}

func toFields(params map[string]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
