package physics

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/san-kum/hgn/internal/dynamo"
)

// Point is a world-space position of a rendered object.
type Point struct {
	X, Y float64
}

// Environment is a ground-truth system that can be rendered.
type Environment interface {
	dynamo.System
	dynamo.Hamiltonian

	Name() string
	// Objects returns the positions of every visible body in state x.
	Objects(x dynamo.State) []Point
	// Extent is the half-width of the square world window that is rendered.
	Extent() float64
	SampleInitial(rng *rand.Rand) dynamo.State
}

// Configurable environments expose their physical constants by name.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

var registry = map[string]func() Environment{
	"pendulum": func() Environment { return NewPendulum() },
	"spring":   func() Environment { return NewSpringMass() },
	"two_body": func() Environment { return NewNBody(2) },
}

// Get returns a fresh environment with default constants.
func Get(name string) (Environment, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q (have %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the registered environments.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyParams sets every named constant on env.
func ApplyParams(env Environment, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	c, ok := env.(Configurable)
	if !ok {
		return fmt.Errorf("environment %s has no tunable parameters", env.Name())
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.SetParam(k, params[k]); err != nil {
			return fmt.Errorf("%s: %w", env.Name(), err)
		}
	}
	return nil
}
