package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// UniformName is the registry name of the random sweep policy.
const UniformName = "uniform"

const (
	// sweepWidth is the width of the target band in radians.
	sweepWidth = math.Pi / 4
	// sweepOffset is the lower edge of the target band in radians.
	sweepOffset = 3 * math.Pi / 8
)

func init() {
	if err := Register(UniformName, newUniform); err != nil {
		panic(err)
	}
}

// sweepTarget maps a uniform draw in [0, 1) into the half-open target band
// [sweepOffset, sweepOffset+sweepWidth).
func sweepTarget(u float64) float64 {
	return sweepOffset + u*sweepWidth
}

// uniformPolicy draws every motor target independently and uniformly from
// the target band on each step.
type uniformPolicy struct {
	motors int
	rng    *rand.Rand
}

func newUniform(cfg Config) (Policy, error) {
	if cfg.Motors <= 0 {
		return nil, fmt.Errorf("uniform policy: motors must be positive, got %d", cfg.Motors)
	}
	if cfg.Rand == nil {
		return nil, errors.New("uniform policy: random source is required")
	}
	return &uniformPolicy{motors: cfg.Motors, rng: cfg.Rand}, nil
}

func (p *uniformPolicy) Name() string { return UniformName }

func (p *uniformPolicy) Action(_ int) []float64 {
	out := make([]float64, p.motors)
	for i := range out {
		out[i] = sweepTarget(p.rng.Float64())
	}
	return out
}
