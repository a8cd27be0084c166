package policy

import (
	"fmt"
	"math"

	"quadsim/internal/physics"
)

// SineName is the registry name of the periodic trot policy.
const SineName = "sine"

// DefaultGaitFrequency is the sine policy's gait frequency in hertz when
// the config leaves it at zero.
const DefaultGaitFrequency = 1.5

func init() {
	if err := Register(SineName, newSine); err != nil {
		panic(err)
	}
}

// sinePolicy sweeps the motors through the target band on a shared sine
// wave. Diagonal legs swing together: front-left with back-right, and
// back-left with front-right, half a cycle apart.
type sinePolicy struct {
	motors    int
	timeStep  float64
	frequency float64
}

func newSine(cfg Config) (Policy, error) {
	if cfg.Motors <= 0 {
		return nil, fmt.Errorf("sine policy: motors must be positive, got %d", cfg.Motors)
	}
	if cfg.TimeStep <= 0 {
		cfg.TimeStep = physics.DefaultTimeStep
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = DefaultGaitFrequency
	}
	return &sinePolicy{
		motors:    cfg.Motors,
		timeStep:  cfg.TimeStep,
		frequency: cfg.Frequency,
	}, nil
}

func (p *sinePolicy) Name() string { return SineName }

func (p *sinePolicy) Action(step int) []float64 {
	const center = sweepOffset + sweepWidth/2
	const amplitude = sweepWidth / 2

	t := float64(step) * p.timeStep
	base := 2 * math.Pi * p.frequency * t

	out := make([]float64, p.motors)
	for i := range out {
		phase := base
		if diagonalPair(i) == 1 {
			phase += math.Pi
		}
		out[i] = center + amplitude*math.Sin(phase)
	}
	return out
}

// diagonalPair groups motors two per leg in canonical order and returns 0
// for the front-left/back-right diagonal and 1 for the other.
func diagonalPair(motor int) int {
	switch motor / 2 % 4 {
	case 0, 3: // front left, back right
		return 0
	default: // back left, front right
		return 1
	}
}
