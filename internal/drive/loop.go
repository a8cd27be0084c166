// Package drive runs the control loop: advance the simulation one step,
// sample an action, hand it to the robot, and report state, paced to the
// simulation rate.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"quadsim/internal/model"
	"quadsim/internal/policy"
)

const (
	// DefaultSteps is the canonical run length.
	DefaultSteps = 10000
	// DefaultPaceHz matches the pace to simulated time at the conventional
	// 240 steps per second.
	DefaultPaceHz = 240
)

// Stepper is the slice of the simulation session the loop drives.
type Stepper interface {
	Step(ctx context.Context) error
	TimeStep() float64
}

// Walker is the slice of the robot proxy the loop drives.
type Walker interface {
	ApplyAction(commands []float64) error
	Observation() ([]float64, error)
	BasePositionAndOrientation() (r3.Vec, quat.Number, error)
	MotorAngles() ([]float64, error)
}

// StepSink receives one record per completed step. The loop builds fresh
// slices for every record, so sinks may retain them.
type StepSink interface {
	WriteStep(rec model.StepRecord) error
}

// Config assembles a loop. Zero values select the defaults noted on each
// field.
type Config struct {
	Session Stepper
	Robot   Walker
	Policy  policy.Policy
	// Steps is the number of iterations. Zero selects DefaultSteps.
	Steps int
	// Output receives the state lines. Nil selects os.Stdout.
	Output io.Writer
	// Recorder, when set, receives one StepRecord per iteration.
	Recorder StepSink
	// Logger receives lifecycle events. Nil disables logging.
	Logger *zap.Logger
	// PaceHz is the wall-clock pacing rate. Zero selects DefaultPaceHz.
	PaceHz float64
	// DisablePacing runs the loop as fast as the backend allows.
	DisablePacing bool
}

// Loop drives one robot through one run.
type Loop struct {
	session       Stepper
	robot         Walker
	policy        policy.Policy
	steps         int
	output        io.Writer
	recorder      StepSink
	logger        *zap.Logger
	paceHz        float64
	disablePacing bool
}

// Result reports a finished or aborted run.
type Result struct {
	StepsCompleted    int
	Elapsed           time.Duration
	FinalBasePosition r3.Vec
}

// New validates the config and builds a loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if cfg.Robot == nil {
		return nil, fmt.Errorf("robot is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if cfg.Steps < 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", cfg.Steps)
	}
	if cfg.Steps == 0 {
		cfg.Steps = DefaultSteps
	}
	if cfg.PaceHz < 0 {
		return nil, fmt.Errorf("pace must be positive, got %g", cfg.PaceHz)
	}
	if cfg.PaceHz == 0 {
		cfg.PaceHz = DefaultPaceHz
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Loop{
		session:       cfg.Session,
		robot:         cfg.Robot,
		policy:        cfg.Policy,
		steps:         cfg.Steps,
		output:        cfg.Output,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		paceHz:        cfg.PaceHz,
		disablePacing: cfg.DisablePacing,
	}, nil
}

// Run drives the loop to completion. Each iteration steps the simulation,
// samples and applies an action, then reports base position and motor
// angles; the full observation vector is reported once, after the first
// step. Any error aborts the run immediately with the count of completed
// steps in the result.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	var limiter *rate.Limiter
	if !l.disablePacing {
		limiter = rate.NewLimiter(rate.Limit(l.paceHz), 1)
	}

	l.logger.Info("drive loop starting",
		zap.Int("steps", l.steps),
		zap.String("policy", l.policy.Name()),
		zap.Float64("pace_hz", l.paceHz),
		zap.Bool("pacing", !l.disablePacing))

	var lastPos r3.Vec
	for i := 0; i < l.steps; i++ {
		if err := ctx.Err(); err != nil {
			return l.result(i, start, lastPos), err
		}

		if err := l.session.Step(ctx); err != nil {
			return l.result(i, start, lastPos), fmt.Errorf("step %d: %w", i, err)
		}

		if i == 0 {
			obs, err := l.robot.Observation()
			if err != nil {
				return l.result(i, start, lastPos), fmt.Errorf("step %d: observation: %w", i, err)
			}
			if err := l.printLine("observation: " + formatVector(obs)); err != nil {
				return l.result(i, start, lastPos), err
			}
		}

		action := l.policy.Action(i)
		if err := l.robot.ApplyAction(action); err != nil {
			return l.result(i, start, lastPos), fmt.Errorf("step %d: apply action: %w", i, err)
		}

		pos, orn, err := l.robot.BasePositionAndOrientation()
		if err != nil {
			return l.result(i, start, lastPos), fmt.Errorf("step %d: base pose: %w", i, err)
		}
		angles, err := l.robot.MotorAngles()
		if err != nil {
			return l.result(i, start, lastPos), fmt.Errorf("step %d: motor angles: %w", i, err)
		}
		rec := model.StepRecord{
			Index:           i,
			SimTime:         float64(i+1) * l.session.TimeStep(),
			BasePosition:    [3]float64{pos.X, pos.Y, pos.Z},
			BaseOrientation: [4]float64{orn.Imag, orn.Jmag, orn.Kmag, orn.Real},
			MotorAngles:     angles,
			Action:          action,
		}
		if err := WriteStateLines(l.output, rec); err != nil {
			return l.result(i, start, lastPos), err
		}
		lastPos = pos

		if l.recorder != nil {
			if err := l.recorder.WriteStep(rec); err != nil {
				return l.result(i, start, lastPos), fmt.Errorf("record step %d: %w", i, err)
			}
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return l.result(i+1, start, lastPos), err
			}
		}
	}

	res := l.result(l.steps, start, lastPos)
	l.logger.Info("drive loop finished",
		zap.Int("steps", res.StepsCompleted),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("final_x", res.FinalBasePosition.X),
		zap.Float64("final_y", res.FinalBasePosition.Y),
		zap.Float64("final_z", res.FinalBasePosition.Z))
	return res, nil
}

func (l *Loop) result(steps int, start time.Time, pos r3.Vec) Result {
	return Result{
		StepsCompleted:    steps,
		Elapsed:           time.Since(start),
		FinalBasePosition: pos,
	}
}

func (l *Loop) printLine(line string) error {
	_, err := fmt.Fprintln(l.output, line)
	return err
}

// WriteStateLines emits the per-step state lines for one record: the
// base position followed by the motor angles. Replays use the same
// format as the live loop.
func WriteStateLines(w io.Writer, rec model.StepRecord) error {
	if _, err := fmt.Fprintln(w, "base position: "+formatVector(rec.BasePosition[:])); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "motor angles: "+formatVector(rec.MotorAngles))
	return err
}

func formatVector(values []float64) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
	return b.String()
}
