// Package sim manages the lifecycle of one simulation world: connecting a
// physics backend, loading models into it, and advancing it step by step.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"quadsim/internal/physics"
	"quadsim/internal/urdf"
)

// DefaultEngine names the backend used when a config does not pick one.
// The backend must have been linked into the binary for the registry to
// resolve it.
const DefaultEngine = "lite"

// DefaultGravity is the conventional world gravity, straight down at
// 10 m/s^2. Worlds start weightless; callers opt in via SetGravity.
var DefaultGravity = r3.Vec{Z: -10}

// ErrNotConnected is returned by every operation on a session that was
// closed or never connected.
var ErrNotConnected = errors.New("simulation session not connected")

// Config selects and parameterizes the backend for one session.
type Config struct {
	// Engine is a registry name. Empty selects DefaultEngine.
	Engine string
	// Mode is "direct" or "gui". Empty selects direct.
	Mode string
	// TimeStep is the fixed integration step in seconds. Zero selects
	// physics.DefaultTimeStep.
	TimeStep float64
	// Gravity is the initial world gravity. The zero value means
	// weightless, matching a freshly connected backend.
	Gravity r3.Vec
	// Logger receives session lifecycle events. Nil disables logging.
	Logger *zap.Logger
}

// Session is a live connection to a physics backend. All methods are safe
// for concurrent use, though the drive loop owns a session in practice.
type Session struct {
	mu         sync.Mutex
	logger     *zap.Logger
	engine     physics.Engine
	engineName string
	mode       physics.Mode
	timeStep   float64
	connected  bool
	steps      int64
}

// Connect resolves the configured backend and starts an empty world.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	mode, err := physics.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if cfg.TimeStep < 0 {
		return nil, fmt.Errorf("time step must be positive, got %g", cfg.TimeStep)
	}
	if cfg.TimeStep == 0 {
		cfg.TimeStep = physics.DefaultTimeStep
	}

	engine, err := physics.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	params := physics.Params{
		Mode:     mode,
		TimeStep: cfg.TimeStep,
		Gravity:  cfg.Gravity,
	}
	if err := engine.Start(ctx, params); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", cfg.Engine, err)
	}

	s := &Session{
		logger:     cfg.Logger,
		engine:     engine,
		engineName: cfg.Engine,
		mode:       mode,
		timeStep:   cfg.TimeStep,
		connected:  true,
	}
	s.logger.Info("simulation connected",
		zap.String("engine", cfg.Engine),
		zap.String("mode", string(mode)),
		zap.Float64("time_step", cfg.TimeStep))
	return s, nil
}

// Engine returns the registry name of the connected backend.
func (s *Session) Engine() string { return s.engineName }

// Mode returns the presentation mode the session connected with.
func (s *Session) Mode() physics.Mode { return s.mode }

// TimeStep returns the fixed integration step in seconds.
func (s *Session) TimeStep() float64 { return s.timeStep }

// Connected reports whether the session can still serve operations.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetGravity replaces the world gravity vector.
func (s *Session) SetGravity(g r3.Vec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.engine.SetGravity(g); err != nil {
		return err
	}
	s.logger.Debug("gravity set",
		zap.Float64("gx", g.X), zap.Float64("gy", g.Y), zap.Float64("gz", g.Z))
	return nil
}

// LoadModel resolves a model reference, parses it and places it in the
// world.
func (s *Session) LoadModel(ctx context.Context, ref string, opts physics.LoadOptions) (physics.BodyID, error) {
	return s.loadModel(ctx, ref, opts)
}

// LoadStaticModel loads a scene model pinned in place, such as the ground
// plane.
func (s *Session) LoadStaticModel(ctx context.Context, ref string) (physics.BodyID, error) {
	return s.loadModel(ctx, ref, physics.LoadOptions{UseFixedBase: true})
}

func (s *Session) loadModel(ctx context.Context, ref string, opts physics.LoadOptions) (physics.BodyID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrNotConnected
	}
	model, err := urdf.Open(ref)
	if err != nil {
		return 0, fmt.Errorf("load model %s: %w", ref, err)
	}
	id, err := s.engine.LoadModel(ctx, model, opts)
	if err != nil {
		return 0, fmt.Errorf("load model %s: %w", ref, err)
	}
	s.logger.Info("model loaded",
		zap.String("model", model.Name),
		zap.String("ref", ref),
		zap.Int("links", len(model.Links)),
		zap.Int("joints", len(model.Joints)),
		zap.Int("body", int(id)))
	return id, nil
}

// Step advances the world by one fixed time step. This is the single
// synchronization point with the backend: servo targets armed since the
// previous call take effect here.
func (s *Session) Step(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.engine.StepSimulation(ctx); err != nil {
		return err
	}
	s.steps++
	return nil
}

// StepCount returns the number of completed steps since Connect.
func (s *Session) StepCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// SimTime returns the simulated seconds advanced so far.
func (s *Session) SimTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.steps) * s.timeStep
}

func (s *Session) BasePositionAndOrientation(id physics.BodyID) (r3.Vec, quat.Number, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return r3.Vec{}, quat.Number{}, ErrNotConnected
	}
	return s.engine.BasePositionAndOrientation(id)
}

func (s *Session) BaseVelocity(id physics.BodyID) (linear, angular r3.Vec, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return r3.Vec{}, r3.Vec{}, ErrNotConnected
	}
	return s.engine.BaseVelocity(id)
}

func (s *Session) ResetBasePose(id physics.BodyID, pos r3.Vec, orn quat.Number) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	return s.engine.ResetBasePose(id, pos, orn)
}

func (s *Session) NumJoints(id physics.BodyID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrNotConnected
	}
	return s.engine.NumJoints(id)
}

func (s *Session) JointInfo(id physics.BodyID, joint int) (physics.JointInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return physics.JointInfo{}, ErrNotConnected
	}
	return s.engine.JointInfo(id, joint)
}

func (s *Session) JointState(id physics.BodyID, joint int) (physics.JointState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return physics.JointState{}, ErrNotConnected
	}
	return s.engine.JointState(id, joint)
}

func (s *Session) SetJointPositionTarget(id physics.BodyID, joint int, target, maxForce float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	return s.engine.SetJointPositionTarget(id, joint, target, maxForce)
}

func (s *Session) ResetJointState(id physics.BodyID, joint int, position, velocity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	return s.engine.ResetJointState(id, joint, position, velocity)
}

// Close stops the backend and releases the session. Closing a closed
// session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	if err := s.engine.Stop(ctx); err != nil {
		return fmt.Errorf("stop engine %s: %w", s.engineName, err)
	}
	s.logger.Info("simulation closed",
		zap.String("engine", s.engineName),
		zap.Int64("steps", s.steps))
	return nil
}
