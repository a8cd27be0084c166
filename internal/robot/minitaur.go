// Package robot exposes the Minitaur quadruped as a typed proxy over a
// simulation session: named motors, direction-corrected readings and
// position-servo commands.
package robot

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"quadsim/internal/physics"
	"quadsim/internal/urdf"
)

// MotorCount is the number of actuated leg motors. The whole package is
// built around this layout; models exposing any other count are rejected.
const MotorCount = 8

// ObservationDimension is the length of the observation vector: angle,
// velocity and torque per motor, then the base orientation quaternion.
const ObservationDimension = 3*MotorCount + 4

const (
	// DefaultMotorForce is the servo force cap in newton metres.
	DefaultMotorForce = 3.5
	// DefaultStandingHeight is the chassis rest height in metres.
	DefaultStandingHeight = 0.2
)

// motorJointNames is the canonical motor order. Readings and commands are
// indexed in this order regardless of joint order in the model file.
var motorJointNames = [MotorCount]string{
	"motor_front_leftL_joint",
	"motor_front_leftR_joint",
	"motor_back_leftL_joint",
	"motor_back_leftR_joint",
	"motor_front_rightL_joint",
	"motor_front_rightR_joint",
	"motor_back_rightL_joint",
	"motor_back_rightR_joint",
}

// motorDirections maps motor space to joint space. Left-side rotors are
// mounted mirrored, so their joint angles run opposite to motor commands.
var motorDirections = [MotorCount]float64{-1, -1, -1, -1, 1, 1, 1, 1}

var (
	// ErrMotorLayout is returned when a model does not expose the eight
	// expected motor joints.
	ErrMotorLayout = errors.New("model does not match the eight-motor layout")
	// ErrActionSize is returned when an action does not carry one command
	// per motor.
	ErrActionSize = errors.New("action length does not match motor count")
)

// World is the slice of the simulation session the proxy drives.
type World interface {
	LoadModel(ctx context.Context, ref string, opts physics.LoadOptions) (physics.BodyID, error)
	BasePositionAndOrientation(id physics.BodyID) (r3.Vec, quat.Number, error)
	BaseVelocity(id physics.BodyID) (linear, angular r3.Vec, err error)
	ResetBasePose(id physics.BodyID, pos r3.Vec, orn quat.Number) error
	NumJoints(id physics.BodyID) (int, error)
	JointInfo(id physics.BodyID, joint int) (physics.JointInfo, error)
	JointState(id physics.BodyID, joint int) (physics.JointState, error)
	SetJointPositionTarget(id physics.BodyID, joint int, target, maxForce float64) error
	ResetJointState(id physics.BodyID, joint int, position, velocity float64) error
}

// Config parameterizes the loaded robot. Zero values select the defaults.
type Config struct {
	ModelRef       string
	MotorForce     float64
	StandingHeight float64
}

// Minitaur proxies one loaded quadruped.
type Minitaur struct {
	world          World
	body           physics.BodyID
	modelRef       string
	motorForce     float64
	standingHeight float64
	motorIDs       [MotorCount]int
	motorInfo      [MotorCount]physics.JointInfo
}

// New loads the robot model into the world and resolves its motors by
// name. A model missing any canonical motor joint is rejected.
func New(ctx context.Context, world World, cfg Config) (*Minitaur, error) {
	if world == nil {
		return nil, errors.New("world is required")
	}
	if cfg.ModelRef == "" {
		cfg.ModelRef = urdf.BuiltinMinitaur
	}
	if cfg.MotorForce <= 0 {
		cfg.MotorForce = DefaultMotorForce
	}
	if cfg.StandingHeight <= 0 {
		cfg.StandingHeight = DefaultStandingHeight
	}

	id, err := world.LoadModel(ctx, cfg.ModelRef, physics.LoadOptions{
		BasePosition:    r3.Vec{Z: cfg.StandingHeight},
		BaseOrientation: physics.IdentityQuat(),
		GroundClearance: cfg.StandingHeight,
	})
	if err != nil {
		return nil, err
	}

	m := &Minitaur{
		world:          world,
		body:           id,
		modelRef:       cfg.ModelRef,
		motorForce:     cfg.MotorForce,
		standingHeight: cfg.StandingHeight,
	}
	if err := m.resolveMotors(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Minitaur) resolveMotors() error {
	n, err := m.world.NumJoints(m.body)
	if err != nil {
		return err
	}
	byName := make(map[string]physics.JointInfo, n)
	for i := 0; i < n; i++ {
		info, err := m.world.JointInfo(m.body, i)
		if err != nil {
			return err
		}
		byName[info.Name] = info
	}
	for i, name := range motorJointNames {
		info, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: missing joint %s", ErrMotorLayout, name)
		}
		if !info.Type.Actuated() {
			return fmt.Errorf("%w: joint %s is not actuated", ErrMotorLayout, name)
		}
		m.motorIDs[i] = info.Index
		m.motorInfo[i] = info
	}
	return nil
}

// MotorNames returns the canonical motor joint names in motor order.
func MotorNames() []string {
	return append([]string(nil), motorJointNames[:]...)
}

// Body returns the backend handle of the loaded robot.
func (m *Minitaur) Body() physics.BodyID { return m.body }

// ModelRef returns the reference the robot was loaded from.
func (m *Minitaur) ModelRef() string { return m.modelRef }

// MotorForce returns the servo force cap applied to every command.
func (m *Minitaur) MotorForce() float64 { return m.motorForce }

// BasePosition returns the chassis position in world coordinates.
func (m *Minitaur) BasePosition() (r3.Vec, error) {
	pos, _, err := m.world.BasePositionAndOrientation(m.body)
	return pos, err
}

// BaseOrientation returns the chassis orientation quaternion.
func (m *Minitaur) BaseOrientation() (quat.Number, error) {
	_, orn, err := m.world.BasePositionAndOrientation(m.body)
	return orn, err
}

// BasePositionAndOrientation returns both chassis pose components with a
// single backend query.
func (m *Minitaur) BasePositionAndOrientation() (r3.Vec, quat.Number, error) {
	return m.world.BasePositionAndOrientation(m.body)
}

// MotorAngles returns the eight motor angles in canonical order, mapped
// into motor space.
func (m *Minitaur) MotorAngles() ([]float64, error) {
	return m.readMotors(func(st physics.JointState) float64 { return st.Position })
}

// MotorVelocities returns the eight motor angular velocities in canonical
// order, mapped into motor space.
func (m *Minitaur) MotorVelocities() ([]float64, error) {
	return m.readMotors(func(st physics.JointState) float64 { return st.Velocity })
}

// MotorTorques returns the torque last applied by each motor servo, in
// canonical order and motor space.
func (m *Minitaur) MotorTorques() ([]float64, error) {
	return m.readMotors(func(st physics.JointState) float64 { return st.AppliedTorque })
}

func (m *Minitaur) readMotors(pick func(physics.JointState) float64) ([]float64, error) {
	out := make([]float64, MotorCount)
	for i, joint := range m.motorIDs {
		st, err := m.world.JointState(m.body, joint)
		if err != nil {
			return nil, fmt.Errorf("motor %s: %w", motorJointNames[i], err)
		}
		out[i] = motorDirections[i] * pick(st)
	}
	return out, nil
}

// Observation returns the full observation vector: motor angles, motor
// velocities, motor torques, then the base orientation quaternion in
// x, y, z, w order.
func (m *Minitaur) Observation() ([]float64, error) {
	obs := make([]float64, 0, ObservationDimension)

	angles, err := m.MotorAngles()
	if err != nil {
		return nil, err
	}
	obs = append(obs, angles...)

	velocities, err := m.MotorVelocities()
	if err != nil {
		return nil, err
	}
	obs = append(obs, velocities...)

	torques, err := m.MotorTorques()
	if err != nil {
		return nil, err
	}
	obs = append(obs, torques...)

	_, orn, err := m.world.BasePositionAndOrientation(m.body)
	if err != nil {
		return nil, err
	}
	obs = append(obs, orn.Imag, orn.Jmag, orn.Kmag, orn.Real)
	return obs, nil
}

// ApplyAction arms one position target per motor. Commands are given in
// motor space; the proxy maps each through its direction multiplier and
// clamps the joint-space target to the joint limits before handing it to
// the backend.
func (m *Minitaur) ApplyAction(commands []float64) error {
	if len(commands) != MotorCount {
		return fmt.Errorf("%w: got %d, want %d", ErrActionSize, len(commands), MotorCount)
	}
	for i, cmd := range commands {
		info := m.motorInfo[i]
		target := motorDirections[i] * cmd
		if info.Limited {
			target = clamp(target, info.Lower, info.Upper)
		}
		if err := m.world.SetJointPositionTarget(m.body, m.motorIDs[i], target, m.motorForce); err != nil {
			return fmt.Errorf("motor %s: %w", info.Name, err)
		}
	}
	return nil
}

// Reset returns the robot to its standing pose and zeroes every joint.
func (m *Minitaur) Reset() error {
	err := m.world.ResetBasePose(m.body, r3.Vec{Z: m.standingHeight}, physics.IdentityQuat())
	if err != nil {
		return err
	}
	n, err := m.world.NumJoints(m.body)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := m.world.ResetJointState(m.body, i, 0, 0); err != nil {
			return err
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
