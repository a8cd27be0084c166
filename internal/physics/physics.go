// Package physics defines the boundary between the simulation session and a
// rigid-body backend. Backends register themselves by name and are resolved
// at connect time; the session never talks to a concrete engine type.
package physics

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"quadsim/internal/urdf"
)

// DefaultTimeStep is the conventional fixed integration step of the backend,
// 1/240 s.
const DefaultTimeStep = 1.0 / 240.0

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrBodyNotFound   = errors.New("body not found")
	ErrJointIndex     = errors.New("joint index out of range")
)

// Mode selects how a backend presents the simulation. Rendering itself is
// out of scope here; backends without a renderer treat both modes alike.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeGUI    Mode = "gui"
)

// ParseMode maps a config string to a Mode. The empty string selects
// ModeDirect.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeDirect, nil
	case ModeDirect:
		return ModeDirect, nil
	case ModeGUI:
		return ModeGUI, nil
	default:
		return "", fmt.Errorf("unsupported simulation mode: %s", s)
	}
}

// BodyID is an opaque handle for a body loaded into an engine.
type BodyID int

// Params carries the session-level parameters an engine needs at start.
type Params struct {
	Mode     Mode
	TimeStep float64
	Gravity  r3.Vec
}

// LoadOptions positions a model when it enters the world.
type LoadOptions struct {
	BasePosition    r3.Vec
	BaseOrientation quat.Number
	// UseFixedBase pins the base in place. Bodies whose total mass is zero
	// are fixed regardless.
	UseFixedBase bool
	// GroundClearance is the rest height of the base when the body stands
	// on the ground plane. Backends with full contact resolution may
	// ignore it.
	GroundClearance float64
}

// JointInfo describes one joint of a loaded body. Limits come from the
// model description; a zero MaxVelocity or MaxForce means unlimited.
type JointInfo struct {
	Index       int
	Name        string
	Type        urdf.JointType
	Lower       float64
	Upper       float64
	Limited     bool
	MaxForce    float64
	MaxVelocity float64
	Axis        r3.Vec
}

// JointState is an instantaneous joint reading.
type JointState struct {
	Position      float64
	Velocity      float64
	AppliedTorque float64
}

// Engine is the contract a rigid-body backend fulfils. All state mutation
// besides explicit resets happens inside StepSimulation; position targets
// set between steps take effect at the next step.
type Engine interface {
	Name() string

	Start(ctx context.Context, p Params) error
	Stop(ctx context.Context) error

	SetGravity(g r3.Vec) error
	LoadModel(ctx context.Context, m *urdf.Model, opts LoadOptions) (BodyID, error)
	StepSimulation(ctx context.Context) error

	BasePositionAndOrientation(id BodyID) (r3.Vec, quat.Number, error)
	BaseVelocity(id BodyID) (linear, angular r3.Vec, err error)
	ResetBasePose(id BodyID, pos r3.Vec, orn quat.Number) error

	NumJoints(id BodyID) (int, error)
	JointInfo(id BodyID, joint int) (JointInfo, error)
	JointState(id BodyID, joint int) (JointState, error)
	SetJointPositionTarget(id BodyID, joint int, target, maxForce float64) error
	ResetJointState(id BodyID, joint int, position, velocity float64) error
}
