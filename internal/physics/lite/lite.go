// Package lite provides a pure Go rigid-body backend sufficient for
// servo-driven gait experiments. Joints are position servos integrated
// against unit rotor inertia, the base is a point mass falling under
// gravity onto a flat ground plane. Link-to-link contact and reaction
// coupling between joints and base are not modelled.
package lite

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"quadsim/internal/physics"
	"quadsim/internal/urdf"
)

// Name is the registry name of this backend.
const Name = "lite"

const (
	// Servo gains for unit rotor inertia. servoKd is the critical damping
	// for servoKp, so tracking does not overshoot.
	servoKp = 16.0
	servoKd = 8.0

	// contactFriction is the fraction of lateral base velocity removed per
	// step while the base rests on the ground.
	contactFriction = 0.05
)

func init() {
	if err := physics.Register(Name, func() physics.Engine { return New() }); err != nil {
		panic(err)
	}
}

// Engine is the lite backend. The zero value is not usable; call New.
type Engine struct {
	mu      sync.Mutex
	started bool
	params  physics.Params
	gravity r3.Vec
	simTime float64
	nextID  physics.BodyID
	bodies  map[physics.BodyID]*rigidBody
}

type rigidBody struct {
	name            string
	mass            float64
	fixed           bool
	groundClearance float64
	position        r3.Vec
	orientation     quat.Number
	linearVel       r3.Vec
	angularVel      r3.Vec
	joints          []*servoJoint
}

type servoJoint struct {
	info     physics.JointInfo
	position float64
	velocity float64
	torque   float64
	servoOn  bool
	target   float64
	maxForce float64
}

// New returns a stopped engine.
func New() *Engine {
	return &Engine{bodies: make(map[physics.BodyID]*rigidBody)}
}

func (e *Engine) Name() string { return Name }

// Start initializes an empty world. A zero TimeStep falls back to
// physics.DefaultTimeStep; lite has no renderer, so both modes behave
// alike.
func (e *Engine) Start(ctx context.Context, p physics.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return physics.ErrAlreadyStarted
	}
	if p.TimeStep <= 0 {
		p.TimeStep = physics.DefaultTimeStep
	}
	if p.Mode == "" {
		p.Mode = physics.ModeDirect
	}
	e.params = p
	e.gravity = p.Gravity
	e.simTime = 0
	e.nextID = 0
	e.bodies = make(map[physics.BodyID]*rigidBody)
	e.started = true
	return nil
}

// Stop discards the world. Stopping a stopped engine is a no-op.
func (e *Engine) Stop(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	e.bodies = make(map[physics.BodyID]*rigidBody)
	return nil
}

func (e *Engine) SetGravity(g r3.Vec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return physics.ErrNotStarted
	}
	e.gravity = g
	return nil
}

// LoadModel places a parsed model into the world. Joint indices follow the
// model's document order.
func (e *Engine) LoadModel(ctx context.Context, m *urdf.Model, opts physics.LoadOptions) (physics.BodyID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m == nil {
		return 0, errors.New("model is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return 0, physics.ErrNotStarted
	}

	mass := m.TotalMass()
	b := &rigidBody{
		name:            m.Name,
		mass:            mass,
		fixed:           opts.UseFixedBase || mass == 0,
		groundClearance: opts.GroundClearance,
		position:        opts.BasePosition,
		orientation:     physics.NormalizeQuat(opts.BaseOrientation),
	}
	for i, j := range m.Joints {
		b.joints = append(b.joints, &servoJoint{
			info: physics.JointInfo{
				Index:       i,
				Name:        j.Name,
				Type:        j.Type,
				Lower:       j.Limit.Lower,
				Upper:       j.Limit.Upper,
				Limited:     j.Limit.Limited,
				MaxForce:    j.Limit.Effort,
				MaxVelocity: j.Limit.Velocity,
				Axis:        j.Axis,
			},
		})
	}

	id := e.nextID
	e.nextID++
	e.bodies[id] = b
	return id, nil
}

// StepSimulation advances every body by one time step. Bodies do not
// interact, so integration order is immaterial.
func (e *Engine) StepSimulation(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return physics.ErrNotStarted
	}

	dt := e.params.TimeStep
	for _, b := range e.bodies {
		for _, j := range b.joints {
			j.integrate(dt)
		}
		if !b.fixed {
			b.integrate(dt, e.gravity)
		}
	}
	e.simTime += dt
	return nil
}

// SimTime returns the accumulated simulated seconds since Start.
func (e *Engine) SimTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simTime
}

func (e *Engine) BasePositionAndOrientation(id physics.BodyID) (r3.Vec, quat.Number, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookupBody(id)
	if err != nil {
		return r3.Vec{}, quat.Number{}, err
	}
	return b.position, b.orientation, nil
}

func (e *Engine) BaseVelocity(id physics.BodyID) (linear, angular r3.Vec, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookupBody(id)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}
	return b.linearVel, b.angularVel, nil
}

// ResetBasePose teleports the base and zeroes its velocities.
func (e *Engine) ResetBasePose(id physics.BodyID, pos r3.Vec, orn quat.Number) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookupBody(id)
	if err != nil {
		return err
	}
	b.position = pos
	b.orientation = physics.NormalizeQuat(orn)
	b.linearVel = r3.Vec{}
	b.angularVel = r3.Vec{}
	return nil
}

func (e *Engine) NumJoints(id physics.BodyID) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookupBody(id)
	if err != nil {
		return 0, err
	}
	return len(b.joints), nil
}

func (e *Engine) JointInfo(id physics.BodyID, joint int) (physics.JointInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.lookupJoint(id, joint)
	if err != nil {
		return physics.JointInfo{}, err
	}
	return j.info, nil
}

func (e *Engine) JointState(id physics.BodyID, joint int) (physics.JointState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.lookupJoint(id, joint)
	if err != nil {
		return physics.JointState{}, err
	}
	return physics.JointState{
		Position:      j.position,
		Velocity:      j.velocity,
		AppliedTorque: j.torque,
	}, nil
}

// SetJointPositionTarget arms the joint servo. The target takes effect at
// the next StepSimulation and is clamped to the joint's position limits.
func (e *Engine) SetJointPositionTarget(id physics.BodyID, joint int, target, maxForce float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.lookupJoint(id, joint)
	if err != nil {
		return err
	}
	if !j.info.Type.Actuated() {
		return fmt.Errorf("joint %s is not actuated", j.info.Name)
	}
	if j.info.Limited {
		target = clamp(target, j.info.Lower, j.info.Upper)
	}
	j.servoOn = true
	j.target = target
	j.maxForce = maxForce
	return nil
}

// ResetJointState overwrites the joint position and velocity without
// integrating, leaving any armed servo target in place.
func (e *Engine) ResetJointState(id physics.BodyID, joint int, position, velocity float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, err := e.lookupJoint(id, joint)
	if err != nil {
		return err
	}
	if j.info.Limited {
		position = clamp(position, j.info.Lower, j.info.Upper)
	}
	j.position = position
	j.velocity = velocity
	j.torque = 0
	return nil
}

// lookupBody resolves a body handle. Callers hold e.mu.
func (e *Engine) lookupBody(id physics.BodyID) (*rigidBody, error) {
	if !e.started {
		return nil, physics.ErrNotStarted
	}
	b, ok := e.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", physics.ErrBodyNotFound, id)
	}
	return b, nil
}

func (e *Engine) lookupJoint(id physics.BodyID, idx int) (*servoJoint, error) {
	b, err := e.lookupBody(id)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(b.joints) {
		return nil, fmt.Errorf("%w: %d of %s", physics.ErrJointIndex, idx, b.name)
	}
	return b.joints[idx], nil
}

// integrate advances one joint. An armed servo applies a PD torque clamped
// to the weaker of the commanded force and the joint effort limit; a
// disarmed joint coasts at its current velocity.
func (j *servoJoint) integrate(dt float64) {
	if !j.servoOn {
		j.torque = 0
		if j.velocity != 0 {
			j.position += j.velocity * dt
			j.clampToLimits()
		}
		return
	}

	torque := servoKp*(j.target-j.position) - servoKd*j.velocity
	limit := j.maxForce
	if j.info.MaxForce > 0 && (limit <= 0 || limit > j.info.MaxForce) {
		limit = j.info.MaxForce
	}
	if limit > 0 {
		torque = clamp(torque, -limit, limit)
	}
	j.torque = torque
	j.velocity += torque * dt
	if j.info.MaxVelocity > 0 {
		j.velocity = clamp(j.velocity, -j.info.MaxVelocity, j.info.MaxVelocity)
	}
	j.position += j.velocity * dt
	j.clampToLimits()
}

func (j *servoJoint) clampToLimits() {
	if !j.info.Limited {
		return
	}
	if j.position <= j.info.Lower {
		j.position = j.info.Lower
		if j.velocity < 0 {
			j.velocity = 0
		}
	} else if j.position >= j.info.Upper {
		j.position = j.info.Upper
		if j.velocity > 0 {
			j.velocity = 0
		}
	}
}

// integrate advances the free base one step and resolves ground contact by
// clamping at the body's rest height.
func (b *rigidBody) integrate(dt float64, gravity r3.Vec) {
	b.linearVel = r3.Add(b.linearVel, r3.Scale(dt, gravity))
	b.position = r3.Add(b.position, r3.Scale(dt, b.linearVel))
	if b.position.Z <= b.groundClearance {
		b.position.Z = b.groundClearance
		if b.linearVel.Z < 0 {
			b.linearVel.Z = 0
		}
		b.linearVel.X *= 1 - contactFriction
		b.linearVel.Y *= 1 - contactFriction
	}
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
