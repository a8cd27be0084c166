package lite

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"quadsim/internal/physics"
	"quadsim/internal/urdf"
)

// rigDoc is a three-joint test body: a torque-limited servo hinge, a
// velocity-limited continuous spinner, and a fixed mount.
const rigDoc = `
<robot name="rig">
  <link name="base">
    <inertial><mass value="1"/></inertial>
  </link>
  <link name="a"/>
  <link name="b"/>
  <link name="c"/>
  <joint name="hinge" type="revolute">
    <parent link="base"/>
    <child link="a"/>
    <limit lower="-3.1416" upper="3.1416" effort="10" velocity="100"/>
  </joint>
  <joint name="spinner" type="continuous">
    <parent link="a"/>
    <child link="b"/>
    <limit effort="1000" velocity="0.5"/>
  </joint>
  <joint name="mount" type="fixed">
    <parent link="b"/>
    <child link="c"/>
  </joint>
</robot>`

// gateDoc has one narrowly limited joint for position clamp coverage.
const gateDoc = `
<robot name="gate">
  <link name="base">
    <inertial><mass value="1"/></inertial>
  </link>
  <link name="door"/>
  <joint name="swing" type="revolute">
    <parent link="base"/>
    <child link="door"/>
    <limit lower="-0.5" upper="0.5" effort="100" velocity="100"/>
  </joint>
</robot>`

func mustModel(t *testing.T, doc string) *urdf.Model {
	t.Helper()
	m, err := urdf.ParseString(doc)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return m
}

func startedEngine(t *testing.T, gravity r3.Vec) *Engine {
	t.Helper()
	e := New()
	if err := e.Start(context.Background(), physics.Params{Gravity: gravity}); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop(context.Background()) })
	return e
}

func loadBody(t *testing.T, e *Engine, doc string, opts physics.LoadOptions) physics.BodyID {
	t.Helper()
	id, err := e.LoadModel(context.Background(), mustModel(t, doc), opts)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	return id
}

func stepN(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := e.StepSimulation(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

func TestBackendRegistered(t *testing.T) {
	e, err := physics.New(Name)
	if err != nil {
		t.Fatalf("resolve backend: %v", err)
	}
	if e.Name() != Name {
		t.Fatalf("backend name mismatch: got=%s want=%s", e.Name(), Name)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	e := New()
	ctx := context.Background()

	if err := e.Start(ctx, physics.Params{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(ctx, physics.Params{}); !errors.Is(err, physics.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := e.Start(ctx, physics.Params{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestOpsRequireStart(t *testing.T) {
	e := New()
	ctx := context.Background()

	if err := e.SetGravity(r3.Vec{Z: -10}); !errors.Is(err, physics.ErrNotStarted) {
		t.Fatalf("set gravity: expected ErrNotStarted, got: %v", err)
	}
	if err := e.StepSimulation(ctx); !errors.Is(err, physics.ErrNotStarted) {
		t.Fatalf("step: expected ErrNotStarted, got: %v", err)
	}
	if _, err := e.LoadModel(ctx, mustModel(t, rigDoc), physics.LoadOptions{}); !errors.Is(err, physics.ErrNotStarted) {
		t.Fatalf("load: expected ErrNotStarted, got: %v", err)
	}
	if _, _, err := e.BasePositionAndOrientation(0); !errors.Is(err, physics.ErrNotStarted) {
		t.Fatalf("base pose: expected ErrNotStarted, got: %v", err)
	}
}

func TestCanceledContextIsRespected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New()
	if err := e.Start(ctx, physics.Params{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("start: expected context.Canceled, got: %v", err)
	}

	running := startedEngine(t, r3.Vec{})
	if err := running.StepSimulation(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("step: expected context.Canceled, got: %v", err)
	}
	if _, err := running.LoadModel(ctx, mustModel(t, rigDoc), physics.LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("load: expected context.Canceled, got: %v", err)
	}
}

func TestLoadModelRequiresModel(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	if _, err := e.LoadModel(context.Background(), nil, physics.LoadOptions{}); err == nil {
		t.Fatal("expected nil model error")
	}
}

func TestFreeFallUnderGravity(t *testing.T) {
	e := startedEngine(t, r3.Vec{Z: -10})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{BasePosition: r3.Vec{Z: 1}})

	stepN(t, e, 1)

	dt := physics.DefaultTimeStep
	pos, _, err := e.BasePositionAndOrientation(id)
	if err != nil {
		t.Fatalf("base pose: %v", err)
	}
	if wantZ := 1.0 - 10*dt*dt; math.Abs(pos.Z-wantZ) > 1e-15 {
		t.Fatalf("height mismatch: got=%v want=%v", pos.Z, wantZ)
	}
	linear, _, err := e.BaseVelocity(id)
	if err != nil {
		t.Fatalf("base velocity: %v", err)
	}
	if wantVZ := -10 * dt; math.Abs(linear.Z-wantVZ) > 1e-15 {
		t.Fatalf("velocity mismatch: got=%v want=%v", linear.Z, wantVZ)
	}
}

func TestGroundContactClampsAtClearance(t *testing.T) {
	e := startedEngine(t, r3.Vec{Z: -10})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{
		BasePosition:    r3.Vec{Z: 1},
		GroundClearance: 0.25,
	})

	// From one metre the base lands within a hundred steps; the rest must
	// leave it resting at the clearance height.
	stepN(t, e, 300)

	pos, _, err := e.BasePositionAndOrientation(id)
	if err != nil {
		t.Fatalf("base pose: %v", err)
	}
	if pos.Z != 0.25 {
		t.Fatalf("rest height mismatch: got=%v want=0.25", pos.Z)
	}
	linear, _, err := e.BaseVelocity(id)
	if err != nil {
		t.Fatalf("base velocity: %v", err)
	}
	if linear.Z != 0 {
		t.Fatalf("vertical velocity mismatch: got=%v want=0", linear.Z)
	}
}

func TestFixedAndMasslessBodiesDoNotFall(t *testing.T) {
	e := startedEngine(t, r3.Vec{Z: -10})

	pinned := loadBody(t, e, rigDoc, physics.LoadOptions{
		BasePosition: r3.Vec{Z: 1},
		UseFixedBase: true,
	})
	slab := loadBody(t, e, `
<robot name="slab">
  <link name="ground">
    <inertial><mass value="0"/></inertial>
  </link>
</robot>`, physics.LoadOptions{BasePosition: r3.Vec{Z: 2}})

	stepN(t, e, 100)

	pos, _, err := e.BasePositionAndOrientation(pinned)
	if err != nil {
		t.Fatalf("pinned pose: %v", err)
	}
	if pos.Z != 1 {
		t.Fatalf("pinned base moved: got=%v want=1", pos.Z)
	}
	pos, _, err = e.BasePositionAndOrientation(slab)
	if err != nil {
		t.Fatalf("slab pose: %v", err)
	}
	if pos.Z != 2 {
		t.Fatalf("massless base moved: got=%v want=2", pos.Z)
	}
}

func TestServoTracksTarget(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{})

	if err := e.SetJointPositionTarget(id, 0, 1.0, 10); err != nil {
		t.Fatalf("set target: %v", err)
	}

	// Arming the servo must not move the joint before the next step.
	state, err := e.JointState(id, 0)
	if err != nil {
		t.Fatalf("joint state: %v", err)
	}
	if state.Position != 0 {
		t.Fatalf("joint moved before stepping: %v", state.Position)
	}

	stepN(t, e, 960)

	state, err = e.JointState(id, 0)
	if err != nil {
		t.Fatalf("joint state: %v", err)
	}
	if math.Abs(state.Position-1.0) > 1e-3 {
		t.Fatalf("servo position mismatch: got=%v want=1.0", state.Position)
	}
	if math.Abs(state.Velocity) > 1e-3 {
		t.Fatalf("servo still moving: velocity=%v", state.Velocity)
	}
}

func TestServoTargetClampedToLimits(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, gateDoc, physics.LoadOptions{})

	if err := e.SetJointPositionTarget(id, 0, 3.0, 100); err != nil {
		t.Fatalf("set target: %v", err)
	}
	stepN(t, e, 960)

	state, err := e.JointState(id, 0)
	if err != nil {
		t.Fatalf("joint state: %v", err)
	}
	if state.Position > 0.5 || math.Abs(state.Position-0.5) > 1e-3 {
		t.Fatalf("clamped target mismatch: got=%v want=0.5", state.Position)
	}
}

func TestTorqueCapUsesWeakerLimit(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{})

	cases := []struct {
		name     string
		maxForce float64
		want     float64
	}{
		{name: "commanded force weaker than effort", maxForce: 3, want: 3},
		{name: "effort weaker than commanded force", maxForce: 50, want: 10},
		{name: "zero commanded force falls back to effort", maxForce: 0, want: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := e.ResetJointState(id, 0, 0, 0); err != nil {
				t.Fatalf("reset joint: %v", err)
			}
			if err := e.SetJointPositionTarget(id, 0, 2.0, tc.maxForce); err != nil {
				t.Fatalf("set target: %v", err)
			}
			stepN(t, e, 1)

			state, err := e.JointState(id, 0)
			if err != nil {
				t.Fatalf("joint state: %v", err)
			}
			if state.AppliedTorque != tc.want {
				t.Fatalf("torque mismatch: got=%v want=%v", state.AppliedTorque, tc.want)
			}
		})
	}
}

func TestVelocityLimitClampsJointSpeed(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{})

	// The spinner's PD torque would reach 0.67 rad/s in one step; its
	// velocity limit holds it to 0.5.
	if err := e.SetJointPositionTarget(id, 1, 10, 0); err != nil {
		t.Fatalf("set target: %v", err)
	}
	stepN(t, e, 1)

	state, err := e.JointState(id, 1)
	if err != nil {
		t.Fatalf("joint state: %v", err)
	}
	if state.Velocity != 0.5 {
		t.Fatalf("velocity mismatch: got=%v want=0.5", state.Velocity)
	}
}

func TestCoastingJointStopsAtLimit(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, gateDoc, physics.LoadOptions{})

	// A joint that was never armed coasts at its reset velocity until the
	// position clamp zeroes it.
	if err := e.ResetJointState(id, 0, 0.45, 24); err != nil {
		t.Fatalf("reset joint: %v", err)
	}
	stepN(t, e, 2)

	state, err := e.JointState(id, 0)
	if err != nil {
		t.Fatalf("joint state: %v", err)
	}
	if state.Position != 0.5 {
		t.Fatalf("position mismatch: got=%v want=0.5", state.Position)
	}
	if state.Velocity != 0 {
		t.Fatalf("velocity mismatch: got=%v want=0", state.Velocity)
	}
}

func TestResetJointStateClampsToLimits(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, gateDoc, physics.LoadOptions{})

	if err := e.ResetJointState(id, 0, 9, 0); err != nil {
		t.Fatalf("reset joint: %v", err)
	}
	state, err := e.JointState(id, 0)
	if err != nil {
		t.Fatalf("joint state: %v", err)
	}
	if state.Position != 0.5 {
		t.Fatalf("position mismatch: got=%v want=0.5", state.Position)
	}
}

func TestSetTargetRequiresActuatedJoint(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{})

	err := e.SetJointPositionTarget(id, 2, 1, 10)
	if err == nil {
		t.Fatal("expected non-actuated joint error")
	}
	if !strings.Contains(err.Error(), "not actuated") {
		t.Fatalf("error mismatch: %v", err)
	}
}

func TestLookupErrors(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{})

	if _, _, err := e.BasePositionAndOrientation(99); !errors.Is(err, physics.ErrBodyNotFound) {
		t.Fatalf("expected ErrBodyNotFound, got: %v", err)
	}
	if _, err := e.JointInfo(id, -1); !errors.Is(err, physics.ErrJointIndex) {
		t.Fatalf("expected ErrJointIndex for -1, got: %v", err)
	}
	if _, err := e.JointState(id, 3); !errors.Is(err, physics.ErrJointIndex) {
		t.Fatalf("expected ErrJointIndex for 3, got: %v", err)
	}
}

func TestJointInfoMirrorsModel(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{})

	n, err := e.NumJoints(id)
	if err != nil {
		t.Fatalf("num joints: %v", err)
	}
	if n != 3 {
		t.Fatalf("joint count mismatch: got=%d want=3", n)
	}

	hinge, err := e.JointInfo(id, 0)
	if err != nil {
		t.Fatalf("hinge info: %v", err)
	}
	if hinge.Name != "hinge" || hinge.Type != urdf.JointRevolute {
		t.Fatalf("hinge mismatch: %+v", hinge)
	}
	if !hinge.Limited || hinge.Lower != -3.1416 || hinge.Upper != 3.1416 {
		t.Fatalf("hinge limit mismatch: %+v", hinge)
	}
	if hinge.MaxForce != 10 || hinge.MaxVelocity != 100 {
		t.Fatalf("hinge effort mismatch: %+v", hinge)
	}
	if hinge.Axis.X != 1 {
		t.Fatalf("hinge axis mismatch: %+v", hinge.Axis)
	}

	spinner, err := e.JointInfo(id, 1)
	if err != nil {
		t.Fatalf("spinner info: %v", err)
	}
	if spinner.Type != urdf.JointContinuous || spinner.Limited {
		t.Fatalf("spinner mismatch: %+v", spinner)
	}
	if spinner.MaxForce != 1000 || spinner.MaxVelocity != 0.5 {
		t.Fatalf("spinner effort mismatch: %+v", spinner)
	}
}

func TestResetBasePoseZeroesVelocity(t *testing.T) {
	e := startedEngine(t, r3.Vec{Z: -10})
	id := loadBody(t, e, rigDoc, physics.LoadOptions{BasePosition: r3.Vec{Z: 5}})

	stepN(t, e, 10)
	linear, _, err := e.BaseVelocity(id)
	if err != nil {
		t.Fatalf("base velocity: %v", err)
	}
	if linear.Z == 0 {
		t.Fatal("expected the base to be falling")
	}

	want := r3.Vec{X: 1, Y: 2, Z: 3}
	if err := e.ResetBasePose(id, want, physics.IdentityQuat()); err != nil {
		t.Fatalf("reset base pose: %v", err)
	}
	pos, _, err := e.BasePositionAndOrientation(id)
	if err != nil {
		t.Fatalf("base pose: %v", err)
	}
	if pos != want {
		t.Fatalf("position mismatch: got=%+v want=%+v", pos, want)
	}
	linear, angular, err := e.BaseVelocity(id)
	if err != nil {
		t.Fatalf("base velocity: %v", err)
	}
	if linear != (r3.Vec{}) || angular != (r3.Vec{}) {
		t.Fatalf("velocities not zeroed: linear=%+v angular=%+v", linear, angular)
	}
}

func TestLoadModelNormalizesOrientation(t *testing.T) {
	e := startedEngine(t, r3.Vec{})

	zero := loadBody(t, e, rigDoc, physics.LoadOptions{})
	_, orn, err := e.BasePositionAndOrientation(zero)
	if err != nil {
		t.Fatalf("base pose: %v", err)
	}
	if orn != physics.IdentityQuat() {
		t.Fatalf("zero orientation mismatch: got=%+v want identity", orn)
	}

	scaled := loadBody(t, e, rigDoc, physics.LoadOptions{
		BaseOrientation: quat.Number{Real: 2},
	})
	_, orn, err = e.BasePositionAndOrientation(scaled)
	if err != nil {
		t.Fatalf("base pose: %v", err)
	}
	if orn != physics.IdentityQuat() {
		t.Fatalf("scaled orientation mismatch: got=%+v want identity", orn)
	}
}

func TestSimTimeAccumulates(t *testing.T) {
	e := startedEngine(t, r3.Vec{})
	if e.SimTime() != 0 {
		t.Fatalf("fresh sim time mismatch: got=%v want=0", e.SimTime())
	}

	stepN(t, e, 5)
	want := 5 * physics.DefaultTimeStep
	if math.Abs(e.SimTime()-want) > 1e-12 {
		t.Fatalf("sim time mismatch: got=%v want=%v", e.SimTime(), want)
	}
}

func TestStopDiscardsBodies(t *testing.T) {
	e := New()
	ctx := context.Background()
	if err := e.Start(ctx, physics.Params{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	id, err := e.LoadModel(ctx, mustModel(t, rigDoc), physics.LoadOptions{})
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.Start(ctx, physics.Params{}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, _, err := e.BasePositionAndOrientation(id); !errors.Is(err, physics.ErrBodyNotFound) {
		t.Fatalf("expected ErrBodyNotFound after restart, got: %v", err)
	}
}
