package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one drive-loop run and the parameters it ran with.
// Per-step data lives in StepBatch.
type RunRecord struct {
	VersionedRecord
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Engine     string     `json:"engine"`
	Mode       string     `json:"mode"`
	Model      string     `json:"model"`
	Policy     string     `json:"policy"`
	Seed       int64      `json:"seed"`
	Steps      int        `json:"steps"`
	TimeStep   float64    `json:"time_step"`
	Gravity    [3]float64 `json:"gravity"`
	MotorForce float64    `json:"motor_force"`
}

// StepRecord is one recorded control step. BaseOrientation is the
// quaternion in x, y, z, w order.
type StepRecord struct {
	Index           int        `json:"index"`
	SimTime         float64    `json:"sim_time"`
	BasePosition    [3]float64 `json:"base_position"`
	BaseOrientation [4]float64 `json:"base_orientation"`
	MotorAngles     []float64  `json:"motor_angles"`
	Action          []float64  `json:"action"`
}

// StepBatch is the persisted unit for step data: every recorded step of
// one run, in step order.
type StepBatch struct {
	VersionedRecord
	RunID string       `json:"run_id"`
	Steps []StepRecord `json:"steps"`
}

// RunSummary aggregates a completed run.
type RunSummary struct {
	VersionedRecord
	RunID          string     `json:"run_id"`
	Steps          int        `json:"steps"`
	Distance       float64    `json:"distance"`
	FinalPosition  [3]float64 `json:"final_position"`
	MeanHeight     float64    `json:"mean_height"`
	MinHeight      float64    `json:"min_height"`
	MaxHeight      float64    `json:"max_height"`
	HeightStdDev   float64    `json:"height_std_dev"`
	MotorAngleMin  float64    `json:"motor_angle_min"`
	MotorAngleMax  float64    `json:"motor_angle_max"`
	WallClockMS    int64      `json:"wall_clock_ms"`
	StepsPerSecond float64    `json:"steps_per_second"`
}
