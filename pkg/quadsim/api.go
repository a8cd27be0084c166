// Package quadsim is the public entry point for running simulated
// quadruped sessions. It wires the simulation session, robot proxy,
// drive loop, and storage together behind a small client API so that
// callers (the CLI, tests, embedders) do not assemble the pieces by
// hand.
package quadsim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"quadsim/internal/drive"
	"quadsim/internal/model"
	"quadsim/internal/physics"
	_ "quadsim/internal/physics/lite" // default engine backend
	"quadsim/internal/policy"
	"quadsim/internal/robot"
	"quadsim/internal/sim"
	"quadsim/internal/stats"
	"quadsim/internal/storage"
	"quadsim/internal/urdf"
)

const (
	defaultDBPath       = "quadsim.db"
	defaultExportsDir   = "exports"
	defaultBenchRuns    = 3
	defaultBenchWorkers = 2
)

// Options configures a Client.
type Options struct {
	// StoreKind selects the storage backend ("memory" or "sqlite").
	// Empty selects the default for this build.
	StoreKind string
	// DBPath is the sqlite database path. Ignored by the memory
	// backend.
	DBPath string
	// ExportsDir is the default directory for exported run artifacts.
	ExportsDir string
	// Logger receives structured progress logs. Defaults to a no-op
	// logger.
	Logger *zap.Logger
}

// Client runs simulations and manages recorded runs.
type Client struct {
	store      storage.Store
	logger     *zap.Logger
	exportsDir string

	mu          sync.Mutex
	storeInited bool
}

// New creates a Client from the given options.
func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:      store,
		logger:     logger,
		exportsDir: exportsDir,
	}, nil
}

// Close releases the client's storage backend.
func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storeInited {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.storeInited = true
	return nil
}

// RunRequest describes a single simulation run. Zero values select
// defaults.
type RunRequest struct {
	// Engine names the physics backend. Empty selects the default
	// engine.
	Engine string
	// Mode is the connection mode ("direct" or "gui").
	Mode string
	// Model is the robot model reference, either a builtin:name or a
	// file path.
	Model string
	// Policy names the action policy driving the motors.
	Policy string
	// Steps is the number of control iterations.
	Steps int
	// Seed seeds the policy's random source. Zero derives a seed from
	// the wall clock; the derived value is recorded with the run.
	Seed int64
	// TimeStep is the simulation step in seconds.
	TimeStep float64
	// GravityZ is the vertical gravity component. Zero selects the
	// default of -10.
	GravityZ float64
	// MotorForce caps the torque applied by each motor servo.
	MotorForce float64
	// Frequency is the gait frequency in Hz for periodic policies.
	Frequency float64
	// PaceHz throttles the loop to the given iterations per second.
	PaceHz float64
	// DisablePacing runs the loop as fast as the host allows.
	DisablePacing bool
	// Record persists the run, its step trace, and its summary.
	Record bool
	// Output receives the per-step state lines. Defaults to stdout.
	Output io.Writer
}

// RunResult reports the outcome of a completed run.
type RunResult struct {
	RunID          string
	Seed           int64
	Steps          int
	Elapsed        time.Duration
	FinalPosition  [3]float64
	Distance       float64
	StepsPerSecond float64
	Recorded       bool
}

func applyRunDefaults(req *RunRequest) {
	if req.Engine == "" {
		req.Engine = sim.DefaultEngine
	}
	if req.Model == "" {
		req.Model = urdf.BuiltinMinitaur
	}
	if req.Policy == "" {
		req.Policy = policy.UniformName
	}
	if req.Steps <= 0 {
		req.Steps = drive.DefaultSteps
	}
	if req.TimeStep <= 0 {
		req.TimeStep = physics.DefaultTimeStep
	}
	if req.GravityZ == 0 {
		req.GravityZ = sim.DefaultGravity.Z
	}
	if req.MotorForce <= 0 {
		req.MotorForce = robot.DefaultMotorForce
	}
	if req.PaceHz <= 0 {
		req.PaceHz = drive.DefaultPaceHz
	}
}

// Run executes one simulation run and, when requested, persists its
// records.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	applyRunDefaults(&req)
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if req.Record {
		if err := c.ensureStore(ctx); err != nil {
			return RunResult{}, err
		}
	}

	runID := uuid.NewString()
	c.logger.Info("run starting",
		zap.String("run_id", runID),
		zap.String("engine", req.Engine),
		zap.String("policy", req.Policy),
		zap.Int("steps", req.Steps),
		zap.Int64("seed", seed),
	)

	outcome, err := c.runOnce(ctx, runID, seed, req)
	if err != nil {
		return RunResult{}, err
	}

	summary, err := stats.Summarize(outcome.run, outcome.steps, outcome.result.Elapsed)
	if err != nil {
		return RunResult{}, fmt.Errorf("summarize run %s: %w", runID, err)
	}
	summary.VersionedRecord = versioned()

	if req.Record {
		if err := c.store.SaveRun(ctx, outcome.run); err != nil {
			return RunResult{}, fmt.Errorf("save run %s: %w", runID, err)
		}
		batch := model.StepBatch{
			VersionedRecord: versioned(),
			RunID:           runID,
			Steps:           outcome.steps,
		}
		if err := c.store.SaveSteps(ctx, batch); err != nil {
			return RunResult{}, fmt.Errorf("save steps for run %s: %w", runID, err)
		}
		if err := c.store.SaveSummary(ctx, summary); err != nil {
			return RunResult{}, fmt.Errorf("save summary for run %s: %w", runID, err)
		}
	}

	res := RunResult{
		RunID:          runID,
		Seed:           seed,
		Steps:          outcome.result.StepsCompleted,
		Elapsed:        outcome.result.Elapsed,
		FinalPosition:  summary.FinalPosition,
		Distance:       summary.Distance,
		StepsPerSecond: summary.StepsPerSecond,
		Recorded:       req.Record,
	}
	if len(outcome.steps) == 0 {
		// Unrecorded runs have no step trace to summarize; report the
		// outcome from the loop result instead. The robot spawns at the
		// origin, so planar displacement is measured from there.
		fin := outcome.result.FinalBasePosition
		res.FinalPosition = [3]float64{fin.X, fin.Y, fin.Z}
		res.Distance = math.Hypot(fin.X, fin.Y)
		if secs := outcome.result.Elapsed.Seconds(); secs > 0 {
			res.StepsPerSecond = float64(outcome.result.StepsCompleted) / secs
		}
	}

	c.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("steps", res.Steps),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("distance", res.Distance),
	)

	return res, nil
}

type runOutcome struct {
	result drive.Result
	run    model.RunRecord
	steps  []model.StepRecord
}

// runOnce performs the session lifecycle for a single run: connect,
// set gravity, load the robot, load the ground plane, then drive.
func (c *Client) runOnce(ctx context.Context, runID string, seed int64, req RunRequest) (runOutcome, error) {
	session, err := sim.Connect(ctx, sim.Config{
		Engine:   req.Engine,
		Mode:     req.Mode,
		TimeStep: req.TimeStep,
		Logger:   c.logger,
	})
	if err != nil {
		return runOutcome{}, err
	}
	defer func() {
		if cerr := session.Close(ctx); cerr != nil {
			c.logger.Warn("close session", zap.String("run_id", runID), zap.Error(cerr))
		}
	}()

	if err := session.SetGravity(r3.Vec{Z: req.GravityZ}); err != nil {
		return runOutcome{}, fmt.Errorf("set gravity: %w", err)
	}

	bot, err := robot.New(ctx, session, robot.Config{
		ModelRef:   req.Model,
		MotorForce: req.MotorForce,
	})
	if err != nil {
		return runOutcome{}, err
	}

	if _, err := session.LoadStaticModel(ctx, urdf.BuiltinPlane); err != nil {
		return runOutcome{}, err
	}

	pol, err := policy.New(req.Policy, policy.Config{
		Motors:    robot.MotorCount,
		Rand:      rand.New(rand.NewSource(seed)),
		TimeStep:  req.TimeStep,
		Frequency: req.Frequency,
	})
	if err != nil {
		return runOutcome{}, err
	}

	cfg := drive.Config{
		Session:       session,
		Robot:         bot,
		Policy:        pol,
		Steps:         req.Steps,
		Output:        req.Output,
		Logger:        c.logger,
		PaceHz:        req.PaceHz,
		DisablePacing: req.DisablePacing,
	}
	var recorder *stepRecorder
	if req.Record {
		recorder = &stepRecorder{}
		cfg.Recorder = recorder
	}
	loop, err := drive.New(cfg)
	if err != nil {
		return runOutcome{}, err
	}
	result, err := loop.Run(ctx)
	if err != nil {
		return runOutcome{}, err
	}

	run := model.RunRecord{
		VersionedRecord: versioned(),
		ID:              runID,
		CreatedAt:       time.Now().UTC(),
		Engine:          req.Engine,
		Mode:            string(session.Mode()),
		Model:           req.Model,
		Policy:          req.Policy,
		Seed:            seed,
		Steps:           result.StepsCompleted,
		TimeStep:        req.TimeStep,
		Gravity:         [3]float64{0, 0, req.GravityZ},
		MotorForce:      req.MotorForce,
	}
	outcome := runOutcome{result: result, run: run}
	if recorder != nil {
		outcome.steps = recorder.steps
	}
	return outcome, nil
}

// stepRecorder buffers step records in memory so they can be persisted
// once the run completes.
type stepRecorder struct {
	steps []model.StepRecord
}

func (r *stepRecorder) WriteStep(rec model.StepRecord) error {
	r.steps = append(r.steps, rec)
	return nil
}

func versioned() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}

// RunsRequest lists recorded runs.
type RunsRequest struct {
	// Limit caps the number of returned runs. Zero returns all.
	Limit int
}

// RunItem is one row in a run listing.
type RunItem struct {
	RunID     string
	CreatedAt time.Time
	Engine    string
	Policy    string
	Seed      int64
	Steps     int
	// Distance is set when a summary was recorded for the run.
	Distance *float64
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	items := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		item := RunItem{
			RunID:     run.ID,
			CreatedAt: run.CreatedAt,
			Engine:    run.Engine,
			Policy:    run.Policy,
			Seed:      run.Seed,
			Steps:     run.Steps,
		}
		summary, ok, err := c.store.GetSummary(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			d := summary.Distance
			item.Distance = &d
		}
		items = append(items, item)
	}
	return items, nil
}

// resolveRunID turns a run id / latest selector into a concrete run id.
func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return "", errors.New("no runs available")
		}
		return runs[0].ID, nil
	}
	return runID, nil
}

// ReplayRequest replays the recorded state lines of a run.
type ReplayRequest struct {
	// RunID selects the run to replay. Use either run id or latest.
	RunID string
	// Latest selects the most recent run.
	Latest bool
	// Limit caps the number of replayed steps. Zero replays all.
	Limit int
	// Output receives the state lines. Defaults to stdout.
	Output io.Writer
}

// ReplayResult reports how much of a run was replayed.
type ReplayResult struct {
	RunID string
	Steps int
}

// Replay re-emits the recorded base position and motor angle lines of
// a run without re-simulating it.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplayResult, error) {
	if req.RunID != "" && req.Latest {
		return ReplayResult{}, errors.New("use either run id or latest, not both")
	}
	if req.RunID == "" && !req.Latest {
		return ReplayResult{}, errors.New("replay requires a run id or latest")
	}
	if req.Limit < 0 {
		return ReplayResult{}, fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}
	if err := c.ensureStore(ctx); err != nil {
		return ReplayResult{}, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ReplayResult{}, err
	}
	batch, ok, err := c.store.GetSteps(ctx, runID)
	if err != nil {
		return ReplayResult{}, err
	}
	if !ok || len(batch.Steps) == 0 {
		return ReplayResult{}, fmt.Errorf("no recorded steps for run id: %s", runID)
	}
	steps := batch.Steps
	if req.Limit > 0 && len(steps) > req.Limit {
		steps = steps[:req.Limit]
	}
	out := req.Output
	if out == nil {
		out = os.Stdout
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return ReplayResult{}, err
		}
		if err := drive.WriteStateLines(out, step); err != nil {
			return ReplayResult{}, fmt.Errorf("replay step %d: %w", step.Index, err)
		}
	}
	return ReplayResult{RunID: runID, Steps: len(steps)}, nil
}

// ExportRequest exports a recorded run to disk artifacts.
type ExportRequest struct {
	// RunID selects the run to export. Use either run id or latest.
	RunID string
	// Latest selects the most recent run.
	Latest bool
	// OutDir overrides the client's exports directory.
	OutDir string
}

// ExportSummary reports where a run was exported.
type ExportSummary struct {
	RunID     string
	Directory string
	Steps     int
}

// Export writes the run record, summary, and step trace of a recorded
// run as files under the exports directory.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest, not both")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires a run id or latest")
	}
	if err := c.ensureStore(ctx); err != nil {
		return ExportSummary{}, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	var steps []model.StepRecord
	batch, ok, err := c.store.GetSteps(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if ok {
		steps = batch.Steps
	}
	summary, ok, err := c.store.GetSummary(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		// Older runs may predate summaries; derive one from the trace.
		summary, err = stats.Summarize(run, steps, 0)
		if err != nil {
			return ExportSummary{}, fmt.Errorf("summarize run %s: %w", runID, err)
		}
		summary.VersionedRecord = versioned()
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := stats.WriteRunArtifacts(outDir, run, summary, steps)
	if err != nil {
		return ExportSummary{}, fmt.Errorf("write artifacts for run %s: %w", runID, err)
	}
	c.logger.Info("run exported",
		zap.String("run_id", runID),
		zap.String("dir", dir),
		zap.Int("steps", len(steps)),
	)
	return ExportSummary{RunID: runID, Directory: dir, Steps: len(steps)}, nil
}

// SummaryRequest fetches the summary of a recorded run.
type SummaryRequest struct {
	// RunID selects the run. Use either run id or latest.
	RunID string
	// Latest selects the most recent run.
	Latest bool
}

// Summary returns the stored summary of a recorded run.
func (c *Client) Summary(ctx context.Context, req SummaryRequest) (model.RunSummary, error) {
	if req.RunID != "" && req.Latest {
		return model.RunSummary{}, errors.New("use either run id or latest, not both")
	}
	if req.RunID == "" && !req.Latest {
		return model.RunSummary{}, errors.New("summary requires a run id or latest")
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.RunSummary{}, err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.RunSummary{}, err
	}
	summary, ok, err := c.store.GetSummary(ctx, runID)
	if err != nil {
		return model.RunSummary{}, err
	}
	if !ok {
		return model.RunSummary{}, fmt.Errorf("summary not found for run id: %s", runID)
	}
	return summary, nil
}

// DeleteRequest removes a recorded run.
type DeleteRequest struct {
	// RunID selects the run to delete. Use either run id or latest.
	RunID string
	// Latest selects the most recent run.
	Latest bool
}

// Delete removes a run and its step trace and summary from storage.
func (c *Client) Delete(ctx context.Context, req DeleteRequest) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest, not both")
	}
	if req.RunID == "" && !req.Latest {
		return "", errors.New("delete requires a run id or latest")
	}
	if err := c.ensureStore(ctx); err != nil {
		return "", err
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return "", err
	}
	if err := c.store.DeleteRun(ctx, runID); err != nil {
		return "", err
	}
	c.logger.Info("run deleted", zap.String("run_id", runID))
	return runID, nil
}

// Reset drops every recorded run from storage. Backends without the
// reset capability are left untouched.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	resetter, ok := c.store.(storage.Resetter)
	if !ok {
		return nil
	}
	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	c.logger.Info("store reset")
	return nil
}

// BenchRequest measures simulation throughput over repeated runs.
type BenchRequest struct {
	// Runs is the number of runs to execute. Defaults to 3.
	Runs int
	// Workers bounds how many runs execute concurrently. Defaults
	// to 2.
	Workers int
	// Base supplies the per-run parameters. Recording and pacing are
	// disabled for benchmark runs regardless of what it sets.
	Base RunRequest
}

// BenchSummary aggregates throughput and displacement across benchmark
// runs.
type BenchSummary struct {
	Runs                 int
	StepsPerRun          int
	TotalElapsed         time.Duration
	MeanStepsPerSecond   float64
	StdDevStepsPerSecond float64
	MinStepsPerSecond    float64
	MaxStepsPerSecond    float64
	MeanDistance         float64
	MaxDistance          float64
}

// Bench runs the same simulation repeatedly, possibly in parallel, and
// reports steps-per-second statistics. Benchmark runs are never
// recorded and never paced.
func (c *Client) Bench(ctx context.Context, req BenchRequest) (BenchSummary, error) {
	if req.Runs < 0 {
		return BenchSummary{}, fmt.Errorf("runs must be non-negative, got %d", req.Runs)
	}
	if req.Workers < 0 {
		return BenchSummary{}, fmt.Errorf("workers must be non-negative, got %d", req.Workers)
	}
	runs := req.Runs
	if runs == 0 {
		runs = defaultBenchRuns
	}
	workers := req.Workers
	if workers == 0 {
		workers = defaultBenchWorkers
	}

	base := req.Base
	applyRunDefaults(&base)
	base.Record = false
	base.DisablePacing = true
	base.Output = io.Discard
	seed := base.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	c.logger.Info("bench starting",
		zap.Int("runs", runs),
		zap.Int("workers", workers),
		zap.Int("steps_per_run", base.Steps),
	)

	start := time.Now()
	perRun := make([]float64, runs)
	distances := make([]float64, runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			outcome, err := c.runOnce(gctx, uuid.NewString(), seed+int64(i), base)
			if err != nil {
				return fmt.Errorf("bench run %d: %w", i, err)
			}
			elapsed := outcome.result.Elapsed.Seconds()
			if elapsed > 0 {
				perRun[i] = float64(outcome.result.StepsCompleted) / elapsed
			}
			fin := outcome.result.FinalBasePosition
			distances[i] = math.Hypot(fin.X, fin.Y)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BenchSummary{}, err
	}

	summary := BenchSummary{
		Runs:               runs,
		StepsPerRun:        base.Steps,
		TotalElapsed:       time.Since(start),
		MeanStepsPerSecond: stat.Mean(perRun, nil),
		MeanDistance:       stat.Mean(distances, nil),
	}
	if runs > 1 {
		summary.StdDevStepsPerSecond = stat.StdDev(perRun, nil)
	}
	summary.MinStepsPerSecond = perRun[0]
	summary.MaxStepsPerSecond = perRun[0]
	for _, v := range perRun[1:] {
		if v < summary.MinStepsPerSecond {
			summary.MinStepsPerSecond = v
		}
		if v > summary.MaxStepsPerSecond {
			summary.MaxStepsPerSecond = v
		}
	}
	for _, d := range distances {
		if d > summary.MaxDistance {
			summary.MaxDistance = d
		}
	}
	c.logger.Info("bench finished",
		zap.Int("runs", runs),
		zap.Duration("elapsed", summary.TotalElapsed),
		zap.Float64("mean_steps_per_second", summary.MeanStepsPerSecond),
	)
	return summary, nil
}
