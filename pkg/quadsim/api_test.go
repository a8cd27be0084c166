package quadsim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"quadsim/internal/physics"
	"quadsim/internal/policy"
	"quadsim/internal/robot"
)

func TestClientRunRecordsReplaysAndExports(t *testing.T) {
	base := t.TempDir()
	exportsDir := filepath.Join(base, "exports")

	client, err := New(Options{StoreKind: "memory", ExportsDir: exportsDir})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	var live bytes.Buffer
	result, err := client.Run(context.Background(), RunRequest{
		Steps:         30,
		Seed:          42,
		Record:        true,
		DisablePacing: true,
		Output:        &live,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected run id")
	}
	if result.Seed != 42 {
		t.Fatalf("unexpected seed echo: got=%d want=42", result.Seed)
	}
	if result.Steps != 30 {
		t.Fatalf("unexpected step count: got=%d want=30", result.Steps)
	}
	if !result.Recorded {
		t.Fatal("expected recorded result")
	}
	if result.Elapsed <= 0 {
		t.Fatalf("expected positive elapsed time, got %v", result.Elapsed)
	}

	output := live.String()
	if got := strings.Count(output, "observation: "); got != 1 {
		t.Fatalf("expected one observation line, got %d", got)
	}
	firstLine, liveTail, ok := strings.Cut(output, "\n")
	if !ok || !strings.HasPrefix(firstLine, "observation: ") {
		t.Fatalf("expected leading observation line, got %q", firstLine)
	}
	if fields := strings.Fields(strings.TrimPrefix(firstLine, "observation: ")); len(fields) != robot.ObservationDimension {
		t.Fatalf("unexpected observation width: got=%d want=%d", len(fields), robot.ObservationDimension)
	}
	if got := strings.Count(output, "base position: "); got != 30 {
		t.Fatalf("expected 30 base position lines, got %d", got)
	}
	if got := strings.Count(output, "motor angles: "); got != 30 {
		t.Fatalf("expected 30 motor angle lines, got %d", got)
	}

	runs, err := client.Runs(context.Background(), RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != result.RunID {
		t.Fatalf("expected run %s in listing: %+v", result.RunID, runs)
	}
	if runs[0].Policy != policy.UniformName || runs[0].Seed != 42 || runs[0].Steps != 30 {
		t.Fatalf("unexpected run item: %+v", runs[0])
	}
	if runs[0].Distance == nil {
		t.Fatal("expected distance from recorded summary")
	}

	summary, err := client.Summary(context.Background(), SummaryRequest{RunID: result.RunID})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.RunID != result.RunID || summary.Steps != 30 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.MeanHeight <= 0 {
		t.Fatalf("expected positive mean height, got %f", summary.MeanHeight)
	}
	if summary.MinHeight > summary.MeanHeight || summary.MaxHeight < summary.MeanHeight {
		t.Fatalf("height bounds do not bracket the mean: min=%f mean=%f max=%f",
			summary.MinHeight, summary.MeanHeight, summary.MaxHeight)
	}
	if summary.StepsPerSecond <= 0 {
		t.Fatalf("expected positive throughput, got %f", summary.StepsPerSecond)
	}
	latest, err := client.Summary(context.Background(), SummaryRequest{Latest: true})
	if err != nil {
		t.Fatalf("summary latest: %v", err)
	}
	if latest.RunID != summary.RunID {
		t.Fatalf("latest summary mismatch: got=%s want=%s", latest.RunID, summary.RunID)
	}

	// Replay re-emits the recorded trace, so it must reproduce the live
	// state lines byte for byte.
	var replayed bytes.Buffer
	replay, err := client.Replay(context.Background(), ReplayRequest{RunID: result.RunID, Output: &replayed})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.RunID != result.RunID || replay.Steps != 30 {
		t.Fatalf("unexpected replay result: %+v", replay)
	}
	if replayed.String() != liveTail {
		t.Fatalf("replay output diverges from live state lines:\ngot:\n%s\nwant:\n%s", replayed.String(), liveTail)
	}
	limited, err := client.Replay(context.Background(), ReplayRequest{RunID: result.RunID, Limit: 3, Output: io.Discard})
	if err != nil {
		t.Fatalf("replay limited: %v", err)
	}
	if limited.Steps != 3 {
		t.Fatalf("expected 3 replayed steps, got %d", limited.Steps)
	}

	exported, err := client.Export(context.Background(), ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export latest: %v", err)
	}
	if exported.RunID != result.RunID || exported.Steps != 30 {
		t.Fatalf("unexpected export summary: %+v", exported)
	}
	if filepath.Dir(exported.Directory) != exportsDir {
		t.Fatalf("expected export under %s, got %s", exportsDir, exported.Directory)
	}
	for _, file := range []string{"run.json", "summary.json", "steps.csv", "series.json"} {
		if _, err := os.Stat(filepath.Join(exported.Directory, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	deleted, err := client.Delete(context.Background(), DeleteRequest{RunID: result.RunID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != result.RunID {
		t.Fatalf("unexpected deleted run id: got=%s want=%s", deleted, result.RunID)
	}
	if _, err := client.Delete(context.Background(), DeleteRequest{RunID: result.RunID}); err != nil {
		t.Fatalf("expected delete to stay idempotent, got %v", err)
	}
	if _, err := client.Summary(context.Background(), SummaryRequest{RunID: result.RunID}); err == nil {
		t.Fatal("expected summary lookup to fail after delete")
	}
	runs, err = client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs after delete: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty run listing after delete, got %+v", runs)
	}
}

func TestClientRunDerivesSeedWhenUnset(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	result, err := client.Run(context.Background(), RunRequest{
		Steps:         5,
		Record:        true,
		DisablePacing: true,
		Output:        io.Discard,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Seed == 0 {
		t.Fatal("expected derived seed for zero seed request")
	}

	runs, err := client.Runs(context.Background(), RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Seed != result.Seed {
		t.Fatalf("expected derived seed %d in run record: %+v", result.Seed, runs)
	}
}

func TestClientRunWithoutRecordLeavesStoreEmpty(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	result, err := client.Run(context.Background(), RunRequest{
		Steps:         20,
		Seed:          3,
		DisablePacing: true,
		Output:        io.Discard,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Recorded {
		t.Fatal("expected unrecorded result")
	}
	if math.Abs(result.FinalPosition[2]-robot.DefaultStandingHeight) > 1e-9 {
		t.Fatalf("expected final height at standing height, got %f", result.FinalPosition[2])
	}
	if result.StepsPerSecond <= 0 {
		t.Fatalf("expected throughput for unrecorded run, got %f", result.StepsPerSecond)
	}

	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no persisted runs, got %+v", runs)
	}
}

func TestClientResetDropsRecordedRuns(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	for seed := int64(1); seed <= 2; seed++ {
		_, err := client.Run(context.Background(), RunRequest{
			Steps:         5,
			Seed:          seed,
			Record:        true,
			DisablePacing: true,
			Output:        io.Discard,
		})
		if err != nil {
			t.Fatalf("run %d: %v", seed, err)
		}
	}
	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}

	if err := client.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}

	runs, err = client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty store after reset, got %+v", runs)
	}
	if _, err := client.Summary(context.Background(), SummaryRequest{Latest: true}); err == nil {
		t.Fatal("expected summary lookup to fail after reset")
	}
}

func TestClientRunValidation(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	base := RunRequest{Steps: 3, DisablePacing: true, Output: io.Discard}

	req := base
	req.Engine = "bullet3"
	if _, err := client.Run(context.Background(), req); !errors.Is(err, physics.ErrEngineNotFound) {
		t.Fatalf("expected unknown engine error, got %v", err)
	}

	req = base
	req.Policy = "walk"
	if _, err := client.Run(context.Background(), req); !errors.Is(err, policy.ErrPolicyNotFound) {
		t.Fatalf("expected unknown policy error, got %v", err)
	}

	req = base
	req.Model = "builtin:walker2d"
	if _, err := client.Run(context.Background(), req); err == nil || !strings.Contains(err.Error(), "walker2d") {
		t.Fatalf("expected unknown model error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Run(ctx, base); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled run error, got %v", err)
	}
}

func TestClientSelectorValidation(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	ctx := context.Background()

	if _, err := client.Replay(ctx, ReplayRequest{}); err == nil || !strings.Contains(err.Error(), "replay requires a run id or latest") {
		t.Fatalf("expected replay selector error, got %v", err)
	}
	if _, err := client.Replay(ctx, ReplayRequest{RunID: "r1", Latest: true}); err == nil || !strings.Contains(err.Error(), "not both") {
		t.Fatalf("expected conflicting selector error, got %v", err)
	}
	if _, err := client.Replay(ctx, ReplayRequest{RunID: "r1", Limit: -1}); err == nil || !strings.Contains(err.Error(), "limit must be non-negative") {
		t.Fatalf("expected replay limit error, got %v", err)
	}
	if _, err := client.Runs(ctx, RunsRequest{Limit: -1}); err == nil || !strings.Contains(err.Error(), "limit must be non-negative") {
		t.Fatalf("expected runs limit error, got %v", err)
	}
	if _, err := client.Summary(ctx, SummaryRequest{}); err == nil || !strings.Contains(err.Error(), "summary requires a run id or latest") {
		t.Fatalf("expected summary selector error, got %v", err)
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil || !strings.Contains(err.Error(), "export requires a run id or latest") {
		t.Fatalf("expected export selector error, got %v", err)
	}
	if _, err := client.Delete(ctx, DeleteRequest{}); err == nil || !strings.Contains(err.Error(), "delete requires a run id or latest") {
		t.Fatalf("expected delete selector error, got %v", err)
	}

	if _, err := client.Replay(ctx, ReplayRequest{Latest: true}); err == nil || !strings.Contains(err.Error(), "no runs available") {
		t.Fatalf("expected empty store error, got %v", err)
	}
	if _, err := client.Summary(ctx, SummaryRequest{RunID: "missing"}); err == nil || !strings.Contains(err.Error(), "summary not found") {
		t.Fatalf("expected missing summary error, got %v", err)
	}
	if _, err := client.Replay(ctx, ReplayRequest{RunID: "missing"}); err == nil || !strings.Contains(err.Error(), "no recorded steps") {
		t.Fatalf("expected missing steps error, got %v", err)
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "missing"}); err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Fatalf("expected missing run error, got %v", err)
	}
}

func TestClientBenchAggregatesThroughput(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Bench(context.Background(), BenchRequest{
		Runs:    3,
		Workers: 2,
		Base:    RunRequest{Steps: 40, Seed: 9},
	})
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	if summary.Runs != 3 || summary.StepsPerRun != 40 {
		t.Fatalf("unexpected bench shape: %+v", summary)
	}
	if summary.TotalElapsed <= 0 {
		t.Fatalf("expected positive bench elapsed time, got %v", summary.TotalElapsed)
	}
	if summary.MinStepsPerSecond <= 0 {
		t.Fatalf("expected positive minimum throughput, got %f", summary.MinStepsPerSecond)
	}
	if summary.MeanStepsPerSecond < summary.MinStepsPerSecond || summary.MeanStepsPerSecond > summary.MaxStepsPerSecond {
		t.Fatalf("mean outside min/max band: %+v", summary)
	}
	// The default backend never moves the base laterally, so displacement
	// aggregates are exactly zero.
	if summary.MeanDistance != 0 || summary.MaxDistance != 0 {
		t.Fatalf("expected zero displacement aggregates, got mean=%f max=%f",
			summary.MeanDistance, summary.MaxDistance)
	}

	runs, err := client.Runs(context.Background(), RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected bench runs to stay unrecorded, got %+v", runs)
	}
}

func TestClientBenchUsesDefaultRunsAndWorkers(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	summary, err := client.Bench(context.Background(), BenchRequest{
		Base: RunRequest{Steps: 10, Seed: 5},
	})
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	if summary.Runs != 3 {
		t.Fatalf("expected default run count 3, got %d", summary.Runs)
	}
	if summary.StepsPerRun != 10 {
		t.Fatalf("unexpected steps per run: got=%d want=10", summary.StepsPerRun)
	}
	if summary.MeanStepsPerSecond <= 0 {
		t.Fatalf("expected positive mean throughput, got %f", summary.MeanStepsPerSecond)
	}
}

func TestClientBenchRejectsNegativeCounts(t *testing.T) {
	client, err := New(Options{StoreKind: "memory", ExportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	if _, err := client.Bench(context.Background(), BenchRequest{Runs: -1}); err == nil || !strings.Contains(err.Error(), "runs must be non-negative") {
		t.Fatalf("expected runs validation error, got %v", err)
	}
	if _, err := client.Bench(context.Background(), BenchRequest{Workers: -1}); err == nil || !strings.Contains(err.Error(), "workers must be non-negative") {
		t.Fatalf("expected workers validation error, got %v", err)
	}
}

func TestNewRejectsUnknownStoreKind(t *testing.T) {
	if _, err := New(Options{StoreKind: "bolt"}); err == nil || !strings.Contains(err.Error(), "unsupported store backend") {
		t.Fatalf("expected store kind error, got %v", err)
	}
}
