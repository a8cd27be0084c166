// Package stats aggregates recorded runs and writes their on-disk
// artifacts.
package stats

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"quadsim/internal/model"
)

// Summarize aggregates the recorded steps of one run. wallClock is the
// measured loop duration; zero leaves the throughput fields unset.
func Summarize(run model.RunRecord, steps []model.StepRecord, wallClock time.Duration) (model.RunSummary, error) {
	if run.ID == "" {
		return model.RunSummary{}, fmt.Errorf("run id is required")
	}

	summary := model.RunSummary{
		RunID: run.ID,
		Steps: len(steps),
	}
	if len(steps) == 0 {
		return summary, nil
	}

	first := steps[0].BasePosition
	last := steps[len(steps)-1].BasePosition
	summary.Distance = math.Hypot(last[0]-first[0], last[1]-first[1])
	summary.FinalPosition = last

	heights := make([]float64, len(steps))
	for i, step := range steps {
		heights[i] = step.BasePosition[2]
	}
	summary.MeanHeight = stat.Mean(heights, nil)
	summary.MinHeight = floats.Min(heights)
	summary.MaxHeight = floats.Max(heights)
	if len(heights) > 1 {
		summary.HeightStdDev = stat.StdDev(heights, nil)
	}

	angleMin, angleMax := math.Inf(1), math.Inf(-1)
	for _, step := range steps {
		for _, angle := range step.MotorAngles {
			angleMin = math.Min(angleMin, angle)
			angleMax = math.Max(angleMax, angle)
		}
	}
	if angleMin <= angleMax {
		summary.MotorAngleMin = angleMin
		summary.MotorAngleMax = angleMax
	}

	if wallClock > 0 {
		summary.WallClockMS = wallClock.Milliseconds()
		summary.StepsPerSecond = float64(len(steps)) / wallClock.Seconds()
	}
	return summary, nil
}
