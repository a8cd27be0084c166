package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"quadsim/internal/model"
)

// DefaultSeriesStride buckets per-step series into this many steps per
// plot point.
const DefaultSeriesStride = 500

// SeriesPoint is one downsampled sample of a per-step series. Index is
// the first step of its bucket.
type SeriesPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// TrajectorySeries holds compact per-run plot data: base height and
// forward progress averaged per bucket, and the peak lateral drift per
// bucket. The full trace stays in the steps CSV.
type TrajectorySeries struct {
	Stride  int           `json:"stride"`
	Height  []SeriesPoint `json:"height"`
	Forward []SeriesPoint `json:"forward"`
	Sway    []SeriesPoint `json:"sway"`
}

// BuildTrajectorySeries downsamples a step trace for plotting.
func BuildTrajectorySeries(steps []model.StepRecord, stride int) TrajectorySeries {
	if stride <= 0 {
		stride = DefaultSeriesStride
	}
	heights := make([]float64, len(steps))
	forward := make([]float64, len(steps))
	sway := make([]float64, len(steps))
	for i, step := range steps {
		heights[i] = step.BasePosition[2]
		forward[i] = step.BasePosition[0]
		sway[i] = math.Abs(step.BasePosition[1])
	}
	return TrajectorySeries{
		Stride:  stride,
		Height:  DownsampleMean(heights, stride),
		Forward: DownsampleMean(forward, stride),
		Sway:    DownsampleMax(sway, stride),
	}
}

// DownsampleMean reduces a series to one mean point per stride steps.
func DownsampleMean(values []float64, stride int) []SeriesPoint {
	if stride <= 0 {
		stride = DefaultSeriesStride
	}
	points := make([]SeriesPoint, 0, bucketCount(len(values), stride))
	for start := 0; start < len(values); start += stride {
		end := min(start+stride, len(values))
		points = append(points, SeriesPoint{
			Index: start,
			Value: stat.Mean(values[start:end], nil),
		})
	}
	return points
}

// DownsampleMax reduces a series to one peak point per stride steps.
func DownsampleMax(values []float64, stride int) []SeriesPoint {
	if stride <= 0 {
		stride = DefaultSeriesStride
	}
	points := make([]SeriesPoint, 0, bucketCount(len(values), stride))
	for start := 0; start < len(values); start += stride {
		end := min(start+stride, len(values))
		peak := values[start]
		for _, v := range values[start+1 : end] {
			if v > peak {
				peak = v
			}
		}
		points = append(points, SeriesPoint{Index: start, Value: peak})
	}
	return points
}

func bucketCount(n, stride int) int {
	return (n + stride - 1) / stride
}
