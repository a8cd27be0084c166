package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"quadsim/internal/model"
)

const (
	runFileName     = "run.json"
	summaryFileName = "summary.json"
	stepsFileName   = "steps.csv"
	seriesFileName  = "series.json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteRunArtifacts writes one run's record, summary and step series under
// baseDir/<run id>/ and returns that directory.
func WriteRunArtifacts(baseDir string, run model.RunRecord, summary model.RunSummary, steps []model.StepRecord) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFileName), run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFileName), summary); err != nil {
		return "", err
	}
	if err := writeStepsCSV(filepath.Join(runDir, stepsFileName), steps); err != nil {
		return "", err
	}
	if len(steps) > 0 {
		series := BuildTrajectorySeries(steps, DefaultSeriesStride)
		if err := writeJSON(filepath.Join(runDir, seriesFileName), series); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

// ReadRunRecord loads the run record from an artifact directory.
func ReadRunRecord(baseDir, runID string) (model.RunRecord, bool, error) {
	path := filepath.Join(baseDir, runID, runFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

// ReadRunSummary loads the summary from an artifact directory.
func ReadRunSummary(baseDir, runID string) (model.RunSummary, bool, error) {
	path := filepath.Join(baseDir, runID, summaryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunSummary{}, false, nil
		}
		return model.RunSummary{}, false, err
	}

	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, false, err
	}
	return summary, true, nil
}

// ReadTrajectorySeries loads the downsampled plot series from an
// artifact directory.
func ReadTrajectorySeries(baseDir, runID string) (TrajectorySeries, bool, error) {
	path := filepath.Join(baseDir, runID, seriesFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TrajectorySeries{}, false, nil
		}
		return TrajectorySeries{}, false, err
	}

	var series TrajectorySeries
	if err := json.Unmarshal(data, &series); err != nil {
		return TrajectorySeries{}, false, err
	}
	return series, true, nil
}

// ReadStepSeries loads the step series from an artifact directory. Only
// the base position columns are decoded; full step data lives in the
// store.
func ReadStepSeries(baseDir, runID string) ([][3]float64, bool, error) {
	path := filepath.Join(baseDir, runID, stepsFileName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return [][3]float64{}, true, nil
	}
	if len(rows[0]) < 5 {
		return nil, false, fmt.Errorf("step series header must have at least 5 columns")
	}

	positions := make([][3]float64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 5 {
			return nil, false, fmt.Errorf("step series row must have at least 5 columns")
		}
		var pos [3]float64
		for i := 0; i < 3; i++ {
			value, err := strconv.ParseFloat(row[2+i], 64)
			if err != nil {
				return nil, false, err
			}
			pos[i] = value
		}
		positions = append(positions, pos)
	}
	return positions, true, nil
}

func writeStepsCSV(path string, steps []model.StepRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	motors := 0
	if len(steps) > 0 {
		motors = len(steps[0].MotorAngles)
	}

	header := []string{"index", "sim_time", "x", "y", "z", "qx", "qy", "qz", "qw"}
	for i := 0; i < motors; i++ {
		header = append(header, "motor_"+strconv.Itoa(i))
	}
	for i := 0; i < motors; i++ {
		header = append(header, "action_"+strconv.Itoa(i))
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, step := range steps {
		row := make([]string, 0, len(header))
		row = append(row,
			strconv.Itoa(step.Index),
			formatFloat(step.SimTime),
			formatFloat(step.BasePosition[0]),
			formatFloat(step.BasePosition[1]),
			formatFloat(step.BasePosition[2]),
			formatFloat(step.BaseOrientation[0]),
			formatFloat(step.BaseOrientation[1]),
			formatFloat(step.BaseOrientation[2]),
			formatFloat(step.BaseOrientation[3]),
		)
		for i := 0; i < motors; i++ {
			row = append(row, formatFloat(step.MotorAngles[i]))
		}
		for i := 0; i < motors; i++ {
			row = append(row, formatFloat(step.Action[i]))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
