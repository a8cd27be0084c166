package storage

import (
	"errors"

	jsoniter "github.com/json-iterator/go"

	"quadsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeSteps(b model.StepBatch) ([]byte, error) {
	return json.Marshal(b)
}

func DecodeSteps(data []byte) (model.StepBatch, error) {
	var batch model.StepBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return model.StepBatch{}, err
	}
	if err := checkVersion(batch.VersionedRecord); err != nil {
		return model.StepBatch{}, err
	}
	return batch, nil
}

func EncodeSummary(s model.RunSummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSummary(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
