package storage

import (
	"context"
	"sort"
	"sync"

	"quadsim/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]model.RunRecord
	steps     map[string]model.StepBatch
	summaries map[string]model.RunSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.RunRecord)
	s.steps = make(map[string]model.StepBatch)
	s.summaries = make(map[string]model.RunSummary)
	return nil
}

// Reset drops every stored run, step batch and summary.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.RunRecord)
	s.steps = make(map[string]model.StepBatch)
	s.summaries = make(map[string]model.RunSummary)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.steps, id)
	delete(s.summaries, id)
	return nil
}

func (s *MemoryStore) SaveSteps(_ context.Context, batch model.StepBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.steps[batch.RunID] = copyBatch(batch)
	return nil
}

func (s *MemoryStore) GetSteps(_ context.Context, runID string) (model.StepBatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.steps[runID]
	if !ok {
		return model.StepBatch{}, false, nil
	}
	return copyBatch(batch), true, nil
}

func (s *MemoryStore) SaveSummary(_ context.Context, summary model.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[summary.RunID] = summary
	return nil
}

func (s *MemoryStore) GetSummary(_ context.Context, runID string) (model.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[runID]
	return summary, ok, nil
}

// copyBatch deep-copies a batch so callers and the store never share step
// slices.
func copyBatch(batch model.StepBatch) model.StepBatch {
	copied := model.StepBatch{
		VersionedRecord: batch.VersionedRecord,
		RunID:           batch.RunID,
		Steps:           make([]model.StepRecord, len(batch.Steps)),
	}
	for i, step := range batch.Steps {
		step.MotorAngles = append([]float64(nil), step.MotorAngles...)
		step.Action = append([]float64(nil), step.Action...)
		copied.Steps[i] = step
	}
	return copied
}
