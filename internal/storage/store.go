package storage

import (
	"context"

	"quadsim/internal/model"
)

// Store defines persistence operations for runs, their recorded steps and
// their summaries. ListRuns returns newest first; DeleteRun removes the
// run together with its steps and summary.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveSteps(ctx context.Context, batch model.StepBatch) error
	GetSteps(ctx context.Context, runID string) (model.StepBatch, bool, error)
	SaveSummary(ctx context.Context, summary model.RunSummary) error
	GetSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
}

// Resetter is an optional capability of a Store: dropping every recorded
// run in one call. Callers discover it with a type assertion.
type Resetter interface {
	Reset(ctx context.Context) error
}
