package storage

import (
	"context"

	"github.com/haasonsaas/ragbench/pkg/models"
)

// Store persists benchmark runs and the promoted baseline.
type Store interface {
	SaveRun(ctx context.Context, a *models.ResultArtifact) error
	GetRun(ctx context.Context, id string) (*models.ResultArtifact, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Promote(ctx context.Context, id string) error
	Baseline(ctx context.Context) (*Baseline, error)
	Close() error
}

var _ Store = (*RunStore)(nil)
