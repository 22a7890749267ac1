package repository

import (
	"context"

	"github.com/splax/statichost/internal/domain"
)

// DeploymentRepository persists deployment records. Record existence is the
// source of truth for whether a deployment is active.
type DeploymentRepository interface {
	Put(ctx context.Context, record *domain.Deployment) error
	Get(ctx context.Context, id string) (*domain.Deployment, error)
	// List returns every record on disk ordered by filename. Ids embed a
	// unix timestamp, so lexicographic order tracks creation order.
	List(ctx context.Context) ([]domain.Deployment, error)
	// ListIDs enumerates record ids from filenames without decoding the
	// records, so callers can handle per-record failures individually.
	ListIDs(ctx context.Context) ([]string, error)
	// Delete removes the record file. A missing record is an error, not a
	// no-op: deletion is the final cleanup step and must be visible.
	Delete(ctx context.Context, id string) error
}
