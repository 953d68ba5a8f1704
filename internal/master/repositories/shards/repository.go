package shards

import (
	"context"

	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// Repository persists shards.
type Repository interface {
	Create(ctx context.Context, shard *models.Shard) (*models.Shard, error)
	GetByName(ctx context.Context, name string) (*models.Shard, error)
	// GetForUpdate reads a shard and locks its row until the surrounding
	// transaction ends. Placement on one shard is serialized by this lock.
	GetForUpdate(ctx context.Context, name string) (*models.Shard, error)
	// FindConflict returns a shard sharing the name, hostname or ip.
	// Hostname+ip matches come first, then name, hostname and ip matches.
	FindConflict(ctx context.Context, name, hostname, ip string) (*models.Shard, error)
	List(ctx context.Context) ([]models.Shard, error)
	// Load counts applications per shard. Shards without applications are
	// absent from the result.
	Load(ctx context.Context) ([]models.ShardLoad, error)
}
