package applications

import (
	"context"

	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// Repository persists applications and their (shard, port) reservations.
type Repository interface {
	// Insert stores a new application row. A (shard, port) collision
	// returns common.ErrPortTaken, a (user, name) collision returns
	// common.ErrDuplicateApplication.
	Insert(ctx context.Context, app *models.Application) (*models.Application, error)
	GetByID(ctx context.Context, id string) (*models.ApplicationOwner, error)
	ExistsForUser(ctx context.Context, userID, name string) (bool, error)
	UsedPorts(ctx context.Context, shard string) ([]int, error)
	CountOnShard(ctx context.Context, shard string) (int, error)
	MarkProvisioned(ctx context.Context, id string) error
	SetCustomDomain(ctx context.Context, id, domain string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.ApplicationOwner, error)
	ListByUser(ctx context.Context, userID string) ([]models.Application, error)
}
