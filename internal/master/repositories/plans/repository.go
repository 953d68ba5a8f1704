package plans

import (
	"context"

	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// Repository persists plans.
type Repository interface {
	Create(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	GetByName(ctx context.Context, name string) (*models.Plan, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]models.Plan, error)
}
