package users

import (
	"context"

	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// FindByEmailOrUsername returns the user that best explains a conflict:
	// one matching both values first, then an email match, then a username
	// match.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
	List(ctx context.Context) ([]models.UserSummary, error)
}
