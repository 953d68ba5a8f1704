package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/master/keys"
	"github.com/thaispalmer/yn-automation/internal/master/models"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/repomanager"
)

var generateKeys = keys.Generate

// UserService registers hosting customers and their deploy keys.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        keys.Store
	log         logging.Logger
}

// NewUserService constructs a UserService storing deploy keys in ks.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, ks keys.Store, l logging.Logger) *UserService {
	return &UserService{db: db, repomanager: m, keys: ks, log: l}
}

// Create registers an active user and generates their deploy keys. Email and
// username are stored lowercased and must both be unused.
func (s *UserService) Create(ctx context.Context, firstName, lastName, authToken, email, username string) (*models.User, error) {
	email = common.Normalize(email)
	username = common.Normalize(username)

	if err := common.ValidateUsername(username); err != nil {
		return nil, err
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email %q", common.ErrInvalidArgument, email)
	}

	repo := s.repomanager.Users(s.db)

	found, err := repo.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		switch {
		case found.Email == email && found.Username == username:
			return nil, common.ErrUsernameAndEmailUsed
		case found.Email == email:
			return nil, common.ErrEmailUsed
		default:
			return nil, common.ErrUsernameUsed
		}
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{
		FirstName: firstName,
		LastName:  lastName,
		AuthToken: authToken,
		Email:     email,
		Username:  username,
		Active:    true,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user created", "user", username, "id", user.ID)

	pair, err := generateKeys(username)
	if err != nil {
		return user, err
	}
	defer common.WipeByteArray(pair.Private)

	if err := s.keys.Put(ctx, username, pair); err != nil {
		return user, fmt.Errorf("%w: %w", common.ErrKeyGeneration, err)
	}
	s.log.Info(ctx, "deploy keys created", "user", username)

	return user, nil
}

// List returns every user with the number of applications they own.
func (s *UserService) List(ctx context.Context) ([]models.UserSummary, error) {
	return s.repomanager.Users(s.db).List(ctx)
}
