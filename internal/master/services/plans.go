package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/master/models"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/repomanager"
)

// PlanService manages billing plans applications are created on.
type PlanService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

// NewPlanService constructs a PlanService.
func NewPlanService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *PlanService {
	return &PlanService{db: db, repomanager: m, log: l}
}

// Create adds a billing plan; cycle is the billing period in days.
func (s *PlanService) Create(ctx context.Context, name string, price float64, cycle int) (*models.Plan, error) {
	name = common.Normalize(name)
	if err := common.ValidateName("plan name", name); err != nil {
		return nil, err
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price %v", common.ErrInvalidArgument, price)
	}
	if cycle <= 0 {
		return nil, fmt.Errorf("%w: cycle %d", common.ErrInvalidArgument, cycle)
	}

	plan, err := s.repomanager.Plans(s.db).Create(ctx, &models.Plan{Name: name, Price: price, Cycle: cycle})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "plan created", "plan", name)
	return plan, nil
}

func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	return s.repomanager.Plans(s.db).List(ctx)
}
