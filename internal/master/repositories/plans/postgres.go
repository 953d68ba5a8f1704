// Package plans persists the billing plan reference data.
package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/dbx"
	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// PostgresRepository is the Postgres plans repository.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO plans (id, name, price, cycle)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_on, updated_on
		 `

	err := r.db.QueryRowContext(ctx, query, plan.ID, plan.Name, plan.Price, plan.Cycle).Scan(&plan.CreatedOn, &plan.UpdatedOn)
	if err != nil {
		if _, ok := dbx.UniqueViolation(err); ok {
			return nil, common.ErrPlanExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return plan, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Plan, error) {
	query := `SELECT id, name, price, cycle, created_on, updated_on FROM plans WHERE name = $1`

	p := &models.Plan{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&p.ID, &p.Name, &p.Price, &p.Cycle, &p.CreatedOn, &p.UpdatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, price, cycle, created_on, updated_on FROM plans ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Cycle, &p.CreatedOn, &p.UpdatedOn); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
