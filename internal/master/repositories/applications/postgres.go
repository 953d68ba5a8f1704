// Package applications persists applications, each owned by a user row.
package applications

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

// PostgresRepository is the Postgres applications repository.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const appColumns = `a.id, a.user_id, a.name, a.port, a.custom_domain, a.created_on, a.shard, a.plan, a.enabled, a.state`

func (r *PostgresRepository) Insert(ctx context.Context, app *models.Application) (*models.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.State == "" {
		app.State = models.StatePending
	}

	query :=
		`INSERT INTO applications (id, user_id, name, port, custom_domain, shard, plan, enabled, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_on
		 `

	err := r.db.QueryRowContext(ctx, query,
		app.ID, app.UserID, app.Name, app.Port, app.CustomDomain, app.Shard, app.Plan, app.Enabled, string(app.State),
	).Scan(&app.CreatedOn)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			switch constraint {
			case "applications_shard_port_key":
				return nil, common.ErrPortTaken
			case "applications_user_name_key":
				return nil, common.ErrDuplicateApplication
			}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return app, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ApplicationOwner, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + appColumns + `, u.username
		 FROM applications a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.id = $1
		 `

	o := &models.ApplicationOwner{}
	var state string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.UserID, &o.Name, &o.Port, &o.CustomDomain,
		&o.CreatedOn, &o.Shard, &o.Plan, &o.Enabled, &state, &o.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	o.State = models.ApplicationState(state)
	return o, nil
}

// ExistsForUser reports whether the user has an application called name,
// pending rows included.
func (r *PostgresRepository) ExistsForUser(ctx context.Context, userID, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM applications WHERE user_id = $1 AND name = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UsedPorts(ctx context.Context, shard string) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT port FROM applications WHERE shard = $1`, shard)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ports []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ports = append(ports, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ports, nil
}

func (r *PostgresRepository) CountOnShard(ctx context.Context, shard string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications WHERE shard = $1`, shard).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) MarkProvisioned(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE applications SET state = 'provisioned' WHERE id = $1`, id)
}

func (r *PostgresRepository) SetCustomDomain(ctx context.Context, id, domain string) error {
	return r.update(ctx, `UPDATE applications SET custom_domain = $2 WHERE id = $1`, id, domain)
}

func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, `UPDATE applications SET enabled = $2 WHERE id = $1`, id, enabled)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.update(ctx, `DELETE FROM applications WHERE id = $1`, id)
}

func (r *PostgresRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.ApplicationOwner, error) {
	query :=
		`SELECT ` + appColumns + `, u.username
		 FROM applications a
		 JOIN users u ON u.id = a.user_id
		 ORDER BY u.username, a.created_on, a.name
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ApplicationOwner
	for rows.Next() {
		var o models.ApplicationOwner
		var state string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Name, &o.Port, &o.CustomDomain, &o.CreatedOn,
			&o.Shard, &o.Plan, &o.Enabled, &state, &o.Username); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		o.State = models.ApplicationState(state)
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Application, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	query :=
		`SELECT ` + appColumns + `
		 FROM applications a
		 WHERE a.user_id = $1
		 ORDER BY a.created_on, a.name
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Application
	for rows.Next() {
		var a models.Application
		var state string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Port, &a.CustomDomain, &a.CreatedOn,
			&a.Shard, &a.Plan, &a.Enabled, &state); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		a.State = models.ApplicationState(state)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
