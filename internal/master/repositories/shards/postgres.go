// Package shards persists shard hosts in PostgreSQL.
package shards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/dbx"
	"github.com/thaispalmer/yn-automation/internal/master/models"
)

// PostgresRepository is the Postgres shards repository.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const shardColumns = `name, hostname, ip, "limit", created_on`

func (r *PostgresRepository) Create(ctx context.Context, shard *models.Shard) (*models.Shard, error) {
	query :=
		`INSERT INTO shards (name, hostname, ip, "limit")
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_on
		 `

	err := r.db.QueryRowContext(ctx, query, shard.Name, shard.Hostname, shard.IP, shard.Limit).Scan(&shard.CreatedOn)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			switch constraint {
			case "shards_pkey":
				return nil, common.ErrShardNameUsed
			case "shards_hostname_key":
				return nil, common.ErrShardHostnameUsed
			case "shards_ip_key":
				return nil, common.ErrShardIPUsed
			}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return shard, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Shard, error) {
	return r.getOne(ctx, `SELECT `+shardColumns+` FROM shards WHERE name = $1`, name)
}

// GetForUpdate is GetByName holding a row lock until the transaction ends.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, name string) (*models.Shard, error) {
	return r.getOne(ctx, `SELECT `+shardColumns+` FROM shards WHERE name = $1 FOR UPDATE`, name)
}

func (r *PostgresRepository) FindConflict(ctx context.Context, name, hostname, ip string) (*models.Shard, error) {
	query :=
		`SELECT ` + shardColumns + ` FROM shards
		 WHERE name = $1 OR hostname = $2 OR ip = $3
		 ORDER BY (hostname = $2 AND ip = $3) DESC, (name = $1) DESC, (hostname = $2) DESC
		 LIMIT 1
		 `
	return r.getOne(ctx, query, name, hostname, ip)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Shard, error) {
	s := &models.Shard{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.Name, &s.Hostname, &s.IP, &s.Limit, &s.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Shard, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+shardColumns+` FROM shards ORDER BY created_on, name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Shard
	for rows.Next() {
		var s models.Shard
		if err := rows.Scan(&s.Name, &s.Hostname, &s.IP, &s.Limit, &s.CreatedOn); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Load(ctx context.Context) ([]models.ShardLoad, error) {
	query :=
		`SELECT shard, COUNT(*) FROM applications
		 GROUP BY shard
		 ORDER BY COUNT(*), shard
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ShardLoad
	for rows.Next() {
		var l models.ShardLoad
		if err := rows.Scan(&l.Shard, &l.Count); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
