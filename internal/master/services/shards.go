package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/master/models"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/repomanager"
	"github.com/thaispalmer/yn-automation/internal/master/selector"
)

// ShardService registers shards and reports their load.
type ShardService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

// NewShardService constructs a ShardService.
func NewShardService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *ShardService {
	return &ShardService{db: db, repomanager: m, log: l}
}

// Create registers a shard. A limit of 0 means unlimited.
func (s *ShardService) Create(ctx context.Context, name, hostname, ip string, limit int) (*models.Shard, error) {
	name = common.Normalize(name)
	hostname = common.Normalize(hostname)

	if err := common.ValidateName("shard name", name); err != nil {
		return nil, err
	}
	if hostname == "" {
		return nil, fmt.Errorf("%w: empty hostname", common.ErrInvalidArgument)
	}
	if net.ParseIP(ip) == nil {
		return nil, fmt.Errorf("%w: ip %q", common.ErrInvalidArgument, ip)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit %d", common.ErrInvalidArgument, limit)
	}

	repo := s.repomanager.Shards(s.db)

	found, err := repo.FindConflict(ctx, name, hostname, ip)
	switch {
	case err == nil:
		switch {
		case found.Hostname == hostname && found.IP == ip:
			return nil, common.ErrShardExists
		case found.Name == name:
			return nil, common.ErrShardNameUsed
		case found.Hostname == hostname:
			return nil, common.ErrShardHostnameUsed
		default:
			return nil, common.ErrShardIPUsed
		}
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error searching shard: %w", err)
	}

	shard, err := repo.Create(ctx, &models.Shard{Name: name, Hostname: hostname, IP: ip, Limit: limit})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "shard created", "shard", name, "ip", ip, "limit", limit)
	return shard, nil
}

func (s *ShardService) List(ctx context.Context) ([]models.Shard, error) {
	return s.repomanager.Shards(s.db).List(ctx)
}

// Usage returns every shard with its application count, least loaded first.
func (s *ShardService) Usage(ctx context.Context) ([]selector.Ranked, error) {
	repo := s.repomanager.Shards(s.db)

	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	load, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return selector.Rank(all, load), nil
}
