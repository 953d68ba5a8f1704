package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/dbx"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/master/keys"
	"github.com/thaispalmer/yn-automation/internal/master/models"
	"github.com/thaispalmer/yn-automation/internal/master/ports"
	"github.com/thaispalmer/yn-automation/internal/master/proxy"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/repomanager"
	"github.com/thaispalmer/yn-automation/internal/master/selector"
	"github.com/thaispalmer/yn-automation/internal/remote"
)

// MaxReserveAttempts bounds how often a port reservation is retried on one
// shard after losing a (shard, port) race.
const MaxReserveAttempts = 5

// ProxyManager is the part of proxy.Manager the workflows drive.
type ProxyManager interface {
	Generate(ctx context.Context, username, app, ip string, port int, customDomain string) error
	Snapshot(username, app string) (proxy.Snapshot, error)
	Restore(ctx context.Context, s proxy.Snapshot) error
	Enable(ctx context.Context, username, app string) error
	Disable(ctx context.Context, username, app string) error
	Remove(ctx context.Context, username, app string) error
	Reload(ctx context.Context) error
}

// ApplicationService provisions applications and drives their lifecycle on
// shards and on the proxy.
type ApplicationService struct {
	db                  *sql.DB
	repomanager         repomanager.RepositoryManager
	dispatcher          remote.Dispatcher
	proxy               ProxyManager
	keys                keys.Store
	allocator           *ports.Allocator
	log                 logging.Logger
	compensationTimeout time.Duration
}

// NewApplicationService constructs an ApplicationService. Compensations run
// with DefaultCompensationTimeout.
//
// Parameters:
//
//	db - database the store transactions run on
//	m  - repository factory bound to db or a transaction
//	d  - transport to the shard agents
//	p  - nginx virtual host manager
//	ks - deploy key store read when keys are shipped to a shard
//	a  - port allocator
//	l  - logger
func NewApplicationService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	d remote.Dispatcher,
	p ProxyManager,
	ks keys.Store,
	a *ports.Allocator,
	l logging.Logger,
) *ApplicationService {
	return &ApplicationService{
		db:                  db,
		repomanager:         m,
		dispatcher:          d,
		proxy:               p,
		keys:                ks,
		allocator:           a,
		log:                 l,
		compensationTimeout: DefaultCompensationTimeout,
	}
}

// Create provisions a new application for a user: it reserves a port on the
// least loaded shard, writes the proxy config, initializes the application
// directory on the shard and ships the user's deploy keys there. Any failure
// after the reservation undoes the completed steps.
func (s *ApplicationService) Create(ctx context.Context, userID, name, plan string) (_ *models.ApplicationOwner, err error) {
	name = common.Normalize(name)
	plan = common.Normalize(plan)

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := common.ValidateName("application name", name); err != nil {
		return nil, err
	}
	// Rows created before usernames lost the dash would share a proxy file
	// and unit with another tenant.
	if err := common.ValidateUsername(user.Username); err != nil {
		return nil, err
	}

	appsRepo := s.repomanager.Applications(s.db)
	exists, err := appsRepo.ExistsForUser(ctx, user.ID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", common.ErrDuplicateApplication, name)
	}

	if err := s.checkPlan(ctx, plan); err != nil {
		return nil, err
	}

	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	sg := newSaga(s.log, s.compensationTimeout)
	defer func() {
		if err != nil {
			s.log.Error(ctx, "application create failed, rolling back", "user", user.Username, "app", name, "err", err)
			sg.rollback(ctx)
		}
	}()

	app, shard, err := s.reserve(ctx, user, name, plan, candidates)
	if err != nil {
		return nil, err
	}
	sg.onRollback("release reservation", func(ctx context.Context) error {
		return s.repomanager.Applications(s.db).Delete(ctx, app.ID)
	})
	log := s.log.With("user", user.Username, "app", name, "shard", shard.Name, "port", app.Port)
	log.Info(ctx, "port reserved")

	if err = s.proxy.Generate(ctx, user.Username, name, shard.IP, app.Port, ""); err != nil {
		return nil, err
	}
	sg.onRollback("remove proxy config", func(ctx context.Context) error {
		return s.proxy.Remove(ctx, user.Username, name)
	})

	if _, err = s.dispatcher.Run(ctx, shard.IP, remote.Init(user.Username, name)); err != nil {
		return nil, err
	}
	sg.onRollback("destroy on shard", func(ctx context.Context) error {
		_, err := s.dispatcher.Run(ctx, shard.IP, remote.Destroy(user.Username, name))
		return err
	})
	log.Info(ctx, "application initialized on shard")

	if err = s.transferKeys(ctx, user.Username, shard.IP); err != nil {
		return nil, err
	}

	if err = s.repomanager.Applications(s.db).MarkProvisioned(ctx, app.ID); err != nil {
		return nil, err
	}
	app.State = models.StateProvisioned
	log.Info(ctx, "application created", "id", app.ID)

	return &models.ApplicationOwner{Application: *app, Username: user.Username}, nil
}

func (s *ApplicationService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	if !user.Active {
		return nil, common.ErrUserInactive
	}
	return user, nil
}

// checkPlan requires plan to exist once any plan has been defined.
func (s *ApplicationService) checkPlan(ctx context.Context, plan string) error {
	repo := s.repomanager.Plans(s.db)
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if _, err := repo.GetByName(ctx, plan); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: %s", common.ErrPlanNotFound, plan)
		}
		return err
	}
	return nil
}

func (s *ApplicationService) candidates(ctx context.Context) ([]selector.Ranked, error) {
	repo := s.repomanager.Shards(s.db)
	all, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	load, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}

	ranked := selector.Rank(all, load)
	if _, err := selector.Pick(ranked); err != nil {
		return nil, err
	}
	return selector.Candidates(ranked), nil
}

// reserve inserts the pending application row on the first candidate shard
// that still has room. The shard row is locked for the duration of the
// transaction; a lost (shard, port) race is retried with a new port.
func (s *ApplicationService) reserve(ctx context.Context, user *models.User, name, plan string, candidates []selector.Ranked) (*models.Application, *models.Shard, error) {
	var lastErr error

	for _, c := range candidates {
	attempts:
		for attempt := 1; attempt <= MaxReserveAttempts; attempt++ {
			var (
				app   *models.Application
				shard *models.Shard
			)
			err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
				appsRepo := s.repomanager.Applications(tx)

				sh, err := s.repomanager.Shards(tx).GetForUpdate(ctx, c.Shard.Name)
				if err != nil {
					return err
				}
				count, err := appsRepo.CountOnShard(ctx, sh.Name)
				if err != nil {
					return err
				}
				if !sh.HasCapacity(count) {
					return common.ErrShardFull
				}
				used, err := appsRepo.UsedPorts(ctx, sh.Name)
				if err != nil {
					return err
				}
				port, err := s.allocator.Allocate(used)
				if err != nil {
					return err
				}

				app, err = appsRepo.Insert(ctx, &models.Application{
					UserID: user.ID,
					Name:   name,
					Port:   port,
					Shard:  sh.Name,
					Plan:   plan,
					State:  models.StatePending,
				})
				shard = sh
				return err
			})

			switch {
			case err == nil:
				return app, shard, nil
			case errors.Is(err, common.ErrPortTaken):
				s.log.Warn(ctx, "port taken concurrently, retrying", "shard", c.Shard.Name, "attempt", attempt)
				lastErr = err
			case errors.Is(err, common.ErrShardFull), errors.Is(err, common.ErrPortRangeExhausted), errors.Is(err, common.ErrorNotFound):
				s.log.Warn(ctx, "shard unavailable, trying next", "shard", c.Shard.Name, "err", err)
				lastErr = err
				break attempts
			default:
				return nil, nil, err
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no candidate shards")
	}
	return nil, nil, fmt.Errorf("%w: %w", common.ErrNoShardsAvailable, lastErr)
}

func (s *ApplicationService) transferKeys(ctx context.Context, username, host string) error {
	pair, err := s.keys.Get(ctx, username)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, err)
	}
	defer common.WipeByteArray(pair.Private)

	if err := s.dispatcher.InstallKeys(ctx, host, username, pair); err != nil {
		return err
	}
	s.log.Info(ctx, "deploy keys transferred", "user", username, "host", host)
	return nil
}

// lookup loads an application with its owner and shard.
func (s *ApplicationService) lookup(ctx context.Context, appID string) (*models.ApplicationOwner, *models.Shard, error) {
	app, err := s.repomanager.Applications(s.db).GetByID(ctx, appID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrApplicationNotFound
		}
		return nil, nil, err
	}
	shard, err := s.repomanager.Shards(s.db).GetByName(ctx, app.Shard)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrShardNotFound
		}
		return nil, nil, err
	}
	return app, shard, nil
}

// SetDomain rewrites the proxy config with a custom domain block, or with
// the primary block only when domain is empty, and stores the domain.
func (s *ApplicationService) SetDomain(ctx context.Context, appID, domain string) (*models.ApplicationOwner, error) {
	domain = common.Normalize(domain)

	app, shard, err := s.lookup(ctx, appID)
	if err != nil {
		return nil, err
	}
	if domain != "" {
		if err := common.ValidateDomain(domain); err != nil {
			return nil, err
		}
	}

	snap, err := s.proxy.Snapshot(app.Username, app.Name)
	if err != nil {
		return nil, err
	}
	if err := s.proxy.Generate(ctx, app.Username, app.Name, shard.IP, app.Port, domain); err != nil {
		return nil, err
	}

	if err := s.repomanager.Applications(s.db).SetCustomDomain(ctx, app.ID, domain); err != nil {
		sg := newSaga(s.log, s.compensationTimeout)
		sg.onRollback("restore proxy config", func(ctx context.Context) error {
			return s.proxy.Restore(ctx, snap)
		})
		sg.rollback(ctx)
		return nil, err
	}
	app.CustomDomain = domain

	if app.Enabled {
		if err := s.proxy.Reload(ctx); err != nil {
			return nil, err
		}
	}
	s.log.Info(ctx, "custom domain configured", "app", app.Name, "domain", domain)
	return app, nil
}

// Enable publishes the application through the proxy. Enabling an enabled
// application refreshes the link and succeeds.
func (s *ApplicationService) Enable(ctx context.Context, appID string) (*models.ApplicationOwner, error) {
	app, _, err := s.lookup(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.Enabled {
		s.log.Warn(ctx, "application already enabled, relinking", "app", app.Name)
	}

	if err := s.proxy.Enable(ctx, app.Username, app.Name); err != nil {
		return nil, err
	}

	if err := s.repomanager.Applications(s.db).SetEnabled(ctx, app.ID, true); err != nil {
		sg := newSaga(s.log, s.compensationTimeout)
		sg.onRollback("unlink proxy config", func(ctx context.Context) error {
			return s.proxy.Disable(ctx, app.Username, app.Name)
		})
		sg.rollback(ctx)
		return nil, err
	}
	app.Enabled = true
	s.log.Info(ctx, "application enabled", "app", app.Name)
	return app, nil
}

// Disable removes the application from the proxy.
func (s *ApplicationService) Disable(ctx context.Context, appID string) (*models.ApplicationOwner, error) {
	app, _, err := s.lookup(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.proxy.Disable(ctx, app.Username, app.Name); err != nil {
		return nil, err
	}
	if err := s.repomanager.Applications(s.db).SetEnabled(ctx, app.ID, false); err != nil {
		return nil, err
	}
	app.Enabled = false
	s.log.Info(ctx, "application disabled", "app", app.Name)
	return app, nil
}

// runOnShard sends one agent command for an application to its shard.
func (s *ApplicationService) runOnShard(ctx context.Context, appID string, build func(app *models.ApplicationOwner) remote.Command) (*models.ApplicationOwner, string, error) {
	app, shard, err := s.lookup(ctx, appID)
	if err != nil {
		return nil, "", err
	}
	cmd := build(app)
	out, err := s.dispatcher.Run(ctx, shard.IP, cmd)
	if err != nil {
		return nil, "", err
	}
	s.log.Info(ctx, "shard command done", "app", app.Name, "shard", shard.Name, "op", cmd.Op)
	return app, out, nil
}

// Update regenerates the service unit and installs dependencies on the shard.
func (s *ApplicationService) Update(ctx context.Context, appID string) (*models.ApplicationOwner, error) {
	app, _, err := s.runOnShard(ctx, appID, func(a *models.ApplicationOwner) remote.Command {
		return remote.Update(a.Username, a.Name, a.Port)
	})
	return app, err
}

// Deploy clones repository into the application directory on the shard.
func (s *ApplicationService) Deploy(ctx context.Context, appID, repository string) (*models.ApplicationOwner, error) {
	if repository == "" {
		return nil, fmt.Errorf("%w: empty repository", common.ErrInvalidArgument)
	}
	app, _, err := s.runOnShard(ctx, appID, func(a *models.ApplicationOwner) remote.Command {
		return remote.Clone(a.Username, a.Name, repository)
	})
	return app, err
}

// Pull fetches the latest commit of the configured branch on the shard.
func (s *ApplicationService) Pull(ctx context.Context, appID string) (*models.ApplicationOwner, error) {
	app, _, err := s.runOnShard(ctx, appID, func(a *models.ApplicationOwner) remote.Command {
		return remote.Pull(a.Username, a.Name)
	})
	return app, err
}

// Start enables and starts the application service on its shard.
func (s *ApplicationService) Start(ctx context.Context, appID string) (*models.ApplicationOwner, error) {
	app, _, err := s.runOnShard(ctx, appID, func(a *models.ApplicationOwner) remote.Command {
		return remote.Start(a.Username, a.Name)
	})
	return app, err
}

// Stop stops and disables the application service on its shard.
func (s *ApplicationService) Stop(ctx context.Context, appID string) (*models.ApplicationOwner, error) {
	app, _, err := s.runOnShard(ctx, appID, func(a *models.ApplicationOwner) remote.Command {
		return remote.Stop(a.Username, a.Name)
	})
	return app, err
}

// Status returns the lifecycle state the shard agent reports.
func (s *ApplicationService) Status(ctx context.Context, appID string) (*models.ApplicationOwner, string, error) {
	app, out, err := s.runOnShard(ctx, appID, func(a *models.ApplicationOwner) remote.Command {
		return remote.Status(a.Username, a.Name)
	})
	return app, strings.TrimSpace(out), err
}

// List returns all applications, or those of one user when userID is set.
func (s *ApplicationService) List(ctx context.Context, userID string) ([]models.ApplicationOwner, error) {
	repo := s.repomanager.Applications(s.db)
	if userID == "" {
		return repo.List(ctx)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	apps, err := repo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ApplicationOwner, 0, len(apps))
	for _, a := range apps {
		out = append(out, models.ApplicationOwner{Application: a, Username: user.Username})
	}
	return out, nil
}
