package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/dbx"
	"github.com/thaispalmer/yn-automation/internal/master/models"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/applications"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/plans"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/shards"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/users"
	"github.com/thaispalmer/yn-automation/internal/remote"
)

// newTxDB returns an in-memory database; the fake repositories ignore it,
// but dbx.WithTx needs a real *sql.DB to begin and commit on.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// memStore backs the fake repositories with the same uniqueness rules as
// the SQL schema.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	shards map[string]*models.Shard
	apps   map[string]*models.Application
	plans  map[string]*models.Plan

	// insertErrs is consumed one error per Insert call before the insert
	// is attempted.
	insertErrs   []error
	markErr      error
	domainErr    error
	enabledErr   error
	deleteErr    error
	listShardErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		shards: map[string]*models.Shard{},
		apps:   map[string]*models.Application{},
		plans:  map[string]*models.Plan{},
	}
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return &fakeUsersRepo{m.s} }
func (m *fakeRepoManager) Shards(dbx.DBTX) shards.Repository            { return &fakeShardsRepo{m.s} }
func (m *fakeRepoManager) Applications(dbx.DBTX) applications.Repository {
	return &fakeAppsRepo{m.s}
}
func (m *fakeRepoManager) Plans(dbx.DBTX) plans.Repository { return &fakePlansRepo{m.s} }

// --- users ---

type fakeUsersRepo struct{ s *memStore }

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.Email == u.Email {
			return nil, common.ErrEmailUsed
		}
		if x.Username == u.Username {
			return nil, common.ErrUsernameUsed
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.MemberSince = time.Now()
	u.LastTOSSigned = u.MemberSince
	cp := *u
	r.s.users[u.ID] = &cp
	return u, nil
}

func (r *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUsersRepo) FindByEmailOrUsername(_ context.Context, email, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var byEmail, byName *models.User
	for _, u := range r.s.users {
		switch {
		case u.Email == email && u.Username == username:
			cp := *u
			return &cp, nil
		case u.Email == email:
			byEmail = u
		case u.Username == username:
			byName = u
		}
	}
	if byEmail != nil {
		cp := *byEmail
		return &cp, nil
	}
	if byName != nil {
		cp := *byName
		return &cp, nil
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) List(_ context.Context) ([]models.UserSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.UserSummary{}
	for _, u := range r.s.users {
		n := 0
		for _, a := range r.s.apps {
			if a.UserID == u.ID {
				n++
			}
		}
		out = append(out, models.UserSummary{User: *u, AppCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// --- shards ---

type fakeShardsRepo struct{ s *memStore }

func (r *fakeShardsRepo) Create(_ context.Context, sh *models.Shard) (*models.Shard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.shards[sh.Name]; ok {
		return nil, common.ErrShardNameUsed
	}
	sh.CreatedOn = time.Now()
	cp := *sh
	r.s.shards[sh.Name] = &cp
	return sh, nil
}

func (r *fakeShardsRepo) GetByName(_ context.Context, name string) (*models.Shard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.shards[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *sh
	return &cp, nil
}

func (r *fakeShardsRepo) GetForUpdate(ctx context.Context, name string) (*models.Shard, error) {
	return r.GetByName(ctx, name)
}

func (r *fakeShardsRepo) FindConflict(_ context.Context, name, hostname, ip string) (*models.Shard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rank := func(sh *models.Shard) int {
		switch {
		case sh.Hostname == hostname && sh.IP == ip:
			return 0
		case sh.Name == name:
			return 1
		case sh.Hostname == hostname:
			return 2
		case sh.IP == ip:
			return 3
		}
		return -1
	}
	var best *models.Shard
	for _, sh := range r.s.shards {
		k := rank(sh)
		if k < 0 {
			continue
		}
		if best == nil || k < rank(best) {
			best = sh
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeShardsRepo) List(_ context.Context) ([]models.Shard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listShardErr != nil {
		return nil, r.s.listShardErr
	}
	out := []models.Shard{}
	for _, sh := range r.s.shards {
		out = append(out, *sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeShardsRepo) Load(_ context.Context) ([]models.ShardLoad, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int{}
	for _, a := range r.s.apps {
		counts[a.Shard]++
	}
	out := []models.ShardLoad{}
	for name, n := range counts {
		out = append(out, models.ShardLoad{Shard: name, Count: n})
	}
	return out, nil
}

// --- applications ---

type fakeAppsRepo struct{ s *memStore }

func (r *fakeAppsRepo) Insert(_ context.Context, app *models.Application) (*models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.insertErrs) > 0 {
		err := r.s.insertErrs[0]
		r.s.insertErrs = r.s.insertErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	for _, a := range r.s.apps {
		if a.Shard == app.Shard && a.Port == app.Port {
			return nil, common.ErrPortTaken
		}
		if a.UserID == app.UserID && a.Name == app.Name {
			return nil, common.ErrDuplicateApplication
		}
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.CreatedOn = time.Now()
	cp := *app
	r.s.apps[app.ID] = &cp
	return app, nil
}

func (r *fakeAppsRepo) GetByID(_ context.Context, id string) (*models.ApplicationOwner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.apps[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.ApplicationOwner{Application: *a, Username: r.s.users[a.UserID].Username}, nil
}

func (r *fakeAppsRepo) ExistsForUser(_ context.Context, userID, name string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.apps {
		if a.UserID == userID && a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAppsRepo) UsedPorts(_ context.Context, shard string) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []int
	for _, a := range r.s.apps {
		if a.Shard == shard {
			out = append(out, a.Port)
		}
	}
	return out, nil
}

func (r *fakeAppsRepo) CountOnShard(_ context.Context, shard string) (int, error) {
	used, _ := r.UsedPorts(context.Background(), shard)
	return len(used), nil
}

func (r *fakeAppsRepo) update(id string, err error, fn func(a *models.Application)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err != nil {
		return err
	}
	a, ok := r.s.apps[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(a)
	return nil
}

func (r *fakeAppsRepo) MarkProvisioned(_ context.Context, id string) error {
	return r.update(id, r.s.markErr, func(a *models.Application) { a.State = models.StateProvisioned })
}

func (r *fakeAppsRepo) SetCustomDomain(_ context.Context, id, domain string) error {
	return r.update(id, r.s.domainErr, func(a *models.Application) { a.CustomDomain = domain })
}

func (r *fakeAppsRepo) SetEnabled(_ context.Context, id string, enabled bool) error {
	return r.update(id, r.s.enabledErr, func(a *models.Application) { a.Enabled = enabled })
}

func (r *fakeAppsRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.deleteErr != nil {
		return r.s.deleteErr
	}
	if _, ok := r.s.apps[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.apps, id)
	return nil
}

func (r *fakeAppsRepo) List(_ context.Context) ([]models.ApplicationOwner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.ApplicationOwner{}
	for _, a := range r.s.apps {
		out = append(out, models.ApplicationOwner{Application: *a, Username: r.s.users[a.UserID].Username})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeAppsRepo) ListByUser(_ context.Context, userID string) ([]models.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Application{}
	for _, a := range r.s.apps {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- plans ---

type fakePlansRepo struct{ s *memStore }

func (r *fakePlansRepo) Create(_ context.Context, p *models.Plan) (*models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.plans[p.Name]; ok {
		return nil, common.ErrPlanExists
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.s.plans[p.Name] = &cp
	return p, nil
}

func (r *fakePlansRepo) GetByName(_ context.Context, name string) (*models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlansRepo) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.plans), nil
}

func (r *fakePlansRepo) List(_ context.Context) ([]models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Plan{}
	for _, p := range r.s.plans {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- dispatcher ---

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []string
	installs []string
	// errs fails every command with the given op.
	errs       map[string]error
	out        map[string]string
	installErr error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{errs: map[string]error{}, out: map[string]string{}}
}

func (d *fakeDispatcher) Run(_ context.Context, host string, cmd remote.Command) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, host+": "+cmd.String())
	if err := d.errs[cmd.Op]; err != nil {
		return "", &common.RemoteCommandFailed{Host: host, Command: cmd.String(), ExitCode: 1, Stderr: "boom", Err: err}
	}
	return d.out[cmd.Op], nil
}

func (d *fakeDispatcher) InstallKeys(_ context.Context, host, username string, pair common.KeyPair) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.installErr != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, d.installErr)
	}
	if len(pair.Private) == 0 || len(pair.Public) == 0 {
		return fmt.Errorf("%w: empty key material", common.ErrKeyTransfer)
	}
	d.installs = append(d.installs, host+": "+username)
	return nil
}

func (d *fakeDispatcher) ranOp(op string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.calls {
		if strings.Contains(c, " "+op+" ") {
			return true
		}
	}
	return false
}
