// Package cli maps yn-master command lines onto the master services and
// reports the outcome.
package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/master/models"
	"github.com/thaispalmer/yn-automation/internal/master/selector"
)

type UserService interface {
	Create(ctx context.Context, firstName, lastName, authToken, email, username string) (*models.User, error)
	List(ctx context.Context) ([]models.UserSummary, error)
}

type ShardService interface {
	Create(ctx context.Context, name, hostname, ip string, limit int) (*models.Shard, error)
	List(ctx context.Context) ([]models.Shard, error)
	Usage(ctx context.Context) ([]selector.Ranked, error)
}

type PlanService interface {
	Create(ctx context.Context, name string, price float64, cycle int) (*models.Plan, error)
	List(ctx context.Context) ([]models.Plan, error)
}

type ApplicationService interface {
	Create(ctx context.Context, userID, name, plan string) (*models.ApplicationOwner, error)
	SetDomain(ctx context.Context, appID, domain string) (*models.ApplicationOwner, error)
	Enable(ctx context.Context, appID string) (*models.ApplicationOwner, error)
	Disable(ctx context.Context, appID string) (*models.ApplicationOwner, error)
	Update(ctx context.Context, appID string) (*models.ApplicationOwner, error)
	Deploy(ctx context.Context, appID, repository string) (*models.ApplicationOwner, error)
	Pull(ctx context.Context, appID string) (*models.ApplicationOwner, error)
	Start(ctx context.Context, appID string) (*models.ApplicationOwner, error)
	Stop(ctx context.Context, appID string) (*models.ApplicationOwner, error)
	Status(ctx context.Context, appID string) (*models.ApplicationOwner, string, error)
	List(ctx context.Context, userID string) ([]models.ApplicationOwner, error)
}

// Services bundles what the commands run against.
type Services struct {
	Users        UserService
	Shards       ShardService
	Plans        PlanService
	Applications ApplicationService
}

// Router dispatches parsed commands to the services and reports results.
type Router struct {
	svc Services
	rep *Reporter
}

// NewRouter constructs a Router.
func NewRouter(svc Services, rep *Reporter) *Router {
	return &Router{svc: svc, rep: rep}
}

// Execute runs a parsed command. A failure is reported before it is
// returned.
func (r *Router) Execute(ctx context.Context, inv *Invocation) error {
	if err := inv.cmd.run(ctx, r, inv.args); err != nil {
		r.rep.Fail(ctx, err)
		return err
	}
	return nil
}

func parseInt(kind, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", common.ErrInvalidArgument, kind, s)
	}
	return n, nil
}

func createUser(ctx context.Context, r *Router, a []string) error {
	u, err := r.svc.Users.Create(ctx, a[0], a[1], a[2], a[3], a[4])
	if err != nil {
		return err
	}
	r.rep.OK(ctx, u, "User %s created - User ID: %s", u.Username, u.ID)
	return nil
}

func createApp(ctx context.Context, r *Router, a []string) error {
	app, err := r.svc.Applications.Create(ctx, a[0], a[1], a[2])
	if err != nil {
		return err
	}
	r.rep.OK(ctx, app, "Application %s created successfully on %s:%d - Application ID: %s", app.Name, app.Shard, app.Port, app.ID)
	return nil
}

func createShard(ctx context.Context, r *Router, a []string) error {
	limit, err := parseInt("limit", a[3])
	if err != nil {
		return err
	}
	sh, err := r.svc.Shards.Create(ctx, a[0], a[1], a[2], limit)
	if err != nil {
		return err
	}
	r.rep.OK(ctx, sh, "Shard %s created successfully", sh.Name)
	return nil
}

func createPlan(ctx context.Context, r *Router, a []string) error {
	price, err := strconv.ParseFloat(a[1], 64)
	if err != nil {
		return fmt.Errorf("%w: price %q is not a number", common.ErrInvalidArgument, a[1])
	}
	cycle, err := parseInt("cycle", a[2])
	if err != nil {
		return err
	}
	p, err := r.svc.Plans.Create(ctx, a[0], price, cycle)
	if err != nil {
		return err
	}
	r.rep.OK(ctx, p, "Plan %s created successfully", p.Name)
	return nil
}

func setDomain(ctx context.Context, r *Router, a []string) error {
	domain := ""
	if len(a) > 1 {
		domain = a[1]
	}
	app, err := r.svc.Applications.SetDomain(ctx, a[0], domain)
	if err != nil {
		return err
	}
	if app.CustomDomain == "" {
		r.rep.OK(ctx, app, "Custom domain for %s removed successfully", app.Name)
		return nil
	}
	r.rep.OK(ctx, app, "Custom domain for %s configured successfully", app.Name)
	return nil
}

// appAction runs a single-application operation and reports it with format,
// which receives the application name.
func appAction(op func(context.Context, string) (*models.ApplicationOwner, error), format string) handler {
	return func(ctx context.Context, r *Router, a []string) error {
		app, err := op(ctx, a[0])
		if err != nil {
			return err
		}
		r.rep.OK(ctx, app, format, app.Name)
		return nil
	}
}

func enableApp(ctx context.Context, r *Router, a []string) error {
	return appAction(r.svc.Applications.Enable, "Application %s enabled successfully")(ctx, r, a)
}

func disableApp(ctx context.Context, r *Router, a []string) error {
	return appAction(r.svc.Applications.Disable, "Application %s disabled successfully")(ctx, r, a)
}

func updateApp(ctx context.Context, r *Router, a []string) error {
	return appAction(r.svc.Applications.Update, "Application %s settings and dependencies updated successfully")(ctx, r, a)
}

func pullApp(ctx context.Context, r *Router, a []string) error {
	return appAction(r.svc.Applications.Pull, "Application %s updated to the latest code")(ctx, r, a)
}

func startApp(ctx context.Context, r *Router, a []string) error {
	return appAction(r.svc.Applications.Start, "Application %s started")(ctx, r, a)
}

func stopApp(ctx context.Context, r *Router, a []string) error {
	return appAction(r.svc.Applications.Stop, "Application %s stopped")(ctx, r, a)
}

func deployApp(ctx context.Context, r *Router, a []string) error {
	app, err := r.svc.Applications.Deploy(ctx, a[0], a[1])
	if err != nil {
		return err
	}
	r.rep.OK(ctx, app, "Application %s deployed from %s", app.Name, a[1])
	return nil
}

func statusApp(ctx context.Context, r *Router, a []string) error {
	app, state, err := r.svc.Applications.Status(ctx, a[0])
	if err != nil {
		return err
	}
	r.rep.OK(ctx, map[string]any{"application": app, "state": state}, "Application %s is %s", app.Name, state)
	return nil
}

func listShards(ctx context.Context, r *Router, _ []string) error {
	all, err := r.svc.Shards.List(ctx)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(all))
	for _, s := range all {
		lines = append(lines, s.Name)
	}
	r.rep.Listing(ctx, all, "Listing Shards:", lines, fmt.Sprintf("Total of %d shards.", len(all)), "No Shards found.")
	return nil
}

func listShardUsage(ctx context.Context, r *Router, _ []string) error {
	usage, err := r.svc.Shards.Usage(ctx)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(usage))
	for _, u := range usage {
		lines = append(lines, fmt.Sprintf("%s : %d apps", u.Shard.Name, u.Count))
	}
	r.rep.Listing(ctx, usage, "Listing Shards by Usage:", lines, fmt.Sprintf("Total of %d shards.", len(usage)), "No Shards found.")
	return nil
}

func listUsers(ctx context.Context, r *Router, _ []string) error {
	users, err := r.svc.Users.List(ctx)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(users))
	for _, u := range users {
		lines = append(lines, fmt.Sprintf("%s (%s) has %d applications - User ID: %s", u.FullName(), u.Username, u.AppCount, u.ID))
	}
	r.rep.Listing(ctx, users, "Listing Users:", lines, fmt.Sprintf("Total of %d users.", len(users)), "No Users found.")
	return nil
}

func listApps(ctx context.Context, r *Router, a []string) error {
	userID := ""
	if len(a) > 0 {
		userID = a[0]
	}
	apps, err := r.svc.Applications.List(ctx, userID)
	if err != nil {
		return err
	}

	header := "Listing Applications:"
	lines := make([]string, 0, len(apps))
	for _, app := range apps {
		if userID != "" {
			header = "Listing Applications for " + app.Username + ":"
			lines = append(lines, fmt.Sprintf("%s - Hosted on %s - Application ID: %s - State: %s", app.Name, app.Shard, app.ID, app.State))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (owned by %s) - Hosted on %s - Application ID: %s - State: %s", app.Name, app.Username, app.Shard, app.ID, app.State))
	}
	r.rep.Listing(ctx, apps, header, lines, fmt.Sprintf("Total of %d applications.", len(apps)), "No applications found.")
	return nil
}

func listPlans(ctx context.Context, r *Router, _ []string) error {
	plans, err := r.svc.Plans.List(ctx)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(plans))
	for _, p := range plans {
		lines = append(lines, fmt.Sprintf("%s : %.2f every %d days", p.Name, p.Price, p.Cycle))
	}
	r.rep.Listing(ctx, plans, "Listing Plans:", lines, fmt.Sprintf("Total of %d plans.", len(plans)), "No Plans found.")
	return nil
}
