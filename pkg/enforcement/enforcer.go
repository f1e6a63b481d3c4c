package enforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/plans"
)

// Counter names in the usage cache
const (
	counterSeats          = "seats"
	counterPendingInvites = "pending_invites"
	counterContracts      = "contracts"
	counterTemplates      = "templates"
	counterAIDrafts       = "ai_drafts"
)

// SubscriptionGetter loads a team's subscription
type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, teamID int64) (*billing.Subscription, error)
}

// UsageCache caches per-cycle usage counters
type UsageCache interface {
	GetUsage(ctx context.Context, teamID int64, cycleStart time.Time, resource string) (int64, bool, error)
	SetUsage(ctx context.Context, teamID int64, cycleStart time.Time, resource string, value int64) error
	IncrUsage(ctx context.Context, teamID int64, cycleStart time.Time, resource string) (bool, error)
	InvalidateTeam(ctx context.Context, teamID int64) error
}

// Snapshot is a team's effective plan, billing cycle and usage at a point in time
type Snapshot struct {
	Plan  plans.Plan    `json:"plan"`
	Cycle billing.Cycle `json:"cycle"`
	Usage plans.Usage   `json:"usage"`
}

// Options configures an Enforcer
type Options struct {
	Cache   UsageCache // optional
	Metrics *observability.Metrics
	Logger  *observability.Logger
	Now     func() time.Time
}

// Enforcer applies plan limits to a team's live usage
type Enforcer struct {
	subs    SubscriptionGetter
	source  UsageSource
	cache   UsageCache
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time
}

// NewEnforcer creates a new plan enforcer
func NewEnforcer(subs SubscriptionGetter, source UsageSource, opts Options) *Enforcer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Enforcer{
		subs:    subs,
		source:  source,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  opts.Logger.WithField("component", "enforcement"),
		now:     opts.Now,
	}
}

// calendarEpoch anchors the monthly cycle of teams without a billable subscription
var calendarEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// effective returns the plan and cycle limits are checked against. Teams without a
// subscription, and teams whose subscription was canceled, get the free plan on a
// calendar-month cycle.
func (e *Enforcer) effective(ctx context.Context, teamID int64) (plans.Plan, billing.Cycle, error) {
	now := e.now().UTC()

	sub, err := e.subs.GetSubscription(ctx, teamID)
	switch {
	case errors.Is(err, billing.ErrNotFound):
		sub = nil
	case err != nil:
		return plans.Plan{}, billing.Cycle{}, fmt.Errorf("failed to load subscription: %w", err)
	}

	if sub == nil || sub.Status == billing.SubscriptionStatusCanceled {
		plan, err := plans.Lookup(plans.TierFree)
		if err != nil {
			return plans.Plan{}, billing.Cycle{}, err
		}
		return plan, billing.CycleFor(calendarEpoch, plans.IntervalMonthly, now), nil
	}

	plan, err := sub.Plan()
	if err != nil {
		return plans.Plan{}, billing.Cycle{}, err
	}
	c := sub.Cycle()
	if !c.Contains(now) {
		// The cycler has not rolled this subscription yet
		c = billing.CycleFor(sub.Anchor, sub.Interval, now)
	}
	return plan, c, nil
}

// Snapshot returns the team's effective plan, cycle and usage
func (e *Enforcer) Snapshot(ctx context.Context, teamID int64) (*Snapshot, error) {
	plan, c, err := e.effective(ctx, teamID)
	if err != nil {
		return nil, err
	}
	usage, err := e.usage(ctx, teamID, c)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Plan: plan, Cycle: c, Usage: usage}, nil
}

// usage reads the counters from the cache, falling back to the source on any miss.
// Cache failures are logged and never block a check.
func (e *Enforcer) usage(ctx context.Context, teamID int64, c billing.Cycle) (plans.Usage, error) {
	if e.cache != nil {
		if usage, ok := e.cachedUsage(ctx, teamID, c); ok {
			e.metrics.RecordCacheLookup("usage", true)
			return usage, nil
		}
		e.metrics.RecordCacheLookup("usage", false)
	}

	usage, err := e.source.CountUsage(ctx, teamID, c)
	if err != nil {
		return plans.Usage{}, err
	}

	if e.cache != nil {
		for name, v := range counters(&usage) {
			if err := e.cache.SetUsage(ctx, teamID, c.Start, name, int64(*v)); err != nil {
				e.logger.WithError(err).WithField("team_id", teamID).Warn("Failed to cache usage counter")
				break
			}
		}
	}
	return usage, nil
}

func (e *Enforcer) cachedUsage(ctx context.Context, teamID int64, c billing.Cycle) (plans.Usage, bool) {
	var usage plans.Usage
	for name, v := range counters(&usage) {
		n, ok, err := e.cache.GetUsage(ctx, teamID, c.Start, name)
		if err != nil {
			e.logger.WithError(err).WithField("team_id", teamID).Warn("Failed to read usage cache")
			return plans.Usage{}, false
		}
		if !ok {
			return plans.Usage{}, false
		}
		*v = int(n)
	}
	return usage, true
}

func counters(u *plans.Usage) map[string]*int {
	return map[string]*int{
		counterSeats:          &u.Seats,
		counterPendingInvites: &u.PendingInvites,
		counterContracts:      &u.ContractsThisCycle,
		counterTemplates:      &u.Templates,
		counterAIDrafts:       &u.AIDraftsThisCycle,
	}
}

type checkFunc func(plans.Plan, plans.Usage) plans.Decision

func (e *Enforcer) check(ctx context.Context, teamID int64, fn checkFunc, adjust func(*plans.Usage)) (plans.Decision, error) {
	snap, err := e.Snapshot(ctx, teamID)
	if err != nil {
		return plans.Decision{}, err
	}
	if adjust != nil {
		adjust(&snap.Usage)
	}

	d := fn(snap.Plan, snap.Usage)
	outcome := "allowed"
	switch {
	case !d.Allowed:
		outcome = "denied"
	case d.Overage:
		outcome = "overage"
	}
	e.metrics.RecordPlanDecision(d.Resource, outcome)

	if !d.Allowed {
		e.logger.WithFields(map[string]interface{}{
			"team_id":  teamID,
			"resource": d.Resource,
			"current":  d.Current,
			"limit":    d.Limit,
		}).Info("Plan limit reached")
	}
	return d, d.Err()
}

// CheckSeat decides whether the team can add a member or send an invitation
func (e *Enforcer) CheckSeat(ctx context.Context, teamID int64) (plans.Decision, error) {
	return e.check(ctx, teamID, plans.CheckSeat, nil)
}

// CheckSeatAccept decides whether a pending invitation can be accepted. The invitation
// already holds a seat, so it is taken out of the count first.
func (e *Enforcer) CheckSeatAccept(ctx context.Context, teamID int64) (plans.Decision, error) {
	return e.check(ctx, teamID, plans.CheckSeat, func(u *plans.Usage) {
		if u.PendingInvites > 0 {
			u.PendingInvites--
		}
	})
}

// CheckContract decides whether the team can create a contract this cycle
func (e *Enforcer) CheckContract(ctx context.Context, teamID int64) (plans.Decision, error) {
	return e.check(ctx, teamID, plans.CheckContract, nil)
}

// CheckTemplate decides whether the team can save another template
func (e *Enforcer) CheckTemplate(ctx context.Context, teamID int64) (plans.Decision, error) {
	return e.check(ctx, teamID, plans.CheckTemplate, nil)
}

// CheckAIDraft decides whether the team can request another AI draft this cycle
func (e *Enforcer) CheckAIDraft(ctx context.Context, teamID int64) (plans.Decision, error) {
	return e.check(ctx, teamID, plans.CheckAIDraft, nil)
}

// RecordContract counts a created contract against the current cycle
func (e *Enforcer) RecordContract(ctx context.Context, teamID int64) {
	e.record(ctx, teamID, counterContracts)
}

// RecordAIDraft counts a completed AI draft against the current cycle
func (e *Enforcer) RecordAIDraft(ctx context.Context, teamID int64) {
	e.record(ctx, teamID, counterAIDrafts)
}

func (e *Enforcer) record(ctx context.Context, teamID int64, counter string) {
	if e.cache == nil {
		return
	}
	_, c, err := e.effective(ctx, teamID)
	if err == nil {
		_, err = e.cache.IncrUsage(ctx, teamID, c.Start, counter)
	}
	if err != nil {
		e.logger.WithError(err).WithField("team_id", teamID).Warnf("Failed to record %s usage", counter)
		e.Invalidate(ctx, teamID)
	}
}

// Invalidate drops the team's cached counters. Call it after membership, invitation,
// template or plan changes.
func (e *Enforcer) Invalidate(ctx context.Context, teamID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateTeam(ctx, teamID); err != nil {
		e.logger.WithError(err).WithField("team_id", teamID).Warn("Failed to invalidate usage cache")
	}
}
