// Package cleanup removes tab groups that have stayed empty past a grace
// period. A group moves through three states: active (has tabs), pending
// (empty, grace timer running), removed. Regaining a tab or receiving an
// update notification resets it to active.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/browser"
	"github.com/lotas/tabgruppen/internal/groupstate"
	"github.com/lotas/tabgruppen/internal/settings"
	"github.com/lotas/tabgruppen/internal/types"
)

// DefaultInterval is the sweep cadence.
const DefaultInterval = time.Minute

// API is the slice of the browser bridge the sweeper needs.
type API interface {
	QueryGroups(ctx context.Context, q browser.GroupQuery) ([]types.Group, error)
	QueryTabs(ctx context.Context, q browser.TabQuery) ([]types.Tab, error)
	RemoveGroup(ctx context.Context, id int) error
}

// Scheduler sweeps periodically and reconciles external group notifications
// into grouping state.
type Scheduler struct {
	api      API
	state    *groupstate.Coordinator
	settings *settings.Repository
	interval time.Duration

	cron *cron.Cron

	mu      sync.Mutex
	pending map[int]time.Time
	now     func() time.Time
}

// NewScheduler creates a Scheduler sweeping at DefaultInterval.
func NewScheduler(api API, state *groupstate.Coordinator, repo *settings.Repository) *Scheduler {
	return &Scheduler{
		api:      api,
		state:    state,
		settings: repo,
		interval: DefaultInterval,
		pending:  make(map[int]time.Time),
		now:      time.Now,
	}
}

// Start begins periodic sweeping.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup sweep: %w", err)
	}
	s.cron.Start()
	applog.Info("cleanup.started", "interval", s.interval)
	return nil
}

// Stop halts sweeping. A sweep already running finishes.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep examines every group once. Empty groups start or continue their
// grace timer; groups empty past the grace period are removed and pruned
// from grouping state. Sweep failures are logged and retried next tick.
func (s *Scheduler) Sweep(ctx context.Context) {
	cfg := s.settings.Get()
	if !cfg.AutoCleanupEnabled {
		return
	}
	grace := time.Duration(cfg.AutoCleanupGraceMs) * time.Millisecond

	groups, err := s.api.QueryGroups(ctx, browser.GroupQuery{})
	if err != nil {
		applog.Warn("cleanup.query_groups", "err", err)
		return
	}

	now := s.now()
	seen := make(map[int]bool, len(groups))

	for _, g := range groups {
		seen[g.ID] = true

		tabs, err := s.api.QueryTabs(ctx, browser.TabQuery{GroupID: &g.ID})
		if err != nil {
			applog.Warn("cleanup.query_tabs", "groupId", g.ID, "err", err)
			continue
		}
		if len(tabs) > 0 {
			s.clearPending(g.ID)
			continue
		}

		// The active tab's group stays ACTIVE and untracked even while it
		// looks empty, so leaving it later starts a fresh grace window.
		if s.holdsActiveTab(ctx, g) {
			s.clearPending(g.ID)
			continue
		}

		s.mu.Lock()
		since, ok := s.pending[g.ID]
		if !ok {
			s.pending[g.ID] = now
			s.mu.Unlock()
			applog.Info("cleanup.pending", "groupId", g.ID)
			continue
		}
		s.mu.Unlock()

		if now.Sub(since) < grace {
			continue
		}

		if err := s.api.RemoveGroup(ctx, g.ID); err != nil {
			applog.Warn("cleanup.remove", "groupId", g.ID, "err", err)
			continue
		}
		s.clearPending(g.ID)
		s.state.PruneGroup(g.ID)
		applog.Info("cleanup.removed", "groupId", g.ID)
	}

	// Groups gone between sweeps drop their timers.
	s.mu.Lock()
	for id := range s.pending {
		if !seen[id] {
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()
}

// holdsActiveTab reports whether the window's active tab sits in the group.
// Tab state can shift between the emptiness check and this one; asking for
// the active tab separately keeps the group the user is viewing safe.
func (s *Scheduler) holdsActiveTab(ctx context.Context, g types.Group) bool {
	active := true
	tabs, err := s.api.QueryTabs(ctx, browser.TabQuery{WindowID: &g.WindowID, Active: &active})
	if err != nil {
		// Can't tell; err on the side of keeping the group.
		applog.Warn("cleanup.active_check", "groupId", g.ID, "err", err)
		return true
	}
	for _, t := range tabs {
		if t.GroupID == g.ID {
			return true
		}
	}
	return false
}

// HandleGroupRemoved reconciles an externally removed group: the grace timer
// is dropped and grouping state pruned.
func (s *Scheduler) HandleGroupRemoved(groupID int) {
	s.clearPending(groupID)
	s.state.PruneGroup(groupID)
}

// HandleGroupUpdated reconciles an external rename or recolor. The update
// also counts as activity, resetting the group's grace timer.
func (s *Scheduler) HandleGroupUpdated(g types.Group) {
	s.clearPending(g.ID)
	s.state.ApplyGroupUpdate(g)
}

func (s *Scheduler) clearPending(groupID int) {
	s.mu.Lock()
	delete(s.pending, groupID)
	s.mu.Unlock()
}
