// Package colors assigns a stable visual color per category, avoiding
// colors already visible in the same window where possible.
package colors

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/browser"
	"github.com/lotas/tabgruppen/internal/keymutex"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/types"
)

// API is the slice of the browser bridge the assigner needs.
type API interface {
	QueryTabs(ctx context.Context, q browser.TabQuery) ([]types.Tab, error)
	GetGroup(ctx context.Context, id int) (types.Group, error)
}

// Assigner caches one color per category. First assignment for a category
// runs under that category's lock so concurrent requests cannot pick two
// different colors.
type Assigner struct {
	api      API
	locks    *keymutex.KeyMutex
	defaults []string

	mu    sync.RWMutex
	cache map[string]string
}

// NewAssigner creates an Assigner sharing the given lock domain with the
// grouping orchestrator.
func NewAssigner(api API, locks *keymutex.KeyMutex) *Assigner {
	return &Assigner{
		api:      api,
		locks:    locks,
		defaults: types.GroupColors,
		cache:    make(map[string]string),
	}
}

// Cached returns the cached color for a category, if any.
func (a *Assigner) Cached(category string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.cache[category]
	return c, ok
}

// Seed replaces the cache wholesale, used when grouping state is loaded or
// re-persisted.
func (a *Assigner) Seed(colors map[string]string) {
	next := make(map[string]string, len(colors))
	for k, v := range colors {
		next[k] = v
	}
	a.mu.Lock()
	a.cache = next
	a.mu.Unlock()
}

// Forget drops a category's cached color.
func (a *Assigner) Forget(category string) {
	a.mu.Lock()
	delete(a.cache, category)
	a.mu.Unlock()
}

// Assign returns the color for a category, computing and caching one on
// first use. Safe to call concurrently for the same category.
func (a *Assigner) Assign(ctx context.Context, category string, tabID, windowID int, enabled map[string]bool) (string, error) {
	if c, ok := a.Cached(category); ok {
		return c, nil
	}

	var color string
	err := a.locks.RunExclusive(category, func() error {
		var err error
		color, err = a.AssignLocked(ctx, category, tabID, windowID, enabled)
		return err
	})
	return color, err
}

// AssignLocked is Assign for callers already holding the category lock
// (the grouping orchestrator, which shares the lock domain).
func (a *Assigner) AssignLocked(ctx context.Context, category string, tabID, windowID int, enabled map[string]bool) (string, error) {
	// Another waiter may have assigned while we waited for the lock.
	if c, ok := a.Cached(category); ok {
		return c, nil
	}

	palette := filterPalette(enabled)
	if len(palette) == 0 {
		palette = a.defaults
	}
	if len(palette) == 0 {
		return "", protocol.NewError(protocol.CodeConfiguration, "colors",
			"no colors available for category %q", category)
	}

	neighbors := a.neighborColors(ctx, tabID, windowID)

	candidates := make([]string, 0, len(palette))
	for _, c := range palette {
		if !neighbors[c] {
			candidates = append(candidates, c)
		}
	}
	// Neighbor avoidance is best-effort: with every color taken, reuse the
	// full palette rather than fail.
	if len(candidates) == 0 {
		candidates = palette
	}

	color := candidates[rand.IntN(len(candidates))]

	a.mu.Lock()
	a.cache[category] = color
	a.mu.Unlock()

	applog.Info("color.assigned", "category", category, "color", color)
	return color, nil
}

// neighborColors collects colors of groups other tabs in the window belong
// to. Failures degrade to an empty set; avoidance is advisory.
func (a *Assigner) neighborColors(ctx context.Context, tabID, windowID int) map[string]bool {
	neighbors := make(map[string]bool)

	tabs, err := a.api.QueryTabs(ctx, browser.TabQuery{WindowID: &windowID})
	if err != nil {
		applog.Warn("color.neighbors", "windowId", windowID, "err", err)
		return neighbors
	}

	groupIDs := make(map[int]bool)
	for _, t := range tabs {
		if t.ID != tabID && t.Grouped() {
			groupIDs[t.GroupID] = true
		}
	}

	for id := range groupIDs {
		g, err := a.api.GetGroup(ctx, id)
		if err != nil {
			applog.Warn("color.neighbor_group", "groupId", id, "err", err)
			continue
		}
		if g.Color != "" {
			neighbors[g.Color] = true
		}
	}
	return neighbors
}

func filterPalette(enabled map[string]bool) []string {
	// Iterate the canonical palette so ordering stays stable.
	out := make([]string, 0, len(types.GroupColors))
	for _, c := range types.GroupColors {
		if enabled[c] {
			out = append(out, c)
		}
	}
	return out
}
