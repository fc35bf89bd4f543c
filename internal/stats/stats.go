// Package stats tracks grouping counters. Recording is best-effort: a
// failed increment is logged and swallowed so it can never fail a grouping.
package stats

import (
	"sync"
	"time"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/storage"
)

const storeKey = "stats"

// Version of the stats document schema.
const Version = 1

// Stats holds the grouping counters.
type Stats struct {
	TotalTabs     int            `json:"totalTabs"`
	CategoryCount map[string]int `json:"categoryCount"`
	SessionsToday int            `json:"sessionsToday"`
	LastReset     string         `json:"lastReset"` // YYYY-MM-DD
	Version       int            `json:"version"`
}

// Tracker reads and writes stats in the local area.
type Tracker struct {
	store *storage.Store

	mu  sync.Mutex
	now func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(store *storage.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// Record increments counters for one successfully grouped tab. Failures are
// logged and swallowed.
func (t *Tracker) Record(category string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.load()
	if err != nil {
		applog.Warn("stats.load", "err", err)
		return
	}

	today := t.today()
	if s.LastReset != today {
		s.SessionsToday = 0
		s.LastReset = today
	}

	s.TotalTabs++
	s.SessionsToday++
	s.CategoryCount[category]++

	if err := t.store.Set(storage.AreaLocal, storeKey, s); err != nil {
		applog.Warn("stats.save", "category", category, "err", err)
	}
}

// Get returns the current stats.
func (t *Tracker) Get() (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.load()
	if err != nil {
		return Stats{}, protocol.WrapError(err, protocol.CodeStorage, "stats", "load stats")
	}
	return s, nil
}

// Reset zeroes all counters.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		CategoryCount: make(map[string]int),
		LastReset:     t.today(),
		Version:       Version,
	}
	if err := t.store.Set(storage.AreaLocal, storeKey, s); err != nil {
		return protocol.WrapError(err, protocol.CodeStorage, "stats", "reset stats")
	}
	applog.Info("stats.reset")
	return nil
}

func (t *Tracker) load() (Stats, error) {
	s := Stats{Version: Version}
	if _, err := t.store.Get(storage.AreaLocal, storeKey, &s); err != nil {
		return Stats{}, err
	}
	if s.CategoryCount == nil {
		s.CategoryCount = make(map[string]int)
	}
	if s.LastReset == "" {
		s.LastReset = t.today()
	}
	return s, nil
}

func (t *Tracker) today() string {
	return t.now().Format("2006-01-02")
}
