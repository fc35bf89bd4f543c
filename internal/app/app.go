// Package app wires storage, settings, the browser bridge, the grouping
// pipeline and the cleanup scheduler into the running service, and registers
// the protocol handlers.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/browser"
	"github.com/lotas/tabgruppen/internal/cleanup"
	"github.com/lotas/tabgruppen/internal/colors"
	"github.com/lotas/tabgruppen/internal/grouper"
	"github.com/lotas/tabgruppen/internal/groupstate"
	"github.com/lotas/tabgruppen/internal/keymutex"
	"github.com/lotas/tabgruppen/internal/metadata"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/settings"
	"github.com/lotas/tabgruppen/internal/stats"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

// DefaultPort is the port the extension's connector dials.
const DefaultPort = 19192

// autoGroupBudget bounds one background auto-grouping run end to end.
const autoGroupBudget = 30 * time.Second

// Config configures the service.
type Config struct {
	Port   int
	DBPath string
}

// App is the assembled service.
type App struct {
	cfg      Config
	store    *storage.Store
	settings *settings.Repository
	server   *browser.Server
	assigner *colors.Assigner
	state    *groupstate.Coordinator
	stats    *stats.Tracker
	fetcher  *metadata.Fetcher
	grouper  *grouper.Orchestrator
	cleanup  *cleanup.Scheduler
	router   *protocol.Router

	mu         sync.Mutex
	autoTimers map[int]*time.Timer
}

// New assembles the service. The caller owns shutdown via Run's context and
// Close.
func New(cfg Config) (*App, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DBPath == "" {
		path, err := storage.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = path
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	repo := settings.NewRepository(store)
	if _, err := repo.Refresh(); err != nil {
		store.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	server := browser.New(cfg.Port)
	locks := keymutex.New()
	assigner := colors.NewAssigner(server, locks)
	state := groupstate.NewCoordinator(store, assigner)
	if err := state.Initialize(); err != nil {
		store.Close()
		return nil, fmt.Errorf("load grouping state: %w", err)
	}
	tracker := stats.NewTracker(store)
	fetcher := metadata.NewFetcher(server)

	a := &App{
		cfg:        cfg,
		store:      store,
		settings:   repo,
		server:     server,
		assigner:   assigner,
		state:      state,
		stats:      tracker,
		fetcher:    fetcher,
		grouper:    grouper.New(server, assigner, state, tracker, repo, fetcher, locks),
		cleanup:    cleanup.NewScheduler(server, state, repo),
		router:     protocol.NewRouter(),
		autoTimers: make(map[int]*time.Timer),
	}
	a.registerHandlers()
	server.SetRequestHandler(a.router.Dispatch)
	return a, nil
}

// Close releases resources. Safe after a finished Run.
func (a *App) Close() error {
	return a.store.Close()
}

// Run serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.cleanup.Start(); err != nil {
		return err
	}
	defer a.cleanup.Stop()

	go a.consumeEvents(ctx)

	err := a.server.ListenAndServe(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// consumeEvents drains extension notifications for the lifetime of ctx.
func (a *App) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.server.Events():
			a.handleEvent(ev)
		}
	}
}

func (a *App) handleEvent(ev browser.Event) {
	switch ev.Type {
	case browser.EventGroupRemoved:
		a.cleanup.HandleGroupRemoved(ev.GroupID)
	case browser.EventGroupUpdated:
		if ev.Group != nil {
			a.cleanup.HandleGroupUpdated(*ev.Group)
		}
	case browser.EventTabReady:
		a.scheduleAutoGroup(ev)
	case browser.EventCommand:
		a.handleCommand(ev.Command)
	default:
		applog.Warn("app.event", "type", ev.Type)
	}
}

// scheduleAutoGroup arms the auto-grouping delay for a ready tab. A newer
// tabReady for the same tab supersedes the pending one, so a tab navigating
// quickly is grouped for the page it settles on.
func (a *App) scheduleAutoGroup(ev browser.Event) {
	if ev.Tab == nil || ev.Tab.ID == 0 {
		return
	}
	cfg := a.settings.Get()
	if !cfg.ExtensionEnabled {
		return
	}

	tab := *ev.Tab
	var meta *types.Metadata
	if len(ev.Metadata) > 0 {
		m := metadata.Normalize(ev.Metadata)
		meta = &m
	}

	delay := time.Duration(cfg.AutoGroupDelay) * time.Millisecond
	a.mu.Lock()
	if t, ok := a.autoTimers[tab.ID]; ok {
		t.Stop()
	}
	a.autoTimers[tab.ID] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.autoTimers, tab.ID)
		a.mu.Unlock()
		a.autoGroup(tab, meta)
	})
	a.mu.Unlock()
}

func (a *App) autoGroup(tab types.Tab, meta *types.Metadata) {
	ctx, cancel := context.WithTimeout(context.Background(), autoGroupBudget)
	defer cancel()

	// Settings may have changed while the delay ran.
	if !a.settings.Get().ExtensionEnabled {
		return
	}

	category := a.grouper.ResolveCategory(ctx, tab, meta, "")
	if _, err := a.grouper.GroupTab(ctx, tab, category); err != nil {
		applog.Warn("app.auto_group", "tabId", tab.ID, "err", err)
	}
}

// handleCommand serves keyboard shortcuts relayed by the extension.
func (a *App) handleCommand(command string) {
	switch command {
	case "toggle-grouping":
		s, err := a.toggleEnabled()
		if err != nil {
			applog.Error("app.toggle", err)
			return
		}
		applog.Info("app.toggled", "enabled", s.ExtensionEnabled)
	default:
		applog.Warn("app.command", "command", command)
	}
}

// toggleEnabled flips the master switch and tells the extension.
func (a *App) toggleEnabled() (settings.Settings, error) {
	s, err := a.settings.Update(func(s *settings.Settings) {
		s.ExtensionEnabled = !s.ExtensionEnabled
	})
	if err != nil {
		return settings.Settings{}, err
	}
	if err := a.server.Send(browser.OutgoingMsg{Action: "settingsChanged"}); err != nil {
		applog.Warn("app.notify_settings", "err", err)
	}
	return s, nil
}
