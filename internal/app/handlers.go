package app

import (
	"context"
	"encoding/json"

	"github.com/lotas/tabgruppen/internal/browser"
	"github.com/lotas/tabgruppen/internal/metadata"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/settings"
	"github.com/lotas/tabgruppen/internal/types"
)

// mutatingActions are refused while the master switch is off. Read-only
// actions and the settings surface keep working so the user can switch back
// on.
var mutatingActions = map[string]bool{
	protocol.ActionGroupTab:   true,
	protocol.ActionBatchGroup: true,
}

func (a *App) registerHandlers() {
	a.router.Use(a.requireEnabled)

	a.router.Handle(protocol.ActionGroupTab, a.handleGroupTab)
	a.router.Handle(protocol.ActionBatchGroup, a.handleBatchGroup)
	a.router.Handle(protocol.ActionGetSettings, a.handleGetSettings)
	a.router.Handle(protocol.ActionUpdateSettings, a.handleUpdateSettings)
	a.router.Handle(protocol.ActionIsTabGrouped, a.handleIsTabGrouped)
	a.router.Handle(protocol.ActionGetVideoMetadata, a.handleGetVideoMetadata)
	a.router.Handle(protocol.ActionGetStats, a.handleGetStats)
	a.router.Handle(protocol.ActionResetStats, a.handleResetStats)
	a.router.Handle(protocol.ActionToggleEnabled, a.handleToggleEnabled)
}

func (a *App) requireEnabled(next protocol.HandlerFunc) protocol.HandlerFunc {
	return func(ctx context.Context, req protocol.Request) (protocol.Result, error) {
		if mutatingActions[req.Action] && !a.settings.Get().ExtensionEnabled {
			return nil, protocol.NewError(protocol.CodeDisabled, "app", "grouping is disabled")
		}
		return next(ctx, req)
	}
}

func (a *App) handleGroupTab(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	var payload protocol.GroupTabPayload
	if err := req.Payload(&payload); err != nil {
		return nil, err
	}

	var meta *types.Metadata
	if len(payload.Metadata) > 0 {
		m := metadata.Normalize(payload.Metadata)
		meta = &m
	}

	category := a.grouper.ResolveCategory(ctx, *req.Tab, meta, payload.Category)
	res, err := a.grouper.GroupTab(ctx, *req.Tab, category)
	if err != nil {
		return nil, err
	}
	return protocol.Result{
		"tabId":    res.TabID,
		"groupId":  res.GroupID,
		"category": res.Category,
		"color":    res.Color,
	}, nil
}

// batchGroupPayload is the payload of BATCH_GROUP. With no tabs given, every
// ungrouped tab known to the browser is considered.
type batchGroupPayload struct {
	Tabs []types.Tab `json:"tabs,omitempty"`
}

func (a *App) handleBatchGroup(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	var payload batchGroupPayload
	if err := req.Payload(&payload); err != nil {
		return nil, err
	}

	tabs := payload.Tabs
	if len(tabs) == 0 {
		all, err := a.server.QueryTabs(ctx, browser.TabQuery{})
		if err != nil {
			return nil, err
		}
		for _, t := range all {
			if !t.Grouped() {
				tabs = append(tabs, t)
			}
		}
	}

	res := a.grouper.GroupBatch(ctx, tabs)
	result := protocol.Result{
		"count": res.Grouped,
		"items": res.Items,
	}
	var errs []string
	for _, item := range res.Items {
		if item.Error != nil {
			errs = append(errs, item.Error.Message)
		}
	}
	if len(errs) > 0 {
		result["errors"] = errs
	}
	return result, nil
}

func (a *App) handleGetSettings(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	return protocol.Result{"settings": a.settings.Get()}, nil
}

// updateSettingsPayload carries a full replacement settings document.
type updateSettingsPayload struct {
	Settings json.RawMessage `json:"settings"`
}

func (a *App) handleUpdateSettings(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	var payload updateSettingsPayload
	if err := req.Payload(&payload); err != nil {
		return nil, err
	}
	if len(payload.Settings) == 0 {
		return nil, protocol.NewError(protocol.CodeValidation, "app", "missing settings payload")
	}

	next := a.settings.Get()
	if err := json.Unmarshal(payload.Settings, &next); err != nil {
		return nil, protocol.NewError(protocol.CodeValidation, "app", "decode settings: %v", err)
	}
	next.Version = settings.CurrentVersion

	if err := a.settings.Save(next); err != nil {
		return nil, err
	}
	return protocol.Result{"settings": a.settings.Get()}, nil
}

func (a *App) handleIsTabGrouped(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	result := protocol.Result{"grouped": req.Tab.Grouped()}
	if req.Tab.Grouped() {
		result["groupId"] = req.Tab.GroupID
		if category, ok := a.categoryForGroup(req.Tab.GroupID); ok {
			result["category"] = category
		}
	}
	return result, nil
}

func (a *App) handleGetVideoMetadata(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	meta := a.fetcher.Fetch(ctx, *req.Tab)
	return protocol.Result{"metadata": meta}, nil
}

func (a *App) handleGetStats(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	s, err := a.stats.Get()
	if err != nil {
		return nil, err
	}
	return protocol.Result{"stats": s}, nil
}

func (a *App) handleResetStats(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	if err := a.stats.Reset(); err != nil {
		return nil, err
	}
	s, err := a.stats.Get()
	if err != nil {
		return nil, err
	}
	return protocol.Result{"stats": s}, nil
}

func (a *App) handleToggleEnabled(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	s, err := a.toggleEnabled()
	if err != nil {
		return nil, err
	}
	return protocol.Result{"enabled": s.ExtensionEnabled}, nil
}

func (a *App) categoryForGroup(groupID int) (string, bool) {
	_, idMap := a.state.Snapshot()
	for category, id := range idMap {
		if id == groupID {
			return category, true
		}
	}
	return "", false
}
