// Package grouper orchestrates the grouping of a tab: category resolution,
// color assignment, group lookup or creation, and state persistence, all
// serialized per category so concurrent requests for the same category
// converge on one group.
package grouper

import (
	"context"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/browser"
	"github.com/lotas/tabgruppen/internal/colors"
	"github.com/lotas/tabgruppen/internal/groupstate"
	"github.com/lotas/tabgruppen/internal/keymutex"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/resolver"
	"github.com/lotas/tabgruppen/internal/settings"
	"github.com/lotas/tabgruppen/internal/stats"
	"github.com/lotas/tabgruppen/internal/types"
)

// API is the slice of the browser bridge the orchestrator drives.
type API interface {
	QueryGroups(ctx context.Context, q browser.GroupQuery) ([]types.Group, error)
	GroupTabs(ctx context.Context, tabIDs []int, opts browser.GroupTabsOpts) (int, error)
	UpdateGroup(ctx context.Context, id int, title, color string) (types.Group, error)
}

// MetadataFetcher produces metadata for a tab. Satisfied by metadata.Fetcher.
type MetadataFetcher interface {
	Fetch(ctx context.Context, tab types.Tab) types.Metadata
}

// Orchestrator groups tabs. The keymutex is the same lock domain the color
// assigner uses, so AssignLocked runs under the lock GroupTab already holds.
type Orchestrator struct {
	api      API
	colors   *colors.Assigner
	state    *groupstate.Coordinator
	stats    *stats.Tracker
	settings *settings.Repository
	metadata MetadataFetcher
	locks    *keymutex.KeyMutex
}

// New creates an Orchestrator.
func New(api API, assigner *colors.Assigner, state *groupstate.Coordinator, tracker *stats.Tracker, repo *settings.Repository, fetcher MetadataFetcher, locks *keymutex.KeyMutex) *Orchestrator {
	return &Orchestrator{
		api:      api,
		colors:   assigner,
		state:    state,
		stats:    tracker,
		settings: repo,
		metadata: fetcher,
		locks:    locks,
	}
}

// Result describes one grouped tab.
type Result struct {
	TabID    int    `json:"tabId"`
	GroupID  int    `json:"groupId"`
	Category string `json:"category"`
	Color    string `json:"color"`
}

// ResolveCategory resolves a tab's category. When meta is nil the metadata
// is fetched from the tab first; requested is an explicit category override
// from the caller.
func (o *Orchestrator) ResolveCategory(ctx context.Context, tab types.Tab, meta *types.Metadata, requested string) string {
	var m types.Metadata
	if meta != nil {
		m = *meta
	} else {
		m = o.metadata.Fetch(ctx, tab)
	}

	s := o.settings.Get()
	return resolver.Resolve(m, resolver.Options{
		AIEnabled:         s.AICategoryDetection,
		CategoryKeywords:  s.CategoryKeywords,
		ChannelMap:        s.ChannelCategoryMap,
		FallbackCategory:  settings.FallbackCategory,
		RequestedCategory: requested,
	})
}

// GroupTab places a tab in the group for category, creating the group when
// no group with that title exists in the tab's window. The whole operation
// runs under the category's lock.
func (o *Orchestrator) GroupTab(ctx context.Context, tab types.Tab, category string) (Result, error) {
	if tab.ID == 0 || tab.WindowID == 0 {
		return Result{}, protocol.NewError(protocol.CodeInvalidArgument, "grouper",
			"tab id and window id are required")
	}
	if category == "" {
		return Result{}, protocol.NewError(protocol.CodeInvalidArgument, "grouper",
			"category must not be empty")
	}

	var res Result
	err := o.locks.RunExclusive(category, func() error {
		var err error
		res, err = o.groupLocked(ctx, tab, category)
		return err
	})
	return res, err
}

// groupLocked is GroupTab's body; caller holds the category lock.
func (o *Orchestrator) groupLocked(ctx context.Context, tab types.Tab, category string) (Result, error) {
	enabled := o.settings.Get().EnabledColors

	color, err := o.colors.AssignLocked(ctx, category, tab.ID, tab.WindowID, enabled)
	if err != nil {
		return Result{}, err
	}

	groupID, err := o.targetGroup(ctx, tab, category)
	if err != nil {
		return Result{}, err
	}

	// Title and color are re-applied even when joining: an existing group
	// may have drifted through manual edits.
	if _, err := o.api.UpdateGroup(ctx, groupID, category, color); err != nil {
		return Result{}, protocol.WrapError(err, protocol.CodeExternalAPI, "grouper", "update group")
	}

	if err := o.state.Persist(category, groupID, color); err != nil {
		return Result{}, err
	}

	o.stats.Record(category)
	applog.Info("grouper.grouped", "tabId", tab.ID, "category", category, "groupId", groupID, "color", color)

	return Result{TabID: tab.ID, GroupID: groupID, Category: category, Color: color}, nil
}

// targetGroup finds the category's group in the tab's window and joins the
// tab to it, creating a new group when none exists. The live browser query
// is authoritative over persisted state: a stale stored id must not resurrect
// a group the user closed.
func (o *Orchestrator) targetGroup(ctx context.Context, tab types.Tab, category string) (int, error) {
	groups, err := o.api.QueryGroups(ctx, browser.GroupQuery{Title: &category, WindowID: &tab.WindowID})
	if err != nil {
		return 0, err
	}

	opts := browser.GroupTabsOpts{WindowID: tab.WindowID}
	if len(groups) > 0 {
		opts.GroupID = groups[0].ID
	}
	return o.api.GroupTabs(ctx, []int{tab.ID}, opts)
}

// BatchItem is the outcome for one tab of a batch.
type BatchItem struct {
	TabID  int                     `json:"tabId"`
	Result *Result                 `json:"result,omitempty"`
	Error  *protocol.ErrorEnvelope `json:"error,omitempty"`
}

// BatchResult summarizes a batch grouping run.
type BatchResult struct {
	Grouped int         `json:"grouped"`
	Items   []BatchItem `json:"items"`
}

// GroupBatch groups tabs sequentially, resolving each tab's category from
// its metadata. A failing tab is recorded and the batch continues.
func (o *Orchestrator) GroupBatch(ctx context.Context, tabs []types.Tab) BatchResult {
	out := BatchResult{Items: make([]BatchItem, 0, len(tabs))}
	for _, tab := range tabs {
		category := o.ResolveCategory(ctx, tab, nil, "")
		res, err := o.GroupTab(ctx, tab, category)
		if err != nil {
			env := protocol.Envelope(err)
			out.Items = append(out.Items, BatchItem{TabID: tab.ID, Error: &env})
			applog.Warn("grouper.batch_tab", "tabId", tab.ID, "err", err)
			continue
		}
		out.Grouped++
		out.Items = append(out.Items, BatchItem{TabID: tab.ID, Result: &res})
	}
	applog.Info("grouper.batch", "tabs", len(tabs), "grouped", out.Grouped)
	return out
}
