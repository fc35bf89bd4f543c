// Package groupstate owns the durable mapping between categories and their
// browser group id and color, and reconciles it against external change
// notifications.
package groupstate

import (
	"sync"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

// Storage keys in the local area.
const (
	keyColorMap = "groupColorMap"
	keyIDMap    = "groupIdMap"
)

// ColorCache receives the category→color map whenever it changes, keeping
// color lookups fast-pathed. Satisfied by colors.Assigner.
type ColorCache interface {
	Seed(map[string]string)
}

// Coordinator holds the in-memory grouping state and persists every
// mutation. Mutations arrive either under a per-category lock (grouping
// path) or from the single-threaded notification handler (cleanup path),
// so the internal mutex only guards against torn map access between them.
type Coordinator struct {
	store  *storage.Store
	colors ColorCache

	mu       sync.Mutex
	colorMap map[string]string
	idMap    map[string]int
}

// NewCoordinator creates a Coordinator. Call Initialize before use.
func NewCoordinator(store *storage.Store, colors ColorCache) *Coordinator {
	return &Coordinator{
		store:    store,
		colors:   colors,
		colorMap: make(map[string]string),
		idMap:    make(map[string]int),
	}
}

// Initialize loads grouping state from storage and seeds the color cache so
// already-known categories are fast-pathed after a restart.
func (c *Coordinator) Initialize() error {
	var colorMap map[string]string
	if _, err := c.store.Get(storage.AreaLocal, keyColorMap, &colorMap); err != nil {
		return protocol.WrapError(err, protocol.CodeStorage, "groupstate", "load color map")
	}
	var idMap map[string]int
	if _, err := c.store.Get(storage.AreaLocal, keyIDMap, &idMap); err != nil {
		return protocol.WrapError(err, protocol.CodeStorage, "groupstate", "load id map")
	}

	c.mu.Lock()
	if colorMap != nil {
		c.colorMap = colorMap
	}
	if idMap != nil {
		c.idMap = idMap
	}
	c.mu.Unlock()

	c.seedColors()
	applog.Info("groupstate.initialized", "categories", len(c.idMap))
	return nil
}

// Persist records the group id and color for a category and writes both
// maps in one storage call. A write failure is re-raised to the caller; the
// in-memory state keeps the new values and the next successful persist
// rewrites both maps wholesale.
func (c *Coordinator) Persist(category string, groupID int, color string) error {
	c.mu.Lock()
	c.colorMap[category] = color
	c.idMap[category] = groupID
	err := c.write()
	c.mu.Unlock()

	if err != nil {
		return protocol.WrapError(err, protocol.CodeStorage, "groupstate", "persist grouping state")
	}
	c.seedColors()
	return nil
}

// PruneGroup removes every category mapped to the given group id. With no
// matching category it returns without writing. Failures are logged, not
// raised: this runs from notification handlers with no caller to report to.
func (c *Coordinator) PruneGroup(groupID int) {
	c.mu.Lock()
	var removed []string
	for cat, id := range c.idMap {
		if id == groupID {
			removed = append(removed, cat)
		}
	}
	if len(removed) == 0 {
		c.mu.Unlock()
		return
	}
	for _, cat := range removed {
		delete(c.idMap, cat)
		delete(c.colorMap, cat)
	}
	err := c.write()
	c.mu.Unlock()

	if err != nil {
		applog.Warn("groupstate.prune", "groupId", groupID, "err", err)
		return
	}
	c.seedColors()
	applog.Info("groupstate.pruned", "groupId", groupID, "categories", len(removed))
}

// ApplyGroupUpdate reconciles an external rename or recolor. When the
// group's title no longer matches the category we keyed it under, the entry
// is re-keyed to the new title. Failures are logged, not raised.
func (c *Coordinator) ApplyGroupUpdate(g types.Group) {
	c.mu.Lock()
	oldName := ""
	for cat, id := range c.idMap {
		if id == g.ID {
			oldName = cat
			break
		}
	}
	if oldName == "" {
		c.mu.Unlock()
		return
	}

	changed := false
	name := oldName
	if g.Title != "" && g.Title != oldName {
		delete(c.idMap, oldName)
		delete(c.colorMap, oldName)
		c.idMap[g.Title] = g.ID
		name = g.Title
		changed = true
	}
	if g.Color != "" && c.colorMap[name] != g.Color {
		c.colorMap[name] = g.Color
		changed = true
	}

	var err error
	if changed {
		err = c.write()
	}
	c.mu.Unlock()

	if err != nil {
		applog.Warn("groupstate.update", "groupId", g.ID, "err", err)
		return
	}
	if changed {
		c.seedColors()
		applog.Info("groupstate.rekeyed", "groupId", g.ID, "from", oldName, "to", name)
	}
}

// GroupID returns the persisted group id for a category.
func (c *Coordinator) GroupID(category string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.idMap[category]
	return id, ok
}

// Snapshot returns copies of both maps.
func (c *Coordinator) Snapshot() (colorMap map[string]string, idMap map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyColors(c.colorMap), copyIDs(c.idMap)
}

// write stores both maps in a single transaction. Caller holds c.mu.
func (c *Coordinator) write() error {
	return c.store.SetMany(storage.AreaLocal, map[string]any{
		keyColorMap: c.colorMap,
		keyIDMap:    c.idMap,
	})
}

func (c *Coordinator) seedColors() {
	if c.colors == nil {
		return
	}
	c.mu.Lock()
	snapshot := copyColors(c.colorMap)
	c.mu.Unlock()
	c.colors.Seed(snapshot)
}

func copyColors(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIDs(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
