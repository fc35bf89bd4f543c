package browser

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/types"
)

// defaultCallTimeout bounds a command round-trip when the caller's context
// carries no deadline of its own.
const defaultCallTimeout = 5 * time.Second

// TabQuery filters a tab query. Nil pointer fields are not part of the
// filter, so zero values (window 0, active=false) remain expressible.
type TabQuery struct {
	WindowID *int   `json:"windowId,omitempty"`
	GroupID  *int   `json:"groupId,omitempty"`
	Active   *bool  `json:"active,omitempty"`
	URL      string `json:"url,omitempty"`
}

// GroupQuery filters a group query.
type GroupQuery struct {
	Title    *string `json:"title,omitempty"`
	WindowID *int    `json:"windowId,omitempty"`
}

// GroupTabsOpts controls GroupTabs: either join an existing group or create
// a new one in a window.
type GroupTabsOpts struct {
	GroupID  int // join this group when > 0
	WindowID int // create in this window otherwise
}

// call sends a command and waits for the correlated response.
func (s *Server) call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	if !s.Connected() {
		return IncomingMsg{}, protocol.NewError(protocol.CodeExternalAPI, "browser", "extension not connected")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	msg.ID = id
	ch := make(chan IncomingMsg, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.Send(msg); err != nil {
		return IncomingMsg{}, protocol.WrapError(err, protocol.CodeExternalAPI, "browser", "send "+msg.Action)
	}

	select {
	case resp := <-ch:
		if resp.OK != nil && !*resp.OK {
			return IncomingMsg{}, protocol.NewError(protocol.CodeExternalAPI, "browser",
				"%s failed: %s", msg.Action, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return IncomingMsg{}, protocol.NewError(protocol.CodeTimeout, "browser", "%s timed out", msg.Action)
		}
		return IncomingMsg{}, ctx.Err()
	}
}

// QueryTabs returns tabs matching the filter.
func (s *Server) QueryTabs(ctx context.Context, q TabQuery) ([]types.Tab, error) {
	resp, err := s.call(ctx, OutgoingMsg{Action: "queryTabs", Query: &q})
	if err != nil {
		return nil, err
	}
	var tabs []types.Tab
	if len(resp.Tabs) > 0 {
		if err := json.Unmarshal(resp.Tabs, &tabs); err != nil {
			return nil, protocol.WrapError(err, protocol.CodeExternalAPI, "browser", "decode tabs")
		}
	}
	return tabs, nil
}

// QueryGroups returns groups matching the filter.
func (s *Server) QueryGroups(ctx context.Context, q GroupQuery) ([]types.Group, error) {
	resp, err := s.call(ctx, OutgoingMsg{Action: "queryGroups", Groups: &q})
	if err != nil {
		return nil, err
	}
	var groups []types.Group
	if len(resp.Groups) > 0 {
		if err := json.Unmarshal(resp.Groups, &groups); err != nil {
			return nil, protocol.WrapError(err, protocol.CodeExternalAPI, "browser", "decode groups")
		}
	}
	return groups, nil
}

// GetGroup fetches a single group by id.
func (s *Server) GetGroup(ctx context.Context, id int) (types.Group, error) {
	resp, err := s.call(ctx, OutgoingMsg{Action: "getGroup", GroupID: id})
	if err != nil {
		return types.Group{}, err
	}
	var g types.Group
	if err := json.Unmarshal(resp.Group, &g); err != nil {
		return types.Group{}, protocol.WrapError(err, protocol.CodeExternalAPI, "browser", "decode group")
	}
	return g, nil
}

// GroupTabs adds tabs to a group, creating one when opts.GroupID is zero.
// Returns the resulting group id.
func (s *Server) GroupTabs(ctx context.Context, tabIDs []int, opts GroupTabsOpts) (int, error) {
	msg := OutgoingMsg{Action: "groupTabs", TabIDs: tabIDs}
	if opts.GroupID > 0 {
		msg.GroupID = opts.GroupID
	} else {
		msg.WindowID = opts.WindowID
	}
	resp, err := s.call(ctx, msg)
	if err != nil {
		return 0, err
	}
	if resp.GroupID == 0 {
		return 0, protocol.NewError(protocol.CodeExternalAPI, "browser", "groupTabs returned no group id")
	}
	return resp.GroupID, nil
}

// UpdateGroup sets a group's title and color.
func (s *Server) UpdateGroup(ctx context.Context, id int, title, color string) (types.Group, error) {
	resp, err := s.call(ctx, OutgoingMsg{Action: "updateGroup", GroupID: id, Title: &title, Color: color})
	if err != nil {
		return types.Group{}, err
	}
	var g types.Group
	if len(resp.Group) > 0 {
		if err := json.Unmarshal(resp.Group, &g); err != nil {
			return types.Group{}, protocol.WrapError(err, protocol.CodeExternalAPI, "browser", "decode group")
		}
	}
	return g, nil
}

// RemoveGroup removes a group by closing or ungrouping its member tabs.
func (s *Server) RemoveGroup(ctx context.Context, id int) error {
	_, err := s.call(ctx, OutgoingMsg{Action: "removeGroup", GroupID: id})
	return err
}

// RequestMetadata asks the content script in the given tab for page
// metadata. The raw payload is returned for metadata.Normalize.
func (s *Server) RequestMetadata(ctx context.Context, tabID int) (json.RawMessage, error) {
	resp, err := s.call(ctx, OutgoingMsg{Action: "getVideoMetadata", TabID: tabID})
	if err != nil {
		return nil, err
	}
	return resp.Metadata, nil
}
