package browser

import (
	"encoding/json"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// Event types emitted by the extension.
const (
	EventGroupRemoved = "groupRemoved"
	EventGroupUpdated = "groupUpdated"
	EventTabReady     = "tabReady"
	EventCommand      = "command"
)

// Event is a decoded extension notification. Metadata stays raw: the
// scraper's output is loosely typed and goes through metadata.Normalize
// before anyone reads it.
type Event struct {
	Type     string
	GroupID  int          // EventGroupRemoved
	Group    *types.Group // EventGroupUpdated
	Tab      *types.Tab   // EventTabReady
	Metadata json.RawMessage
	Command  string // EventCommand
}

func parseEvent(msg IncomingMsg) Event {
	ev := Event{
		Type:     msg.Type,
		GroupID:  msg.GroupID,
		Command:  msg.Command,
		Metadata: msg.Metadata,
	}

	if len(msg.Group) > 0 {
		var g types.Group
		if err := json.Unmarshal(msg.Group, &g); err != nil {
			applog.Error("ws.parse_group", err, "type", msg.Type)
		} else {
			ev.Group = &g
		}
	}
	if len(msg.Tab) > 0 {
		var t types.Tab
		if err := json.Unmarshal(msg.Tab, &t); err != nil {
			applog.Error("ws.parse_tab", err, "type", msg.Type)
		} else {
			ev.Tab = &t
		}
	}
	return ev
}
