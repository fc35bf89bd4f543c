// Package protocol implements the versioned request/response envelope spoken
// between the extension surfaces (popup, options, stats page) and this
// service, together with the error taxonomy used across the codebase.
package protocol

import (
	"encoding/json"

	"github.com/lotas/tabgruppen/internal/types"
)

// Version is the protocol version every request must carry.
const Version = 2

// Known request actions.
const (
	ActionGroupTab         = "GROUP_TAB"
	ActionBatchGroup       = "BATCH_GROUP"
	ActionGetSettings      = "GET_SETTINGS"
	ActionUpdateSettings   = "UPDATE_SETTINGS"
	ActionIsTabGrouped     = "IS_TAB_GROUPED"
	ActionGetVideoMetadata = "GET_VIDEO_METADATA"
	ActionGetStats         = "GET_STATS"
	ActionResetStats       = "RESET_STATS"
	ActionToggleEnabled    = "TOGGLE_ENABLED"
)

// Request is the decoded envelope of an inbound protocol message. Raw holds
// the complete original message so handlers can decode action-specific
// payload fields from it.
type Request struct {
	Action    string          `json:"action"`
	Version   int             `json:"version"`
	RequestID string          `json:"requestId"`
	Tab       *types.Tab      `json:"tab,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// GroupTabPayload is the payload of GROUP_TAB. Metadata stays raw: content
// scripts send loosely typed fields that go through metadata.Normalize.
type GroupTabPayload struct {
	Category string          `json:"category,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Payload decodes the action-specific fields of the request into dest.
func (r Request) Payload(dest any) error {
	if err := json.Unmarshal(r.Raw, dest); err != nil {
		return NewError(CodeValidation, "protocol", "decode %s payload: %v", r.Action, err)
	}
	return nil
}

// Result is the set of action-specific fields a handler contributes to the
// response envelope.
type Result map[string]any
