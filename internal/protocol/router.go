package protocol

import (
	"context"
	"encoding/json"

	"github.com/lotas/tabgruppen/internal/applog"
)

// HandlerFunc serves one protocol action. The returned Result is merged into
// the response envelope; a returned error becomes a structured error
// response.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

// Middleware wraps a handler. Middleware registered first runs outermost.
type Middleware func(HandlerFunc) HandlerFunc

// Router validates inbound envelopes and dispatches them to action handlers.
type Router struct {
	handlers   map[string]HandlerFunc
	middleware []Middleware
}

// NewRouter returns a Router with no handlers registered.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers the handler for an action. Last registration wins.
func (r *Router) Handle(action string, h HandlerFunc) {
	r.handlers[action] = h
}

// Use appends middleware applied to every handler.
func (r *Router) Use(mw Middleware) {
	r.middleware = append(r.middleware, mw)
}

// actionsRequiringTab lists actions that operate on the sender tab and are
// rejected when the envelope does not identify one.
var actionsRequiringTab = map[string]bool{
	ActionGroupTab:         true,
	ActionIsTabGrouped:     true,
	ActionGetVideoMetadata: true,
}

// Dispatch validates and serves a raw inbound message, always producing a
// JSON response envelope.
func (r *Router) Dispatch(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return respondError(Request{}, NewError(CodeValidation, "protocol", "malformed request: %v", err))
	}
	req.Raw = raw

	// Legacy compat: unversioned {action:"groupTab"} messages predate the
	// envelope and are upgraded in place.
	if req.Version == 0 && req.Action == "groupTab" {
		applog.Warn("protocol.legacy", "action", req.Action)
		req.Action = ActionGroupTab
		req.Version = Version
	}

	if err := validate(req); err != nil {
		return respondError(req, err)
	}

	handler, ok := r.handlers[req.Action]
	if !ok {
		return respondError(req, NewError(CodeUnknownAction, "protocol", "unknown action %q", req.Action))
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}

	result, err := handler(ctx, req)
	if err != nil {
		applog.Error("protocol.handler", err, "action", req.Action, "requestId", req.RequestID)
		return respondError(req, err)
	}
	return respond(req, result)
}

func validate(req Request) error {
	if req.Action == "" {
		return NewError(CodeValidation, "protocol", "missing action")
	}
	if req.Version != Version {
		return NewError(CodeVersionMismatch, "protocol",
			"protocol version %d not supported (want %d)", req.Version, Version)
	}
	if actionsRequiringTab[req.Action] && (req.Tab == nil || req.Tab.ID == 0) {
		return NewError(CodeValidation, "protocol", "%s requires a sender tab", req.Action)
	}
	return nil
}

func respond(req Request, result Result) []byte {
	out := map[string]any{
		"success":   true,
		"requestId": req.RequestID,
	}
	for k, v := range result {
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return respondError(req, NewError(CodeInternal, "protocol", "encode response: %v", err))
	}
	return data
}

func respondError(req Request, err error) []byte {
	env := Envelope(err)
	out := map[string]any{
		"success":       false,
		"requestId":     req.RequestID,
		"error":         env.Message,
		"errorEnvelope": env,
	}
	data, _ := json.Marshal(out)
	return data
}
