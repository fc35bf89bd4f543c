package browser

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lotas/tabgruppen/internal/protocol"
	"github.com/lotas/tabgruppen/internal/types"
	"nhooyr.io/websocket"
)

// fakeExtension connects to the server and answers commands with respond.
// respond returns nil to leave a command unanswered.
func fakeExtension(t *testing.T, srv *Server, respond func(OutgoingMsg) *IncomingMsg) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	go func() {
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			var cmd OutgoingMsg
			if err := json.Unmarshal(data, &cmd); err != nil {
				continue
			}
			resp := respond(cmd)
			if resp == nil {
				continue
			}
			resp.ID = cmd.ID
			out, _ := json.Marshal(resp)
			conn.Write(context.Background(), websocket.MessageText, out)
		}
	}()

	// Wait for the server to register the connection.
	deadline := time.Now().Add(2 * time.Second)
	for !srv.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("extension never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func ok() *bool { b := true; return &b }

func TestQueryTabsRoundTrip(t *testing.T) {
	srv := New(0)
	fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg {
		if cmd.Action != "queryTabs" {
			t.Errorf("action = %q, want queryTabs", cmd.Action)
		}
		tabs, _ := json.Marshal([]types.Tab{{ID: 1, WindowID: 2, Title: "a"}, {ID: 2, WindowID: 2, Title: "b"}})
		return &IncomingMsg{OK: ok(), Tabs: tabs}
	})

	tabs, err := srv.QueryTabs(context.Background(), TabQuery{})
	if err != nil {
		t.Fatalf("QueryTabs: %v", err)
	}
	if len(tabs) != 2 || tabs[0].ID != 1 {
		t.Errorf("tabs = %+v", tabs)
	}
}

func TestGroupTabsCreatesGroup(t *testing.T) {
	srv := New(0)
	fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg {
		if cmd.Action != "groupTabs" {
			return nil
		}
		if cmd.GroupID != 0 || cmd.WindowID != 7 {
			t.Errorf("expected create-in-window command, got %+v", cmd)
		}
		return &IncomingMsg{OK: ok(), GroupID: 99}
	})

	id, err := srv.GroupTabs(context.Background(), []int{5}, GroupTabsOpts{WindowID: 7})
	if err != nil {
		t.Fatalf("GroupTabs: %v", err)
	}
	if id != 99 {
		t.Errorf("group id = %d, want 99", id)
	}
}

func TestCallReportsExtensionFailure(t *testing.T) {
	srv := New(0)
	fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg {
		no := false
		return &IncomingMsg{OK: &no, Error: "no such group"}
	})

	_, err := srv.GetGroup(context.Background(), 12)
	if err == nil {
		t.Fatal("expected error")
	}
	if !protocol.HasCode(err, protocol.CodeExternalAPI) {
		t.Errorf("error code = %v, want %s", err, protocol.CodeExternalAPI)
	}
}

func TestCallTimesOut(t *testing.T) {
	srv := New(0)
	fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg {
		return nil // never answer
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := srv.QueryTabs(ctx, TabQuery{})
	if !protocol.HasCode(err, protocol.CodeTimeout) {
		t.Errorf("error = %v, want code %s", err, protocol.CodeTimeout)
	}
}

func TestCallWithoutConnection(t *testing.T) {
	srv := New(0)
	_, err := srv.QueryTabs(context.Background(), TabQuery{})
	if !protocol.HasCode(err, protocol.CodeExternalAPI) {
		t.Errorf("error = %v, want code %s", err, protocol.CodeExternalAPI)
	}
}

func TestEventsAreDelivered(t *testing.T) {
	srv := New(0)
	conn := fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg { return nil })

	ev := map[string]any{"type": EventGroupRemoved, "groupId": 42}
	data, _ := json.Marshal(ev)
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-srv.Events():
		if got.Type != EventGroupRemoved || got.GroupID != 42 {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGroupUpdatedEventCarriesGroup(t *testing.T) {
	srv := New(0)
	conn := fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg { return nil })

	ev := map[string]any{
		"type":  EventGroupUpdated,
		"group": types.Group{ID: 3, WindowID: 1, Title: "Music", Color: "blue"},
	}
	data, _ := json.Marshal(ev)
	conn.Write(context.Background(), websocket.MessageText, data)

	select {
	case got := <-srv.Events():
		if got.Group == nil || got.Group.Title != "Music" {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRelayedRequestGetsResponse(t *testing.T) {
	srv := New(0)
	srv.SetRequestHandler(func(ctx context.Context, raw []byte) []byte {
		return []byte(`{"success":true,"grouped":false}`)
	})

	responses := make(chan IncomingMsg, 1)
	conn := fakeExtension(t, srv, func(cmd OutgoingMsg) *IncomingMsg {
		if cmd.Action == "response" {
			var msg IncomingMsg
			json.Unmarshal(cmd.Response, &msg)
			responses <- IncomingMsg{ID: cmd.ID, Request: cmd.Response}
		}
		return nil
	})

	req := map[string]any{"type": "request", "id": "relay-1", "request": map[string]any{"action": "IS_TAB_GROUPED"}}
	data, _ := json.Marshal(req)
	conn.Write(context.Background(), websocket.MessageText, data)

	select {
	case got := <-responses:
		if got.ID != "relay-1" {
			t.Errorf("response correlated to %q, want relay-1", got.ID)
		}
		if !strings.Contains(string(got.Request), `"grouped":false`) {
			t.Errorf("response payload = %s", got.Request)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed response")
	}
}
