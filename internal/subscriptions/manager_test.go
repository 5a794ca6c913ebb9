package subscriptions

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskgate/internal/eventbus"
	"taskgate/internal/proxy"
)

type wsFrame struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	ID      string            `json:"id"`
	Task    *eventbus.TaskRef `json:"task"`
}

type testStream struct {
	bus   *eventbus.Bus
	mgr   *Manager
	wsURL string
	conn  *websocket.Conn
}

func newTestStream(t *testing.T, header http.Header) *testStream {
	t.Helper()

	bus := eventbus.New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	mgr := NewManager(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(mgr.Close)

	srv := httptest.NewServer(mgr)
	t.Cleanup(srv.Close)

	ts := &testStream{bus: bus, mgr: mgr, wsURL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	ts.conn = ts.dial(t, header)
	return ts
}

// dial opens another client connection against the same manager.
func (ts *testStream) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (ts *testStream) subscribe(t *testing.T, teamID string) {
	t.Helper()
	require.NoError(t, ts.conn.WriteJSON(map[string]any{
		"operationName": "notificationAdded",
		"variables":     map[string]string{"teamId": teamID},
	}))
}

func (ts *testStream) readFrame(t *testing.T) wsFrame {
	t.Helper()
	require.NoError(t, ts.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame wsFrame
	require.NoError(t, ts.conn.ReadJSON(&frame))
	return frame
}

func waitForSubscribers(t *testing.T, bus *eventbus.Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, bus.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeAckAndDeliver(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.subscribe(t, "team-1")

	ack := ts.readFrame(t)
	assert.Equal(t, "subscription_ack", ack.Type)
	waitForSubscribers(t, ts.bus, 1)

	ts.bus.Publish(eventbus.Notification{
		ID:      "n1",
		Message: "alice@example.com created a new task: Ship it",
		TeamID:  "team-1",
		Task:    &eventbus.TaskRef{ID: "t1", Title: "Ship it", Status: "todo"},
	})

	got := ts.readFrame(t)
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, "alice@example.com created a new task: Ship it", got.Message)
	require.NotNil(t, got.Task)
	assert.Equal(t, "t1", got.Task.ID)
	assert.Equal(t, "todo", got.Task.Status)
}

func TestDeliveryIsFilteredByTeam(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.subscribe(t, "team-1")
	require.Equal(t, "subscription_ack", ts.readFrame(t).Type)

	// Second client on the same manager, subscribed to another team.
	other := ts.dial(t, nil)
	require.NoError(t, other.WriteJSON(map[string]any{
		"operationName": "notificationAdded",
		"variables":     map[string]string{"teamId": "team-2"},
	}))
	require.NoError(t, other.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack wsFrame
	require.NoError(t, other.ReadJSON(&ack))
	require.Equal(t, "subscription_ack", ack.Type)
	waitForSubscribers(t, ts.bus, 2)

	ts.bus.Publish(eventbus.Notification{ID: "n1", Message: "x", TeamID: "team-1"})

	got := ts.readFrame(t)
	assert.Equal(t, "n1", got.ID)

	// The team-2 subscriber must receive nothing.
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var frame wsFrame
	err := other.ReadJSON(&frame)
	assert.Error(t, err, "expected read timeout, got frame %+v", frame)
}

func TestDeliveryPreservesPublishOrder(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.subscribe(t, "team-1")
	require.Equal(t, "subscription_ack", ts.readFrame(t).Type)
	waitForSubscribers(t, ts.bus, 1)

	for _, id := range []string{"n1", "n2", "n3"} {
		ts.bus.Publish(eventbus.Notification{ID: id, TeamID: "team-1"})
	}

	for _, want := range []string{"n1", "n2", "n3"} {
		assert.Equal(t, want, ts.readFrame(t).ID)
	}
}

func TestNullTaskDeliversAsJSONNull(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.subscribe(t, "team-1")
	require.Equal(t, "subscription_ack", ts.readFrame(t).Type)
	waitForSubscribers(t, ts.bus, 1)

	ts.bus.Publish(eventbus.Notification{ID: "n1", Message: "task deleted", TeamID: "team-1"})

	require.NoError(t, ts.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ts.conn.ReadMessage()
	require.NoError(t, err)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "null", string(payload["task"]))
}

func TestRejectsUnknownOperation(t *testing.T) {
	ts := newTestStream(t, nil)
	require.NoError(t, ts.conn.WriteJSON(map[string]any{
		"operationName": "taskAdded",
		"variables":     map[string]string{"teamId": "team-1"},
	}))

	frame := ts.readFrame(t)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "unsupported operation", frame.Message)
	assert.Equal(t, 0, ts.bus.Len())
}

func TestRejectsMissingTeamID(t *testing.T) {
	ts := newTestStream(t, nil)
	require.NoError(t, ts.conn.WriteJSON(map[string]any{
		"operationName": "notificationAdded",
		"variables":     map[string]string{},
	}))

	frame := ts.readFrame(t)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, 0, ts.bus.Len())
}

func TestRejectsTeamMismatchAgainstTrustedHeader(t *testing.T) {
	header := http.Header{}
	header.Set(proxy.HeaderUserID, "user-1")
	header.Set(proxy.HeaderUserTeam, "team-1")

	ts := newTestStream(t, header)
	ts.subscribe(t, "team-2")

	frame := ts.readFrame(t)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "not authorized to subscribe to this team", frame.Message)
	assert.Equal(t, 0, ts.bus.Len(), "no subscription may be registered on mismatch")
}

func TestAllowsMatchingTrustedHeader(t *testing.T) {
	header := http.Header{}
	header.Set(proxy.HeaderUserID, "user-1")
	header.Set(proxy.HeaderUserTeam, "team-1")

	ts := newTestStream(t, header)
	ts.subscribe(t, "team-1")
	assert.Equal(t, "subscription_ack", ts.readFrame(t).Type)
}

func TestCompleteTearsDownSubscription(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.subscribe(t, "team-1")
	require.Equal(t, "subscription_ack", ts.readFrame(t).Type)
	waitForSubscribers(t, ts.bus, 1)

	require.NoError(t, ts.conn.WriteJSON(map[string]string{"type": "complete"}))
	waitForSubscribers(t, ts.bus, 0)
}

func TestDisconnectTearsDownSubscription(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.subscribe(t, "team-1")
	require.Equal(t, "subscription_ack", ts.readFrame(t).Type)
	waitForSubscribers(t, ts.bus, 1)

	require.NoError(t, ts.conn.Close())
	waitForSubscribers(t, ts.bus, 0)
}
