package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/serverroom-monitor/internal/models"
)

func wsURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http")
}

func mustMessage(t *testing.T, msgType models.MessageType, payload interface{}) *models.Message {
	t.Helper()
	msg, err := models.NewMessage(msgType, payload)
	require.NoError(t, err)
	return msg
}

func readMessage(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	var msg models.Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_ReplaysRecentEventsAndBroadcasts(t *testing.T) {
	hub := NewHub(testLogger(), 2)
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	// Only the last two events are kept for replay
	hub.Notify(mustMessage(t, models.MessageTypeRecordCreated, map[string]string{"id": "a"}))
	hub.Notify(mustMessage(t, models.MessageTypeRecordCreated, map[string]string{"id": "b"}))
	hub.Notify(mustMessage(t, models.MessageTypeRecordDeleted, models.RecordDeletedMessage{ID: "b", MonthYear: "2024-01"}))
	require.Len(t, hub.Recent(), 2)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeRecordCreated, first.Type)
	assert.JSONEq(t, `{"id":"b"}`, string(first.Payload))

	second := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeRecordDeleted, second.Type)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify(mustMessage(t, models.MessageTypeAggregateRemoved, models.AggregateRemovedMessage{MonthYear: "2024-01"}))
	live := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeAggregateRemoved, live.Type)
	var payload models.AggregateRemovedMessage
	require.NoError(t, live.UnmarshalPayload(&payload))
	assert.Equal(t, "2024-01", payload.MonthYear)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(testLogger(), 0)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Notifying with no clients only records the event
	hub.Notify(mustMessage(t, models.MessageTypeRecordCreated, map[string]string{"id": "x"}))
	assert.Len(t, hub.Recent(), 1)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(testLogger(), 0, "http://dash.local")
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{name: "no origin header", origin: "", wantErr: false},
		{name: "allowed origin", origin: "http://dash.local", wantErr: false},
		{name: "foreign origin", origin: "http://evil.example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), header)
			if tt.wantErr {
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			conn.Close()
		})
	}
}

func TestHub_NotifyNil(t *testing.T) {
	hub := NewHub(testLogger(), 0)
	hub.Notify(nil)
	assert.Empty(t, hub.Recent())
}

func TestServer_WebSocketRoute(t *testing.T) {
	srv, repo := newTestServer(t, Options{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL)+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = repo.Insert(t.Context(), newRecord("2024-01-10", 23, 50))
	require.NoError(t, err)

	created := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeRecordCreated, created.Type)
	var record models.MonitoringRecord
	require.NoError(t, created.UnmarshalPayload(&record))
	assert.Equal(t, "2024-01-10", record.Date)

	updated := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeAggregateUpdated, updated.Type)
}
