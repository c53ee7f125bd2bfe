package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/pipeline"
)

func newTestHub(t *testing.T) *EventHub {
	t.Helper()
	hub := NewEventHub(newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub
}

func dialHub(t *testing.T, hub *EventHub, query string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestEventHubBroadcast(t *testing.T) {
	hub := newTestHub(t)
	conn := dialHub(t, hub, "")

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.NotifyStage(pipeline.StageEvent{
		Stage:       artifact.StageSentiment,
		Fingerprint: "abc123",
		VersionID:   "v1",
		CacheHit:    true,
		Duration:    250 * time.Millisecond,
		Timestamp:   time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "sentiment", msg.Stage)
	assert.Equal(t, "abc123", msg.Fingerprint)
	assert.Equal(t, "v1", msg.VersionID)
	assert.True(t, msg.CacheHit)
	assert.Equal(t, 250.0, msg.DurationMS)
}

func TestEventHubFingerprintSubscription(t *testing.T) {
	hub := newTestHub(t)
	conn := dialHub(t, hub, "?fingerprint=wanted")

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	// An event for a different fingerprint must not reach this client.
	hub.NotifyStage(pipeline.StageEvent{
		Stage:       artifact.StagePII,
		Fingerprint: "other",
		Timestamp:   time.Now().UTC(),
	})
	hub.NotifyStage(pipeline.StageEvent{
		Stage:       artifact.StagePII,
		Fingerprint: "wanted",
		Timestamp:   time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "wanted", msg.Fingerprint)
}

func TestEventHubDisconnectPrunesClient(t *testing.T) {
	hub := newTestHub(t)
	conn := dialHub(t, hub, "")

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNotifyStageDoesNotBlockWithoutClients(t *testing.T) {
	hub := NewEventHub(newTestLogger())

	// No Run loop draining the channel. Notify must still return promptly.
	for i := 0; i < 200; i++ {
		hub.NotifyStage(pipeline.StageEvent{
			Stage:       artifact.StageTranscription,
			Fingerprint: "abc",
			Timestamp:   time.Now().UTC(),
		})
	}
	assert.Equal(t, 0, hub.ClientCount())
}
