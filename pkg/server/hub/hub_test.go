package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/starcast/pkg/history"
	"github.com/nicktill/starcast/pkg/series"
)

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	server := httptest.NewServer(h)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return h, server
}

func TestHub_PublishReachesClient(t *testing.T) {
	h, server := startHub(t)

	conn := dial(t, server, "")
	defer conn.Close()
	require.Eventually(t, h.HasClients, time.Second, 10*time.Millisecond)

	h.Publish(history.Update{
		Type:   history.UpdateEntity,
		Label:  "acme/rocket",
		Points: series.Series{{Timestamp: 1, Value: 2}},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type   string        `json:"type"`
		Label  string        `json:"label"`
		Points series.Series `json:"points"`
		SentAt int64         `json:"sent_at"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, history.UpdateEntity, got.Type)
	assert.Equal(t, "acme/rocket", got.Label)
	assert.Equal(t, series.Series{{Timestamp: 1, Value: 2}}, got.Points)
	assert.NotZero(t, got.SentAt)
}

func TestHub_LabelFilter(t *testing.T) {
	h, server := startHub(t)

	conn := dial(t, server, "?label=acme/")
	defer conn.Close()
	require.Eventually(t, h.HasClients, time.Second, 10*time.Millisecond)

	h.Publish(history.Update{Type: history.UpdateEntity, Label: "other/thing"})
	h.Publish(history.Update{Type: history.UpdateAggregate, Label: "acme/"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"aggregate"`)
	assert.NotContains(t, string(data), "other/thing")
}

func TestHub_PublishWithoutClientsIsNoop(t *testing.T) {
	h := New()
	for i := 0; i < 1000; i++ {
		h.Publish(history.Update{Label: "x"})
	}
	assert.Empty(t, h.broadcast)
}

func TestHub_Disconnect(t *testing.T) {
	h, server := startHub(t)

	conn := dial(t, server, "")
	require.Eventually(t, h.HasClients, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return !h.HasClients() }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ImmediateDisconnectLeavesNoClients(t *testing.T) {
	h, server := startHub(t)

	for i := 0; i < 20; i++ {
		conn := dial(t, server, "")
		conn.Close()
	}
	assert.Eventually(t, func() bool { return !h.HasClients() }, 2*time.Second, 10*time.Millisecond)

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Empty(t, h.clients)
}
