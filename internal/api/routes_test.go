package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contentos/contentos-backend/internal/ws"
)

// newTestServer mounts the full router, middleware chain included, so the
// streaming endpoints are exercised the way a real client reaches them.
func newTestServer(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()
	logger := zap.NewNop().Sugar()

	h := createTestHandler(t)
	hub := ws.NewHub(h.cache, logger, nil, nil)
	h.wsHub = hub
	h.sseHandler = ws.NewSSEHandler(h.cache, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	m := NewMiddleware(logger, nil)
	srv := httptest.NewServer(h.Routes(m, []string{"http://localhost:3000"}, 600))
	t.Cleanup(srv.Close)

	return srv, hub
}

func TestRouterServesJSONThroughFullChain(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouterStreamOpensAndDeliversEvents(t *testing.T) {
	srv, hub := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	hub.Broadcast("post.saved", map[string]any{"id": 1})

	lines := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- line
				return
			}
		}
	}()

	select {
	case line := <-lines:
		assert.Contains(t, line, "post.saved")
	case <-time.After(3 * time.Second):
		t.Fatal("no event received on the stream")
	}
}

func TestRouterUpgradesWebSocket(t *testing.T) {
	srv, hub := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// Give the hub a beat to register the connection before publishing.
	time.Sleep(100 * time.Millisecond)
	hub.Broadcast("account.added", map[string]string{"id": "acc_3"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), "account.added")
}
