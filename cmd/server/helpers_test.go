package main

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"parley/internal/config"
	"parley/internal/store"
	"parley/pkg/protocol"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DataDir:         t.TempDir(),
		UploadDir:       t.TempDir(),
		StaticDir:       t.TempDir(),
		PingInterval:    30 * time.Second,
		SendBufferSize:  32,
		EventBufferSize: 64,
	}
}

// newTestServer builds a Server on temp dirs and serves its router over
// httptest. The broadcast pump and liveness sweeper are running.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := testConfig(t)

	st, err := store.Open(cfg.DataDir, slog.Default())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s := NewServer(cfg, slog.Default(), st)
	s.Start()

	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("write frame failed: %v", err)
	}
}

// readFrame blocks until an outbound frame arrives or the timeout expires.
func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) (protocol.Outbound, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var out protocol.Outbound
	err := wsjson.Read(ctx, conn, &out)
	return out, err
}

// waitForClients polls the registry until the expected number of
// connections is registered; dial returning does not guarantee the handler
// goroutine got that far yet.
func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.stateManager.Stats().ConnectedClients == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d connected clients, got %d", want, s.stateManager.Stats().ConnectedClients)
}
