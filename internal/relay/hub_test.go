package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roomly/backend/internal/metrics"
	"github.com/roomly/backend/internal/presence"
)

func TestHub_ShutdownEndsWritePumps(t *testing.T) {
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	defer ts.Close()

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer peer.Close()

	// the default ping period is close to a minute, so only a closed send
	// queue can end the write pump within the test deadline
	hub := NewHub(NewLocalBroker(), presence.NewLocal(), metrics.New(prometheus.NewRegistry()), zap.NewNop(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()

	s := newSession(hub, <-accepted, "")
	require.True(t, hub.attach(s))
	pumpDone := make(chan struct{})
	go func() {
		s.WritePump()
		close(pumpDone)
	}()

	cancel()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump still running after shutdown")
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Empty(t, hub.sessions)
}
