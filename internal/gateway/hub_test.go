package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	h := NewHub(10, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv, "")
	b := dial(t, srv, "")
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 5*time.Millisecond)

	h.Broadcast(KindPlayback, map[string]bool{"playing": true})

	for _, c := range []*websocket.Conn{a, b} {
		env := read(t, c)
		assert.Equal(t, KindPlayback, env.Kind)
		assert.Equal(t, int64(1), env.Seq)
		assert.JSONEq(t, `{"playing":true}`, string(env.Data))
	}
}

func TestHub_BackfillOnReconnect(t *testing.T) {
	h := NewHub(10, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	h.Broadcast(KindTick, 1.0)
	h.Broadcast(KindTick, 2.0)
	h.Broadcast(KindTick, 3.0)

	c := dial(t, srv, "?last_seq=1")
	assert.Equal(t, int64(2), read(t, c).Seq)
	assert.Equal(t, int64(3), read(t, c).Seq)

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	h.Broadcast(KindReset, struct{}{})
	env := read(t, c)
	assert.Equal(t, KindReset, env.Kind)
	assert.Equal(t, int64(4), env.Seq)
}

func TestHub_FullReplayBackfillsEverything(t *testing.T) {
	h := NewHub(500, nil)
	var drops int
	h.OnDrop = func() { drops++ }
	srv := httptest.NewServer(h)
	defer srv.Close()

	for i := 0; i < 500; i++ {
		h.Broadcast(KindTick, float64(i))
	}

	c := dial(t, srv, "?last_seq=0")
	for want := int64(1); want <= 500; want++ {
		require.Equal(t, want, read(t, c).Seq)
	}
	assert.Zero(t, drops)
}

func TestHub_RejectsBadLastSeq(t *testing.T) {
	h := NewHub(10, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?last_seq=x", nil)
	require.Error(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	h := NewHub(10, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dial(t, srv, "")
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
