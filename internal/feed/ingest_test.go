package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/model"
)

// fakeSim is a minimal simulation endpoint. Each connection records its
// START command, writes the scripted messages and then blocks until the
// client goes away.
type fakeSim struct {
	mu       sync.Mutex
	commands []model.Command
	closed   chan struct{}
	script   []string
}

func newFakeSim(script ...string) (*fakeSim, *httptest.Server) {
	f := &fakeSim{closed: make(chan struct{}, 16), script: script}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd model.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		f.mu.Unlock()

		for _, msg := range f.script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.closed <- struct{}{}
				return
			}
		}
	}))
	return f, srv
}

func (f *fakeSim) Commands() []model.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Command(nil), f.commands...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, ing *Ingestor) model.Event {
	t.Helper()
	select {
	case ev := <-ing.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func TestNew_RejectsNonWebSocketURL(t *testing.T) {
	_, err := New(Config{URL: "http://localhost:8000/ws/simulation"}, nil)
	assert.Error(t, err)
}

func TestIngestor_SendsStartAndStreamsEvents(t *testing.T) {
	sim, srv := newFakeSim(
		`{"type":"CANDLE","data":{"timestamp":"2024-01-01T03:45:00Z","open":1,"high":2,"low":1,"close":2}}`,
		`{"type":"NEWS","data":{}}`,
		`{"type":"TICK","data":{"price":3}}`,
	)
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv), DisplayOffset: istOffset}, nil)
	require.NoError(t, err)
	defer ing.Stop()

	connected := make(chan uint64, 1)
	ing.OnConnect = func(s uint64) { connected <- s }

	session := ing.Start(context.Background(), 2.5)

	ev := nextEvent(t, ing)
	assert.Equal(t, model.KindCandle, ev.Kind)
	assert.Equal(t, session, ev.Session)
	assert.Equal(t, int64(1704080700+19800), ev.Candle.Time)

	// The unknown NEWS message is skipped, not fatal.
	ev = nextEvent(t, ing)
	assert.Equal(t, model.KindTick, ev.Kind)
	assert.Equal(t, 3.0, ev.Price)

	assert.Equal(t, session, <-connected)
	require.Len(t, sim.Commands(), 1)
	assert.Equal(t, model.Command{Command: "START", Speed: 2.5}, sim.Commands()[0])
}

func TestIngestor_StopClosesConnection(t *testing.T) {
	sim, srv := newFakeSim()
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, err)

	connected := make(chan struct{}, 1)
	ing.OnConnect = func(uint64) { connected <- struct{}{} }
	ing.Start(context.Background(), 1)
	<-connected

	ing.Stop()
	select {
	case <-sim.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection close")
	}

	// Stop is idempotent.
	ing.Stop()
}

func TestIngestor_RestartSupersedesPriorConnection(t *testing.T) {
	sim, srv := newFakeSim(`{"type":"TICK","data":{"price":1}}`)
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, err)
	defer ing.Stop()

	first := ing.Start(context.Background(), 1)
	assert.Equal(t, first, nextEvent(t, ing).Session)

	second := ing.Start(context.Background(), 1)
	assert.NotEqual(t, first, second)

	// The first connection is closed before the second one opens.
	select {
	case <-sim.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("first connection was not closed")
	}
	assert.Equal(t, second, nextEvent(t, ing).Session)
}

func TestIngestor_DialFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	ing, err := New(Config{URL: url}, nil)
	require.NoError(t, err)

	errs := make(chan error, 1)
	gone := make(chan error, 1)
	ing.OnError = func(_ uint64, err error) { errs <- err }
	ing.OnDisconnect = func(_ uint64, err error) { gone <- err }
	ing.Start(context.Background(), 1)

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected dial error")
	}
	select {
	case err := <-gone:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected disconnect")
	}
	ing.Stop()
}

func TestIngestor_ServerCloseReportsDisconnect(t *testing.T) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var cmd model.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TICK","data":{"price":7}}`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		// Wait for the client's close reply.
		conn.ReadMessage()
	}))
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, err)
	defer ing.Stop()

	var errCalls int
	var mu sync.Mutex
	ing.OnError = func(uint64, error) {
		mu.Lock()
		errCalls++
		mu.Unlock()
	}
	type disconnect struct {
		session uint64
		err     error
	}
	gone := make(chan disconnect, 1)
	ing.OnDisconnect = func(s uint64, err error) { gone <- disconnect{s, err} }

	session := ing.Start(context.Background(), 1)
	assert.Equal(t, 7.0, nextEvent(t, ing).Price)

	select {
	case d := <-gone:
		assert.Equal(t, session, d.session)
		assert.NoError(t, d.err)
	case <-time.After(2 * time.Second):
		t.Fatal("clean server close was not reported")
	}
	mu.Lock()
	assert.Zero(t, errCalls)
	mu.Unlock()
}

func TestIngestor_StopReportsDisconnect(t *testing.T) {
	_, srv := newFakeSim()
	defer srv.Close()

	ing, err := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, err)

	connected := make(chan struct{}, 1)
	gone := make(chan uint64, 1)
	ing.OnConnect = func(uint64) { connected <- struct{}{} }
	ing.OnDisconnect = func(s uint64, _ error) { gone <- s }
	session := ing.Start(context.Background(), 1)
	<-connected

	ing.Stop()
	// Stop waits for the goroutine, so the hook has already run.
	select {
	case s := <-gone:
		assert.Equal(t, session, s)
	default:
		t.Fatal("Stop returned before the disconnect hook ran")
	}
}
