package ws

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = Options{
	HeartbeatInterval: 20 * time.Millisecond,
	ReconnectBase:     10 * time.Millisecond,
	ReconnectMax:      40 * time.Millisecond,
	HandshakeTimeout:  time.Second,
}

// wsServer upgrades every request and hands the socket to handler.
type wsServer struct {
	srv   *httptest.Server
	URL   string
	dials atomic.Int32
}

func newWSServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *wsServer {
	t.Helper()
	s := &wsServer{}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.dials.Add(1)
		handler(c, r)
	}))
	t.Cleanup(s.srv.Close)
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

func collectMessages(t *testing.T) (Handlers, <-chan Message) {
	t.Helper()
	msgs := make(chan Message, 64)
	return Handlers{OnMessage: func(m Message) { msgs <- m }}, msgs
}

func recvMessage(t *testing.T, ch <-chan Message, within time.Duration) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return nil
	}
}

func betFrame(id int) string {
	return fmt.Sprintf(`{"type":"bet_placed","bet":{"id":%d,"playerId":2,"playerUsername":"x","amount":5},"timestamp":"2024-01-15T10:30:00Z"}`, id)
}

func TestConnDeliversMessagesInOrder(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn, _ *http.Request) {
		for i := 1; i <= 3; i++ {
			require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(betFrame(i))))
		}
		// keep the socket open until the client goes away
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	h, msgs := collectMessages(t)
	conn, err := Connect(srv.URL, "", h, zerolog.Nop(), testOpts)
	require.NoError(t, err)
	defer conn.Close()

	for i := 1; i <= 3; i++ {
		bp, ok := recvMessage(t, msgs, time.Second).(*BetPlaced)
		require.True(t, ok)
		assert.Equal(t, i, bp.Bet.ID)
	}
}

func TestConnBatchFanOutSkipsBadElements(t *testing.T) {
	batch := `[` + betFrame(1) + `,{"type":"odds_update"},"garbage",` + betFrame(2) + `]`
	srv := newWSServer(t, func(c *websocket.Conn, _ *http.Request) {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(batch)))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	h, msgs := collectMessages(t)
	conn, err := Connect(srv.URL, "", h, zerolog.Nop(), testOpts)
	require.NoError(t, err)
	defer conn.Close()

	first, ok := recvMessage(t, msgs, time.Second).(*BetPlaced)
	require.True(t, ok)
	assert.Equal(t, 1, first.Bet.ID)
	second, ok := recvMessage(t, msgs, time.Second).(*BetPlaced)
	require.True(t, ok)
	assert.Equal(t, 2, second.Bet.ID)
}

func TestConnSurvivesMalformedFrames(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn, _ *http.Request) {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(betFrame(9))))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	h, msgs := collectMessages(t)
	conn, err := Connect(srv.URL, "", h, zerolog.Nop(), testOpts)
	require.NoError(t, err)
	defer conn.Close()

	// the garbage frame is dropped without killing the connection
	bp, ok := recvMessage(t, msgs, time.Second).(*BetPlaced)
	require.True(t, ok)
	assert.Equal(t, 9, bp.Bet.ID)
}

func TestConnSendsHeartbeat(t *testing.T) {
	pings := make(chan string, 16)
	srv := newWSServer(t, func(c *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			pings <- string(data)
		}
	})

	conn, err := Connect(srv.URL, "", Handlers{}, zerolog.Nop(), testOpts)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		select {
		case p := <-pings:
			assert.Equal(t, "ping", p)
		case <-time.After(time.Second):
			t.Fatalf("no heartbeat received")
		}
	}
}

func TestConnCarriesTokenAsQueryParam(t *testing.T) {
	tokens := make(chan string, 1)
	srv := newWSServer(t, func(c *websocket.Conn, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		_ = c.Close()
	})

	conn, err := Connect(srv.URL, "s3cret", Handlers{}, zerolog.Nop(), testOpts)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case tok := <-tokens:
		assert.Equal(t, "s3cret", tok)
	case <-time.After(time.Second):
		t.Fatalf("server never saw the dial")
	}
}

func TestConnReconnectsAfterServerClose(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn, _ *http.Request) {
		_ = c.Close()
	})

	conn, err := Connect(srv.URL, "", Handlers{}, zerolog.Nop(), testOpts)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.dials.Load() >= 2 },
		2*time.Second, 5*time.Millisecond, "client never reconnected")
}

func TestConnCloseStopsReconnectAndDelivery(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn, _ *http.Request) {
		_ = c.Close()
	})

	h, msgs := collectMessages(t)
	conn, err := Connect(srv.URL, "", h, zerolog.Nop(), testOpts)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.dials.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close()) // idempotent

	// a dial already in flight at Close time may still land; after it is torn
	// down the count must stop moving
	time.Sleep(100 * time.Millisecond)
	dialsSettled := srv.dials.Load()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, dialsSettled, srv.dials.Load(), "no reconnect after Close")
	assert.Empty(t, msgs)
	assert.True(t, conn.IsClosed())
}

func TestBackoffSequence(t *testing.T) {
	c := &Conn{opts: Options{}.withDefaults()}
	bo := c.newBackoff()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		15 * time.Second,
		15 * time.Second,
	}
	for i, expected := range want {
		got, _ := bo.Next()
		assert.Equal(t, expected, got, "delay %d", i)
	}
}
