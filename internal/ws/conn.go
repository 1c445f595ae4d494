package ws

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"live-leaderboard/internal/constants"
)

// Handlers is the callback set for one logical connection. Callbacks are
// invoked from the connection goroutine; nil entries are skipped.
type Handlers struct {
	OnMessage func(Message)
	OnOpen    func()
	OnClose   func(error)
	OnError   func(error)
}

type Options struct {
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	HandshakeTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = constants.HeartbeatInterval
	}
	if o.ReconnectBase == 0 {
		o.ReconnectBase = constants.ReconnectBaseDelay
	}
	if o.ReconnectMax == 0 {
		o.ReconnectMax = constants.ReconnectMaxDelay
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = constants.HandshakeTimeout
	}
	return o
}

// Conn owns one logical persistent connection. It dials immediately, sends a
// "ping" keep-alive while open, and reconnects with capped exponential
// backoff until Close is called. Transport errors are never fatal; the
// reconnect loop is the only recovery path.
type Conn struct {
	url    string
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	handlers Handlers
	sock     *websocket.Conn
	closed   bool
	done     chan struct{}
}

// Connect opens the connection and returns its handle. The token, when
// non-empty, is carried as a query parameter.
func Connect(wsURL, token string, h Handlers, logger zerolog.Logger, opts Options) (*Conn, error) {
	target, err := buildURL(wsURL, token)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		url:      target,
		opts:     opts.withDefaults(),
		logger:   logger,
		handlers: h,
		done:     make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func buildURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// SetHandlers swaps the callback set without touching the physical
// connection, so callers never reconnect just to change a callback.
func (c *Conn) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Close requests shutdown: no further reconnect is scheduled, the keep-alive
// stops, and no message is delivered afterwards. Safe to call more than once.
// A dial that is in flight when Close is called is torn down as soon as it
// completes instead of being left dangling.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sock := c.sock
	c.sock = nil
	close(c.done)
	c.mu.Unlock()

	if sock != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
		_ = sock.WriteControl(websocket.CloseMessage, msg, deadline)
		return sock.Close()
	}
	return nil
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) run() {
	dialer := &websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	bo := c.newBackoff()
	for {
		session, _ := gonanoid.New()
		log := c.logger.With().Str("session", session).Logger()

		sock, resp, err := dialer.Dial(c.url, nil)
		if err != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			log.Warn().Err(err).Msg("ws dial failed")
			c.emitError(err)
			c.emitClose(err)
			if !c.sleepBackoff(bo) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = sock.Close()
			return
		}
		c.sock = sock
		c.mu.Unlock()

		// retries reset only on a successful open
		bo = c.newBackoff()
		log.Info().Msg("ws connected")
		c.emitOpen()

		err = c.session(sock, log)

		c.mu.Lock()
		c.sock = nil
		closed := c.closed
		c.mu.Unlock()

		c.emitClose(err)
		if closed {
			return
		}
		log.Warn().Err(err).Msg("ws closed, reconnecting")
		if !c.sleepBackoff(bo) {
			return
		}
	}
}

func (c *Conn) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(c.opts.ReconnectMax, retry.NewExponential(c.opts.ReconnectBase))
}

func (c *Conn) sleepBackoff(bo retry.Backoff) bool {
	delay, _ := bo.Next()
	select {
	case <-time.After(delay):
		return !c.IsClosed()
	case <-c.done:
		return false
	}
}

// session runs the read loop plus the keep-alive ticker until the socket
// errors or closes.
func (c *Conn) session(sock *websocket.Conn, log zerolog.Logger) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sock.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			case <-stop:
				return
			case <-c.done:
				return
			}
		}
	}()

	var readErr error
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.dispatch(data, log)
	}
	close(stop)
	wg.Wait()
	return readErr
}

// dispatch fans a frame out to the codec: arrays element by element in array
// order, single objects as-is. Malformed JSON is dropped with a log line;
// messages the codec rejects are dropped silently.
func (c *Conn) dispatch(data []byte, log zerolog.Logger) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return
	}
	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			log.Warn().Err(err).Msg("ws invalid payload")
			return
		}
		for _, raw := range batch {
			c.deliver(raw)
		}
		return
	}
	if !json.Valid(trimmed) {
		log.Warn().Msg("ws invalid payload")
		return
	}
	c.deliver(trimmed)
}

func (c *Conn) deliver(raw []byte) {
	msg := Decode(raw)
	if msg == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	h := c.handlers.OnMessage
	c.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (c *Conn) emitOpen() {
	c.mu.Lock()
	h := c.handlers.OnOpen
	c.mu.Unlock()
	if h != nil {
		h()
	}
}

func (c *Conn) emitClose(err error) {
	c.mu.Lock()
	h := c.handlers.OnClose
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (c *Conn) emitError(err error) {
	c.mu.Lock()
	h := c.handlers.OnError
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}
