package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatclient/internal/domain"
	"chatclient/internal/logger"
	"chatclient/internal/security"
)

const writeWait = 10 * time.Second

// State is the lifecycle position of a Session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives every decoded inbound frame. It runs on the connection's
// reader goroutine and must not call back into the Session synchronously.
type Handler func(Frame)

// Options configures a Session.
type Options struct {
	URL              string        // push endpoint, e.g. ws://localhost:8080/ws
	Dialer           *websocket.Dialer
	ReconnectDelay   time.Duration // fixed delay, or initial delay when ReconnectMax is larger
	ReconnectMax     time.Duration // >ReconnectDelay enables exponential backoff
	PingInterval     time.Duration // 0 disables heartbeats
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
	Clock            func() time.Time
}

func (o *Options) norm() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 3 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}
	}
	o.Logger = logger.OrNop(o.Logger)
}

func (o *Options) newBackOff() backoff.BackOff {
	if o.ReconnectMax > o.ReconnectDelay {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = o.ReconnectDelay
		b.MaxInterval = o.ReconnectMax
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(o.ReconnectDelay)
}

// Session owns the single push connection of the process. It reconnects after
// unexpected closes using the most recent token and never after Disconnect.
type Session struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	connID string
	token  string
	timer  *time.Timer
	bo     backoff.BackOff
	gen    uint64 // written with mu and deliverMu held

	// Dispatch holds deliverMu for reading; generation bumps take it for
	// writing, so no frame of an older generation is delivered after a bump.
	deliverMu sync.RWMutex
	handler   Handler

	writeMu sync.Mutex

	subsMu  sync.RWMutex
	subs    map[int]func(State)
	nextSub int
}

func NewSession(opts Options) *Session {
	opts.norm()
	return &Session{
		opts: opts,
		log:  opts.Logger.Named("ws"),
		bo:   opts.newBackOff(),
		subs: make(map[int]func(State)),
	}
}

// OnFrame installs the inbound frame handler.
func (s *Session) OnFrame(h Handler) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.handler = h
}

// Subscribe registers fn to be called after every state transition. Callbacks
// may run on any goroutine. The returned func removes the subscription.
func (s *Session) Subscribe(fn func(State)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool {
	return s.State() == StateOpen
}

// Connect opens the push connection with token as the query credential.
// It is a no-op while a connection is open or an attempt is in flight.
func (s *Session) Connect(ctx context.Context, token string) error {
	if !security.Usable(token, s.opts.Clock()) {
		s.log.Warn("connect skipped: no usable token")
		return domain.ErrNoToken
	}

	s.mu.Lock()
	s.token = token
	if s.state == StateOpen || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.stopTimerLocked()
	gen := s.bumpLocked()
	s.state = StateConnecting
	s.mu.Unlock()
	s.publish(StateConnecting)

	return s.dial(ctx, gen, token)
}

// Disconnect closes the connection deliberately and forgets the token, so no
// reconnect is attempted afterwards.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.bumpLocked()
	conn := s.conn
	s.conn = nil
	s.token = ""
	s.state = StateClosing
	s.mu.Unlock()
	s.publish(StateClosing)

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		s.log.Info("disconnected")
	}

	s.mu.Lock()
	idle := s.state == StateClosing
	if idle {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if idle {
		s.publish(StateIdle)
	}
}

// Send writes v as a JSON text frame. When the connection is not open the
// frame is dropped and logged; Send reports whether it was written.
func (s *Session) Send(v any) bool {
	s.mu.Lock()
	conn, open := s.conn, s.state == StateOpen
	s.mu.Unlock()
	if !open || conn == nil {
		s.log.Warn("send skipped: push channel not open")
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.log.Warn("send failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Session) dial(ctx context.Context, gen uint64, token string) error {
	endpoint, err := s.endpoint(token)
	if err != nil {
		s.lost(gen, err, false)
		return err
	}

	conn, resp, err := s.opts.Dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		rejected := resp != nil && resp.StatusCode == http.StatusUnauthorized
		s.log.Warn("dial failed", zap.String("url", s.opts.URL), zap.Bool("rejected", rejected), zap.Error(err))
		if rejected {
			s.forgetToken(gen)
		}
		s.lost(gen, err, !rejected)
		if rejected {
			return fmt.Errorf("dial: %w", domain.ErrUnauthorized)
		}
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateConnecting {
		s.mu.Unlock()
		_ = conn.Close()
		return domain.ErrSessionClosed
	}
	connID := uuid.NewString()
	s.conn = conn
	s.connID = connID
	s.state = StateOpen
	s.bo.Reset()
	s.stopTimerLocked()
	s.mu.Unlock()

	s.log.Info("connected", zap.String("conn_id", connID))
	s.publish(StateOpen)

	if s.opts.PingInterval > 0 {
		pongWait := 2 * s.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go s.pingLoop(conn, gen)
	}
	go s.readLoop(conn, gen, connID)
	return nil
}

func (s *Session) endpoint(token string) (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) readLoop(conn *websocket.Conn, gen uint64, connID string) {
	defer conn.Close()
	log := s.log.With(zap.String("conn_id", connID))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("connection lost", zap.Error(err))
			} else {
				log.Debug("reader stopped", zap.Error(err))
			}
			s.lost(gen, err, true)
			return
		}

		f, err := DecodeFrame(data)
		if err != nil {
			log.Warn("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if !s.deliver(gen, f) {
			log.Debug("stale reader exiting")
			return
		}
	}
}

func (s *Session) deliver(gen uint64, f Frame) bool {
	s.deliverMu.RLock()
	defer s.deliverMu.RUnlock()
	if s.gen != gen {
		return false
	}
	if s.handler != nil {
		s.handler(f)
	}
	return true
}

func (s *Session) pingLoop(conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !s.current(gen) {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			s.log.Warn("ping failed", zap.Error(err))
			s.lost(gen, err, true)
			_ = conn.Close()
			return
		}
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// lost handles the end of connection generation gen. Only the first report for
// a generation counts, so at most one reconnect timer is ever armed.
func (s *Session) lost(gen uint64, cause error, retry bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.bumpLocked()
	s.stopTimerLocked()

	next := StateIdle
	var delay time.Duration
	if retry && security.Usable(s.token, s.opts.Clock()) {
		if d := s.bo.NextBackOff(); d != backoff.Stop {
			delay = d
			retryGen := s.gen
			s.timer = time.AfterFunc(d, func() { s.retry(retryGen) })
			next = StateRetrying
		}
	}
	s.state = next
	s.mu.Unlock()

	if next == StateRetrying {
		s.log.Info("reconnect scheduled", zap.Duration("delay", delay), zap.NamedError("cause", cause))
	} else {
		s.log.Info("push channel off", zap.NamedError("cause", cause))
	}
	s.publish(next)
}

func (s *Session) retry(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateRetrying {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	token := s.token
	if !security.Usable(token, s.opts.Clock()) {
		s.state = StateIdle
		s.mu.Unlock()
		s.log.Info("reconnect abandoned: token no longer usable")
		s.publish(StateIdle)
		return
	}
	next := s.bumpLocked()
	s.state = StateConnecting
	s.mu.Unlock()
	s.publish(StateConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	defer cancel()
	if err := s.dial(ctx, next, token); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		s.log.Debug("reconnect attempt failed", zap.Error(err))
	}
}

func (s *Session) forgetToken(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.token = ""
	}
}

// bumpLocked starts a new generation. Caller holds s.mu.
func (s *Session) bumpLocked() uint64 {
	s.deliverMu.Lock()
	s.gen++
	gen := s.gen
	s.deliverMu.Unlock()
	return gen
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) publish(st State) {
	s.subsMu.RLock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range fns {
		fn(st)
	}
}
