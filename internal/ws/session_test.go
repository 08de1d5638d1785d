package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/internal/domain"
)

const testDelay = 50 * time.Millisecond

// pushServer is a minimal push endpoint: it authenticates by ?token=, records
// every upgraded connection and lets tests write frames or drop connections.
type pushServer struct {
	srv      *httptest.Server
	reject   atomic.Bool
	attempts atomic.Int32
	received chan []byte

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{received: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.attempts.Add(1)
		token := r.URL.Query().Get("token")
		if token == "" || ps.reject.Load() {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.tokens = append(ps.tokens, token)
		ps.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case ps.received <- data:
			default:
			}
		}
	}))
	t.Cleanup(func() {
		ps.dropAll()
		ps.srv.Close()
	})
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http") + "/ws"
}

func (ps *pushServer) connCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.conns)
}

func (ps *pushServer) lastToken() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.tokens) == 0 {
		return ""
	}
	return ps.tokens[len(ps.tokens)-1]
}

func (ps *pushServer) push(t *testing.T, raw string) {
	t.Helper()
	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.NotEmpty(t, ps.conns)
	conn := ps.conns[len(ps.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (ps *pushServer) dropAll() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, c := range ps.conns {
		_ = c.Close()
	}
}

func newTestSession(t *testing.T, ps *pushServer) *Session {
	t.Helper()
	s := NewSession(Options{URL: ps.url(), ReconnectDelay: testDelay})
	t.Cleanup(s.Disconnect)
	return s
}

func TestSessionConnect(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	require.NoError(t, s.Connect(context.Background(), "tok-1"))
	assert.Equal(t, StateOpen, s.State())
	assert.True(t, s.Connected())
	assert.Eventually(t, func() bool { return ps.connCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "tok-1", ps.lastToken())

	t.Run("Idempotent", func(t *testing.T) {
		require.NoError(t, s.Connect(context.Background(), "tok-1"))
		assert.Never(t, func() bool { return ps.connCount() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	})
}

func TestSessionConnectWithoutUsableToken(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	err := s.Connect(context.Background(), "")
	assert.True(t, errors.Is(err, domain.ErrNoToken))

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	err = s.Connect(context.Background(), expired)
	assert.True(t, errors.Is(err, domain.ErrNoToken))

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, ps.attempts.Load())
}

func TestSessionDeliversFrames(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	frames := make(chan Frame, 4)
	s.OnFrame(func(f Frame) { frames <- f })
	require.NoError(t, s.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return ps.connCount() == 1 }, time.Second, 5*time.Millisecond)

	ps.push(t, `{"type":"group_message"`)
	ps.push(t, `{"type":"group_message","sender_id":2,"room_id":5,"content":"hi","sender_name":"ann"}`)
	ps.push(t, `{"id":3,"sender_id":2,"receiver_id":1,"content":"dm"}`)

	select {
	case f := <-frames:
		assert.Equal(t, KindGroup, f.Kind())
	case <-time.After(time.Second):
		t.Fatal("group frame not delivered")
	}
	select {
	case f := <-frames:
		assert.Equal(t, KindDirect, f.Kind())
	case <-time.After(time.Second):
		t.Fatal("direct frame not delivered")
	}
	assert.Equal(t, StateOpen, s.State(), "malformed frame must not close the session")
}

func TestSessionReconnectsAfterUnexpectedClose(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	var retrying atomic.Int32
	s.Subscribe(func(st State) {
		if st == StateRetrying {
			retrying.Add(1)
		}
	})

	require.NoError(t, s.Connect(context.Background(), "tok-a"))
	require.Eventually(t, func() bool { return ps.connCount() == 1 }, time.Second, 5*time.Millisecond)

	ps.dropAll()

	assert.Eventually(t, func() bool { return ps.connCount() == 2 && s.Connected() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "tok-a", ps.lastToken())
	assert.Equal(t, int32(1), retrying.Load())
}

func TestSessionDisconnectSuppressesReconnect(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	require.NoError(t, s.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return ps.connCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Disconnect()

	assert.Equal(t, StateIdle, s.State())
	assert.Never(t, func() bool { return ps.attempts.Load() > 1 }, 4*testDelay, 10*time.Millisecond)
	assert.False(t, s.Send(NewOutboundDirect(1, "after logout")))
}

func TestSessionSingleRetryPerClose(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	var retrying atomic.Int32
	s.Subscribe(func(st State) {
		if st == StateRetrying {
			retrying.Add(1)
		}
	})

	require.NoError(t, s.Connect(context.Background(), "tok"))
	require.Eventually(t, func() bool { return ps.connCount() == 1 }, time.Second, 5*time.Millisecond)

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	cause := errors.New("network down")
	s.lost(gen, cause, true)
	s.lost(gen, cause, true)

	assert.Equal(t, int32(1), retrying.Load())
	assert.Eventually(t, func() bool { return s.Connected() }, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return ps.attempts.Load() > 2 }, 4*testDelay, 10*time.Millisecond)
}

func TestSessionRejectedTokenStopsRetrying(t *testing.T) {
	ps := newPushServer(t)
	ps.reject.Store(true)
	s := newTestSession(t, ps)

	err := s.Connect(context.Background(), "revoked")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Equal(t, StateIdle, s.State())
	assert.Never(t, func() bool { return ps.attempts.Load() > 1 }, 4*testDelay, 10*time.Millisecond)
}

func TestSessionStaleGenerationIsNotDelivered(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	var calls atomic.Int32
	s.OnFrame(func(Frame) { calls.Add(1) })
	require.NoError(t, s.Connect(context.Background(), "tok"))

	s.mu.Lock()
	old := s.gen
	s.bumpLocked()
	s.mu.Unlock()

	assert.False(t, s.deliver(old, &GroupMessageFrame{RoomID: 1}))
	assert.Zero(t, calls.Load())
}

func TestSessionSend(t *testing.T) {
	ps := newPushServer(t)
	s := newTestSession(t, ps)

	assert.False(t, s.Send(NewOutboundDirect(7, "too early")))

	require.NoError(t, s.Connect(context.Background(), "tok"))
	require.True(t, s.Send(NewOutboundDirect(7, "hello")))

	select {
	case data := <-ps.received:
		assert.JSONEq(t, `{"type":"message","receiver_id":7,"content":"hello"}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("server did not receive frame")
	}
}
