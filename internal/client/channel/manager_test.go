package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

const (
	eventuallyTimeout = 2 * time.Second
	pollInterval      = 10 * time.Millisecond
)

// wsServer is a minimal socket endpoint: records bearer tokens, lets tests
// push frames to the connected client and read what the client emitted.
type wsServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
	inbox  []envelope
}

func newWSServer(t *testing.T) *wsServer {
	s := &wsServer{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.tokens = append(s.tokens, token)
		s.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if json.Unmarshal(data, &env) == nil {
				s.mu.Lock()
				s.inbox = append(s.inbox, env)
				s.mu.Unlock()
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *wsServer) lastConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *wsServer) lastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return ""
	}
	return s.tokens[len(s.tokens)-1]
}

func (s *wsServer) received() []envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]envelope, len(s.inbox))
	copy(out, s.inbox)
	return out
}

func (s *wsServer) push(t *testing.T, typ string, payload interface{}) {
	t.Helper()
	conn := s.lastConn()
	require.NotNil(t, conn)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(envelope{Type: typ, Payload: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func newTestManager(url string) *Manager {
	m := NewManager(url, nil)
	m.initialBackoff = 20 * time.Millisecond
	m.maxBackoff = 50 * time.Millisecond
	return m
}

func waitConnected(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, m.IsConnected, eventuallyTimeout, pollInterval)
}

func TestManager_ConnectPassesBearerToken(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	m.Connect("tok-1")
	waitConnected(t, m)

	assert.Equal(t, "tok-1", srv.lastToken())
	assert.Empty(t, m.LastError())
}

func TestManager_ConnectIdempotentForSameToken(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	m.Connect("tok-1")
	waitConnected(t, m)
	m.Connect("tok-1")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount(), "same-token connect dialed again")
}

func TestManager_NewTokenTearsDownOldChannel(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	m.Connect("tok-1")
	waitConnected(t, m)
	m.Connect("tok-2")

	require.Eventually(t, func() bool {
		return srv.lastToken() == "tok-2" && m.IsConnected()
	}, eventuallyTimeout, pollInterval)
	assert.Equal(t, 2, srv.connCount())
}

func TestManager_DialFailureLandsInDisconnectedState(t *testing.T) {
	m := newTestManager("ws://127.0.0.1:1/socket")
	defer m.Disconnect()

	m.Connect("tok-1")

	assert.Eventually(t, func() bool {
		return m.LastError() != ""
	}, eventuallyTimeout, pollInterval)
	assert.False(t, m.IsConnected())
}

func TestManager_EmitDroppedWhileDisconnected(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())

	m.Emit(Typing("c1"))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, srv.received(), "emit while disconnected reached the server")
}

func TestManager_EmitWritesEnvelope(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	m.Connect("tok-1")
	waitConnected(t, m)

	m.Emit(JoinChat("c1"))

	require.Eventually(t, func() bool {
		return len(srv.received()) == 1
	}, eventuallyTimeout, pollInterval)
	env := srv.received()[0]
	assert.Equal(t, "joinChat", env.Type)
	var p struct {
		ChatID string `json:"chatId"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "c1", p.ChatID)
}

func TestManager_DispatchesTypedEvents(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	var mu sync.Mutex
	var got []Event
	record := func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}

	m.Connect("tok-1")
	m.On(KindNewMessage, record)
	m.On(KindUserTyping, record)
	waitConnected(t, m)

	srv.push(t, "newMessage", models.Message{ID: "m1", ChatID: "c1", SenderID: "u2", CreatedAt: time.Now()})
	srv.push(t, "userTyping", map[string]string{"chatId": "c1", "userId": "u2", "username": "ana"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, eventuallyTimeout, pollInterval)

	mu.Lock()
	defer mu.Unlock()
	msg, ok := got[0].(NewMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "m1", msg.Message.ID)
	typ, ok := got[1].(UserTypingEvent)
	require.True(t, ok)
	assert.Equal(t, "ana", typ.Username)
}

func TestManager_MalformedPayloadDroppedWithoutDispatch(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	var count int32
	var mu sync.Mutex
	m.Connect("tok-1")
	m.On(KindNewMessage, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	waitConnected(t, m)

	// Missing id and chatId.
	srv.push(t, "newMessage", map[string]string{"content": "hi"})
	// Well-formed follower proves the loop survived.
	srv.push(t, "newMessage", models.Message{ID: "m2", ChatID: "c1", SenderID: "u2", CreatedAt: time.Now()})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, eventuallyTimeout, pollInterval)
}

func TestManager_OffStopsDelivery(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	var mu sync.Mutex
	var count int
	m.Connect("tok-1")
	id := m.On(KindNewMessage, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	waitConnected(t, m)
	m.Off(id)

	srv.push(t, "newMessage", models.Message{ID: "m1", ChatID: "c1", SenderID: "u2", CreatedAt: time.Now()})

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestManager_DisconnectDetachesHandlers(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())

	var mu sync.Mutex
	var count int
	m.Connect("tok-1")
	m.On(KindNewMessage, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	waitConnected(t, m)

	m.Disconnect()
	assert.False(t, m.IsConnected())

	// The old server-side conn is dead; nothing should reach the handler and
	// the manager must not redial.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount(), "manager redialed after Disconnect")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)

	// Safe to call again.
	m.Disconnect()
}

func TestManager_ReconnectsAndRedispatchesConnected(t *testing.T) {
	srv := newWSServer(t)
	m := newTestManager(srv.url())
	defer m.Disconnect()

	var mu sync.Mutex
	var connects, disconnects int
	m.Connect("tok-1")
	m.On(KindConnected, func(Event) {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	m.On(KindDisconnected, func(Event) {
		mu.Lock()
		disconnects++
		mu.Unlock()
	})
	waitConnected(t, m)

	// Server-side drop: the manager must redial and re-announce Connected.
	require.NoError(t, srv.lastConn().Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 1 && disconnects >= 1
	}, eventuallyTimeout, pollInterval)
	require.Eventually(t, func() bool {
		return srv.connCount() >= 2 && m.IsConnected()
	}, eventuallyTimeout, pollInterval)
	assert.Equal(t, "tok-1", srv.lastToken())
}
