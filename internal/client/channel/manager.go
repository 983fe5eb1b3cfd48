package channel

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives inbound events. Handlers run on the channel's read
// goroutine and must not block.
type Handler func(Event)

// Emitter is the best-effort command surface stores depend on. Satisfied by
// *Manager; swappable for an acknowledged mechanism without touching callers.
type Emitter interface {
	Emit(cmd Command)
}

// Bus is the full subscribe/emit surface the event router depends on.
type Bus interface {
	Emitter
	On(kind EventKind, h Handler) int
	Off(id int)
}

// Manager owns the single duplex channel for the current session. At most one
// live connection exists at a time; Connect for a new token tears the old one
// down, listeners included, before dialing.
type Manager struct {
	url    string
	log    *zap.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	token     string
	gen       int
	connected bool
	lastErr   string

	subs    map[EventKind]map[int]Handler
	subKind map[int]EventKind
	nextSub int

	writeMu sync.Mutex

	// reconnect tuning, shortened in tests
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewManager(url string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		url:            url,
		log:            log,
		dialer:         websocket.DefaultDialer,
		subs:           make(map[EventKind]map[int]Handler),
		subKind:        make(map[int]EventKind),
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     15 * time.Second,
	}
}

// Connect binds the channel to token. Idempotent: a live channel for the same
// token is left alone. A different token tears down the existing channel
// first. Dial failures never surface to the caller; the manager lands in the
// disconnected state with the reason recorded and keeps retrying with backoff
// until Disconnect or a Connect with a new token.
func (m *Manager) Connect(token string) {
	m.mu.Lock()
	if m.token == token && m.gen > 0 {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.token = token
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.run(token, gen)
}

// Disconnect tears the channel down: transport closed, handlers detached, no
// further inbound events delivered. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.token = ""
	m.mu.Unlock()
}

// teardownLocked invalidates the running connection goroutine and detaches
// every listener. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.subs = make(map[EventKind]map[int]Handler)
	m.subKind = make(map[int]EventKind)
}

// On subscribes h to events of the given kind and returns a subscription id
// for Off. Multiple subscribers per kind are fine.
func (m *Manager) On(kind EventKind, h Handler) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	if m.subs[kind] == nil {
		m.subs[kind] = make(map[int]Handler)
	}
	m.subs[kind][id] = h
	m.subKind[id] = kind
	return id
}

func (m *Manager) Off(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind, ok := m.subKind[id]
	if !ok {
		return
	}
	delete(m.subKind, id)
	delete(m.subs[kind], id)
}

// Emit sends a command to the server. Best-effort: when the channel is not
// connected the command is dropped with a warning, never queued.
func (m *Manager) Emit(cmd Command) {
	m.mu.Lock()
	conn := m.conn
	connected := m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.log.Warn("emit dropped, channel not connected", zap.String("type", cmd.Type))
		return
	}

	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		m.log.Warn("emit dropped, bad payload", zap.String("type", cmd.Type), zap.Error(err))
		return
	}
	data, _ := json.Marshal(envelope{Type: cmd.Type, Payload: payload})

	m.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		m.log.Warn("emit failed", zap.String("type", cmd.Type), zap.Error(err))
	}
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen
}

// run dials, pumps inbound frames, and redials on unexpected loss. It exits
// as soon as its generation is invalidated by Disconnect or a newer Connect.
func (m *Manager) run(token string, gen int) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.initialBackoff
	bo.MaxInterval = m.maxBackoff
	bo.MaxElapsedTime = 0

	for {
		if m.stale(gen) {
			return
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, resp, err := m.dialer.Dial(m.url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			m.mu.Lock()
			m.lastErr = err.Error()
			m.mu.Unlock()
			m.log.Warn("channel dial failed", zap.Error(err))
			time.Sleep(bo.NextBackOff())
			continue
		}

		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.connected = true
		m.lastErr = ""
		m.mu.Unlock()

		bo.Reset()
		m.log.Info("channel connected")
		m.dispatch(ConnectedEvent{})

		reason := m.readLoop(conn, gen)

		if m.stale(gen) {
			return
		}

		m.mu.Lock()
		m.connected = false
		m.conn = nil
		m.lastErr = reason
		m.mu.Unlock()

		m.log.Warn("channel lost", zap.String("reason", reason))
		m.dispatch(DisconnectedEvent{Reason: reason})
	}
}

// readLoop pumps frames until the connection dies and returns the reason.
func (m *Manager) readLoop(conn *websocket.Conn, gen int) string {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err.Error()
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		ev, err := decodeEvent(env)
		if err != nil {
			m.log.Warn("dropping event", zap.String("type", env.Type), zap.Error(err))
			continue
		}

		if m.stale(gen) {
			return "superseded"
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev Event) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[ev.Kind()]))
	for _, h := range m.subs[ev.Kind()] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
