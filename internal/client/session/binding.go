package session

import (
	"sync"

	"go.uber.org/zap"
)

// Connector is the slice of the channel manager the binding drives.
type Connector interface {
	Connect(token string)
	Disconnect()
}

// Binding keeps exactly one channel alive per valid session and zero
// otherwise. Feed it every session change; it connects on authenticated
// sessions and disconnects on everything else. Close always disconnects, so a
// binding can never leak a channel past its owner.
type Binding struct {
	conn Connector
	log  *zap.Logger

	mu  sync.Mutex
	cur Session
}

func NewBinding(conn Connector, log *zap.Logger) *Binding {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binding{conn: conn, log: log}
}

// Update applies a session transition. Rapid flapping is safe: Connect tears
// down any stale channel before dialing, so two channels never coexist.
func (b *Binding) Update(s Session) {
	b.mu.Lock()
	b.cur = s
	b.mu.Unlock()

	if s.Authenticated && s.Token != "" {
		b.log.Debug("session authenticated, binding channel", zap.String("user", s.UserID))
		b.conn.Connect(s.Token)
		return
	}
	b.log.Debug("session gone, releasing channel")
	b.conn.Disconnect()
}

// Session returns the most recently applied session.
func (b *Binding) Session() Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

func (b *Binding) Close() {
	b.mu.Lock()
	b.cur = Session{}
	b.mu.Unlock()
	b.conn.Disconnect()
}
