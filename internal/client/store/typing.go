package store

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloudzz-dev/cldztalk/internal/client/channel"
)

// TypingUser is one peer currently typing in a chat.
type TypingUser struct {
	UserID   string
	Username string
}

type typingKey struct {
	chatID string
	userID string
}

// Typing tracks ephemeral typing presence per (chat, user) pair. Entries
// expire on a per-sender timer, re-armed by every repeat typing event, or
// drop immediately on an explicit stop. The tracker also drives the local
// user's outbound typing signals with a per-chat stop debounce. All of it is
// best-effort presence traffic: nothing is retried, a missed event self-heals
// via timeout.
type Typing struct {
	emit channel.Emitter
	log  *zap.Logger

	localUserID string
	timeout     time.Duration
	debounce    time.Duration

	mu         sync.Mutex
	entries    map[typingKey]*typingEntry
	stopTimers map[string]*time.Timer
	closed     bool
}

type typingEntry struct {
	username string
	timer    *time.Timer
}

func NewTyping(emit channel.Emitter, localUserID string, timeout, debounce time.Duration, log *zap.Logger) *Typing {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Typing{
		emit:        emit,
		log:         log,
		localUserID: localUserID,
		timeout:     timeout,
		debounce:    debounce,
		entries:     make(map[typingKey]*typingEntry),
		stopTimers:  make(map[string]*time.Timer),
	}
}

// HandleTyping moves a peer to the typing state and arms (or re-arms) its
// expiry. The local user's own events are ignored.
func (t *Typing) HandleTyping(chatID, userID, username string) {
	if userID == "" || userID == t.localUserID {
		return
	}
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if e, ok := t.entries[key]; ok {
		e.username = username
		e.timer.Reset(t.timeout)
		return
	}
	t.entries[key] = &typingEntry{
		username: username,
		timer: time.AfterFunc(t.timeout, func() {
			t.expire(key)
		}),
	}
}

// HandleStopped drops a peer from the typing state immediately.
func (t *Typing) HandleStopped(chatID, userID string) {
	key := typingKey{chatID: chatID, userID: userID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *Typing) expire(key typingKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Users lists who is typing in chatID, ordered by username for stable display.
func (t *Typing) Users(chatID string) []TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TypingUser
	for key, e := range t.entries {
		if key.chatID == chatID {
			out = append(out, TypingUser{UserID: key.userID, Username: e.username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// NotifyTyping signals the local user's typing to the server. Called on each
// keystroke while the draft is non-empty; the matching stop fires after the
// debounce window of inactivity.
func (t *Typing) NotifyTyping(chatID string) {
	t.emit.Emit(channel.Typing(chatID))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if timer, ok := t.stopTimers[chatID]; ok {
		timer.Reset(t.debounce)
		return
	}
	t.stopTimers[chatID] = time.AfterFunc(t.debounce, func() {
		t.NotifyStopped(chatID)
	})
}

// NotifyStopped signals stop-typing immediately: on submit, on the draft
// going empty, or from the debounce timer.
func (t *Typing) NotifyStopped(chatID string) {
	t.mu.Lock()
	if timer, ok := t.stopTimers[chatID]; ok {
		timer.Stop()
		delete(t.stopTimers, chatID)
	}
	t.mu.Unlock()

	t.emit.Emit(channel.StopTyping(chatID))
}

// Clear drops all typing state for one chat, used when leaving its scope.
func (t *Typing) Clear(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		if key.chatID == chatID {
			e.timer.Stop()
			delete(t.entries, key)
		}
	}
}

// Close stops every timer. The tracker is unusable afterwards.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
	for chatID, timer := range t.stopTimers {
		timer.Stop()
		delete(t.stopTimers, chatID)
	}
}
