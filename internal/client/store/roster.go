package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

// RosterSource is the REST slice the roster pulls from.
type RosterSource interface {
	GetChats(ctx context.Context) ([]models.Chat, error)
	GetContacts(ctx context.Context) ([]models.Contact, error)
}

// Roster holds the conversations visible to the user, most-recent-activity
// first, plus the focused-conversation pointer and the contact list.
type Roster struct {
	api RosterSource
	log *zap.Logger

	localUserID string

	mu       sync.Mutex
	chats    []models.Chat
	contacts []models.Contact
	focused  string
	loading  bool
	loadErr  error
}

func NewRoster(api RosterSource, localUserID string, log *zap.Logger) *Roster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Roster{api: api, localUserID: localUserID, log: log}
}

// LoadRoster replaces the roster wholesale from the server. On failure the
// previous roster stays intact and the error is held for the presentation
// layer's retry affordance.
func (r *Roster) LoadRoster(ctx context.Context) error {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	chats, err := r.api.GetChats(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	if err != nil {
		r.loadErr = err
		r.log.Warn("roster fetch failed", zap.Error(err))
		return err
	}
	r.loadErr = nil
	r.chats = chats
	return nil
}

// ApplyIncomingMessage folds a live message into the matching chat's summary
// and bumps that chat to the front. A message for an unseen chat id triggers
// a background roster refresh. Unread counting is a separate signal
// (IncrementUnread) so a focused chat is never double-counted.
func (r *Roster) ApplyIncomingMessage(msg models.Message) {
	if msg.ChatID == "" {
		r.log.Warn("ignoring message without chatId")
		return
	}
	r.mu.Lock()
	idx := r.indexLocked(msg.ChatID)
	if idx == -1 {
		r.mu.Unlock()
		r.log.Debug("message for unseen chat, refreshing roster", zap.String("chat", msg.ChatID))
		go func() {
			_ = r.LoadRoster(context.Background())
		}()
		return
	}
	m := msg
	r.chats[idx].LastMessage = &m
	r.chats[idx].UpdatedAt = msg.CreatedAt
	chat := r.chats[idx]
	r.chats = append(r.chats[:idx], r.chats[idx+1:]...)
	r.chats = append([]models.Chat{chat}, r.chats...)
	r.mu.Unlock()
}

// IncrementUnread bumps the unread counter for chatID. Callers only signal
// this for unfocused chats whose sender is a peer.
func (r *Roster) IncrementUnread(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(chatID); idx != -1 {
		r.chats[idx].UnreadCount++
	}
}

// ClearUnread resets the unread counter, typically when a chat gains focus or
// its read receipts flush.
func (r *Roster) ClearUnread(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(chatID); idx != -1 {
		r.chats[idx].UnreadCount = 0
	}
}

// SetFocused moves the focused-conversation pointer. Nil clears it.
func (r *Roster) SetFocused(chat *models.Chat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chat == nil {
		r.focused = ""
		return
	}
	r.focused = chat.ID
}

// Focused returns a copy of the focused chat, nil when none.
func (r *Roster) Focused() *models.Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.focused == "" {
		return nil
	}
	if idx := r.indexLocked(r.focused); idx != -1 {
		chat := r.chats[idx]
		return &chat
	}
	return nil
}

// FocusedID returns the focused chat id, empty when none.
func (r *Roster) FocusedID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focused
}

// AddChat prepends a chat unless its id is already present.
func (r *Roster) AddChat(chat models.Chat) {
	if chat.ID == "" {
		r.log.Warn("ignoring chat without id")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(chat.ID) != -1 {
		return
	}
	r.chats = append([]models.Chat{chat}, r.chats...)
}

// UpdateChat merges fresh fields into an existing chat by id.
func (r *Roster) UpdateChat(chat models.Chat) {
	if chat.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(chat.ID); idx != -1 {
		r.chats[idx] = chat
	}
}

// RemoveChat handles explicit removal; focus is cleared if it pointed here.
func (r *Roster) RemoveChat(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(chatID); idx != -1 {
		r.chats = append(r.chats[:idx], r.chats[idx+1:]...)
	}
	if r.focused == chatID {
		r.focused = ""
	}
}

// SetPresence updates a chat's online flag.
func (r *Roster) SetPresence(chatID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(chatID); idx != -1 {
		r.chats[idx].IsOnline = online
	}
}

// Chats returns a copy of the roster in display order.
func (r *Roster) Chats() []models.Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Chat, len(r.chats))
	copy(out, r.chats)
	return out
}

func (r *Roster) LoadContacts(ctx context.Context) error {
	contacts, err := r.api.GetContacts(ctx)
	if err != nil {
		r.log.Warn("contacts fetch failed", zap.Error(err))
		return err
	}
	r.mu.Lock()
	r.contacts = contacts
	r.mu.Unlock()
	return nil
}

func (r *Roster) Contacts() []models.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Contact, len(r.contacts))
	copy(out, r.contacts)
	return out
}

func (r *Roster) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err reports the last roster fetch failure, nil after a successful load.
func (r *Roster) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

// Reset drops all roster state, used on logout.
func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = nil
	r.contacts = nil
	r.focused = ""
	r.loadErr = nil
	r.loading = false
}

func (r *Roster) indexLocked(chatID string) int {
	for i := range r.chats {
		if r.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}
