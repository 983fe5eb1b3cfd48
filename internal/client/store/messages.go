package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloudzz-dev/cldztalk/internal/client/channel"
	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

// HistorySource is the REST slice the message store pulls pages from.
type HistorySource interface {
	GetMessages(ctx context.Context, chatID string, page, limit int) ([]models.Message, models.Pagination, error)
}

// Messages holds the ordered, deduplicated message list for the focused chat.
// Two writers race into it — paginated history fetches and live pushes — and
// the store guarantees one entry per id, ascending CreatedAt, regardless of
// arrival order. Anything scoped to a different chat is ignored here.
type Messages struct {
	api  HistorySource
	emit channel.Emitter
	log  *zap.Logger

	localUserID string
	pageSize    int
	settleDelay time.Duration

	mu          sync.Mutex
	chatID      string
	gen         int
	list        []models.Message
	pag         models.Pagination
	loading     bool
	loadErr     error
	settleTimer *time.Timer
}

func NewMessages(api HistorySource, emit channel.Emitter, localUserID string, pageSize int, settleDelay time.Duration, log *zap.Logger) *Messages {
	if log == nil {
		log = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Messages{
		api:         api,
		emit:        emit,
		log:         log,
		localUserID: localUserID,
		pageSize:    pageSize,
		settleDelay: settleDelay,
	}
}

// SetFocusedChat switches the store's scope. The list is cleared, any
// in-flight history fetch for the previous chat is invalidated, and a read
// flush is scheduled after the settle delay. Empty chatID blurs the store.
func (s *Messages) SetFocusedChat(chatID string) {
	s.mu.Lock()
	s.chatID = chatID
	s.gen++
	s.list = nil
	s.pag = models.Pagination{}
	s.loading = false
	s.loadErr = nil
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	if chatID != "" {
		if s.settleDelay <= 0 {
			s.mu.Unlock()
			s.MarkRead(chatID)
			return
		}
		s.settleTimer = time.AfterFunc(s.settleDelay, func() {
			s.mu.Lock()
			stale := s.chatID != chatID
			s.mu.Unlock()
			if !stale {
				s.MarkRead(chatID)
			}
		})
	}
	s.mu.Unlock()
}

// FocusedChat returns the current scope id, empty when blurred.
func (s *Messages) FocusedChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// LoadHistory fetches one page for chatID and unions it into the list. A
// response that resolves after the scope moved on is discarded silently; live
// messages that arrived while the fetch was in flight are preserved.
func (s *Messages) LoadHistory(ctx context.Context, chatID string, page int) error {
	s.mu.Lock()
	if s.chatID != chatID {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.loading = true
	s.mu.Unlock()

	msgs, pag, err := s.api.GetMessages(ctx, chatID, page, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.chatID != chatID {
		// Expected interleaving, not a fault.
		s.log.Debug("discarding stale history page", zap.String("chat", chatID), zap.Int("page", page))
		return nil
	}
	s.loading = false
	if err != nil {
		s.loadErr = err
		s.log.Warn("history fetch failed", zap.String("chat", chatID), zap.Error(err))
		return err
	}
	s.loadErr = nil
	s.list = Merge(s.list, msgs)
	s.pag = pag
	return nil
}

// AddMessage is the live-arrival path: an idempotent insert keyed by message
// id. Messages outside the focused scope, or missing id/chatId, are ignored.
func (s *Messages) AddMessage(m models.Message) {
	if m.ID == "" || m.ChatID == "" {
		s.log.Warn("rejecting message without id or chatId")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ChatID != s.chatID {
		return
	}
	s.list = Merge(s.list, []models.Message{m})
}

// MarkRead flips IsRead on every unread peer message in chatID and emits one
// best-effort read receipt per message. The local mutation is never rolled
// back; a reconnect or refetch reconciles any divergence.
func (s *Messages) MarkRead(chatID string) {
	var receipts []string
	s.mu.Lock()
	for i := range s.list {
		m := &s.list[i]
		if m.ChatID != chatID || m.IsRead || m.SenderID == s.localUserID {
			continue
		}
		m.IsRead = true
		receipts = append(receipts, m.ID)
	}
	s.mu.Unlock()

	for _, id := range receipts {
		s.emit.Emit(channel.MarkRead(id))
	}
}

// ApplyPeerRead records a peer's read receipt against one of our messages.
func (s *Messages) ApplyPeerRead(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == messageID {
			s.list[i].IsRead = true
			return
		}
	}
}

// UpdateMessage merges changed fields into an existing entry by id. Unknown
// ids are ignored.
func (s *Messages) UpdateMessage(m models.Message) {
	if m.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == m.ID {
			s.list[i] = m
			return
		}
	}
}

// RemoveMessage handles an explicit delete by id.
func (s *Messages) RemoveMessage(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == messageID {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

// List returns a copy of the current message list, oldest first.
func (s *Messages) List() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.list))
	copy(out, s.list)
	return out
}

// Pagination returns the page state of the last successful history load.
func (s *Messages) Pagination() models.Pagination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pag
}

func (s *Messages) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err reports the last history fetch failure for the current scope, nil once
// a load succeeds or the scope changes.
func (s *Messages) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Clear drops all state, scope included.
func (s *Messages) Clear() {
	s.SetFocusedChat("")
}
