package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

type fakeRosterAPI struct {
	mu       sync.Mutex
	chats    []models.Chat
	contacts []models.Contact
	err      error
	calls    int
}

func (f *fakeRosterAPI) GetChats(ctx context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Chat, len(f.chats))
	copy(out, f.chats)
	return out, nil
}

func (f *fakeRosterAPI) GetContacts(ctx context.Context) ([]models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts, nil
}

func (f *fakeRosterAPI) chatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRoster_LoadReplacesWholesale(t *testing.T) {
	api := &fakeRosterAPI{chats: []models.Chat{{ID: "c1"}, {ID: "c2"}}}
	r := NewRoster(api, "local", nil)
	require.NoError(t, r.LoadRoster(context.Background()))
	assert.Len(t, r.Chats(), 2)

	api.mu.Lock()
	api.chats = []models.Chat{{ID: "c3"}}
	api.mu.Unlock()
	require.NoError(t, r.LoadRoster(context.Background()))

	chats := r.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "c3", chats[0].ID)
}

func TestRoster_FetchFailureKeepsPreviousRoster(t *testing.T) {
	api := &fakeRosterAPI{chats: []models.Chat{{ID: "c1"}}}
	r := NewRoster(api, "local", nil)
	require.NoError(t, r.LoadRoster(context.Background()))

	api.mu.Lock()
	api.err = errors.New("network down")
	api.mu.Unlock()

	assert.Error(t, r.LoadRoster(context.Background()))
	assert.Error(t, r.Err())
	assert.Len(t, r.Chats(), 1, "transient failure wiped the roster")
}

func TestRoster_IncomingMessageBumpsChatToFront(t *testing.T) {
	// Roster has c1 with no unread; focus elsewhere; message m1 for c1
	// arrives: summary set, c1 at index 0, unread goes to 1 via the explicit
	// signal.
	api := &fakeRosterAPI{chats: []models.Chat{{ID: "c0"}, {ID: "c1"}}}
	r := NewRoster(api, "local", nil)
	now := time.Now()
	require.NoError(t, r.LoadRoster(context.Background()))

	msg := models.Message{ID: "m1", ChatID: "c1", SenderID: "u2", CreatedAt: now}
	r.ApplyIncomingMessage(msg)
	r.IncrementUnread("c1")

	chats := r.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "c1", chats[0].ID)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "m1", chats[0].LastMessage.ID)
	assert.Equal(t, 1, chats[0].UnreadCount)
}

func TestRoster_UnseenChatTriggersRefresh(t *testing.T) {
	api := &fakeRosterAPI{chats: []models.Chat{{ID: "c1"}}}
	r := NewRoster(api, "local", nil)
	require.NoError(t, r.LoadRoster(context.Background()))
	before := api.chatCalls()

	api.mu.Lock()
	api.chats = append(api.chats, models.Chat{ID: "c9"})
	api.mu.Unlock()

	r.ApplyIncomingMessage(models.Message{ID: "m1", ChatID: "c9", SenderID: "u2"})

	assert.Eventually(t, func() bool {
		return api.chatCalls() > before && len(r.Chats()) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRoster_AddChatDeduplicatesByID(t *testing.T) {
	r := NewRoster(&fakeRosterAPI{}, "local", nil)
	r.AddChat(models.Chat{ID: "c1", Name: "first"})
	r.AddChat(models.Chat{ID: "c1", Name: "again"})
	r.AddChat(models.Chat{})

	chats := r.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "first", chats[0].Name)
}

func TestRoster_RemoveChatClearsFocus(t *testing.T) {
	r := NewRoster(&fakeRosterAPI{}, "local", nil)
	r.AddChat(models.Chat{ID: "c1"})
	r.SetFocused(&models.Chat{ID: "c1"})
	require.Equal(t, "c1", r.FocusedID())

	r.RemoveChat("c1")

	assert.Empty(t, r.Chats())
	assert.Nil(t, r.Focused())
}

func TestRoster_ClearUnread(t *testing.T) {
	r := NewRoster(&fakeRosterAPI{}, "local", nil)
	r.AddChat(models.Chat{ID: "c1", UnreadCount: 4})

	r.ClearUnread("c1")

	assert.Equal(t, 0, r.Chats()[0].UnreadCount)
}

func TestRoster_ResetDropsEverything(t *testing.T) {
	r := NewRoster(&fakeRosterAPI{}, "local", nil)
	r.AddChat(models.Chat{ID: "c1"})
	r.SetFocused(&models.Chat{ID: "c1"})

	r.Reset()

	assert.Empty(t, r.Chats())
	assert.Empty(t, r.FocusedID())
	assert.NoError(t, r.Err())
}
