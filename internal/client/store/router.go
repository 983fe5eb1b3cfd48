package store

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudzz-dev/cldztalk/internal/client/channel"
	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

// Router subscribes the stores to the channel and routes each inbound event
// to its owners. It also owns the focused-conversation switch: leave the old
// live scope, clear and refill the message store, join the new scope. One
// router per session; Detach before the session goes away.
type Router struct {
	bus      channel.Bus
	roster   *Roster
	messages *Messages
	typing   *Typing
	log      *zap.Logger

	localUserID string
	subs        []int
}

func NewRouter(bus channel.Bus, roster *Roster, messages *Messages, typing *Typing, localUserID string, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		bus:         bus,
		roster:      roster,
		messages:    messages,
		typing:      typing,
		log:         log,
		localUserID: localUserID,
	}
}

// Attach registers all event handlers. Call after the session binding has
// connected the channel; handlers survive transport reconnects.
func (rt *Router) Attach() {
	rt.subs = append(rt.subs,
		rt.bus.On(channel.KindConnected, rt.handleConnected),
		rt.bus.On(channel.KindNewMessage, rt.handleNewMessage),
		rt.bus.On(channel.KindUserTyping, rt.handleTyping),
		rt.bus.On(channel.KindUserStoppedTyping, rt.handleStoppedTyping),
		rt.bus.On(channel.KindMessageRead, rt.handleMessageRead),
	)
}

// Detach deregisters every handler so a torn-down scope never processes
// events twice after a reconnect.
func (rt *Router) Detach() {
	for _, id := range rt.subs {
		rt.bus.Off(id)
	}
	rt.subs = nil
}

// handleConnected re-joins the focused chat's live scope after a reconnect so
// the server resumes pushing into it.
func (rt *Router) handleConnected(channel.Event) {
	if focused := rt.roster.FocusedID(); focused != "" {
		rt.log.Debug("rejoining focused chat after connect", zap.String("chat", focused))
		rt.bus.Emit(channel.JoinChat(focused))
	}
}

// handleNewMessage routes a live message: the roster summary always updates;
// the message list only when the chat is focused. Unread counting and read
// flushing split on focus so a focused chat auto-reads instead of counting.
func (rt *Router) handleNewMessage(ev channel.Event) {
	msg := ev.(channel.NewMessageEvent).Message

	rt.roster.ApplyIncomingMessage(msg)

	fromPeer := msg.SenderID != rt.localUserID
	if msg.ChatID == rt.roster.FocusedID() {
		rt.messages.AddMessage(msg)
		rt.typing.HandleStopped(msg.ChatID, msg.SenderID)
		if fromPeer {
			rt.messages.MarkRead(msg.ChatID)
		}
		return
	}
	if fromPeer {
		rt.roster.IncrementUnread(msg.ChatID)
	}
}

func (rt *Router) handleTyping(ev channel.Event) {
	e := ev.(channel.UserTypingEvent)
	rt.typing.HandleTyping(e.ChatID, e.UserID, e.Username)
}

func (rt *Router) handleStoppedTyping(ev channel.Event) {
	e := ev.(channel.UserStoppedTypingEvent)
	rt.typing.HandleStopped(e.ChatID, e.UserID)
}

func (rt *Router) handleMessageRead(ev channel.Event) {
	e := ev.(channel.MessageReadEvent)
	rt.messages.ApplyPeerRead(e.MessageID)
}

// FocusChat moves the focused-conversation pointer: leaves the previous live
// scope, clears and reloads the message store, joins the new scope, and
// clears the unread badge. Nil blurs everything.
func (rt *Router) FocusChat(ctx context.Context, chat *models.Chat) {
	if prev := rt.roster.FocusedID(); prev != "" {
		rt.bus.Emit(channel.LeaveChat(prev))
		rt.typing.Clear(prev)
	}

	rt.roster.SetFocused(chat)
	if chat == nil {
		rt.messages.SetFocusedChat("")
		return
	}

	rt.messages.SetFocusedChat(chat.ID)
	rt.roster.ClearUnread(chat.ID)
	rt.bus.Emit(channel.JoinChat(chat.ID))

	chatID := chat.ID
	go func() {
		if err := rt.messages.LoadHistory(ctx, chatID, 1); err != nil {
			rt.log.Warn("initial history load failed", zap.String("chat", chatID), zap.Error(err))
		}
	}()
}

// Blur clears the focused pointer, e.g. when navigating away from the chat
// section.
func (rt *Router) Blur() {
	rt.FocusChat(context.Background(), nil)
}

// Send emits a message over the channel, stopping our typing indicator first.
// The server echoes the stored message back as a newMessage push; the store's
// dedup-by-id makes that echo the single source of truth. ClientID correlates
// the echo with this send.
func (rt *Router) Send(chatID, content string, typ models.MessageType, receiverID string) {
	if content == "" || chatID == "" {
		return
	}
	rt.typing.NotifyStopped(chatID)
	rt.bus.Emit(channel.SendMessage(channel.SendMessagePayload{
		ChatID:     chatID,
		Content:    content,
		Type:       typ,
		ReceiverID: receiverID,
		ClientID:   uuid.NewString(),
	}))
}
