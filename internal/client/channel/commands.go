package channel

import "github.com/cloudzz-dev/cldztalk/internal/client/models"

// Command is an outbound best-effort signal. Commands carry no delivery
// acknowledgement; the manager drops them when the channel is down.
type Command struct {
	Type    string
	Payload interface{}
}

type chatRef struct {
	ChatID string `json:"chatId"`
}

func JoinChat(chatID string) Command {
	return Command{Type: "joinChat", Payload: chatRef{ChatID: chatID}}
}

func LeaveChat(chatID string) Command {
	return Command{Type: "leaveChat", Payload: chatRef{ChatID: chatID}}
}

func Typing(chatID string) Command {
	return Command{Type: "typing", Payload: chatRef{ChatID: chatID}}
}

func StopTyping(chatID string) Command {
	return Command{Type: "stopTyping", Payload: chatRef{ChatID: chatID}}
}

func MarkRead(messageID string) Command {
	return Command{Type: "markRead", Payload: struct {
		MessageID string `json:"messageId"`
	}{MessageID: messageID}}
}

// SendMessagePayload mirrors the server's sendMessage contract. ClientID is a
// client-generated correlation id for the optimistic local echo.
type SendMessagePayload struct {
	ChatID     string             `json:"chatId"`
	Content    string             `json:"content"`
	Type       models.MessageType `json:"type"`
	ReceiverID string             `json:"receiverId,omitempty"`
	FileURL    string             `json:"fileUrl,omitempty"`
	FileName   string             `json:"fileName,omitempty"`
	FileSize   int64              `json:"fileSize,omitempty"`
	ClientID   string             `json:"clientId,omitempty"`
}

func SendMessage(p SendMessagePayload) Command {
	return Command{Type: "sendMessage", Payload: p}
}
