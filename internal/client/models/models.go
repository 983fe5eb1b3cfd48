package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageFile  MessageType = "FILE"
	MessageVideo MessageType = "VIDEO"
	MessageAudio MessageType = "AUDIO"
)

// Message is a single chat message as the server represents it. Messages are
// identified by server-assigned ids; the same id may be observed more than
// once (history fetch, live push, optimistic echo) and must collapse to one
// entry wherever messages are collected.
type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chatId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName,omitempty"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	FileURL    string      `json:"fileUrl,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	FileSize   int64       `json:"fileSize,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	IsRead     bool        `json:"isRead"`
}

// Chat is one conversation summary as shown in the roster.
type Chat struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	IsGroup     bool      `json:"isGroup"`
	MemberIDs   []string  `json:"members,omitempty"`
	IsOnline    bool      `json:"isOnline"`
	LastSeenAt  time.Time `json:"lastSeen,omitempty"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type Contact struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// Pagination mirrors the server's page envelope for list endpoints.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	Pages       int  `json:"pages"`
	HasNextPage bool `json:"hasNextPage"`
}
