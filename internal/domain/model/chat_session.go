package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

const (
	// TitlePreviewLen is the number of runes kept when a title is derived from a message.
	TitlePreviewLen = 50
	TitleTruncation = "..."
)

// ChatMessage represents one message within a chat session.
// Messages are append-only; ID is assigned by the store.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is one persisted conversation thread. An empty Title means
// no title was given and one will be derived from the first user message.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewChatSession(id, title string) *ChatSession {
	now := time.Now().UTC()
	return &ChatSession{
		ID:        id,
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *ChatSession) HasTitle() bool {
	return s.Title != ""
}

func NewChatMessage(sessionID string, role Role, content string) *ChatMessage {
	return &ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// DeriveTitle builds a session title from a user message: surrounding
// whitespace is dropped and the result is cut to TitlePreviewLen runes, with
// TitleTruncation appended only when something was cut.
func DeriveTitle(message string) string {
	msg := strings.TrimSpace(message)
	if utf8.RuneCountInString(msg) <= TitlePreviewLen {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:TitlePreviewLen]) + TitleTruncation
}

// FirstUserMessage returns the earliest user message in msgs, which must be
// in creation order.
func FirstUserMessage(msgs []ChatMessage) (ChatMessage, bool) {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return m, true
		}
	}
	return ChatMessage{}, false
}
