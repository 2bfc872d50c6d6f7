package conversation

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Conversation is the persisted header of a chat.
type Conversation struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Vote is a user's rating of an assistant message.
type Vote struct {
	ConversationID string `json:"chatId"`
	MessageID      string `json:"messageId"`
	Up             bool   `json:"isUpvoted"`
}

const maxTitleLength = 80

// TitleFrom derives a conversation title from the first user message.
func TitleFrom(m Message) string {
	title := strings.Join(strings.Fields(m.Text()), " ")
	if title == "" {
		return "New chat"
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitleLength-3])) + "..."
	}
	return title
}
