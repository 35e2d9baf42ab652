package entities

import (
	"time"
	"unicode/utf8"
)

const (
	// DefaultConversationTitle is used until the first message arrives
	DefaultConversationTitle = "New Conversation"

	// TitleMaxRunes is the number of leading runes of the first message kept in the title
	TitleMaxRunes = 50

	titleEllipsis = "..."
)

// Conversation represents a chat conversation
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewConversation creates an empty conversation with the placeholder title
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateID(),
		Title:     DefaultConversationTitle,
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message. The first message names the conversation.
func (c *Conversation) AddMessage(message *Message) {
	if c.IsEmpty() {
		c.Title = TitleFromContent(message.Content)
	}
	c.Messages = append(c.Messages, message)
	c.touch()
}

// UpdateMessage applies a patch to the message with the given ID.
// It returns false when no such message exists.
func (c *Conversation) UpdateMessage(messageID string, patch MessagePatch) bool {
	msg := c.FindMessage(messageID)
	if msg == nil {
		return false
	}
	msg.Apply(patch)
	c.touch()
	return true
}

// FindMessage returns the message with the given ID, or nil
func (c *Conversation) FindMessage(messageID string) *Message {
	for _, m := range c.Messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// MessageCount returns the number of messages in the conversation
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// PendingCount returns the number of assistant messages still loading
func (c *Conversation) PendingCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.IsLoading {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the conversation
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		cp.Messages[i] = m.Clone()
	}
	return &cp
}

func (c *Conversation) touch() {
	now := time.Now()
	// keep UpdatedAt strictly increasing on coarse clocks
	if !now.After(c.UpdatedAt) {
		now = c.UpdatedAt.Add(time.Nanosecond)
	}
	c.UpdatedAt = now
}

// TitleFromContent derives a conversation title from the first message
func TitleFromContent(content string) string {
	if utf8.RuneCountInString(content) <= TitleMaxRunes {
		return content + titleEllipsis
	}
	runes := []rune(content)
	return string(runes[:TitleMaxRunes]) + titleEllipsis
}
