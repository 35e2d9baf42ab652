package entities

import (
	"time"
)

// MessageRole represents the author of a message in a conversation
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// IsValid reports whether the role is one of the known roles
func (r MessageRole) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a single turn in a conversation
type Message struct {
	ID          string      `json:"id"`
	Content     string      `json:"content"`
	Role        MessageRole `json:"role"`
	Timestamp   time.Time   `json:"timestamp"`
	ExecutionID string      `json:"execution_id,omitempty"`
	IsLoading   bool        `json:"is_loading"`
}

// NewMessage creates a new message with generated ID and timestamp
func NewMessage(role MessageRole, content string) *Message {
	return &Message{
		ID:        generateID(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a message authored by the user
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewPlaceholderMessage creates an empty assistant message waiting for a result
func NewPlaceholderMessage() *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsLoading = true
	return msg
}

// IsFromUser returns true if the message is from a user
func (m *Message) IsFromUser() bool {
	return m.Role == RoleUser
}

// IsFromAssistant returns true if the message is from an assistant
func (m *Message) IsFromAssistant() bool {
	return m.Role == RoleAssistant
}

// HasExecution returns true once the responder has acknowledged the request
func (m *Message) HasExecution() bool {
	return m.ExecutionID != ""
}

// Clone returns a copy of the message
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// MessagePatch describes a partial update of a message. Nil fields are left untouched.
type MessagePatch struct {
	Content     *string `json:"content,omitempty"`
	ExecutionID *string `json:"execution_id,omitempty"`
	IsLoading   *bool   `json:"is_loading,omitempty"`
}

// IsEmpty returns true if the patch would not change anything
func (p MessagePatch) IsEmpty() bool {
	return p.Content == nil && p.ExecutionID == nil && p.IsLoading == nil
}

// Apply merges the patch into the message. Loading can only be cleared,
// never set again once the message has settled.
func (m *Message) Apply(p MessagePatch) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.ExecutionID != nil {
		m.ExecutionID = *p.ExecutionID
	}
	if p.IsLoading != nil && (m.IsLoading || !*p.IsLoading) {
		m.IsLoading = *p.IsLoading
	}
}

// WithExecutionID returns a patch attaching the responder handle
func WithExecutionID(executionID string) MessagePatch {
	return MessagePatch{ExecutionID: &executionID}
}

// Settle returns a patch that writes the final content and clears loading
func Settle(content string) MessagePatch {
	loading := false
	return MessagePatch{Content: &content, IsLoading: &loading}
}
