package ports

import (
	"context"
)

// MessageHandler defines a function type for handling incoming messages
type MessageHandler func(ctx context.Context, subject string, data []byte) error

// MessagingPort defines the interface for event bus operations
type MessagingPort interface {
	// Publish sends a message to the specified subject
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishJSON publishes a JSON-serializable object to the subject
	PublishJSON(ctx context.Context, subject string, obj interface{}) error

	// Subscribe listens for messages on the specified subject.
	// Subjects may use the "*" (one token) and ">" (tail) wildcards.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error

	// Unsubscribe stops listening to a subject
	Unsubscribe(ctx context.Context, subject string) error

	// Close closes the messaging connection
	Close() error

	// Health check
	Ping() error
}

// Standard subjects used across the system
const (
	// Conversation events
	SubjectConversationUpdated = "conversation.%s.updated" // conversation_id
	SubjectConversationAll     = "conversation.>"

	// Store-wide events
	SubjectStoreSelection = "store.selection"
	SubjectStoreAll       = "store.>"

	// System events
	SubjectSystemError = "system.error"
)
