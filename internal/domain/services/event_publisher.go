package services

import (
	"context"
	"fmt"
	"time"

	"github.com/username/threadline/internal/domain/entities"
	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/logutil"
)

// StoreEvent is the wire form of a store change
type StoreEvent struct {
	Type                 ChangeOp    `json:"type"`
	ConversationID       string      `json:"conversation_id,omitempty"`
	MessageID            string      `json:"message_id,omitempty"`
	MessageIDs           []string    `json:"message_ids,omitempty"`
	ActiveConversationID string      `json:"active_conversation_id,omitempty"`
	Version              uint64      `json:"version"`
	Data                 interface{} `json:"data,omitempty"`
	Timestamp            time.Time   `json:"timestamp"`
}

// NewStoreEvent converts a change into its published form. Data carries the
// touched message (a list of them for a batched add), the created
// conversation or nothing.
func NewStoreEvent(change Change) StoreEvent {
	event := StoreEvent{
		Type:                 change.Op,
		ConversationID:       change.ConversationID,
		MessageID:            change.MessageID,
		MessageIDs:           change.MessageIDs,
		ActiveConversationID: change.Snapshot.ActiveConversationID,
		Version:              change.Snapshot.Version,
		Timestamp:            time.Now(),
	}

	conv := findConversation(change.Snapshot, change.ConversationID)
	if conv == nil {
		return event
	}

	switch change.Op {
	case ChangeMessageAdded, ChangeMessageUpdated:
		if len(change.MessageIDs) > 0 {
			msgs := make([]*entities.Message, 0, len(change.MessageIDs))
			for _, id := range change.MessageIDs {
				if msg := conv.FindMessage(id); msg != nil {
					msgs = append(msgs, msg)
				}
			}
			event.Data = msgs
			break
		}
		if msg := conv.FindMessage(change.MessageID); msg != nil {
			event.Data = msg
		}
	case ChangeConversationCreated:
		event.Data = conv
	}
	return event
}

func findConversation(snap Snapshot, id string) *entities.Conversation {
	for _, c := range snap.Conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// SubjectFor returns the subject a change is published on
func SubjectFor(change Change) string {
	if change.Op == ChangeConversationSelected {
		return ports.SubjectStoreSelection
	}
	return fmt.Sprintf(ports.SubjectConversationUpdated, change.ConversationID)
}

// EventPublisher forwards every store change to the event bus
type EventPublisher struct {
	store       *ConversationStore
	messaging   ports.MessagingPort
	logger      *logutil.Logger
	unsubscribe func()
}

// NewEventPublisher creates a publisher; call Start to begin forwarding
func NewEventPublisher(store *ConversationStore, messaging ports.MessagingPort, logger *logutil.Logger) *EventPublisher {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	return &EventPublisher{
		store:     store,
		messaging: messaging,
		logger:    logger,
	}
}

// Start subscribes to the store
func (p *EventPublisher) Start() {
	if p.unsubscribe != nil {
		return
	}
	p.unsubscribe = p.store.Subscribe(p.publish)
	p.logger.Info("Store event publisher started")
}

// Stop unsubscribes from the store
func (p *EventPublisher) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

func (p *EventPublisher) publish(change Change) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.MessagingTimeout)
	defer cancel()

	subject := SubjectFor(change)
	if err := p.messaging.PublishJSON(ctx, subject, NewStoreEvent(change)); err != nil {
		p.logger.Warn("Failed to publish store event", logutil.Fields{
			"subject": subject,
			"op":      string(change.Op),
			"error":   err.Error(),
		})
	}
}
