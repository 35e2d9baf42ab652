package services

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/username/threadline/internal/domain/entities"
	"github.com/username/threadline/internal/pkg/logutil"
)

// Store errors
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrDuplicateMessage     = errors.New("message id already exists in conversation")
	ErrNilMessage           = errors.New("message is nil")

	errNoChange = errors.New("no change")
)

// ChangeOp identifies the kind of mutation a Change describes
type ChangeOp string

const (
	ChangeConversationCreated  ChangeOp = "conversation_created"
	ChangeConversationSelected ChangeOp = "conversation_selected"
	ChangeConversationDeleted  ChangeOp = "conversation_deleted"
	ChangeMessageAdded         ChangeOp = "message_added"
	ChangeMessageUpdated       ChangeOp = "message_updated"
)

// Snapshot is a consistent, deep-copied view of the store
type Snapshot struct {
	Conversations        []*entities.Conversation `json:"conversations"`
	ActiveConversationID string                   `json:"active_conversation_id,omitempty"`
	Version              uint64                   `json:"version"`
}

// Active returns the selected conversation from the snapshot, if any
func (s Snapshot) Active() (*entities.Conversation, bool) {
	if s.ActiveConversationID == "" {
		return nil, false
	}
	conv := findConversation(s, s.ActiveConversationID)
	return conv, conv != nil
}

// Change is delivered to subscribers after every successful mutation.
// MessageID names the last touched message; MessageIDs lists every message
// of a batched add in append order.
type Change struct {
	Op             ChangeOp `json:"op"`
	ConversationID string   `json:"conversation_id"`
	MessageID      string   `json:"message_id,omitempty"`
	MessageIDs     []string `json:"message_ids,omitempty"`
	Snapshot       Snapshot `json:"snapshot"`
}

type listener struct {
	id uint64
	fn func(Change)
}

// ConversationStore holds every conversation and the current selection.
//
// Mutations are serialised; readers get deep copies. Listeners run
// synchronously after the mutation is visible and in mutation order.
// A listener may read the store but must not mutate it.
type ConversationStore struct {
	// commitMu orders mutations together with their notifications
	commitMu sync.Mutex

	mu            sync.RWMutex
	conversations []*entities.Conversation // newest first
	activeID      string
	version       uint64
	listeners     []listener
	nextListener  uint64

	logger *logutil.Logger
}

// NewConversationStore creates an empty store
func NewConversationStore(logger *logutil.Logger) *ConversationStore {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	return &ConversationStore{
		conversations: make([]*entities.Conversation, 0),
		logger:        logger,
	}
}

// CreateConversation adds a new empty conversation at the front of the list,
// selects it and returns its ID.
func (s *ConversationStore) CreateConversation() string {
	var id string
	_ = s.commit(ChangeConversationCreated, func() (string, []string, error) {
		conv := entities.NewConversation()
		s.conversations = append([]*entities.Conversation{conv}, s.conversations...)
		s.activeID = conv.ID
		id = conv.ID
		return conv.ID, nil, nil
	})
	return id
}

// SelectConversation sets the active conversation. The ID is not validated;
// selecting an unknown ID leaves no active conversation to read.
func (s *ConversationStore) SelectConversation(id string) {
	_ = s.commit(ChangeConversationSelected, func() (string, []string, error) {
		s.activeID = id
		return id, nil, nil
	})
}

// DeleteConversation removes a conversation. Unknown IDs are ignored.
func (s *ConversationStore) DeleteConversation(id string) {
	_ = s.commit(ChangeConversationDeleted, func() (string, []string, error) {
		idx := s.indexLocked(id)
		if idx < 0 {
			return "", nil, errNoChange
		}
		s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
		if s.activeID == id {
			s.activeID = ""
		}
		return id, nil, nil
	})
}

// AddMessage appends a copy of msg to the conversation
func (s *ConversationStore) AddMessage(conversationID string, msg *entities.Message) error {
	return s.AddMessages(conversationID, msg)
}

// AddMessages appends copies of msgs as one mutation: either all of them land
// back to back with a single notification, or none do.
func (s *ConversationStore) AddMessages(conversationID string, msgs ...*entities.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for i, msg := range msgs {
		if msg == nil {
			return ErrNilMessage
		}
		if _, dup := seen[msg.ID]; dup {
			return errors.WithMessagef(ErrDuplicateMessage, "message %s", msg.ID)
		}
		seen[msg.ID] = struct{}{}
		ids[i] = msg.ID
	}

	return s.commit(ChangeMessageAdded, func() (string, []string, error) {
		conv := s.findLocked(conversationID)
		if conv == nil {
			return "", nil, errors.WithMessagef(ErrConversationNotFound, "conversation %s", conversationID)
		}
		for _, msg := range msgs {
			if conv.FindMessage(msg.ID) != nil {
				return "", nil, errors.WithMessagef(ErrDuplicateMessage, "message %s", msg.ID)
			}
		}
		for _, msg := range msgs {
			conv.AddMessage(msg.Clone())
		}
		return conversationID, ids, nil
	})
}

// UpdateMessage merges a patch into an existing message
func (s *ConversationStore) UpdateMessage(conversationID, messageID string, patch entities.MessagePatch) error {
	return s.commit(ChangeMessageUpdated, func() (string, []string, error) {
		conv := s.findLocked(conversationID)
		if conv == nil {
			return "", nil, errors.WithMessagef(ErrConversationNotFound, "conversation %s", conversationID)
		}
		if !conv.UpdateMessage(messageID, patch) {
			return "", nil, errors.WithMessagef(ErrMessageNotFound, "message %s", messageID)
		}
		return conversationID, []string{messageID}, nil
	})
}

// ActiveConversation returns a copy of the selected conversation
func (s *ConversationStore) ActiveConversation() (*entities.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return nil, false
	}
	conv := s.findLocked(s.activeID)
	if conv == nil {
		return nil, false
	}
	return conv.Clone(), true
}

// ActiveConversationID returns the selection, which may name a missing conversation
func (s *ConversationStore) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Conversation returns a copy of one conversation
func (s *ConversationStore) Conversation(id string) (*entities.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.findLocked(id)
	if conv == nil {
		return nil, false
	}
	return conv.Clone(), true
}

// Snapshot returns a deep copy of the whole store
func (s *ConversationStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of conversations
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Version increases by one on every successful mutation
func (s *ConversationStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers fn for every subsequent change. The returned function
// removes the subscription and is safe to call more than once.
func (s *ConversationStore) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// commit runs mutate under the write lock and then notifies listeners.
// mutate returns the affected conversation and message IDs.
func (s *ConversationStore) commit(op ChangeOp, mutate func() (string, []string, error)) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	convID, msgIDs, err := mutate()
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	s.version++

	var (
		change    Change
		listeners []listener
	)
	if len(s.listeners) > 0 {
		change = Change{
			Op:             op,
			ConversationID: convID,
			Snapshot:       s.snapshotLocked(),
		}
		if n := len(msgIDs); n > 0 {
			change.MessageID = msgIDs[n-1]
		}
		if len(msgIDs) > 1 {
			change.MessageIDs = msgIDs
		}
		listeners = append(listeners, s.listeners...)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.deliver(l, change)
	}
	return nil
}

func (s *ConversationStore) deliver(l listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Store listener panicked", logutil.Fields{
				"op":              string(change.Op),
				"conversation_id": change.ConversationID,
				"panic":           r,
			})
		}
	}()
	l.fn(change)
}

func (s *ConversationStore) snapshotLocked() Snapshot {
	convs := make([]*entities.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		convs[i] = c.Clone()
	}
	return Snapshot{
		Conversations:        convs,
		ActiveConversationID: s.activeID,
		Version:              s.version,
	}
}

func (s *ConversationStore) indexLocked(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *ConversationStore) findLocked(id string) *entities.Conversation {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.conversations[idx]
	}
	return nil
}
