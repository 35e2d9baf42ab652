package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/logutil"
)

// ErrClosed is returned once the bus has been closed
var ErrClosed = errors.New("memory bus is closed")

type subscription struct {
	pattern []string
	ctx     context.Context
	handler ports.MessageHandler
}

// Adapter is an in-process MessagingPort with NATS subject semantics.
// Handlers run synchronously on the publishing goroutine, in subscription order.
type Adapter struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	order  []string
	closed bool

	published uint64
	logger    *logutil.Logger
}

// NewAdapter creates an empty bus
func NewAdapter(logger *logutil.Logger) *Adapter {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	return &Adapter{
		subs:   make(map[string]*subscription),
		logger: logger,
	}
}

// Publish delivers data to every subscription whose subject matches
func (a *Adapter) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "publish to subject %s", subject)
	}
	if !validSubject(subject) {
		return errors.Errorf("invalid subject: %q", subject)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.published++
	tokens := strings.Split(subject, ".")
	var targets []*subscription
	for _, key := range a.order {
		if sub := a.subs[key]; matchTokens(sub.pattern, tokens) {
			targets = append(targets, sub)
		}
	}
	a.mu.Unlock()

	for _, sub := range targets {
		a.deliver(sub, subject, data)
	}
	return nil
}

func (a *Adapter) deliver(sub *subscription, subject string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Handler panicked", logutil.Fields{"subject": subject, "panic": r})
		}
	}()

	payload := make([]byte, len(data))
	copy(payload, data)
	if err := sub.handler(sub.ctx, subject, payload); err != nil {
		a.logger.Warn("Handler error", logutil.Fields{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// PublishJSON publishes a JSON-serializable object to the subject
func (a *Adapter) PublishJSON(ctx context.Context, subject string, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal object for subject %s", subject)
	}
	return a.Publish(ctx, subject, data)
}

// Subscribe registers handler for subject, which may contain wildcards
func (a *Adapter) Subscribe(ctx context.Context, subject string, handler ports.MessageHandler) error {
	if !validPattern(subject) {
		return errors.Errorf("invalid subject pattern: %q", subject)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if _, exists := a.subs[subject]; exists {
		return errors.Errorf("already subscribed to subject: %s", subject)
	}

	a.subs[subject] = &subscription{
		pattern: strings.Split(subject, "."),
		ctx:     ctx,
		handler: handler,
	}
	a.order = append(a.order, subject)
	return nil
}

// Unsubscribe removes the subscription registered for subject
func (a *Adapter) Unsubscribe(ctx context.Context, subject string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.subs[subject]; !exists {
		return errors.Errorf("not subscribed to subject: %s", subject)
	}
	delete(a.subs, subject)
	for i, key := range a.order {
		if key == subject {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close drops every subscription; later calls fail with ErrClosed
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	a.subs = make(map[string]*subscription)
	a.order = nil
	return nil
}

// Ping reports whether the bus is still open
func (a *Adapter) Ping() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	return nil
}

// GetConnectionStatus mirrors the NATS adapter's status report
func (a *Adapter) GetConnectionStatus() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]interface{}{
		"backend":              "memory",
		"connected":            !a.closed,
		"messages_out":         a.published,
		"active_subscriptions": len(a.subs),
	}
}

// matchTokens applies NATS wildcard rules: "*" matches one token and a
// trailing ">" matches one or more.
func matchTokens(pattern, subject []string) bool {
	for i, p := range pattern {
		if p == ">" {
			return len(subject) > i
		}
		if i >= len(subject) {
			return false
		}
		if p != "*" && p != subject[i] {
			return false
		}
	}
	return len(pattern) == len(subject)
}

func validSubject(subject string) bool {
	if subject == "" {
		return false
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" || tok == "*" || tok == ">" {
			return false
		}
	}
	return true
}

func validPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	tokens := strings.Split(pattern, ".")
	for i, tok := range tokens {
		if tok == "" {
			return false
		}
		if tok == ">" && i != len(tokens)-1 {
			return false
		}
	}
	return true
}
