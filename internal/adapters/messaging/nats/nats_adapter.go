package nats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/logutil"
)

// Adapter implements the MessagingPort interface using core NATS
type Adapter struct {
	conn      *nats.Conn
	subs      map[string]*nats.Subscription
	subsMutex sync.RWMutex
	logger    *logutil.Logger
}

// NewAdapter connects to the NATS server at url
func NewAdapter(url string, logger *logutil.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}

	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectBufSize(5*1024*1024),
		nats.Name("threadline-messaging"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logutil.Fields{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", logutil.Fields{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}

	return &Adapter{
		conn:   conn,
		subs:   make(map[string]*nats.Subscription),
		logger: logger,
	}, nil
}

// Publish sends a message to the specified subject
func (a *Adapter) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "publish to subject %s", subject)
	}
	if err := a.conn.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "failed to publish to subject %s", subject)
	}
	return nil
}

// PublishJSON publishes a JSON-serializable object to the subject
func (a *Adapter) PublishJSON(ctx context.Context, subject string, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal object for subject %s", subject)
	}

	return a.Publish(ctx, subject, data)
}

// Subscribe listens for messages on the specified subject
func (a *Adapter) Subscribe(ctx context.Context, subject string, handler ports.MessageHandler) error {
	a.subsMutex.Lock()
	defer a.subsMutex.Unlock()

	if _, exists := a.subs[subject]; exists {
		return errors.Errorf("already subscribed to subject: %s", subject)
	}

	sub, err := a.conn.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Subject, msg.Data); err != nil {
			// Log error but don't fail subscription
			a.logger.Warn("Handler error", logutil.Fields{
				"subject": msg.Subject,
				"error":   err.Error(),
			})
		}
	})
	if err != nil {
		return errors.Wrapf(err, "failed to subscribe to subject %s", subject)
	}

	a.subs[subject] = sub
	return nil
}

// Unsubscribe stops listening to a subject
func (a *Adapter) Unsubscribe(ctx context.Context, subject string) error {
	a.subsMutex.Lock()
	defer a.subsMutex.Unlock()

	sub, exists := a.subs[subject]
	if !exists {
		return errors.Errorf("not subscribed to subject: %s", subject)
	}

	if err := sub.Unsubscribe(); err != nil {
		return errors.Wrapf(err, "failed to unsubscribe from subject %s", subject)
	}

	delete(a.subs, subject)
	return nil
}

// Close drains subscriptions and closes the connection
func (a *Adapter) Close() error {
	a.subsMutex.Lock()
	defer a.subsMutex.Unlock()

	for subject, sub := range a.subs {
		if err := sub.Unsubscribe(); err != nil {
			a.logger.Warn("Error unsubscribing", logutil.Fields{"subject": subject, "error": err.Error()})
		}
	}
	a.subs = make(map[string]*nats.Subscription)

	if a.conn != nil {
		a.conn.Close()
	}

	return nil
}

// Ping checks messaging connectivity
func (a *Adapter) Ping() error {
	if a.conn == nil {
		return errors.New("connection is nil")
	}

	if !a.conn.IsConnected() {
		return errors.New("NATS connection is not active")
	}

	rtt, err := a.conn.RTT()
	if err != nil {
		return errors.Wrap(err, "failed to get RTT")
	}

	if rtt > 5*time.Second {
		return errors.Errorf("high latency detected: %v", rtt)
	}

	return nil
}

// GetConnectionStatus returns detailed connection information
func (a *Adapter) GetConnectionStatus() map[string]interface{} {
	status := make(map[string]interface{})
	status["backend"] = "nats"

	if a.conn == nil {
		status["connected"] = false
		status["error"] = "connection is nil"
		return status
	}

	status["connected"] = a.conn.IsConnected()
	status["url"] = a.conn.ConnectedUrl()
	status["server_id"] = a.conn.ConnectedServerId()

	stats := a.conn.Stats()
	status["messages_in"] = stats.InMsgs
	status["messages_out"] = stats.OutMsgs
	status["reconnects"] = stats.Reconnects

	a.subsMutex.RLock()
	status["active_subscriptions"] = len(a.subs)
	a.subsMutex.RUnlock()

	return status
}

