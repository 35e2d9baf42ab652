package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/username/threadline/internal/domain/entities"
	"github.com/username/threadline/internal/domain/metrics"
	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/logutil"
)

// FailureMessage is the only text a user ever sees when a send fails
const FailureMessage = "Sorry, I encountered an error processing your request."

// Workflow errors
var (
	ErrEmptyMessage   = errors.New("message content is empty")
	ErrMessageTooLong = errors.New("message content is too long")
	ErrWorkflowClosed = errors.New("send workflow is shut down")

	ErrSubmitFailed = errors.New("responder submit failed")
	ErrAwaitFailed  = errors.New("responder await failed")
	ErrAwaitTimeout = errors.New("responder await timed out")

	errEmptyResult      = errors.New("responder returned an empty result")
	errEmptyExecutionID = errors.New("responder returned an empty execution id")
)

// SendState is a step of the send state machine
type SendState string

const (
	StateSubmitting SendState = "submitting"
	StateAwaiting   SendState = "awaiting"
	StateResolved   SendState = "resolved"
	StateFailed     SendState = "failed"
)

// IsFinal reports whether no further transition can happen
func (s SendState) IsFinal() bool {
	return s == StateResolved || s == StateFailed
}

// ResponderError records which responder phase failed.
// errors.Is matches it against its Kind sentinel.
type ResponderError struct {
	Kind        error
	ExecutionID string
	Err         error
}

func (e *ResponderError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Is matches the failure kind
func (e *ResponderError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying responder error
func (e *ResponderError) Unwrap() error {
	return e.Err
}

// failureKind is the metrics label for a workflow error
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrSubmitFailed):
		return "submit"
	case errors.Is(err, ErrAwaitTimeout):
		return "timeout"
	case errors.Is(err, errEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrAwaitFailed):
		return "await"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one send
type Outcome struct {
	State       SendState     `json:"state"`
	ExecutionID string        `json:"execution_id,omitempty"`
	Content     string        `json:"content"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"duration"`
}

// Submission identifies the messages created by Send. Done receives exactly
// one Outcome and is then closed.
type Submission struct {
	ConversationID     string         `json:"conversation_id"`
	UserMessageID      string         `json:"user_message_id"`
	AssistantMessageID string         `json:"assistant_message_id"`
	Done               <-chan Outcome `json:"-"`
}

// SendWorkflowConfig holds the phase timeouts. A zero timeout is unbounded.
type SendWorkflowConfig struct {
	SubmitTimeout time.Duration
	AwaitTimeout  time.Duration
}

// DefaultSendWorkflowConfig returns the default phase timeouts
func DefaultSendWorkflowConfig() *SendWorkflowConfig {
	return &SendWorkflowConfig{
		SubmitTimeout: constants.DefaultSubmitTimeout,
		AwaitTimeout:  constants.DefaultAwaitTimeout,
	}
}

// SendWorkflow turns user text into a user message plus an assistant
// placeholder, then resolves the placeholder from the responder in the
// background. Each send only ever patches the placeholder it created.
type SendWorkflow struct {
	store     *ConversationStore
	responder ports.ResponderPort
	metrics   *metrics.Collector
	logger    *logutil.Logger
	config    *SendWorkflowConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSendWorkflow creates a send workflow
func NewSendWorkflow(store *ConversationStore, responder ports.ResponderPort, collector *metrics.Collector, logger *logutil.Logger, config *SendWorkflowConfig) *SendWorkflow {
	if config == nil {
		config = DefaultSendWorkflowConfig()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = logutil.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SendWorkflow{
		store:     store,
		responder: responder,
		metrics:   collector,
		logger:    logger,
		config:    config,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Send records the user message and an assistant placeholder synchronously,
// then starts resolving the placeholder. An empty conversationID creates a
// new conversation. The background work is not bound to ctx.
func (w *SendWorkflow) Send(ctx context.Context, conversationID, text string) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > constants.MaxMessageContentLength {
		return nil, ErrMessageTooLong
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWorkflowClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()

	started := false
	defer func() {
		if !started {
			w.wg.Done()
		}
	}()

	if conversationID == "" {
		conversationID = w.store.CreateConversation()
	} else if _, ok := w.store.Conversation(conversationID); !ok {
		return nil, errors.WithMessagef(ErrConversationNotFound, "conversation %s", conversationID)
	}

	// the pair lands in one mutation so concurrent sends to the same
	// conversation never interleave and a placeholder never goes missing
	userMsg := entities.NewUserMessage(text)
	placeholder := entities.NewPlaceholderMessage()
	if err := w.store.AddMessages(conversationID, userMsg, placeholder); err != nil {
		return nil, errors.Wrap(err, "failed to add messages")
	}

	done := make(chan Outcome, 1)
	run := &sendRun{
		workflow:       w,
		conversationID: conversationID,
		messageID:      placeholder.ID,
		text:           text,
		state:          StateSubmitting,
		startedAt:      time.Now(),
		log: w.logger.WithFields(logutil.Fields{
			"conversation_id": conversationID,
			"message_id":      placeholder.ID,
		}),
	}

	w.metrics.RecordSubmitted()
	started = true
	go func() {
		defer w.wg.Done()
		outcome := run.execute()
		done <- outcome
		close(done)
	}()

	return &Submission{
		ConversationID:     conversationID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: placeholder.ID,
		Done:               done,
	}, nil
}

// Wait blocks until every started send has settled
func (w *SendWorkflow) Wait() {
	w.wg.Wait()
}

// Shutdown stops accepting sends, cancels in-flight ones and waits for them
// to settle or for ctx to expire.
func (w *SendWorkflow) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.cancel()

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "send workflow shutdown")
	}
}

// phaseContext derives a context for one responder call. A zero timeout
// leaves the phase bounded only by shutdown.
func (w *SendWorkflow) phaseContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(w.baseCtx)
	}
	return context.WithTimeout(w.baseCtx, timeout)
}

// sendRun is the state of one in-flight send
type sendRun struct {
	workflow       *SendWorkflow
	conversationID string
	messageID      string
	text           string
	executionID    string
	state          SendState
	startedAt      time.Time
	log            *logutil.FieldLogger
}

func (r *sendRun) execute() Outcome {
	w := r.workflow

	submitCtx, cancel := w.phaseContext(w.config.SubmitTimeout)
	executionID, err := w.responder.Submit(submitCtx, r.text)
	cancel()
	if err == nil && executionID == "" {
		err = errEmptyExecutionID
	}
	if err != nil {
		return r.fail(&ResponderError{Kind: ErrSubmitFailed, Err: err})
	}

	r.executionID = executionID
	r.log = r.log.WithFields(logutil.Fields{"execution_id": executionID})
	w.metrics.RecordAcknowledged()
	r.patch(entities.WithExecutionID(executionID))
	r.advance(StateAwaiting)

	awaitCtx, cancel := w.phaseContext(w.config.AwaitTimeout)
	result, err := w.responder.AwaitResult(awaitCtx, executionID)
	expired := errors.Is(awaitCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		kind := ErrAwaitFailed
		if expired {
			kind = ErrAwaitTimeout
		}
		return r.fail(&ResponderError{Kind: kind, ExecutionID: executionID, Err: err})
	}
	if strings.TrimSpace(result) == "" {
		return r.fail(&ResponderError{Kind: ErrAwaitFailed, ExecutionID: executionID, Err: errEmptyResult})
	}

	r.patch(entities.Settle(result))
	r.advance(StateResolved)

	elapsed := time.Since(r.startedAt)
	w.metrics.RecordResolved(elapsed)
	r.log.Debug("Send resolved", logutil.Fields{"duration_ms": elapsed.Milliseconds()})

	return Outcome{
		State:       StateResolved,
		ExecutionID: executionID,
		Content:     result,
		Duration:    elapsed,
	}
}

func (r *sendRun) fail(err error) Outcome {
	r.patch(entities.Settle(FailureMessage))
	r.advance(StateFailed)

	elapsed := time.Since(r.startedAt)
	kind := failureKind(err)
	r.workflow.metrics.RecordFailed(kind, elapsed)
	r.log.Warn("Send failed", logutil.Fields{
		"kind":  kind,
		"error": err.Error(),
	})

	return Outcome{
		State:       StateFailed,
		ExecutionID: r.executionID,
		Content:     FailureMessage,
		Err:         err,
		Duration:    elapsed,
	}
}

func (r *sendRun) advance(next SendState) {
	r.log.Debug("Send state changed", logutil.Fields{
		"from": string(r.state),
		"to":   string(next),
	})
	r.state = next
}

// patch updates the placeholder. The conversation may have been deleted
// meanwhile, which is expected and only logged.
func (r *sendRun) patch(p entities.MessagePatch) {
	err := r.workflow.store.UpdateMessage(r.conversationID, r.messageID, p)
	switch {
	case err == nil:
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		r.log.Debug("Placeholder no longer exists", logutil.Fields{"error": err.Error()})
	default:
		r.log.Error("Failed to update placeholder", logutil.Fields{"error": err.Error()})
	}
}
