package async

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/logutil"
)

// Responder errors
var (
	ErrExecutionFailed = errors.New("execution failed")
	ErrNotRunning      = errors.New("responder is not running")
)

// Config tunes the worker pool and polling
type Config struct {
	PollInterval time.Duration
	Workers      int
	QueueSize    int
	// CompletionTimeout bounds a single completer call; zero means no bound
	CompletionTimeout time.Duration
	// RecoverLimit caps how many pending executions are resumed on Start
	RecoverLimit int
}

// DefaultConfig returns sensible worker defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:      constants.DefaultPollInterval,
		Workers:           4,
		QueueSize:         256,
		CompletionTimeout: constants.DefaultAwaitTimeout,
		RecoverLimit:      constants.MaxPageLimit,
	}
}

// Responder records every submission in the execution ledger and completes
// it in the background. AwaitResult polls the ledger, so a handle stays
// valid across restarts.
type Responder struct {
	ledger    ports.ExecutionStorePort
	completer ports.CompleterPort
	config    Config
	logger    *logutil.Logger

	queue chan string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewResponder creates a ledger-backed responder; call Start before use
func NewResponder(ledger ports.ExecutionStorePort, completer ports.CompleterPort, config Config, logger *logutil.Logger) *Responder {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.RecoverLimit <= 0 {
		config.RecoverLimit = defaults.RecoverLimit
	}

	return &Responder{
		ledger:    ledger,
		completer: completer,
		config:    config,
		logger:    logger,
		queue:     make(chan string, config.QueueSize),
	}
}

// Start launches the workers and re-queues executions left pending by a
// previous run.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	pending, err := r.ledger.ListPendingExecutions(ctx, r.config.RecoverLimit)
	if err != nil {
		return errors.Wrap(err, "failed to recover pending executions")
	}

	workCtx, cancel := context.WithCancel(context.Background())
	group, workCtx := errgroup.WithContext(workCtx)
	for i := 0; i < r.config.Workers; i++ {
		worker := i
		group.Go(func() error {
			r.work(workCtx, worker)
			return nil
		})
	}

	r.cancel = cancel
	r.group = group
	r.running = true

	for _, execution := range pending {
		select {
		case r.queue <- execution.ID:
		default:
			r.logger.Warn("Queue full, execution stays pending", logutil.Fields{"execution_id": execution.ID})
		}
	}

	r.logger.Info("Async responder started", logutil.Fields{
		"workers":   r.config.Workers,
		"recovered": len(pending),
	})
	return nil
}

// Stop cancels in-flight completions and waits for the workers to exit.
// Executions still queued remain pending in the ledger.
func (r *Responder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel, group := r.cancel, r.group
	r.mu.Unlock()

	cancel()
	return group.Wait()
}

// Submit stores a pending execution and queues it for completion
func (r *Responder) Submit(ctx context.Context, text string) (string, error) {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	execution := &ports.Execution{
		ID:     constants.ExecutionIDPrefix + uuid.NewString(),
		Prompt: text,
		Status: ports.ExecutionPending,
	}
	if err := r.ledger.SaveExecution(ctx, execution); err != nil {
		return "", errors.Wrap(err, "failed to record execution")
	}

	select {
	case r.queue <- execution.ID:
	case <-ctx.Done():
		// the execution stays pending and is picked up on the next Start
		return "", errors.Wrap(ctx.Err(), "failed to queue execution")
	}

	return execution.ID, nil
}

// AwaitResult polls the ledger until the execution is final or ctx ends
func (r *Responder) AwaitResult(ctx context.Context, executionID string) (string, error) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		execution, err := r.ledger.GetExecution(ctx, executionID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", err
		}

		switch execution.Status {
		case ports.ExecutionCompleted:
			return execution.Result, nil
		case ports.ExecutionFailed:
			return "", errors.WithMessagef(ErrExecutionFailed, "execution %s: %s", executionID, execution.Error)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *Responder) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.process(ctx, worker, id)
		}
	}
}

func (r *Responder) process(ctx context.Context, worker int, id string) {
	log := r.logger.WithFields(logutil.Fields{"execution_id": id, "worker": worker})

	execution, err := r.ledger.GetExecution(ctx, id)
	if err != nil {
		log.Error("Failed to load execution", logutil.Fields{"error": err.Error()})
		return
	}
	if execution.Status.IsFinal() {
		return
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.config.CompletionTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.config.CompletionTimeout)
	}
	started := time.Now()
	resp, err := r.completer.Complete(callCtx, &ports.CompletionRequest{Prompt: execution.Prompt})
	cancel()

	if ctx.Err() != nil {
		// shutting down; leave it pending for the next run
		log.Info("Completion interrupted by shutdown")
		return
	}

	// record the outcome even if ctx ends meanwhile
	recordCtx, cancelRecord := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancelRecord()

	if err != nil {
		log.Warn("Completion failed", logutil.Fields{"error": err.Error()})
		if ferr := r.ledger.FailExecution(recordCtx, id, err.Error()); ferr != nil {
			log.Error("Failed to record failure", logutil.Fields{"error": ferr.Error()})
		}
		return
	}

	if err := r.ledger.CompleteExecution(recordCtx, id, resp.Content); err != nil {
		log.Error("Failed to record result", logutil.Fields{"error": err.Error()})
		return
	}
	log.Debug("Execution completed", logutil.Fields{"duration_ms": time.Since(started).Milliseconds()})
}
