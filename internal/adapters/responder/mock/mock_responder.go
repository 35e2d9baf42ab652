package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/logutil"
)

// DefaultReplies are the canned assistant answers
var DefaultReplies = []string{
	"I understand your question. Based on the information provided, here's my response...",
	"That's an interesting point. Let me think about this and provide you with a comprehensive answer.",
	"I can help you with that. Here's what I would recommend based on best practices...",
	"Thank you for your question. After processing your request, here's my detailed response.",
}

// Mock responder errors
var (
	ErrUnknownExecution = errors.New("unknown execution id")
	ErrSimulatedFailure = errors.New("simulated responder failure")
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Config tunes the simulated latency and failures
type Config struct {
	SubmitDelay    time.Duration
	MinResultDelay time.Duration
	MaxResultDelay time.Duration
	// FailureRate is the probability, per phase, of a simulated failure
	FailureRate float64
	Replies     []string
	// Seed fixes the random source; zero seeds from the clock
	Seed int64
}

// DefaultConfig returns the demo timings
func DefaultConfig() Config {
	return Config{
		SubmitDelay:    constants.MockSubmitDelay,
		MinResultDelay: constants.MockMinResultDelay,
		MaxResultDelay: constants.MockMaxResultDelay,
		Replies:        DefaultReplies,
	}
}

// Responder simulates a remote assistant with random latency and canned replies
type Responder struct {
	config Config
	logger *logutil.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	pending map[string]struct{}
}

// NewResponder creates a mock responder
func NewResponder(config Config, logger *logutil.Logger) *Responder {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}
	if len(config.Replies) == 0 {
		config.Replies = DefaultReplies
	}
	if config.MaxResultDelay < config.MinResultDelay {
		config.MaxResultDelay = config.MinResultDelay
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Responder{
		config:  config,
		logger:  logger,
		rng:     rand.New(rand.NewSource(seed)),
		pending: make(map[string]struct{}),
	}
}

// Submit waits SubmitDelay and returns a handle of the form exec_<unixmillis>_<9 base36 chars>
func (r *Responder) Submit(ctx context.Context, text string) (string, error) {
	if err := sleep(ctx, r.config.SubmitDelay); err != nil {
		return "", err
	}
	if r.shouldFail() {
		return "", errors.Wrap(ErrSimulatedFailure, "submit")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		id = fmt.Sprintf("%s%d_%s", constants.ExecutionIDPrefix, time.Now().UnixMilli(), r.randomSuffixLocked())
		if _, taken := r.pending[id]; !taken {
			break
		}
	}
	r.pending[id] = struct{}{}

	r.logger.Debug("Mock execution submitted", logutil.Fields{
		"execution_id": id,
		"prompt_chars": len(text),
	})
	return id, nil
}

// AwaitResult waits a random delay in [MinResultDelay, MaxResultDelay) and
// returns one of the canned replies.
func (r *Responder) AwaitResult(ctx context.Context, executionID string) (string, error) {
	r.mu.Lock()
	_, known := r.pending[executionID]
	delay := r.resultDelayLocked()
	r.mu.Unlock()

	if !known {
		return "", errors.WithMessagef(ErrUnknownExecution, "execution %s", executionID)
	}
	// a handle is awaited at most once, whatever the outcome
	defer func() {
		r.mu.Lock()
		delete(r.pending, executionID)
		r.mu.Unlock()
	}()

	if err := sleep(ctx, delay); err != nil {
		return "", err
	}

	r.mu.Lock()
	reply := r.config.Replies[r.rng.Intn(len(r.config.Replies))]
	r.mu.Unlock()

	if r.shouldFail() {
		return "", errors.Wrapf(ErrSimulatedFailure, "await %s", executionID)
	}

	r.logger.Debug("Mock execution resolved", logutil.Fields{
		"execution_id": executionID,
		"delay_ms":     delay.Milliseconds(),
	})
	return reply, nil
}

// Pending returns the number of handles issued but not yet awaited to completion
func (r *Responder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Responder) shouldFail() bool {
	if r.config.FailureRate <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.config.FailureRate
}

func (r *Responder) resultDelayLocked() time.Duration {
	spread := r.config.MaxResultDelay - r.config.MinResultDelay
	if spread <= 0 {
		return r.config.MinResultDelay
	}
	return r.config.MinResultDelay + time.Duration(r.rng.Int63n(int64(spread)))
}

func (r *Responder) randomSuffixLocked() string {
	var b strings.Builder
	b.Grow(constants.ExecutionIDRandomSize)
	for i := 0; i < constants.ExecutionIDRandomSize; i++ {
		b.WriteByte(base36[r.rng.Intn(len(base36))])
	}
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
