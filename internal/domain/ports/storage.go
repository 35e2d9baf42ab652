package ports

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ExecutionStatus is the lifecycle state of a responder execution
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// IsFinal reports whether no further transition can happen
func (s ExecutionStatus) IsFinal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// ErrExecutionNotFound is returned when a handle does not match a stored execution
var ErrExecutionNotFound = errors.New("execution not found")

// Execution is one submission tracked by a ledger-backed responder
type Execution struct {
	ID        string          `json:"id"`
	Prompt    string          `json:"prompt"`
	Status    ExecutionStatus `json:"status"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ExecutionStorePort persists responder executions so results can be polled
type ExecutionStorePort interface {
	SaveExecution(ctx context.Context, execution *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	CompleteExecution(ctx context.Context, id, result string) error
	FailExecution(ctx context.Context, id, reason string) error
	ListPendingExecutions(ctx context.Context, limit int) ([]*Execution, error)

	// Health check
	Ping(ctx context.Context) error

	// Migration support
	Migrate(ctx context.Context) error

	Close() error
}
