package ports

import (
	"context"
)

// ResponderPort is the external system that accepts a user submission and
// eventually yields the assistant's reply for it.
//
// Both calls are one-shot: no partial or streamed results. Implementations
// must honour ctx cancellation so callers can bound the wait.
type ResponderPort interface {
	// Submit hands the text to the responder and returns an execution handle
	Submit(ctx context.Context, text string) (executionID string, err error)

	// AwaitResult blocks until the execution identified by the handle finishes
	AwaitResult(ctx context.Context, executionID string) (result string, err error)
}
