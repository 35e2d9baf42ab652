package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/threadline/internal/domain/ports"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	require.NoError(t, adapter.Migrate(context.Background()))
	return adapter
}

func TestAdapter_MigrateIsIdempotent(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Migrate(ctx))

	versions, err := adapter.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_executions"}, versions)
	assert.NoError(t, adapter.Ping(ctx))
}

func TestAdapter_ExecutionLifecycle(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	exec := &ports.Execution{ID: "exec_1", Prompt: "What is 2+2?"}
	require.NoError(t, adapter.SaveExecution(ctx, exec))
	assert.Equal(t, ports.ExecutionPending, exec.Status)

	got, err := adapter.GetExecution(ctx, "exec_1")
	require.NoError(t, err)
	assert.Equal(t, "What is 2+2?", got.Prompt)
	assert.Equal(t, ports.ExecutionPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, adapter.CompleteExecution(ctx, "exec_1", "4"))

	got, err = adapter.GetExecution(ctx, "exec_1")
	require.NoError(t, err)
	assert.Equal(t, ports.ExecutionCompleted, got.Status)
	assert.Equal(t, "4", got.Result)
	assert.True(t, got.Status.IsFinal())
}

func TestAdapter_FinalExecutionsAreNotRewritten(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SaveExecution(ctx, &ports.Execution{ID: "exec_1", Prompt: "p"}))
	require.NoError(t, adapter.FailExecution(ctx, "exec_1", "model unavailable"))

	err := adapter.CompleteExecution(ctx, "exec_1", "late result")
	assert.Error(t, err)

	got, err := adapter.GetExecution(ctx, "exec_1")
	require.NoError(t, err)
	assert.Equal(t, ports.ExecutionFailed, got.Status)
	assert.Equal(t, "model unavailable", got.Error)
	assert.Empty(t, got.Result)
}

func TestAdapter_NotFound(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, err := adapter.GetExecution(ctx, "missing")
	assert.True(t, errors.Is(err, ports.ErrExecutionNotFound))

	err = adapter.CompleteExecution(ctx, "missing", "x")
	assert.True(t, errors.Is(err, ports.ErrExecutionNotFound))
}

func TestAdapter_DuplicateID(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.SaveExecution(ctx, &ports.Execution{ID: "exec_1", Prompt: "a"}))
	assert.Error(t, adapter.SaveExecution(ctx, &ports.Execution{ID: "exec_1", Prompt: "b"}))
}

func TestAdapter_ListPendingExecutions(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range []string{"exec_a", "exec_b", "exec_c"} {
		require.NoError(t, adapter.SaveExecution(ctx, &ports.Execution{
			ID:        id,
			Prompt:    id,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, adapter.CompleteExecution(ctx, "exec_b", "done"))

	pending, err := adapter.ListPendingExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "exec_a", pending[0].ID)
	assert.Equal(t, "exec_c", pending[1].ID)

	limited, err := adapter.ListPendingExecutions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAdapter_FileDatabaseSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	first, err := NewAdapter(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Migrate(ctx))
	require.NoError(t, first.SaveExecution(ctx, &ports.Execution{ID: "exec_1", Prompt: "p"}))
	require.NoError(t, first.Close())

	second, err := NewAdapter(path, nil)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Migrate(ctx))

	got, err := second.GetExecution(ctx, "exec_1")
	require.NoError(t, err)
	assert.Equal(t, ports.ExecutionPending, got.Status)
}
