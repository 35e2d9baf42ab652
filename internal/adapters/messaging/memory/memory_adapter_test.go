package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTokens(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"conversation.abc.updated", "conversation.abc.updated", true},
		{"conversation.*.updated", "conversation.abc.updated", true},
		{"conversation.*.updated", "conversation.abc.deleted", false},
		{"conversation.>", "conversation.abc.updated", true},
		{"conversation.>", "conversation", false},
		{"store.>", "store.selection", true},
		{"store.*", "store.selection.extra", false},
		{">", "anything.at.all", true},
		{"a.b", "a.b.c", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.subject, func(t *testing.T) {
			got := matchTokens(strings.Split(tt.pattern, "."), strings.Split(tt.subject, "."))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdapter_PublishSubscribe(t *testing.T) {
	bus := NewAdapter(nil)
	ctx := context.Background()

	var got []string
	require.NoError(t, bus.Subscribe(ctx, "conversation.>", func(_ context.Context, subject string, data []byte) error {
		got = append(got, subject+"="+string(data))
		return nil
	}))
	var selections int
	require.NoError(t, bus.Subscribe(ctx, "store.selection", func(context.Context, string, []byte) error {
		selections++
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "conversation.c1.updated", []byte("one")))
	require.NoError(t, bus.Publish(ctx, "store.selection", []byte("two")))
	require.NoError(t, bus.PublishJSON(ctx, "conversation.c2.updated", map[string]string{"k": "v"}))

	assert.Equal(t, []string{"conversation.c1.updated=one", `conversation.c2.updated={"k":"v"}`}, got)
	assert.Equal(t, 1, selections)
}

func TestAdapter_SubscribeErrors(t *testing.T) {
	bus := NewAdapter(nil)
	ctx := context.Background()
	noop := func(context.Context, string, []byte) error { return nil }

	require.NoError(t, bus.Subscribe(ctx, "a.b", noop))
	assert.Error(t, bus.Subscribe(ctx, "a.b", noop), "duplicate subscription")
	assert.Error(t, bus.Subscribe(ctx, "a.>.b", noop), "tail wildcard must be last")
	assert.Error(t, bus.Subscribe(ctx, "a..b", noop))
	assert.Error(t, bus.Publish(ctx, "a.*", nil), "wildcards are not publishable")
}

func TestAdapter_Unsubscribe(t *testing.T) {
	bus := NewAdapter(nil)
	ctx := context.Background()
	calls := 0
	require.NoError(t, bus.Subscribe(ctx, "a.b", func(context.Context, string, []byte) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "a.b", nil))
	require.NoError(t, bus.Unsubscribe(ctx, "a.b"))
	require.NoError(t, bus.Publish(ctx, "a.b", nil))

	assert.Equal(t, 1, calls)
	assert.Error(t, bus.Unsubscribe(ctx, "a.b"))
}

func TestAdapter_HandlerFailuresAreContained(t *testing.T) {
	bus := NewAdapter(nil)
	ctx := context.Background()

	require.NoError(t, bus.Subscribe(ctx, "x.err", func(context.Context, string, []byte) error {
		return errors.New("handler failed")
	}))
	require.NoError(t, bus.Subscribe(ctx, "x.*", func(context.Context, string, []byte) error {
		panic("boom")
	}))
	delivered := false
	require.NoError(t, bus.Subscribe(ctx, "x.>", func(context.Context, string, []byte) error {
		delivered = true
		return nil
	}))

	assert.NotPanics(t, func() {
		assert.NoError(t, bus.Publish(ctx, "x.err", nil))
	})
	assert.True(t, delivered)
}

func TestAdapter_HandlerMaySubscribe(t *testing.T) {
	bus := NewAdapter(nil)
	ctx := context.Background()

	require.NoError(t, bus.Subscribe(ctx, "first", func(ctx context.Context, _ string, _ []byte) error {
		return bus.Subscribe(ctx, "second", func(context.Context, string, []byte) error { return nil })
	}))
	require.NoError(t, bus.Publish(ctx, "first", nil))

	status := bus.GetConnectionStatus()
	assert.Equal(t, 2, status["active_subscriptions"])
	assert.Equal(t, uint64(1), status["messages_out"])
}

func TestAdapter_Close(t *testing.T) {
	bus := NewAdapter(nil)
	ctx := context.Background()
	require.NoError(t, bus.Ping())
	require.NoError(t, bus.Close())

	assert.Equal(t, ErrClosed, bus.Ping())
	assert.Equal(t, ErrClosed, bus.Publish(ctx, "a", nil))
	assert.Equal(t, ErrClosed, bus.Subscribe(ctx, "a", func(context.Context, string, []byte) error { return nil }))
}
