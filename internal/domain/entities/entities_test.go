package entities

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	conv := NewConversation()

	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, DefaultConversationTitle, conv.Title)
	assert.True(t, conv.IsEmpty())
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
}

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "short_content",
			content:  "hello",
			expected: "hello...",
		},
		{
			name:     "exactly_fifty",
			content:  strings.Repeat("a", 50),
			expected: strings.Repeat("a", 50) + "...",
		},
		{
			name:     "long_content",
			content:  strings.Repeat("b", 80),
			expected: strings.Repeat("b", 50) + "...",
		},
		{
			name:     "multibyte_runes",
			content:  strings.Repeat("é", 60),
			expected: strings.Repeat("é", 50) + "...",
		},
		{
			name:     "empty_content",
			content:  "",
			expected: "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TitleFromContent(tt.content))
		})
	}
}

func TestConversation_AddMessageRenamesOnce(t *testing.T) {
	conv := NewConversation()
	created := conv.UpdatedAt

	conv.AddMessage(NewUserMessage("What is 2+2?"))
	assert.Equal(t, "What is 2+2?...", conv.Title)
	assert.True(t, conv.UpdatedAt.After(created))

	conv.AddMessage(NewUserMessage("something else entirely"))
	assert.Equal(t, "What is 2+2?...", conv.Title)
	assert.Equal(t, 2, conv.MessageCount())
}

func TestConversation_UpdateMessage(t *testing.T) {
	conv := NewConversation()
	placeholder := NewPlaceholderMessage()
	conv.AddMessage(placeholder)
	before := conv.UpdatedAt

	ok := conv.UpdateMessage(placeholder.ID, WithExecutionID("exec_1"))
	require.True(t, ok)
	assert.Equal(t, "exec_1", conv.Messages[0].ExecutionID)
	assert.True(t, conv.Messages[0].IsLoading)
	assert.True(t, conv.UpdatedAt.After(before))

	assert.False(t, conv.UpdateMessage("missing", Settle("x")))
}

func TestMessage_ApplyLoadingIsMonotonic(t *testing.T) {
	msg := NewPlaceholderMessage()
	require.True(t, msg.IsLoading)

	msg.Apply(Settle("done"))
	assert.False(t, msg.IsLoading)
	assert.Equal(t, "done", msg.Content)

	loading := true
	msg.Apply(MessagePatch{IsLoading: &loading})
	assert.False(t, msg.IsLoading, "loading must not be re-enabled")
}

func TestMessagePatch_IsEmpty(t *testing.T) {
	assert.True(t, MessagePatch{}.IsEmpty())
	assert.False(t, WithExecutionID("x").IsEmpty())
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewUserMessage("hi"))

	cp := conv.Clone()
	cp.Messages[0].Content = "changed"
	cp.Messages = append(cp.Messages, NewUserMessage("extra"))

	assert.Equal(t, "hi", conv.Messages[0].Content)
	assert.Equal(t, 1, conv.MessageCount())
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewUserMessage("x").ID
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
