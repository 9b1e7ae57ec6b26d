package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLead_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Lead
		want Lead
	}{
		{"empty", Lead{}, Lead{Name: UnknownName, Email: NullEmail}},
		{"literal null", Lead{Name: "null", Email: "null"}, Lead{Name: UnknownName, Email: NullEmail}},
		{"valid", Lead{Name: "Ada", Email: " ada@example.com "}, Lead{Name: "Ada", Email: "ada@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestIsDeliverableEmail(t *testing.T) {
	t.Parallel()

	assert.False(t, IsDeliverableEmail(""))
	assert.False(t, IsDeliverableEmail("NULL"))
	assert.False(t, IsDeliverableEmail("  "))
	assert.True(t, IsDeliverableEmail("x@y.io"))
	assert.False(t, NewUnknownLead().HasEmail())
}

func TestLastUserMessage(t *testing.T) {
	t.Parallel()

	_, ok := LastUserMessage(nil)
	assert.False(t, ok)

	msgs := []Message{NewUserMessage("a"), NewAssistantMessage("b"), NewUserMessage("c"), NewAssistantMessage("d")}
	m, ok := LastUserMessage(msgs)
	assert.True(t, ok)
	assert.Equal(t, "c", m.Content)
}

func TestContextValues(t *testing.T) {
	t.Parallel()

	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "s-1")
	rid, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", rid)
	sid, ok := SessionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "s-1", sid)
	_, ok = TraceID(ctx)
	assert.False(t, ok)
}
