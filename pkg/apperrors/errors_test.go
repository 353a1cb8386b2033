package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindOutOfScope, "not a claims question")
	assert.Equal(t, KindOutOfScope, KindOf(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, KindOutOfScope, KindOf(wrapped))

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstreamUnavailable, "service unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UpstreamUnavailable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "refusal message passes through",
			err:  New(KindSafetyViolation, "That query was blocked."),
			want: "That query was blocked.",
		},
		{
			name: "execution error with message",
			err:  Wrap(KindExecutionError, "The query could not be executed.", errors.New("pq: boom")),
			want: "The query could not be executed.",
		},
		{
			name: "untagged error gets generic message",
			err:  errors.New("nil pointer dereference"),
			want: "An unexpected error occurred. Please retry in a moment.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal(New(KindOutOfScope, "")))
	assert.True(t, IsRefusal(New(KindClarification, "")))
	assert.True(t, IsRefusal(New(KindSafetyViolation, "")))
	assert.True(t, IsRefusal(New(KindInvalidInput, "")))

	assert.False(t, IsRefusal(New(KindExecutionError, "")))
	assert.False(t, IsRefusal(New(KindTimeout, "")))
	assert.False(t, IsRefusal(New(KindUpstreamUnavailable, "")))
	assert.False(t, IsRefusal(errors.New("plain")))
}
