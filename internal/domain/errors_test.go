package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		check    func(error) bool
	}{
		{"configuration", NewConfigurationError("configure", "bad input spec", nil), ErrConfiguration, IsConfiguration},
		{"execution", NewExecutionError("execute", "boom", nil), ErrExecution, IsExecution},
		{"structural", NewStructuralError("add_connection", "cycle", nil), ErrStructural, IsStructural},
		{"transport", NewTransportError("invoke", "unavailable", nil), ErrTransport, IsTransport},
		{"cancelled", NewCancelledError("wait", "stopped waiting", nil), ErrCancelled, IsCancelled},
		{"use async", NewUseAsyncError("remove"), ErrUseAsync, IsUseAsync},
		{"invalid state", NewInvalidStateError("execute", "not queued"), ErrInvalidState, IsInvalidState},
		{"not found", NewNotFoundError("remove", "no such node"), ErrNotFound, IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.err.Kind, KindOf(wrapped))
		})
	}
}

func TestErrorKindsDoNotCrossMatch(t *testing.T) {
	err := NewStructuralError("add_connection", "cycle", nil)

	assert.False(t, IsConfiguration(err))
	assert.False(t, IsExecution(err))
	assert.False(t, IsCancelled(err))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewExecutionError("execute", "node failed", cause).WithNode("0:3")

	assert.Equal(t, "execute: node 0:3: node failed: disk on fire", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestUseAsyncMessage(t *testing.T) {
	err := NewUseAsyncError("")
	assert.Equal(t, "Please use the async method instead.", err.Error())
}

func TestKindOfPlainErrors(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindNotFound, KindOf(NewKeyNotFoundError("k")))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("wait: %w", ErrTimeout)))
}

func TestErrorKindNamesRoundTrip(t *testing.T) {
	for kind := KindInternal; kind <= KindInvalidState; kind++ {
		assert.Equal(t, kind, ParseErrorKind(kind.String()))
	}
	assert.Equal(t, KindInternal, ParseErrorKind("no-such-kind"))
}

func TestStorageErrorUnwrapsNotFound(t *testing.T) {
	err := NewKeyNotFoundError("workflow:record:x")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	mismatch := NewVersionMismatchError("k", 1, 2)
	assert.False(t, IsNotFound(mismatch))
	assert.Contains(t, mismatch.Error(), "expected 1, got 2")
}
