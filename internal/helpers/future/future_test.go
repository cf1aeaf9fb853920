package future

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := New[int]()

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	value, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}

func TestFutureGo(t *testing.T) {
	boom := errors.New("boom")
	f := Go(func() (string, error) { return "", boom })

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	select {
	case <-f.Done():
	default:
		t.Fatal("future should be settled after Wait returned")
	}
}

func TestFutureWaitCancelledLeavesOperationRunning(t *testing.T) {
	release := make(chan struct{})
	f := Go(func() (int, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	value, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestThen(t *testing.T) {
	doubled := Then(Resolved(21), func(v int) (int, error) { return v * 2, nil })
	value, err := doubled.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, value)

	failed := Then(Rejected[int](errors.New("nope")), func(v int) (int, error) { return v, nil })
	_, err = failed.Get()
	assert.EqualError(t, err, "nope")
}
