package netutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/domain"
)

func TestListen_PicksFreePort(t *testing.T) {
	listener, err := Listen(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	defer listener.Close()

	assert.Positive(t, Port(listener))
}

func TestListen_PortInUse(t *testing.T) {
	first, err := Listen(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	defer first.Close()

	_, err = Listen(context.Background(), "127.0.0.1", Port(first))
	assert.True(t, domain.IsTransport(err))
}
