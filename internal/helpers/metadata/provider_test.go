package metadata

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderIsStablePerInstance(t *testing.T) {
	p := NewProvider()

	first := p.Info()
	assert.Equal(t, first, p.Info())

	_, err := uuid.Parse(p.BootID())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), first.PID)
	assert.NotEmpty(t, first.Hostname)
	assert.False(t, first.Launched.IsZero())
	assert.GreaterOrEqual(t, p.Uptime().Nanoseconds(), int64(0))

	assert.NotEqual(t, p.BootID(), NewProvider().BootID())
}
