package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_LogsAndRetains(t *testing.T) {
	var buf bytes.Buffer
	n := New(slog.New(slog.NewTextHandler(&buf, nil)), 2)

	var seen []string
	n.Subscribe(func(w Warning) { seen = append(seen, w.Title) })

	n.Warn("first", "a")
	n.Warn("second", "b")
	n.Warn("third", "c")

	recent := n.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Title)
	assert.Equal(t, "c", recent[1].Message)
	assert.Equal(t, []string{"first", "second", "third"}, seen)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "component=notifier")
}
