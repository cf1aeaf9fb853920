package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Warning is one message shown to the person driving the workflow.
type Warning struct {
	Title   string
	Message string
	At      time.Time
}

// Notifier logs warnings and keeps the most recent ones for display.
type Notifier struct {
	logger   *slog.Logger
	capacity int

	mu       sync.Mutex
	warnings []Warning
	sinks    []func(Warning)
}

func New(logger *slog.Logger, capacity int) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 100
	}
	return &Notifier{
		logger:   logger.With("component", "notifier"),
		capacity: capacity,
	}
}

// Subscribe registers fn for every later warning.
func (n *Notifier) Subscribe(fn func(Warning)) {
	n.mu.Lock()
	n.sinks = append(n.sinks, fn)
	n.mu.Unlock()
}

func (n *Notifier) Warn(title, message string) {
	w := Warning{Title: title, Message: message, At: time.Now()}
	n.logger.Warn(title, "message", message)

	n.mu.Lock()
	n.warnings = append(n.warnings, w)
	if len(n.warnings) > n.capacity {
		n.warnings = n.warnings[len(n.warnings)-n.capacity:]
	}
	sinks := append([]func(Warning){}, n.sinks...)
	n.mu.Unlock()

	for _, sink := range sinks {
		sink(w)
	}
}

// Recent returns the retained warnings, oldest first.
func (n *Notifier) Recent() []Warning {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Warning(nil), n.warnings...)
}
