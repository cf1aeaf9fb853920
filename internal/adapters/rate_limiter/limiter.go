package rate_limiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

type Config struct {
	RequestsPerSecond float64
	Burst             int
	WaitTimeout       time.Duration
	CleanupInterval   time.Duration
	KeyExpiry         time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	allowed  int64
	denied   int64
}

type Metrics struct {
	Allowed int64
	Denied  int64
	Tokens  float64
}

// Limiter admits requests per key, one token bucket per key. Buckets that
// stay idle longer than KeyExpiry are dropped.
type Limiter struct {
	name    string
	config  Config
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

func New(name string, config Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 100
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RequestsPerSecond)
		if config.Burst < 1 {
			config.Burst = 1
		}
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 5 * time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.KeyExpiry <= 0 {
		config.KeyExpiry = 10 * time.Minute
	}

	l := &Limiter{
		name:    name,
		config:  config,
		logger:  logger.With("component", "rate-limiter", "name", name),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *Limiter) bucket(key string) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = l.now()
	return b
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucket(key)
	if b.limiter.AllowN(l.now(), 1) {
		b.allowed++
		return true
	}
	b.denied++
	return false
}

// Wait blocks until key has a token, ctx ends or WaitTimeout passes.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	b := l.bucket(key)
	limiter := b.limiter
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.config.WaitTimeout)
	defer cancel()

	err := limiter.Wait(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		b.denied++
		return errors.Join(ErrRateLimitExceeded, err)
	}
	b.allowed++
	return nil
}

func (l *Limiter) Metrics(key string) Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return Metrics{Tokens: float64(l.config.Burst)}
	}
	return Metrics{Allowed: b.allowed, Denied: b.denied, Tokens: b.limiter.TokensAt(l.now())}
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops buckets idle since before now minus KeyExpiry.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.KeyExpiry)
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("expired rate limit keys", "removed", removed)
	}
	return removed
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
