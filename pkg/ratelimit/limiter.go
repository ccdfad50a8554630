// Package ratelimit provides sliding-window request rate limiting with classified-error retry,
// used to gate every call the LLM adapter makes to its vendor backend.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"conclave/pkg/llmerrors"
	"conclave/pkg/logx"
)

// Config configures a single sliding-window limiter.
type Config struct {
	MaxRequests int           // ceiling of requests allowed within Window
	Window      time.Duration // sliding window size
	MaxRetries  int           // total attempts Execute makes when calls fail with rate-limit errors
	RetryDelay  time.Duration // base delay for exponential backoff in Execute
}

// DefaultPerMinute returns the spec's default per-minute window (60 req / 60s).
func DefaultPerMinute() Config {
	return Config{MaxRequests: 60, Window: time.Minute, MaxRetries: 3, RetryDelay: time.Second}
}

// DefaultPerDay returns the spec's default per-day window (1000 req / 24h).
func DefaultPerDay() Config {
	return Config{MaxRequests: 1000, Window: 24 * time.Hour, MaxRetries: 3, RetryDelay: time.Second}
}

// Limiter enforces a sliding-window request ceiling. Timestamps older than
// now-Window are purged on every check; a caller that would exceed the
// ceiling blocks until the oldest timestamp ages out.
type Limiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	cfg        Config
	logger     *logx.Logger
	now        func() time.Time // overridable for tests
	sleep      func(time.Duration)
}

// New creates a sliding-window limiter with the given configuration.
func New(cfg Config, logger *logx.Logger) *Limiter {
	if logger == nil {
		logger = logx.NewLogger("ratelimit")
	}
	return &Limiter{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Status reports the limiter's current occupancy for status reporting (spec §4.A).
type Status struct {
	Count   int
	Ceiling int
	Window  time.Duration
}

// Status returns a snapshot of the limiter's current window occupancy.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(l.now())
	return Status{Count: len(l.timestamps), Ceiling: l.cfg.MaxRequests, Window: l.cfg.Window}
}

// purge drops timestamps older than now-Window. Must be called under l.mu.
func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.timestamps) && l.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = l.timestamps[i:]
	}
}

// CheckAndRegister purges stale timestamps, blocks until the window has room
// if the ceiling is currently met, then registers a new timestamp and returns.
func (l *Limiter) CheckAndRegister() {
	for {
		l.mu.Lock()
		now := l.now()
		l.purge(now)

		if len(l.timestamps) < l.cfg.MaxRequests {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return
		}

		// Wait until the oldest timestamp exits the window: purge only drops
		// timestamps strictly older than now-Window, so wait just past the
		// boundary.
		oldest := l.timestamps[0]
		wait := oldest.Add(l.cfg.Window).Sub(now) + time.Nanosecond
		l.mu.Unlock()

		if wait > 0 {
			l.sleep(wait)
		}
	}
}

// Execute runs f after CheckAndRegister. If f fails with an error classified
// as rate-limit (message contains "rate limit", "quota exceeded", "429", or
// "too many requests", case-insensitive), it waits RetryDelay*2^attempt and
// retries up to MaxRetries total attempts. Other failures propagate unchanged.
func (l *Limiter) Execute(f func() (string, error)) (string, error) {
	var lastErr error
	attempts := l.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		l.CheckAndRegister()

		result, err := f()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRateLimitMessage(err.Error()) {
			return "", err
		}

		if attempt == attempts-1 {
			break
		}

		backoff := l.cfg.RetryDelay * time.Duration(1<<uint(attempt)) //nolint:gosec // bounded by small MaxRetries
		l.logger.Warn("rate limited, retrying in %v (attempt %d/%d)", backoff, attempt+1, attempts)
		l.sleep(backoff)
	}

	return "", lastErr
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	markers := []string{"rate limit", "quota exceeded", "429", "too many requests"}
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Pair composes the two limiters the spec requires ahead of every LLM call:
// a per-minute window and a per-day window, both checked before the call proceeds.
type Pair struct {
	PerMinute *Limiter
	PerDay    *Limiter
}

// NewPair builds the per-minute/per-day limiter pair from the given configs.
func NewPair(minuteCfg, dayCfg Config, logger *logx.Logger) *Pair {
	return &Pair{
		PerMinute: New(minuteCfg, logger),
		PerDay:    New(dayCfg, logger),
	}
}

// CheckAndRegister enforces both windows before a call proceeds.
func (p *Pair) CheckAndRegister() {
	p.PerMinute.CheckAndRegister()
	p.PerDay.CheckAndRegister()
}

// Execute runs f after both windows register a slot, per spec.md §4.A's
// execute(f) operation. On failure classified as rate-limit (per
// IsRateLimitError), it waits RetryDelay·2^attempt — using the per-minute
// limiter's retry policy, since both windows gate the same call — and
// retries, up to MaxRetries total attempts; other failures propagate
// unchanged.
func (p *Pair) Execute(f func() (string, error)) (string, error) {
	attempts := p.PerMinute.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		p.CheckAndRegister()

		result, err := f()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRateLimitError(err) {
			return "", err
		}
		if attempt == attempts-1 {
			break
		}

		backoff := p.PerMinute.cfg.RetryDelay * time.Duration(1<<uint(attempt)) //nolint:gosec // bounded by small MaxRetries
		p.PerMinute.logger.Warn("llm call rate limited, retrying in %v (attempt %d/%d)", backoff, attempt+1, attempts)
		p.PerMinute.sleep(backoff)
	}

	return "", lastErr
}

// Status returns both windows' current occupancy.
func (p *Pair) Status() (perMinute, perDay Status) {
	return p.PerMinute.Status(), p.PerDay.Status()
}

// IsRateLimitError reports whether err's message matches the spec's rate-limit markers.
// Exposed so the LLM adapter can classify backend failures consistently with llmerrors.Classify.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	return isRateLimitMessage(err.Error()) || llmerrors.IsRateLimit(err)
}
