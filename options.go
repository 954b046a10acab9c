package pushserver

import (
	"fmt"
	"log/slog"
	"time"
)

// Defaults applied by New when no option overrides them.
const (
	DefaultGracePeriod    = 2 * time.Minute
	DefaultSweepInterval  = 15 * time.Second
	DefaultMaxQueueLength = 256
	DefaultPushTimeout    = 5 * time.Second
)

// config defines configurable options that can be customized for a
// PushContext.
type config struct {
	GracePeriod    time.Duration // idle time before an empty, detached session is reclaimable
	SweepInterval  time.Duration // how often the reclamation sweep runs (<=0 disables it)
	MaxQueueLength int           // per-session queue bound (<=0 means unbounded)
	PushTimeout    time.Duration // bound on a single transport push
	Logger         *slog.Logger

	now func() time.Time
}

func defaultConfig() config {
	return config{
		GracePeriod:    DefaultGracePeriod,
		SweepInterval:  DefaultSweepInterval,
		MaxQueueLength: DefaultMaxQueueLength,
		PushTimeout:    DefaultPushTimeout,
		Logger:         slog.Default(),
		now:            time.Now,
	}
}

// Option customizes a PushContext.
type Option func(c *config) error

// WithGracePeriod sets the minimum idle time before an empty session with no
// attached transport may be removed.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) error {
		if d < 0 {
			return fmt.Errorf("grace period must not be negative: %v", d)
		}
		c.GracePeriod = d
		return nil
	}
}

// WithSweepInterval sets how often idle sessions are reclaimed. Zero disables
// the background sweeper; SessionManager.Sweep can still be called directly.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) error {
		c.SweepInterval = d
		return nil
	}
}

// WithMaxQueueLength bounds each session queue. When full, the oldest message
// is dropped. Zero means unbounded.
func WithMaxQueueLength(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("max queue length must not be negative: %d", n)
		}
		c.MaxQueueLength = n
		return nil
	}
}

// WithPushTimeout bounds how long a single transport push may take. Zero
// leaves pushes unbounded, which is only safe for non-blocking transports.
func WithPushTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.PushTimeout = d
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.Logger = l
		return nil
	}
}
