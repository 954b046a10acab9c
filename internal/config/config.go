// Package config loads the pushserver command configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/mroth/pushserver"
)

// Config for the pushserver command. Defaults are provided via struct tags.
// List values are separated by semicolons, e.g. PUSH_TOPICS="news;cats@pets".
type Config struct {
	// Addr to listen on. ENV: PUSH_ADDR
	Addr string `env:"PUSH_ADDR,default=:8080"`
	// SessionGrace is how long an idle, empty, detached session is kept. ENV: PUSH_SESSION_GRACE
	SessionGrace time.Duration `env:"PUSH_SESSION_GRACE,default=2m"`
	// SweepInterval between reclamation sweeps. ENV: PUSH_SWEEP_INTERVAL
	SweepInterval time.Duration `env:"PUSH_SWEEP_INTERVAL,default=15s"`
	// MaxQueue bounds each session queue; 0 is unbounded. ENV: PUSH_MAX_QUEUE
	MaxQueue int `env:"PUSH_MAX_QUEUE,default=256"`
	// PushTimeout bounds a single write to a client. ENV: PUSH_TIMEOUT
	PushTimeout time.Duration `env:"PUSH_TIMEOUT,default=5s"`
	// Keepalive interval for SSE comments. ENV: PUSH_KEEPALIVE
	Keepalive time.Duration `env:"PUSH_KEEPALIVE,default=15s"`
	// CORSOrigin for Access-Control-Allow-Origin, blank to omit. ENV: PUSH_CORS_ORIGIN
	CORSOrigin string `env:"PUSH_CORS_ORIGIN"`
	// Topics created at startup, as "name" or "subtopic@name". ENV: PUSH_TOPICS
	Topics []string `env:"PUSH_TOPICS"`
	// AutoCreateTopics on first subscribe. ENV: PUSH_AUTO_CREATE_TOPICS
	AutoCreateTopics bool `env:"PUSH_AUTO_CREATE_TOPICS,default=false"`
	// Admin mounts the /admin/ endpoints. ENV: PUSH_ADMIN
	Admin bool `env:"PUSH_ADMIN,default=true"`
	// Debug enables debug level logging. ENV: PUSH_DEBUG
	Debug bool `env:"PUSH_DEBUG,default=false"`
}

// Load decodes the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and topic addresses.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("PUSH_ADDR must not be empty")
	}
	if c.SessionGrace < 0 {
		return fmt.Errorf("PUSH_SESSION_GRACE must not be negative: %v", c.SessionGrace)
	}
	if c.MaxQueue < 0 {
		return fmt.Errorf("PUSH_MAX_QUEUE must not be negative: %d", c.MaxQueue)
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("PUSH_TIMEOUT must be positive: %v", c.PushTimeout)
	}
	if _, err := c.TopicKeys(); err != nil {
		return fmt.Errorf("PUSH_TOPICS: %w", err)
	}
	return nil
}

// TopicKeys parses Topics.
func (c Config) TopicKeys() ([]pushserver.TopicKey, error) {
	keys := make([]pushserver.TopicKey, 0, len(c.Topics))
	for _, addr := range c.Topics {
		key, err := pushserver.ParseTopicKey(addr)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Options translates the Config into PushContext options.
func (c Config) Options() []pushserver.Option {
	return []pushserver.Option{
		pushserver.WithGracePeriod(c.SessionGrace),
		pushserver.WithSweepInterval(c.SweepInterval),
		pushserver.WithMaxQueueLength(c.MaxQueue),
		pushserver.WithPushTimeout(c.PushTimeout),
	}
}

// ServerOptions translates the Config into Server options.
func (c Config) ServerOptions() []pushserver.ServerOption {
	return []pushserver.ServerOption{
		pushserver.WithCORSAllowOrigin(c.CORSOrigin),
		pushserver.WithKeepalive(c.Keepalive),
		pushserver.WithAutoCreateTopics(c.AutoCreateTopics),
	}
}
