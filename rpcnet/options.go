package rpcnet

import (
	"time"

	"github.com/rs/zerolog"
)

// Default tuning constants for ServerHandle.Serve's adaptive poll,
// generalized from the teacher's poll.go AdaptivePoll (fast while a
// session is active, backing off to steady while idle).
const (
	DefaultFastPoll   = 10 * time.Millisecond
	DefaultSteadyPoll = 250 * time.Millisecond
)

// Option configures a Handle or ServerHandle.
type Option func(*Config)

// Config holds the functional-options surface shared by Handle and
// ServerHandle, following the teacher's options.go Config/Option idiom.
type Config struct {
	log         zerolog.Logger
	metrics     Metrics
	maxLinkErrs int
	fastPoll    time.Duration
	steadyPoll  time.Duration
}

func defaultConfig() *Config {
	return &Config{
		log:         zerolog.Nop(),
		metrics:     NewDefaultMetrics(),
		maxLinkErrs: DefaultMaxLinkErrs,
		fastPoll:    DefaultFastPoll,
		steadyPoll:  DefaultSteadyPoll,
	}
}

func applyConfig(cfg *Config, opts []Option) {
	for _, opt := range opts {
		opt(cfg)
	}
}

// WithLogger installs a structured logger; the zero value logs nothing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.log = l }
}

// WithMetrics overrides the default atomic-counter Metrics.
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMaxLinkErrs overrides the nonfatal-error budget before a
// ServerHandle escalates to fatal (spec §4.E; default 20).
func WithMaxLinkErrs(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxLinkErrs = n
		}
	}
}

// WithPollIntervals overrides Serve's adaptive poll's fast/steady bounds.
func WithPollIntervals(fast, steady time.Duration) Option {
	return func(c *Config) {
		if fast > 0 {
			c.fastPoll = fast
		}
		if steady > 0 {
			c.steadyPoll = steady
		}
	}
}
