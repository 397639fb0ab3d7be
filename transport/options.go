package transport

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultDialTimeout bounds how long Dial waits to establish the TCP
	// session before failing with a graded DataLink error.
	DefaultDialTimeout = 30 * time.Second
	// DefaultAcceptPollInterval is not read by this package:
	// TCPListener.Readable makes one accept probe with a 1ms deadline, and
	// reports true without probing when the listener has no SetDeadline.
	DefaultAcceptPollInterval = 50 * time.Millisecond
)

// Option configures a Transport or Listener. Zero value of Config yields
// sane defaults via defaultConfig(); users apply overrides through the
// With* constructors below, following the teacher's functional-options
// shape (options no-op on zero values so callers can pass a zero Duration
// to mean "leave the default alone").
type Option func(*Config)

// Config holds the tunables shared by Dial and Listen.
type Config struct {
	dialTimeout time.Duration
	metrics     Metrics
	log         zerolog.Logger
}

func defaultConfig() *Config {
	return &Config{
		dialTimeout: DefaultDialTimeout,
		metrics:     NewDefaultMetrics(),
		log:         zerolog.Nop(),
	}
}

func applyConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithDialTimeout bounds Dial's wait for the TCP handshake to complete.
// Zero or negative leaves the default in place.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithMetrics installs a custom Metrics sink. Nil leaves the default
// atomic-counter implementation in place.
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger installs a zerolog.Logger for transport-level events (dial
// and listen failures; accept and read/write errors are not logged). The
// default is zerolog.Nop(), so the package is silent unless a caller opts
// in, matching the teacher's logging-is-off-by-default posture.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.log = l
	}
}
