package soem

import (
	"fmt"
	"time"

	"github.com/arloliu/go-autd3/logger"
)

const (
	// DefaultTimeout bounds one frame round trip on the bus.
	DefaultTimeout = 20 * time.Millisecond
	MinTimeout     = time.Millisecond
	MaxTimeout     = time.Second

	// DefaultStateTimeout bounds the transition of all devices to OP.
	DefaultStateTimeout = 2 * time.Second
	MinStateTimeout     = 10 * time.Millisecond
	MaxStateTimeout     = 30 * time.Second

	// Logical addresses of the process data images.
	DefaultOutputBase = 0x0001_0000
	DefaultInputBase  = 0x0080_0000
)

// ESC memory holding the process data of one device.
const (
	physOutput = 0x1000
	physInput  = 0x1800
)

// Config holds the configuration of a SOEM link.
type Config struct {
	timeout      time.Duration
	stateTimeout time.Duration
	logger       logger.Logger
}

// NewConfig creates a SOEM link configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		timeout:      DefaultTimeout,
		stateTimeout: DefaultStateTimeout,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Timeout returns the frame round trip timeout.
func (cfg *Config) Timeout() time.Duration { return cfg.timeout }

// StateTimeout returns the OP transition timeout.
func (cfg *Config) StateTimeout() time.Duration { return cfg.stateTimeout }

// Option configures a SOEM link.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTimeout sets the frame round trip timeout.
//
// Default: DefaultTimeout, range [MinTimeout, MaxTimeout].
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("soem: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithStateTimeout sets the timeout for bringing devices to OP.
//
// Default: DefaultStateTimeout, range [MinStateTimeout, MaxStateTimeout].
func WithStateTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinStateTimeout || d > MaxStateTimeout {
			return fmt.Errorf("soem: state timeout %v out of range [%v, %v]", d, MinStateTimeout, MaxStateTimeout)
		}
		cfg.stateTimeout = d

		return nil
	})
}

// WithLogger sets the logger.
//
// Default: the package default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("soem: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
