package controller

import (
	"fmt"
	"time"

	"github.com/arloliu/go-autd3/logger"
)

const (
	// DefaultCycleInterval is the period of the bus cycle.
	DefaultCycleInterval = time.Millisecond
	// DefaultAckTimeout bounds the wait for every device to acknowledge a
	// synchronous frame.
	DefaultAckTimeout = 200 * time.Millisecond
	// DefaultCalibrationRetries is the number of calibration round trips
	// attempted before Calibrate gives up.
	DefaultCalibrationRetries = 10
	DefaultCloseTimeout       = 3 * time.Second
	// DefaultQueueSize bounds the number of appended requests not yet sent.
	DefaultQueueSize = 1024
)

const (
	MinCycleInterval = 100 * time.Microsecond
	MaxCycleInterval = time.Second

	MinAckTimeout = time.Millisecond
	MaxAckTimeout = time.Minute

	MaxCalibrationRetries = 1000

	MinCloseTimeout = 10 * time.Millisecond
	MaxCloseTimeout = time.Minute

	MaxQueueSize = 1 << 16
)

// closeCheckInterval is the polling period used while flushing on Close.
const closeCheckInterval = time.Millisecond

// Config holds the configuration of a Controller.
type Config struct {
	cycleInterval      time.Duration
	ackTimeout         time.Duration
	calibrationRetries int
	closeTimeout       time.Duration
	queueSize          int
	logger             logger.Logger
}

// NewConfig creates a controller configuration. opts are applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		cycleInterval:      DefaultCycleInterval,
		ackTimeout:         DefaultAckTimeout,
		calibrationRetries: DefaultCalibrationRetries,
		closeTimeout:       DefaultCloseTimeout,
		queueSize:          DefaultQueueSize,
		logger:             logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// CycleInterval returns the bus cycle period.
func (cfg *Config) CycleInterval() time.Duration { return cfg.cycleInterval }

// AckTimeout returns the acknowledge timeout of synchronous frames.
func (cfg *Config) AckTimeout() time.Duration { return cfg.ackTimeout }

// CalibrationRetries returns the number of calibration attempts.
func (cfg *Config) CalibrationRetries() int { return cfg.calibrationRetries }

// CloseTimeout returns the time Close waits for the queue to drain.
func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

// QueueSize returns the capacity of the outbound queue.
func (cfg *Config) QueueSize() int { return cfg.queueSize }

// Option configures a Controller.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithCycleInterval sets the bus cycle period.
//
// Default: DefaultCycleInterval, range [MinCycleInterval, MaxCycleInterval].
func WithCycleInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinCycleInterval || d > MaxCycleInterval {
			return fmt.Errorf("controller: cycle interval %v out of range [%v, %v]", d, MinCycleInterval, MaxCycleInterval)
		}
		cfg.cycleInterval = d

		return nil
	})
}

// WithAckTimeout sets how long a synchronous append waits for every device to
// acknowledge its frame.
//
// Default: DefaultAckTimeout, range [MinAckTimeout, MaxAckTimeout].
func WithAckTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinAckTimeout || d > MaxAckTimeout {
			return fmt.Errorf("controller: ack timeout %v out of range [%v, %v]", d, MinAckTimeout, MaxAckTimeout)
		}
		cfg.ackTimeout = d

		return nil
	})
}

// WithCalibrationRetries sets how many calibration round trips Calibrate
// attempts before returning ErrCalibrationTimeout.
//
// Default: DefaultCalibrationRetries, range [1, MaxCalibrationRetries].
func WithCalibrationRetries(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxCalibrationRetries {
			return fmt.Errorf("controller: calibration retries %d out of range [1, %d]", n, MaxCalibrationRetries)
		}
		cfg.calibrationRetries = n

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for queued frames to be sent.
//
// Default: DefaultCloseTimeout, range [MinCloseTimeout, MaxCloseTimeout].
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinCloseTimeout || d > MaxCloseTimeout {
			return fmt.Errorf("controller: close timeout %v out of range [%v, %v]", d, MinCloseTimeout, MaxCloseTimeout)
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithQueueSize sets the number of requests that may wait to be sent.
// Appends beyond it fail with ErrQueueFull.
//
// Default: DefaultQueueSize, range [1, MaxQueueSize].
func WithQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueSize {
			return fmt.Errorf("controller: queue size %d out of range [1, %d]", n, MaxQueueSize)
		}
		cfg.queueSize = n

		return nil
	})
}

// WithLogger sets the logger.
//
// Default: the package default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("controller: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
