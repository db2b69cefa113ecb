package emulator

import (
	"fmt"

	"github.com/arloliu/go-autd3/logger"
)

const (
	// DefaultCPUVersion and DefaultFPGAVersion are reported by emulated
	// devices unless configured otherwise.
	DefaultCPUVersion  = 0xFFFF
	DefaultFPGAVersion = 0xFFFF

	DefaultAckDelay = 0
	MaxAckDelay     = 1000

	DefaultRecordSize = 0
	MaxRecordSize     = 1 << 16
)

// Config holds the configuration of an emulator link.
type Config struct {
	cpuVersion  uint16
	fpgaVersion uint16
	ackDelay    int
	dropAcks    bool
	recordSize  int
	clockSkew   func(dev int) uint8
	logger      logger.Logger
}

// NewConfig creates an emulator configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		cpuVersion:  DefaultCPUVersion,
		fpgaVersion: DefaultFPGAVersion,
		ackDelay:    DefaultAckDelay,
		recordSize:  DefaultRecordSize,
		clockSkew:   func(int) uint8 { return 0 },
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures an emulator link.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithFirmware sets the firmware versions reported by every device.
func WithFirmware(cpu, fpga uint16) Option {
	return optFunc(func(cfg *Config) error {
		cfg.cpuVersion, cfg.fpgaVersion = cpu, fpga
		return nil
	})
}

// WithAckDelay makes devices acknowledge a frame only after it was seen on
// cycles consecutive bus cycles.
//
// Default: DefaultAckDelay, range [0, MaxAckDelay].
func WithAckDelay(cycles int) Option {
	return optFunc(func(cfg *Config) error {
		if cycles < 0 || cycles > MaxAckDelay {
			return fmt.Errorf("emulator: ack delay %d out of range [0, %d]", cycles, MaxAckDelay)
		}
		cfg.ackDelay = cycles

		return nil
	})
}

// WithDropAcks makes devices latch frames without ever acknowledging them.
func WithDropAcks(drop bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.dropAcks = drop
		return nil
	})
}

// WithRecorder keeps the last size distinct frames received.
//
// Default: DefaultRecordSize (disabled), range [0, MaxRecordSize].
func WithRecorder(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < 0 || size > MaxRecordSize {
			return fmt.Errorf("emulator: record size %d out of range [0, %d]", size, MaxRecordSize)
		}
		cfg.recordSize = size

		return nil
	})
}

// WithClockSkew sets the clock offset, in sequence clock ticks, that device
// dev reports when calibrated.
func WithClockSkew(fn func(dev int) uint8) Option {
	return optFunc(func(cfg *Config) error {
		if fn == nil {
			return fmt.Errorf("emulator: nil clock skew function")
		}
		cfg.clockSkew = fn

		return nil
	})
}

// WithLogger sets the logger.
//
// Default: the package default logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("emulator: nil logger")
		}
		cfg.logger = l

		return nil
	})
}
