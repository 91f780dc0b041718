package transmission

import (
	"time"
)

// options holds the configuration for a connection.
type options struct {
	logger    Logger
	metrics   *Metrics
	reservoir Reservoir

	readTimeout  time.Duration // passed to every NetworkRead, 0 disables
	writeTimeout time.Duration // passed to every NetworkWrite, 0 disables
	maxFrameSize int           // largest accepted frame payload
}

// Option is a function that configures connection options.
type Option func(*options)

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ReadTimeoutOption returns an Option that sets the timeout handed to the
// transport on every network read. Zero means reads may block indefinitely.
func ReadTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// WriteTimeoutOption returns an Option that sets the timeout handed to the
// transport on every network write.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// MaxFrameSizeOption returns an Option that sets the maximum payload size of
// a length-prefixed frame, for both directions.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// ReservoirOption returns an Option that replaces the default reservoir.
func ReservoirOption(r Reservoir) Option {
	return func(o *options) {
		o.reservoir = r
	}
}

// MetricsOption returns an Option that reports connection activity to m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
