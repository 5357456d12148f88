package dlm

import (
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	Logger = logger.GetLogger("dlm")
)

// CleanupPolicy selects what happens when an implicit release (Lock.Close,
// Guard.Release) fails.
type CleanupPolicy int

const (
	// CleanupLog logs the failure and forwards it to the error sink.
	CleanupLog CleanupPolicy = iota
	// CleanupIgnore drops the failure silently.
	CleanupIgnore
	// CleanupRetry retries the release before logging and forwarding.
	CleanupRetry
)

// String returns the name of the policy.
func (p CleanupPolicy) String() string {
	switch p {
	case CleanupLog:
		return "log"
	case CleanupIgnore:
		return "ignore"
	case CleanupRetry:
		return "retry"
	default:
		return "unknown"
	}
}

const defaultCleanupRetries = 3

// ErrorSink receives errors of implicit releases that cannot be returned.
type ErrorSink func(err error)

// Option configures a Lockspace.
type Option func(*lockspaceOptions)

type lockspaceOptions struct {
	logger   logger.ILogger
	policy   CleanupPolicy
	retries  int
	sink     ErrorSink
	registry gometrics.Registry
}

func defaultOptions() lockspaceOptions {
	return lockspaceOptions{
		logger:  Logger,
		policy:  CleanupLog,
		retries: defaultCleanupRetries,
	}
}

// WithLogger sets the logger used by the lockspace and its locks.
func WithLogger(l logger.ILogger) Option {
	return func(o *lockspaceOptions) {
		o.logger = l
	}
}

// WithCleanupPolicy sets the policy for failed implicit releases.
func WithCleanupPolicy(p CleanupPolicy) Option {
	return func(o *lockspaceOptions) {
		o.policy = p
	}
}

// WithCleanupRetries sets how often CleanupRetry retries a failed release.
func WithCleanupRetries(n int) Option {
	return func(o *lockspaceOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithErrorSink sets the sink for errors of failed implicit releases.
func WithErrorSink(sink ErrorSink) Option {
	return func(o *lockspaceOptions) {
		o.sink = sink
	}
}

// WithMetricsRegistry records the lockspace metrics in r instead of a
// private registry.
func WithMetricsRegistry(r gometrics.Registry) Option {
	return func(o *lockspaceOptions) {
		o.registry = r
	}
}
