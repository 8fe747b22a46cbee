// Package resilience guards calls to remote backends with a circuit breaker.
// Calls are never retried here: a failure is returned to the caller as is.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Config controls when a breaker opens and how long it stays open.
type Config struct {
	Enabled          bool          `yaml:"enabled"`
	MinRequests      uint32        `yaml:"min_requests"`
	FailureRatio     float64       `yaml:"failure_ratio"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	HalfOpenMaxCalls uint32        `yaml:"half_open_max_calls"`
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MinRequests:      10,
		FailureRatio:     0.5,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.MinRequests == 0 {
		out.MinRequests = def.MinRequests
	}
	if out.FailureRatio <= 0 || out.FailureRatio > 1 {
		out.FailureRatio = def.FailureRatio
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = def.OpenTimeout
	}
	if out.HalfOpenMaxCalls == 0 {
		out.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return out
}

// FailureClassifier reports whether err should count against the breaker.
type FailureClassifier func(err error) bool

// Breaker wraps a gobreaker circuit breaker for one named backend.
type Breaker struct {
	name    string
	enabled bool
	cb      *gobreaker.CircuitBreaker[any]
}

// Option configures a Breaker.
type Option func(*breakerOptions)

type breakerOptions struct {
	logger     *zap.Logger
	classifier FailureClassifier
}

// WithLogger sets the logger for state changes.
func WithLogger(l *zap.Logger) Option {
	return func(o *breakerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClassifier sets which errors count as failures. By default every error
// except context cancellation counts.
func WithClassifier(c FailureClassifier) Option {
	return func(o *breakerOptions) {
		if c != nil {
			o.classifier = c
		}
	}
}

// NewBreaker creates a breaker named after the backend it protects.
func NewBreaker(name string, cfg Config, opts ...Option) *Breaker {
	o := breakerOptions{logger: zap.NewNop(), classifier: defaultClassifier}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.normalize()

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !o.classifier(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			o.logger.Warn("circuit breaker state change",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Breaker{
		name:    name,
		enabled: cfg.Enabled,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Execute runs fn through the breaker. When the breaker is open fn is not called
// and an error matching IsCircuitOpen is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	if b == nil || !b.enabled {
		return fn(ctx)
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State returns the current breaker state as a string ("closed", "open", "half-open").
func (b *Breaker) State() string {
	if b == nil || !b.enabled {
		return "disabled"
	}
	return b.cb.State().String()
}

// IsCircuitOpen reports whether err was produced by an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(err error) bool {
	return !errors.Is(err, context.Canceled)
}
