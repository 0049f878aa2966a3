package sink

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetriableError wraps a failure the host is expected to retry by
// re-delivering the same records.
type RetriableError struct {
	Err error
}

func (e *RetriableError) Error() string {
	return "retriable: " + e.Err.Error()
}

func (e *RetriableError) Unwrap() error {
	return e.Err
}

// ErrorPolicy decides what a store-level failure means for the caller.
// Handle returns nil to swallow the failure, a RetriableError to request
// re-delivery, or the failure itself to escalate. Policies are invoked from
// concurrent completion paths and must be safe for concurrent use.
type ErrorPolicy interface {
	Handle(err error) error
}

// The configured policy kinds.
const (
	PolicyNoop  = "noop"
	PolicyThrow = "throw"
	PolicyRetry = "retry"
)

// NewErrorPolicy builds the policy for a configured kind.
func NewErrorPolicy(kind string, retries int, interval time.Duration, logger zerolog.Logger) (ErrorPolicy, error) {
	switch strings.ToLower(kind) {
	case PolicyNoop:
		return &noopPolicy{logger: logger.With().Str("component", "error-policy").Logger()}, nil
	case PolicyThrow:
		return &throwPolicy{}, nil
	case PolicyRetry:
		return &retryPolicy{
			budget:    retries,
			remaining: retries,
			interval:  interval,
			logger:    logger.With().Str("component", "error-policy").Logger(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown error policy %q", kind)
	}
}

// noopPolicy logs and swallows every failure.
type noopPolicy struct {
	logger zerolog.Logger
}

func (p *noopPolicy) Handle(err error) error {
	p.logger.Warn().Err(err).Msg("Ignoring sink failure per error policy")
	return nil
}

// throwPolicy escalates every failure to the host.
type throwPolicy struct{}

func (p *throwPolicy) Handle(err error) error {
	return err
}

// retryPolicy requests re-delivery until the retry budget is spent, then
// escalates. Reset restores the budget after a fully successful write.
type retryPolicy struct {
	budget   int
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	remaining int
}

func (p *retryPolicy) Handle(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remaining <= 0 {
		p.logger.Error().Err(err).Int("budget", p.budget).Msg("Retry budget exhausted, escalating")
		return err
	}
	p.remaining--

	p.logger.Warn().
		Err(err).
		Int("remaining", p.remaining).
		Dur("interval", p.interval).
		Msg("Sink failure, requesting retry")

	if p.interval > 0 {
		time.Sleep(p.interval)
	}
	return &RetriableError{Err: err}
}

// Reset restores the retry budget. Called after a write with no failures.
func (p *retryPolicy) Reset() {
	p.mu.Lock()
	p.remaining = p.budget
	p.mu.Unlock()
}

// budgetResetter is implemented by policies that track a consumable budget.
type budgetResetter interface {
	Reset()
}
