package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/devcode-git/stream-reactor/internal/metrics"
	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Client is the store collaborator. A single instance is shared by all
// concurrent chunk submissions and must tolerate concurrent use.
type Client interface {
	// CreateIndex creates the mapping's target index; already-existing
	// indexes are not an error.
	CreateIndex(ctx context.Context, mapping *models.Mapping) error

	// Execute submits one chunk as a single ordered bulk request and returns
	// the canonical outcome.
	Execute(ctx context.Context, chunk models.BulkChunk) (models.BulkOutcome, error)

	Close() error
}

// BulkExecutor submits bulk chunks concurrently and awaits them together.
//
// All chunks of one flush are dispatched at once, bounded by the pool size,
// with a single aggregate await bounded by the flush timeout. A timeout
// surfaces as a failure but does not cancel in-flight submissions: those may
// still complete and mutate the store after the caller has reported failure.
// That inconsistency window is accepted behavior.
type BulkExecutor struct {
	client  Client
	sem     *semaphore.Weighted
	timeout time.Duration
	policy  ErrorPolicy
	stats   *metrics.Collector
	logger  zerolog.Logger
}

// NewBulkExecutor creates an executor. maxConcurrent bounds in-flight bulk
// requests; timeout bounds the aggregate await of one flush.
func NewBulkExecutor(client Client, maxConcurrent int, timeout time.Duration, policy ErrorPolicy, stats *metrics.Collector, logger zerolog.Logger) *BulkExecutor {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &BulkExecutor{
		client:  client,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		policy:  policy,
		stats:   stats,
		logger:  logger.With().Str("component", "bulk-executor").Logger(),
	}
}

// chunkResult carries one chunk's outcome back to the aggregate await.
type chunkResult struct {
	outcome models.BulkOutcome
	err     error
}

// Flush submits every chunk concurrently, awaits all of them once, inspects
// the outcomes and routes failures through the error policy. The returned
// error is the policy's verdict; nil means the flush is settled, whether or
// not individual items failed under a swallowing policy.
func (e *BulkExecutor) Flush(ctx context.Context, chunks []models.BulkChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.stats.AddChunks(len(chunks))

	// Buffered so late completions after a timeout never block their
	// goroutines.
	results := make(chan chunkResult, len(chunks))

	// Submissions run on a detached context: the aggregate timeout below must
	// not cancel requests already on the wire.
	subCtx := context.WithoutCancel(ctx)
	for _, chunk := range chunks {
		go e.submit(subCtx, chunk, results)
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var verdict error
	for received := 0; received < len(chunks); received++ {
		select {
		case res := <-results:
			if err := e.inspect(res); err != nil && verdict == nil {
				verdict = err
			}
		case <-timer.C:
			serr := &SubmissionError{
				Reason: fmt.Sprintf("timed out after %s awaiting %d of %d chunk(s)",
					e.timeout, len(chunks)-received, len(chunks)),
			}
			e.stats.AddChunkFailure()
			e.logger.Error().
				Int("outstanding", len(chunks)-received).
				Dur("timeout", e.timeout).
				Msg("Bulk flush timed out, in-flight chunks may still apply")
			return e.policy.Handle(serr)
		}
	}

	return verdict
}

// submit executes one chunk against the store.
func (e *BulkExecutor) submit(ctx context.Context, chunk models.BulkChunk, results chan<- chunkResult) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		results <- chunkResult{err: err}
		return
	}
	defer e.sem.Release(1)

	outcome, err := e.client.Execute(ctx, chunk)
	results <- chunkResult{outcome: outcome, err: err}
}

// inspect classifies one chunk result and routes failures to the policy.
// Chunks with no item-level failures are not reported further.
func (e *BulkExecutor) inspect(res chunkResult) error {
	if res.err != nil {
		e.stats.AddChunkFailure()
		serr := &SubmissionError{Reason: "bulk request rejected", Err: res.err}
		e.logger.Error().Err(res.err).Msg("Bulk request failed")
		return e.policy.Handle(serr)
	}

	if len(res.outcome.Failures) == 0 {
		return nil
	}

	e.stats.AddItemFailures(len(res.outcome.Failures))
	perr := &PartialFailureError{Failures: res.outcome.Failures}
	e.logger.Warn().
		Int("failed_items", len(res.outcome.Failures)).
		Msg("Bulk request reported item failures")
	return e.policy.Handle(perr)
}
