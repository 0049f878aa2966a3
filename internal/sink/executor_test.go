package sink

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devcode-git/stream-reactor/internal/metrics"
	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/rs/zerolog"
)

// fakeClient records executed chunks and replays scripted outcomes.
type fakeClient struct {
	mu       sync.Mutex
	executed []models.BulkChunk
	created  []string

	// outcomeFor, when set, picks the outcome per chunk; otherwise every
	// chunk succeeds cleanly.
	outcomeFor func(chunk models.BulkChunk) (models.BulkOutcome, error)

	delay time.Duration
}

func (f *fakeClient) CreateIndex(_ context.Context, mapping *models.Mapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, mapping.IndexPattern)
	return nil
}

func (f *fakeClient) Execute(_ context.Context, chunk models.BulkChunk) (models.BulkOutcome, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.executed = append(f.executed, chunk)
	f.mu.Unlock()

	if f.outcomeFor != nil {
		return f.outcomeFor(chunk)
	}
	return models.BulkOutcome{}, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) executedChunks() []models.BulkChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BulkChunk(nil), f.executed...)
}

// capturePolicy records every failure it is handed and swallows it.
type capturePolicy struct {
	mu    sync.Mutex
	calls []error
}

func (p *capturePolicy) Handle(err error) error {
	p.mu.Lock()
	p.calls = append(p.calls, err)
	p.mu.Unlock()
	return nil
}

func (p *capturePolicy) handled() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.calls...)
}

func chunkOf(ids ...string) models.BulkChunk {
	chunk := models.BulkChunk{}
	for _, id := range ids {
		chunk.Operations = append(chunk.Operations, models.Operation{
			Kind:         models.OperationInsert,
			Index:        "orders",
			DocumentType: "orders",
			ID:           id,
			Body:         models.ProjectedDocument{"id": id},
		})
	}
	return chunk
}

func newTestExecutor(client Client, policy ErrorPolicy, timeout time.Duration) *BulkExecutor {
	return NewBulkExecutor(client, 4, timeout, policy, metrics.New(), zerolog.Nop())
}

func TestBulkExecutor_AllChunksSubmitted(t *testing.T) {
	client := &fakeClient{}
	policy := &capturePolicy{}
	executor := newTestExecutor(client, policy, time.Second)

	chunks := []models.BulkChunk{chunkOf("a"), chunkOf("b"), chunkOf("c")}
	if err := executor.Flush(context.Background(), chunks); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got := len(client.executedChunks()); got != 3 {
		t.Errorf("executed %d chunks, want 3", got)
	}
	if got := len(policy.handled()); got != 0 {
		t.Errorf("clean chunks reported %d failures, want 0", got)
	}
}

func TestBulkExecutor_EmptyFlush(t *testing.T) {
	client := &fakeClient{}
	executor := newTestExecutor(client, &capturePolicy{}, time.Second)

	if err := executor.Flush(context.Background(), nil); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(client.executedChunks()) != 0 {
		t.Error("empty flush must not reach the store")
	}
}

func TestBulkExecutor_ItemFailureReportedOnce(t *testing.T) {
	client := &fakeClient{
		outcomeFor: func(chunk models.BulkChunk) (models.BulkOutcome, error) {
			if chunk.Operations[0].ID == "b" {
				return models.BulkOutcome{Failures: []models.ItemFailure{{
					Index: "orders",
					Type:  "orders",
					ID:    "b",
					Error: "mapper_parsing_exception: failed to parse",
				}}}, nil
			}
			return models.BulkOutcome{}, nil
		},
	}
	policy := &capturePolicy{}
	executor := newTestExecutor(client, policy, time.Second)

	err := executor.Flush(context.Background(), []models.BulkChunk{chunkOf("a", "a2"), chunkOf("b")})
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	handled := policy.handled()
	if len(handled) != 1 {
		t.Fatalf("policy invoked %d times, want exactly 1", len(handled))
	}

	msg := handled[0].Error()
	for _, want := range []string{"index=orders", "type=orders", "id=b", "mapper_parsing_exception"} {
		if !strings.Contains(msg, want) {
			t.Errorf("failure message %q should contain %q", msg, want)
		}
	}

	var partial *PartialFailureError
	if !errors.As(handled[0], &partial) {
		t.Errorf("expected PartialFailureError, got %T", handled[0])
	}
}

func TestBulkExecutor_SubmissionFailure(t *testing.T) {
	boom := errors.New("connection refused")
	client := &fakeClient{
		outcomeFor: func(models.BulkChunk) (models.BulkOutcome, error) {
			return models.BulkOutcome{}, boom
		},
	}
	policy := &capturePolicy{}
	executor := newTestExecutor(client, policy, time.Second)

	if err := executor.Flush(context.Background(), []models.BulkChunk{chunkOf("a")}); err != nil {
		t.Fatalf("swallowing policy should settle the flush, got %v", err)
	}

	handled := policy.handled()
	if len(handled) != 1 {
		t.Fatalf("policy invoked %d times, want 1", len(handled))
	}
	var serr *SubmissionError
	if !errors.As(handled[0], &serr) {
		t.Fatalf("expected SubmissionError, got %T", handled[0])
	}
	if !errors.Is(handled[0], boom) {
		t.Error("submission error should wrap the client failure")
	}
}

func TestBulkExecutor_EscalatingPolicy(t *testing.T) {
	client := &fakeClient{
		outcomeFor: func(models.BulkChunk) (models.BulkOutcome, error) {
			return models.BulkOutcome{}, errors.New("boom")
		},
	}
	throw, _ := NewErrorPolicy(PolicyThrow, 0, 0, zerolog.Nop())
	executor := newTestExecutor(client, throw, time.Second)

	err := executor.Flush(context.Background(), []models.BulkChunk{chunkOf("a")})
	var serr *SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SubmissionError out of Flush, got %v", err)
	}
}

func TestBulkExecutor_Timeout(t *testing.T) {
	client := &fakeClient{delay: 200 * time.Millisecond}
	throw, _ := NewErrorPolicy(PolicyThrow, 0, 0, zerolog.Nop())
	executor := newTestExecutor(client, throw, 20*time.Millisecond)

	start := time.Now()
	err := executor.Flush(context.Background(), []models.BulkChunk{chunkOf("a"), chunkOf("b")})
	elapsed := time.Since(start)

	var serr *SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SubmissionError on timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("timeout error %q should say timed out", err.Error())
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("flush blocked %v, should have returned at the timeout", elapsed)
	}

	// In-flight submissions still complete after the caller reported failure.
	time.Sleep(300 * time.Millisecond)
	if got := len(client.executedChunks()); got != 2 {
		t.Errorf("in-flight chunks should still complete, executed %d of 2", got)
	}
}

func TestBulkExecutor_Concurrent(t *testing.T) {
	client := &fakeClient{delay: 50 * time.Millisecond}
	executor := newTestExecutor(client, &capturePolicy{}, time.Second)

	chunks := make([]models.BulkChunk, 4)
	for i := range chunks {
		chunks[i] = chunkOf("x")
	}

	start := time.Now()
	if err := executor.Flush(context.Background(), chunks); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Four 50ms submissions on a pool of four should overlap.
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("flush took %v, chunks do not appear to run concurrently", elapsed)
	}
}
