package sink

import (
	"fmt"
	"strings"

	"github.com/devcode-git/stream-reactor/pkg/models"
)

// ConfigurationError indicates a misconfiguration that cannot self-heal:
// a topic with no matching mapping, or an upsert that resolved to an empty
// document id. It is raised before any store call and is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// newMissingRouteError reports a topic with no configured mapping, naming
// the full set of configured topics to make the misconfiguration obvious.
func newMissingRouteError(topic string, configured []string) *ConfigurationError {
	return &ConfigurationError{
		Reason: fmt.Sprintf("no mapping configured for topic %q (configured topics: %s)",
			topic, strings.Join(configured, ", ")),
	}
}

// newEmptyUpsertKeyError reports an upsert record whose primary key resolved
// to nothing.
func newEmptyUpsertKeyError(topic string, partition int32, offset int64) *ConfigurationError {
	return &ConfigurationError{
		Reason: fmt.Sprintf("upsert requires a non-empty document id but none resolved for record %s/%d/%d",
			topic, partition, offset),
	}
}

// TransformError indicates the projector could not interpret a record value.
type TransformError struct {
	Field  string
	Reason string
}

func (e *TransformError) Error() string {
	if e.Field == "" {
		return "transform error: " + e.Reason
	}
	return fmt.Sprintf("transform error on field %q: %s", e.Field, e.Reason)
}

// SubmissionError indicates the store rejected a chunk outright, or the
// aggregate await timed out before every chunk resolved.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission error: %s: %v", e.Reason, e.Err)
	}
	return "submission error: " + e.Reason
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PartialFailureError reports a chunk the store accepted and executed but for
// which it flagged individual failed items. The message enumerates every
// failed item with its resolved index, type, id and the store's error detail.
type PartialFailureError struct {
	Failures []models.ItemFailure
}

func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bulk request reported %d failed item(s):", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, " [index=%s type=%s id=%s error=%s]", f.Index, f.Type, f.ID, f.Error)
	}
	return b.String()
}
