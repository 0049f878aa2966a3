package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/rs/zerolog"
)

// defaultRetryOnConflict is the store-side retry budget applied to upserts on
// concurrent-write conflicts.
const defaultRetryOnConflict = 3

// BatchBuilder turns one route's record sequence into ordered bulk chunks.
// Records are never dropped, duplicated or reordered: the concatenation of
// the produced chunks equals the input sequence.
type BatchBuilder struct {
	separator    string
	useRecordKey bool
	now          func() time.Time
	logger       zerolog.Logger
}

// NewBatchBuilder creates a builder. separator joins primary-key component
// values into a document id; useRecordKey falls back to the record's own key
// when no primary key resolves. now supplies the wall clock for index-name
// resolution.
func NewBatchBuilder(separator string, useRecordKey bool, now func() time.Time, logger zerolog.Logger) *BatchBuilder {
	if now == nil {
		now = time.Now
	}
	return &BatchBuilder{
		separator:    separator,
		useRecordKey: useRecordKey,
		now:          now,
		logger:       logger.With().Str("component", "batch-builder").Logger(),
	}
}

// Build produces the bulk chunks for one mapping over an ordered record
// sequence. Each chunk holds at most mapping.BatchSize operations.
func (b *BatchBuilder) Build(mapping *models.Mapping, projector *Projector, records []models.Record) ([]models.BulkChunk, error) {
	if len(records) == 0 {
		return nil, nil
	}

	batchSize := mapping.BatchSize
	if batchSize <= 0 {
		batchSize = len(records)
	}

	chunks := make([]models.BulkChunk, 0, (len(records)+batchSize-1)/batchSize)
	current := models.BulkChunk{Operations: make([]models.Operation, 0, batchSize)}

	for _, record := range records {
		op, err := b.buildOperation(mapping, projector, record)
		if err != nil {
			return nil, err
		}

		current.Operations = append(current.Operations, op)
		if len(current.Operations) == batchSize {
			chunks = append(chunks, current)
			current = models.BulkChunk{Operations: make([]models.Operation, 0, batchSize)}
		}
	}
	if len(current.Operations) > 0 {
		chunks = append(chunks, current)
	}

	return chunks, nil
}

// buildOperation resolves one record into a single operation for a mapping.
func (b *BatchBuilder) buildOperation(mapping *models.Mapping, projector *Projector, record models.Record) (models.Operation, error) {
	doc, err := projector.Project(record.Value)
	if err != nil {
		return models.Operation{}, err
	}

	instant := b.resolveClock(mapping, doc)
	index := ResolveIndexName(mapping.IndexPattern, instant)

	docType := mapping.DocumentType
	if docType == "" {
		docType = index
	}

	id := b.candidateID(projector, record)

	switch mapping.WriteMode {
	case models.WriteModeUpsert:
		if id == "" {
			return models.Operation{}, newEmptyUpsertKeyError(record.Topic, record.Partition, record.Offset)
		}
		return models.Operation{
			Kind:            models.OperationUpsert,
			Index:           index,
			DocumentType:    docType,
			ID:              id,
			RetryOnConflict: defaultRetryOnConflict,
			Body:            doc,
		}, nil

	default:
		if id == "" {
			// Synthesized from the record coordinates, so every record gets a
			// globally unique, deterministic id even without a primary key.
			id = fmt.Sprintf("%s%s%d%s%d", record.Topic, b.separator, record.Partition, b.separator, record.Offset)
		}
		return models.Operation{
			Kind:         models.OperationInsert,
			Index:        index,
			DocumentType: docType,
			ID:           id,
			Pipeline:     mapping.Pipeline,
			Body:         doc,
		}, nil
	}
}

// candidateID joins the record's primary-key values; falls back to the
// record key when configured. Empty when neither resolves.
func (b *BatchBuilder) candidateID(projector *Projector, record models.Record) string {
	values := projector.PrimaryKeyValues(record.Value)
	if len(values) > 0 {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprint(v)
		}
		return strings.Join(parts, b.separator)
	}
	if b.useRecordKey && len(record.Key) > 0 {
		return string(record.Key)
	}
	return ""
}

// resolveClock picks the instant index names are rendered against: the
// mapping's timestamp field when configured, wall clock otherwise.
func (b *BatchBuilder) resolveClock(mapping *models.Mapping, doc models.ProjectedDocument) time.Time {
	if mapping.TimestampField == "" {
		return b.now()
	}

	raw, ok := doc[mapping.TimestampField]
	if !ok {
		b.logger.Warn().
			Str("field", mapping.TimestampField).
			Str("topic", mapping.Topic).
			Msg("Timestamp field missing from document, using wall clock")
		return b.now()
	}

	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		format := mapping.TimestampFormat
		if format == "" {
			format = time.RFC3339
		}
		t, err := time.Parse(format, v)
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("field", mapping.TimestampField).
				Str("value", v).
				Msg("Unparseable timestamp field, using wall clock")
			return b.now()
		}
		return t
	default:
		b.logger.Warn().
			Str("field", mapping.TimestampField).
			Str("topic", mapping.Topic).
			Msg("Timestamp field is not a string, using wall clock")
		return b.now()
	}
}
