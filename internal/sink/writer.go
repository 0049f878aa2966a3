package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devcode-git/stream-reactor/internal/metrics"
	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Settings holds the writer's global knobs; per-route behavior lives on the
// mappings themselves.
type Settings struct {
	// Separator joins primary-key values (and the synthesized
	// topic/partition/offset id) into a document id.
	Separator string

	// UseRecordKey falls back to the record's opaque key as the document id
	// when no primary key resolves.
	UseRecordKey bool

	// WriteTimeout bounds the aggregate await of one Write call.
	WriteTimeout time.Duration

	// MaxConcurrent bounds in-flight bulk requests.
	MaxConcurrent int
}

// Writer converts record batches into bulk indexing operations and dispatches
// them. The mapping set is immutable for the writer's lifetime; everything
// built during one Write call is consumed within it.
type Writer struct {
	table      *RouteTable
	projectors []*Projector
	builder    *BatchBuilder
	executor   *BulkExecutor
	client     Client
	policy     ErrorPolicy
	stats      *metrics.Collector
	logger     zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewWriter validates the mappings, builds the route table and projectors,
// and creates auto-create indexes. now is the wall clock for index-name
// resolution; nil means time.Now.
func NewWriter(settings Settings, mappings []*models.Mapping, client Client, policy ErrorPolicy, stats *metrics.Collector, now func() time.Time, logger zerolog.Logger) (*Writer, error) {
	if len(mappings) == 0 {
		return nil, &ConfigurationError{Reason: "no mappings configured"}
	}
	for i, m := range mappings {
		if err := validateMapping(i, m); err != nil {
			return nil, err
		}
	}
	if stats == nil {
		stats = metrics.New()
	}

	log := logger.With().Str("component", "writer").Logger()

	projectors := make([]*Projector, len(mappings))
	for i, m := range mappings {
		projectors[i] = NewProjector(m)
	}

	w := &Writer{
		table:      NewRouteTable(mappings),
		projectors: projectors,
		builder:    NewBatchBuilder(settings.Separator, settings.UseRecordKey, now, logger),
		executor:   NewBulkExecutor(client, settings.MaxConcurrent, settings.WriteTimeout, policy, stats, logger),
		client:     client,
		policy:     policy,
		stats:      stats,
		logger:     log,
	}

	for _, m := range mappings {
		if !m.AutoCreate {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), settings.WriteTimeout)
		err := client.CreateIndex(ctx, m)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("auto-create index for topic %q: %w", m.Topic, err)
		}
		log.Info().Str("topic", m.Topic).Str("index", m.IndexPattern).Msg("Created index")
	}

	log.Info().
		Int("mappings", len(mappings)).
		Strs("topics", w.table.Topics()).
		Dur("write_timeout", settings.WriteTimeout).
		Msg("Sink writer initialized")

	return w, nil
}

// validateMapping enforces the per-mapping invariants at construction.
func validateMapping(i int, m *models.Mapping) error {
	if m.Topic == "" {
		return &ConfigurationError{Reason: fmt.Sprintf("mapping %d: topic is required", i)}
	}
	if m.IndexPattern == "" {
		return &ConfigurationError{Reason: fmt.Sprintf("mapping %d (topic %q): index is required", i, m.Topic)}
	}
	if m.BatchSize <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("mapping %d (topic %q): batch size must be positive", i, m.Topic)}
	}
	switch m.WriteMode {
	case models.WriteModeInsert, models.WriteModeUpsert:
	case "":
		m.WriteMode = models.WriteModeInsert
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("mapping %d (topic %q): unknown write mode %q", i, m.Topic, m.WriteMode)}
	}
	if m.WriteMode == models.WriteModeUpsert && len(m.PrimaryKeyPaths) == 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("mapping %d (topic %q): upsert requires primary key paths", i, m.Topic)}
	}
	return nil
}

// Write converts an ordered record batch into bulk chunks and dispatches
// them concurrently, blocking until all chunks resolve or the write timeout
// elapses. Configuration errors surface immediately, before any store call;
// store-level failures are routed through the error policy and the returned
// error is its verdict.
func (w *Writer) Write(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		w.logger.Debug().Msg("Empty record batch, nothing to write")
		return nil
	}

	start := time.Now()
	writeID := uuid.New().String()[:8]
	w.stats.AddRecords(len(records))

	byTopic, topics := groupByTopic(records)

	// Resolve every route up front so a missing route rejects the whole
	// write before anything reaches the store.
	routesByTopic := make(map[string][]Route, len(topics))
	for _, topic := range topics {
		routes, err := w.table.RoutesFor(topic)
		if err != nil {
			w.stats.ObserveWrite(time.Since(start), err)
			return err
		}
		routesByTopic[topic] = routes
	}

	var chunks []models.BulkChunk
	operations := 0
	for _, topic := range topics {
		topicRecords := byTopic[topic]
		for _, route := range routesByTopic[topic] {
			routeChunks, err := w.builder.Build(route.Mapping, w.projectors[route.ID], topicRecords)
			if err != nil {
				return w.buildFailed(start, err)
			}
			for _, c := range routeChunks {
				operations += len(c.Operations)
			}
			chunks = append(chunks, routeChunks...)
		}
	}
	w.stats.AddOperations(operations)

	w.logger.Debug().
		Str("write_id", writeID).
		Int("records", len(records)).
		Int("operations", operations).
		Int("chunks", len(chunks)).
		Strs("topics", topics).
		Msg("Dispatching bulk chunks")

	err := w.executor.Flush(ctx, chunks)
	if err == nil {
		if r, ok := w.policy.(budgetResetter); ok {
			r.Reset()
		}
	}

	w.stats.ObserveWrite(time.Since(start), err)

	if err != nil {
		w.logger.Error().Str("write_id", writeID).Err(err).Msg("Write failed")
	}
	return err
}

// buildFailed classifies a batch-construction failure. Configuration errors
// escalate immediately; transform failures take the submission path through
// the error policy.
func (w *Writer) buildFailed(start time.Time, err error) error {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		w.stats.ObserveWrite(time.Since(start), err)
		return err
	}

	verdict := w.policy.Handle(err)
	w.stats.ObserveWrite(time.Since(start), verdict)
	return verdict
}

// Topics returns the sorted set of source topics the writer routes.
func (w *Writer) Topics() []string {
	return w.table.Topics()
}

// Close releases the store client. Idempotent.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.client.Close()
		w.logger.Info().Msg("Sink writer closed")
	})
	return w.closeErr
}

// groupByTopic splits a record batch per topic, preserving both the record
// order within each topic and the first-seen topic order.
func groupByTopic(records []models.Record) (map[string][]models.Record, []string) {
	byTopic := make(map[string][]models.Record)
	var topics []string
	for _, r := range records {
		if _, seen := byTopic[r.Topic]; !seen {
			topics = append(topics, r.Topic)
		}
		byTopic[r.Topic] = append(byTopic[r.Topic], r)
	}
	return byTopic, topics
}
