package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devcode-git/stream-reactor/internal/sink"
	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
)

// Config holds the Elasticsearch connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

// Client implements the sink's store collaborator against Elasticsearch.
// It collapses the transport's response shape into the sink's canonical
// outcome, so the writer never branches on transport types. Safe for
// concurrent use by multiple in-flight bulk submissions.
type Client struct {
	es        *elasticsearch.Client
	transport *http.Transport
	logger    zerolog.Logger
}

var _ sink.Client = (*Client)(nil)

// NewClient connects to the configured cluster and verifies it responds.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{
		es:        es,
		transport: transport,
		logger:    logger.With().Str("component", "elastic-client").Logger(),
	}, nil
}

// Ping verifies the cluster is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping elasticsearch: %s", res.Status())
	}
	return nil
}

// CreateIndex creates the mapping's target index, resolved against the
// current wall clock. An index that already exists is not an error.
func (c *Client) CreateIndex(ctx context.Context, mapping *models.Mapping) error {
	name := sink.ResolveIndexName(mapping.IndexPattern, time.Now())

	req := esapi.IndicesCreateRequest{Index: name}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("create index %q: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			c.logger.Debug().Str("index", name).Msg("Index already exists")
			return nil
		}
		return fmt.Errorf("create index %q: %s: %s", name, res.Status(), string(body))
	}

	c.logger.Info().Str("index", name).Msg("Created index")
	return nil
}

// Execute submits one chunk as a single ordered bulk request and returns the
// canonical outcome. A transport or request-level error is a submission
// failure; item failures come back as outcome data.
func (c *Client) Execute(ctx context.Context, chunk models.BulkChunk) (models.BulkOutcome, error) {
	body, err := encodeBulkBody(chunk)
	if err != nil {
		return models.BulkOutcome{}, err
	}

	req := esapi.BulkRequest{Body: body}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return models.BulkOutcome{}, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return models.BulkOutcome{}, fmt.Errorf("bulk request rejected: %s: %s", res.Status(), string(raw))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return models.BulkOutcome{}, fmt.Errorf("decode bulk response: %w", err)
	}

	return canonicalOutcome(chunk, parsed), nil
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// encodeBulkBody renders a chunk as an NDJSON bulk body, preserving the
// chunk's operation order.
func encodeBulkBody(chunk models.BulkChunk) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, op := range chunk.Operations {
		switch op.Kind {
		case models.OperationUpsert:
			action := map[string]interface{}{
				"update": map[string]interface{}{
					"_index":            op.Index,
					"_id":               op.ID,
					"retry_on_conflict": op.RetryOnConflict,
				},
			}
			if err := enc.Encode(action); err != nil {
				return nil, fmt.Errorf("encode bulk action: %w", err)
			}
			payload := map[string]interface{}{
				"doc":           op.Body,
				"doc_as_upsert": true,
			}
			if err := enc.Encode(payload); err != nil {
				return nil, fmt.Errorf("encode bulk document: %w", err)
			}

		default:
			meta := map[string]interface{}{
				"_index": op.Index,
				"_id":    op.ID,
			}
			if op.Pipeline != "" {
				meta["pipeline"] = op.Pipeline
			}
			if err := enc.Encode(map[string]interface{}{"index": meta}); err != nil {
				return nil, fmt.Errorf("encode bulk action: %w", err)
			}
			if err := enc.Encode(op.Body); err != nil {
				return nil, fmt.Errorf("encode bulk document: %w", err)
			}
		}
	}

	return &buf, nil
}

// canonicalOutcome maps the wire response onto the canonical outcome shape.
// Bulk responses return items in request order, so failed items are aligned
// with the submitted operations to recover the resolved document type.
func canonicalOutcome(chunk models.BulkChunk, parsed bulkResponse) models.BulkOutcome {
	if !parsed.Errors {
		return models.BulkOutcome{}
	}

	var outcome models.BulkOutcome
	for i, entry := range parsed.Items {
		for _, item := range entry {
			if !item.failed() {
				continue
			}

			failure := models.ItemFailure{
				Index: item.Index,
				ID:    item.ID,
				Error: item.Error.String(),
			}
			if i < len(chunk.Operations) {
				op := chunk.Operations[i]
				failure.Type = op.DocumentType
				if failure.Index == "" {
					failure.Index = op.Index
				}
				if failure.ID == "" {
					failure.ID = op.ID
				}
			}
			outcome.Failures = append(outcome.Failures, failure)
		}
	}
	return outcome
}
