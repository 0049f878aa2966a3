package elastic

import (
	"bufio"
	"encoding/json"
	"testing"

	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeLines splits an NDJSON bulk body into decoded JSON documents.
func decodeLines(t *testing.T, chunk models.BulkChunk) []map[string]interface{} {
	t.Helper()
	body, err := encodeBulkBody(chunk)
	require.NoError(t, err)

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &doc))
		lines = append(lines, doc)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestEncodeBulkBody_Insert(t *testing.T) {
	chunk := models.BulkChunk{Operations: []models.Operation{{
		Kind:  models.OperationInsert,
		Index: "orders-2024.06.01",
		ID:    "orders-0-42",
		Body:  models.ProjectedDocument{"amount": 12.5},
	}}}

	lines := decodeLines(t, chunk)
	require.Len(t, lines, 2)

	meta, ok := lines[0]["index"].(map[string]interface{})
	require.True(t, ok, "first line must be an index action")
	assert.Equal(t, "orders-2024.06.01", meta["_index"])
	assert.Equal(t, "orders-0-42", meta["_id"])
	assert.NotContains(t, meta, "pipeline")

	assert.Equal(t, map[string]interface{}{"amount": 12.5}, lines[1])
}

func TestEncodeBulkBody_InsertWithPipeline(t *testing.T) {
	chunk := models.BulkChunk{Operations: []models.Operation{{
		Kind:     models.OperationInsert,
		Index:    "orders",
		ID:       "a",
		Pipeline: "enrich-orders",
		Body:     models.ProjectedDocument{"n": float64(1)},
	}}}

	lines := decodeLines(t, chunk)
	require.Len(t, lines, 2)

	meta := lines[0]["index"].(map[string]interface{})
	assert.Equal(t, "enrich-orders", meta["pipeline"])
}

func TestEncodeBulkBody_Upsert(t *testing.T) {
	chunk := models.BulkChunk{Operations: []models.Operation{{
		Kind:            models.OperationUpsert,
		Index:           "customers",
		ID:              "eu-17",
		RetryOnConflict: 3,
		Body:            models.ProjectedDocument{"name": "ada"},
	}}}

	lines := decodeLines(t, chunk)
	require.Len(t, lines, 2)

	meta, ok := lines[0]["update"].(map[string]interface{})
	require.True(t, ok, "first line must be an update action")
	assert.Equal(t, "customers", meta["_index"])
	assert.Equal(t, "eu-17", meta["_id"])
	assert.Equal(t, float64(3), meta["retry_on_conflict"])

	assert.Equal(t, map[string]interface{}{"name": "ada"}, lines[1]["doc"])
	assert.Equal(t, true, lines[1]["doc_as_upsert"])
}

func TestEncodeBulkBody_PreservesOperationOrder(t *testing.T) {
	chunk := models.BulkChunk{Operations: []models.Operation{
		{Kind: models.OperationInsert, Index: "a", ID: "1", Body: models.ProjectedDocument{}},
		{Kind: models.OperationUpsert, Index: "b", ID: "2", Body: models.ProjectedDocument{}},
		{Kind: models.OperationInsert, Index: "c", ID: "3", Body: models.ProjectedDocument{}},
	}}

	lines := decodeLines(t, chunk)
	require.Len(t, lines, 6)

	assert.Contains(t, lines[0], "index")
	assert.Contains(t, lines[2], "update")
	assert.Contains(t, lines[4], "index")
}

func TestCanonicalOutcome_CleanResponse(t *testing.T) {
	outcome := canonicalOutcome(models.BulkChunk{}, bulkResponse{Errors: false})
	assert.Empty(t, outcome.Failures)
}

func TestCanonicalOutcome_AlignsFailuresWithOperations(t *testing.T) {
	chunk := models.BulkChunk{Operations: []models.Operation{
		{Kind: models.OperationInsert, Index: "orders", DocumentType: "orders", ID: "a"},
		{Kind: models.OperationInsert, Index: "orders", DocumentType: "orders", ID: "b"},
	}}

	parsed := bulkResponse{
		Errors: true,
		Items: []map[string]bulkResponseItem{
			{"index": {Index: "orders", ID: "a", Status: 201}},
			{"index": {
				Index:  "orders",
				ID:     "b",
				Status: 400,
				Error: &bulkItemError{
					Type:   "mapper_parsing_exception",
					Reason: "failed to parse field",
				},
			}},
		},
	}

	outcome := canonicalOutcome(chunk, parsed)
	require.Len(t, outcome.Failures, 1)

	failure := outcome.Failures[0]
	assert.Equal(t, "orders", failure.Index)
	assert.Equal(t, "orders", failure.Type)
	assert.Equal(t, "b", failure.ID)
	assert.Contains(t, failure.Error, "mapper_parsing_exception")
	assert.Contains(t, failure.Error, "failed to parse field")
}

func TestCanonicalOutcome_FillsIdentityFromOperation(t *testing.T) {
	chunk := models.BulkChunk{Operations: []models.Operation{
		{Kind: models.OperationInsert, Index: "orders", DocumentType: "orders", ID: "x"},
	}}

	// Some rejections omit _index and _id on the item.
	parsed := bulkResponse{
		Errors: true,
		Items: []map[string]bulkResponseItem{
			{"index": {Status: 429}},
		},
	}

	outcome := canonicalOutcome(chunk, parsed)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "orders", outcome.Failures[0].Index)
	assert.Equal(t, "x", outcome.Failures[0].ID)
	assert.Equal(t, "unknown error", outcome.Failures[0].Error)
}

func TestBulkItemError_String(t *testing.T) {
	err := &bulkItemError{Type: "illegal_argument_exception", Reason: "bad field"}
	assert.Equal(t, "illegal_argument_exception: bad field", err.String())

	err.Cause.Type = "number_format_exception"
	err.Cause.Reason = "not a number"
	assert.Equal(t,
		"illegal_argument_exception: bad field (caused by number_format_exception: not a number)",
		err.String())
}
