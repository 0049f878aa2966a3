package models

// OperationKind discriminates the bulk operation variants.
type OperationKind string

const (
	OperationInsert OperationKind = "insert"
	OperationUpsert OperationKind = "upsert"
)

// Operation is one fully resolved indexing operation against the store.
type Operation struct {
	Kind         OperationKind
	Index        string
	DocumentType string
	ID           string

	// Pipeline is only set for insert operations.
	Pipeline string

	// RetryOnConflict is the store-side retry budget for concurrent-write
	// conflicts; only meaningful for upserts.
	RetryOnConflict int

	Body ProjectedDocument
}

// BulkChunk is an ordered slice of operations submitted as one bulk request.
// The store applies operations within a chunk in order; no ordering holds
// between chunks.
type BulkChunk struct {
	Operations []Operation
}

// ItemFailure describes one operation the store accepted but failed to apply.
// This is the canonical shape regardless of the transport's response format.
type ItemFailure struct {
	Index string
	Type  string
	ID    string
	Error string
}

// BulkOutcome is the canonical result of a successfully submitted chunk.
// An empty Failures slice means every item was applied.
type BulkOutcome struct {
	Failures []ItemFailure
}
