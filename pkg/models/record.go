package models

import "time"

// Record represents a single inbound event as delivered from a source topic.
// This is the internal format used throughout the sink.
type Record struct {
	Topic     string                 `json:"topic"`
	Partition int32                  `json:"partition"`
	Offset    int64                  `json:"offset"`
	Key       []byte                 `json:"key,omitempty"`
	Value     map[string]interface{} `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
}

// ProjectedDocument is the document body derived from a Record's value after
// field selection, renaming, ignoring and optional flattening.
type ProjectedDocument map[string]interface{}
