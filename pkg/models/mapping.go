package models

// WriteMode selects how documents are written to the store.
type WriteMode string

const (
	// WriteModeInsert indexes every record as a new document. Records without
	// a primary key get a synthesized topic/partition/offset id.
	WriteModeInsert WriteMode = "insert"

	// WriteModeUpsert updates-or-creates by primary key. Records that resolve
	// to an empty key are rejected before any store call.
	WriteModeUpsert WriteMode = "upsert"
)

// Field describes one selected field of a record value. Alias renames the
// field in the output document; empty Alias keeps the source name.
type Field struct {
	Name  string `mapstructure:"name" json:"name"`
	Alias string `mapstructure:"alias" json:"alias,omitempty"`
}

// OutputName returns the name the field carries in the projected document.
func (f Field) OutputName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Mapping describes one route from a source topic to a target index.
// A topic may carry several mappings; each inbound record then produces one
// operation per mapping. The mapping set is fixed for the writer's lifetime.
type Mapping struct {
	Topic string `mapstructure:"topic" json:"topic"`

	// IndexPattern is the target index name. Segments wrapped in braces are
	// Go time layouts rendered against the record clock, e.g. "logs-{2006.01.02}".
	IndexPattern string `mapstructure:"index" json:"index"`

	WriteMode WriteMode `mapstructure:"write_mode" json:"write_mode"`
	BatchSize int       `mapstructure:"batch_size" json:"batch_size"`

	// Fields restricts the output document to exactly these fields. Empty
	// means all fields except IgnoredFields.
	Fields        []Field  `mapstructure:"fields" json:"fields,omitempty"`
	IgnoredFields []string `mapstructure:"ignored_fields" json:"ignored_fields,omitempty"`

	// PrimaryKeyPaths are ordered paths from the value root into nested
	// containers; the resolved leaf values joined together form the document id.
	PrimaryKeyPaths [][]string `mapstructure:"primary_key_paths" json:"primary_key_paths,omitempty"`

	// RetainStructure keeps nested values as nested objects; when false they
	// are flattened into the top level with underscore-joined names.
	RetainStructure bool `mapstructure:"retain_structure" json:"retain_structure"`

	// DocumentType overrides the document type; empty falls back to the
	// resolved index name.
	DocumentType string `mapstructure:"document_type" json:"document_type,omitempty"`

	// Pipeline names an ingest pipeline applied on insert.
	Pipeline string `mapstructure:"pipeline" json:"pipeline,omitempty"`

	// AutoCreate creates the target index at writer construction.
	AutoCreate bool `mapstructure:"auto_create" json:"auto_create"`

	// TimestampField, when set, names the document field the index-name clock
	// is parsed from. Empty means wall clock at dispatch.
	TimestampField  string `mapstructure:"timestamp_field" json:"timestamp_field,omitempty"`
	TimestampFormat string `mapstructure:"timestamp_format" json:"timestamp_format,omitempty"`
}
