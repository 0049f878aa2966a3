package elastic

import "fmt"

// bulkResponse is the wire shape of a bulk API response.
type bulkResponse struct {
	Took   int                           `json:"took"`
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items,omitempty"`
}

// bulkResponseItem is one operation's result within a bulk response. The
// enclosing map is keyed by the action name ("index", "update", ...).
type bulkResponseItem struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Result string `json:"result"`
	Status int    `json:"status"`

	Error *bulkItemError `json:"error,omitempty"`
}

// failed reports whether the item was rejected by the store.
func (i bulkResponseItem) failed() bool {
	return i.Status < 200 || i.Status > 299
}

// bulkItemError carries the store's error detail for a failed item.
type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Cause  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"caused_by"`
}

func (e *bulkItemError) String() string {
	if e == nil {
		return "unknown error"
	}
	if e.Cause.Reason != "" {
		return fmt.Sprintf("%s: %s (caused by %s: %s)", e.Type, e.Reason, e.Cause.Type, e.Cause.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}
