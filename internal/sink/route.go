package sink

import (
	"sort"

	"github.com/devcode-git/stream-reactor/pkg/models"
)

// Route binds a mapping to its stable identifier: the mapping's position in
// the configured list. Per-route state is keyed by ID, never by pointer
// identity, so structurally duplicated mappings stay distinct.
type Route struct {
	ID      int
	Mapping *models.Mapping
}

// RouteTable maps a source topic to its ordered list of routes. Built once
// at writer construction and read-only thereafter.
type RouteTable struct {
	routes map[string][]Route
	topics []string
}

// NewRouteTable builds a route table from the configured mappings, preserving
// the configured order per topic.
func NewRouteTable(mappings []*models.Mapping) *RouteTable {
	routes := make(map[string][]Route)
	for i, m := range mappings {
		routes[m.Topic] = append(routes[m.Topic], Route{ID: i, Mapping: m})
	}

	topics := make([]string, 0, len(routes))
	for topic := range routes {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	return &RouteTable{routes: routes, topics: topics}
}

// RoutesFor returns the routes configured for a topic. A topic with no
// route is a fatal misconfiguration: the error names the topic and every
// configured topic.
func (t *RouteTable) RoutesFor(topic string) ([]Route, error) {
	routes, ok := t.routes[topic]
	if !ok {
		return nil, newMissingRouteError(topic, t.topics)
	}
	return routes, nil
}

// Topics returns the sorted set of configured source topics.
func (t *RouteTable) Topics() []string {
	return t.topics
}
