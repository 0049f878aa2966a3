package sink

import (
	"strings"
	"time"
)

// disallowedIndexChars are characters Elasticsearch rejects in index names.
const disallowedIndexChars = `\/*?"<>| ,#:`

// ResolveIndexName renders an index-name pattern against an instant.
// Pattern segments wrapped in braces are Go time layouts, e.g.
// "logs-{2006.01.02}" becomes "logs-2024.06.01". The result is normalized to
// the store's index-naming constraints: lowercase, disallowed characters
// stripped. Pure and deterministic for a given (pattern, instant) pair.
func ResolveIndexName(pattern string, instant time.Time) string {
	var b strings.Builder
	b.Grow(len(pattern))

	rest := pattern
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		b.WriteString(instant.Format(rest[open+1 : open+end]))
		rest = rest[open+end+1:]
	}

	return normalizeIndexName(b.String())
}

// normalizeIndexName lowercases a candidate index name and strips characters
// the store disallows.
func normalizeIndexName(name string) string {
	name = strings.ToLower(name)
	if !strings.ContainsAny(name, disallowedIndexChars) {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 128 && strings.ContainsRune(disallowedIndexChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
