package sink

import (
	"strings"

	"github.com/devcode-git/stream-reactor/pkg/models"
)

// flattenSeparator joins nested field names when a mapping does not retain
// structure. Underscore rather than dot so the store does not re-expand the
// flattened names into objects.
const flattenSeparator = "_"

// Projector converts a record value into the document body for one mapping,
// and extracts the mapping's primary-key component values.
//
// Selection, ignoring and flattening follow the mapping:
//   - a non-empty field selection restricts the output to exactly those
//     fields, renamed through their alias; an ignored field always wins over
//     a selection of the same field
//   - an empty selection emits every field except the ignored ones
//   - without RetainStructure, nested objects are flattened into the top
//     level with underscore-joined names
type Projector struct {
	mapping *models.Mapping
	ignored map[string]struct{}
}

// NewProjector creates a projector for one mapping.
func NewProjector(mapping *models.Mapping) *Projector {
	ignored := make(map[string]struct{}, len(mapping.IgnoredFields))
	for _, name := range mapping.IgnoredFields {
		ignored[name] = struct{}{}
	}
	return &Projector{mapping: mapping, ignored: ignored}
}

// Project builds the output document for a record value.
func (p *Projector) Project(value map[string]interface{}) (models.ProjectedDocument, error) {
	if value == nil {
		return nil, &TransformError{Reason: "record value is not a structured object"}
	}

	if len(p.mapping.Fields) > 0 {
		return p.projectSelected(value)
	}
	return p.projectAll(value)
}

// projectSelected emits exactly the selected fields, minus ignored ones.
func (p *Projector) projectSelected(value map[string]interface{}) (models.ProjectedDocument, error) {
	doc := make(models.ProjectedDocument, len(p.mapping.Fields))

	for _, field := range p.mapping.Fields {
		if _, skip := p.ignored[field.Name]; skip {
			continue
		}

		resolved, found, err := resolvePath(value, strings.Split(field.Name, "."))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		name := field.OutputName()
		if nested, ok := resolved.(map[string]interface{}); ok && !p.mapping.RetainStructure {
			flattenInto(doc, name, nested)
			continue
		}
		doc[name] = resolved
	}

	return doc, nil
}

// projectAll emits every field except the ignored ones.
func (p *Projector) projectAll(value map[string]interface{}) (models.ProjectedDocument, error) {
	doc := make(models.ProjectedDocument, len(value))

	for name, v := range value {
		if _, skip := p.ignored[name]; skip {
			continue
		}

		nested, ok := v.(map[string]interface{})
		if !ok {
			doc[name] = v
			continue
		}

		if p.mapping.RetainStructure {
			doc[name] = p.copyNested(name, nested)
		} else {
			p.flattenIgnoring(doc, name, nested)
		}
	}

	return doc, nil
}

// copyNested copies a subtree, dropping descendants whose dotted source path
// is ignored.
func (p *Projector) copyNested(path string, value map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(value))
	for name, v := range value {
		childPath := path + "." + name
		if _, skip := p.ignored[childPath]; skip {
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[name] = p.copyNested(childPath, nested)
		} else {
			out[name] = v
		}
	}
	return out
}

// flattenIgnoring flattens a subtree into doc, honoring dotted ignore paths.
func (p *Projector) flattenIgnoring(doc models.ProjectedDocument, path string, value map[string]interface{}) {
	for name, v := range value {
		childPath := path + "." + name
		if _, skip := p.ignored[childPath]; skip {
			continue
		}
		flatName := strings.ReplaceAll(childPath, ".", flattenSeparator)
		if nested, ok := v.(map[string]interface{}); ok {
			p.flattenIgnoring(doc, childPath, nested)
		} else {
			doc[flatName] = v
		}
	}
}

// flattenInto flattens a nested object under the given output prefix without
// consulting ignore paths; used for selected fields, where the selection has
// already been resolved.
func flattenInto(doc models.ProjectedDocument, prefix string, value map[string]interface{}) {
	for name, v := range value {
		flatName := prefix + flattenSeparator + name
		if nested, ok := v.(map[string]interface{}); ok {
			flattenInto(doc, flatName, nested)
		} else {
			doc[flatName] = v
		}
	}
}

// PrimaryKeyValues walks the mapping's key paths in order and collects each
// resolved leaf value. A path that does not resolve contributes nothing; an
// empty result means no path resolved (or none is configured).
func (p *Projector) PrimaryKeyValues(value map[string]interface{}) []interface{} {
	if len(p.mapping.PrimaryKeyPaths) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(p.mapping.PrimaryKeyPaths))
	for _, path := range p.mapping.PrimaryKeyPaths {
		v, found, err := resolvePath(value, path)
		if err != nil || !found {
			continue
		}
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			// Key components must be scalar.
			continue
		}
		values = append(values, v)
	}
	return values
}

// resolvePath walks a field path from the value root into nested containers.
// Missing fields report found=false; traversing through a non-container is a
// TransformError.
func resolvePath(value map[string]interface{}, path []string) (interface{}, bool, error) {
	var current interface{} = value
	for i, segment := range path {
		container, ok := current.(map[string]interface{})
		if !ok {
			return nil, false, &TransformError{
				Field:  strings.Join(path[:i], "."),
				Reason: "value is not a nested object",
			}
		}
		next, exists := container[segment]
		if !exists {
			return nil, false, nil
		}
		current = next
	}
	return current, true, nil
}
