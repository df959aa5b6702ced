package resource

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Patch is a partial update. Keys are JSON field names; a nil value clears the field.
type Patch map[string]any

// immutableFields are owned by the backend and never patched.
var immutableFields = []string{FieldID, FieldCreatedAt}

// Sanitized returns a copy of p without backend-owned fields.
func (p Patch) Sanitized() Patch {
	out := maps.Clone(p)
	if out == nil {
		return Patch{}
	}
	for _, f := range immutableFields {
		delete(out, f)
	}
	return out
}

// PatchOf builds a Patch from any JSON-encodable value.
func PatchOf(v any) (Patch, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var p Patch
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("patch must be a JSON object: %w", err)
	}
	return p, nil
}

// MergePatch applies patch to doc with JSON merge-patch semantics:
// nested objects merge, null removes a key, everything else replaces.
// POST: doc is modified in place and returned
func MergePatch(doc, patch map[string]any) map[string]any {
	if doc == nil {
		doc = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			existing, _ := doc[k].(map[string]any)
			doc[k] = MergePatch(existing, sub)
			continue
		}
		doc[k] = v
	}
	return doc
}

// ApplyPatch returns rec with p merged in. id and createdAt are preserved.
func ApplyPatch[T any](rec T, p Patch) (T, error) {
	var zero T
	doc, err := toDoc(rec)
	if err != nil {
		return zero, err
	}
	merged := MergePatch(doc, p.Sanitized())
	b, err := json.Marshal(merged)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, err
	}
	return out, nil
}

func toDoc(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
