package state

import "fmt"

// Snapshot returns s as a tree of primitives, []any and map[string]any,
// suitable for the compact checkpoint encoding. Messages are stored under
// the "messages" key next to the other fields.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.fields)+1)
	for k, v := range s.fields {
		out[k] = canonical(v)
	}
	msgs := make([]any, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = map[string]any{"role": m.Role, "content": m.Content}
	}
	out[FieldMessages] = msgs
	return out
}

// FromSnapshot rebuilds a state from a decoded Snapshot.
func FromSnapshot(v any) (*State, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("state snapshot: unexpected %T", v)
	}
	s := New()
	if err := s.Apply(Update(m)); err != nil {
		return nil, fmt.Errorf("state snapshot: %w", err)
	}
	return s, nil
}

// canonical converts the typed values stages write into their generic form.
// Unknown types are returned unchanged.
func canonical(v any) any {
	switch val := v.(type) {
	case []Document:
		out := make([]any, len(val))
		for i, d := range val {
			out[i] = d.toMap()
		}
		return out
	case Document:
		return val.toMap()
	case []Message:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = map[string]any{"role": m.Role, "content": m.Content}
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, str := range val {
			out[i] = str
		}
		return out
	case []float32:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = float64(f)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, str := range val {
			out[k] = str
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonical(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = canonical(item)
		}
		return out
	}
	return v
}
