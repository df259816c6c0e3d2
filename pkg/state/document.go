package state

// Document is a vector store hit.
// Distance is the store's ordering score; smaller is closer.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float64
}

// Source returns the citation label for the document: its "source"
// metadata entry if present, otherwise its id.
func (d Document) Source() string {
	if src, ok := d.Metadata["source"].(string); ok && src != "" {
		return src
	}
	return d.ID
}

func (d Document) toMap() map[string]any {
	m := map[string]any{
		"id":       d.ID,
		"content":  d.Content,
		"distance": d.Distance,
	}
	if d.Metadata != nil {
		m["metadata"] = canonical(d.Metadata)
	}
	return m
}

func documentFromMap(m map[string]any) Document {
	d := Document{}
	d.ID, _ = m["id"].(string)
	d.Content, _ = m["content"].(string)
	d.Metadata, _ = m["metadata"].(map[string]any)
	switch dist := m["distance"].(type) {
	case float64:
		d.Distance = dist
	case int64:
		d.Distance = float64(dist)
	}
	return d
}
