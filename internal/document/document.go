// Package document defines the unit of data shared by the store, the index
// and the replication protocol.
package document

import (
	"maps"
	"slices"
	"strings"
)

// Document is a set of named text fields plus optional per-field weights.
// The store owns documents; the index only keeps postings derived from them.
type Document struct {
	ID      string             `json:"id"`
	Fields  map[string]string  `json:"fields"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Weight returns the boost configured for field, defaulting to 1.
func (d Document) Weight(field string) float64 {
	if w, ok := d.Weights[field]; ok && w > 0 {
		return w
	}
	return 1
}

// FieldNames returns the document's field names in sorted order.
func (d Document) FieldNames() []string {
	return slices.Sorted(maps.Keys(d.Fields))
}

func (d Document) Clone() Document {
	return Document{
		ID:      d.ID,
		Fields:  maps.Clone(d.Fields),
		Weights: maps.Clone(d.Weights),
	}
}

// Merge overlays the non-blank fields and positive weights of patch onto a
// copy of d. Blank values keep the stored text.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]string, len(patch.Fields))
	}
	for name, text := range patch.Fields {
		if strings.TrimSpace(text) == "" {
			continue
		}
		out.Fields[name] = text
	}
	for name, w := range patch.Weights {
		if w <= 0 {
			continue
		}
		if out.Weights == nil {
			out.Weights = make(map[string]float64, len(patch.Weights))
		}
		out.Weights[name] = w
	}
	return out
}
