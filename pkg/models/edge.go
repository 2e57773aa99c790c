package models

import "time"

// PropDstEntityType is the property key every edge must carry, a string of
// form "[table:]category[/subcategory]" describing the destination.
const PropDstEntityType = "dst_entity_type"

// InlineEdge is a directed graph edge embedded in a source row's graph_paths
// list. Edges on one entity are unique on (dst, rel_type); on duplicate
// insert the edge with the higher weight wins.
type InlineEdge struct {
	// Dst is the human-readable key of the target entity.
	Dst string `json:"dst"`

	// RelType is a lowercase relationship identifier.
	RelType string `json:"rel_type"`

	// Weight is the edge strength in [0.0, 1.0].
	Weight float64 `json:"weight"`

	// Properties carries edge metadata, including dst_entity_type.
	Properties map[string]any `json:"properties,omitempty"`

	// CreatedAt is when the edge was first asserted.
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DstEntityType returns the destination type tag, or "" when absent.
func (e InlineEdge) DstEntityType() string {
	if e.Properties == nil {
		return ""
	}
	s, _ := e.Properties[PropDstEntityType].(string)
	return s
}

// Valid reports whether the edge satisfies its invariants.
func (e InlineEdge) Valid() bool {
	return e.Dst != "" && e.RelType != "" && e.Weight >= 0.0 && e.Weight <= 1.0
}

// MergeEdges merges incoming edges into existing ones, deduplicating on
// (dst, rel_type). When both sides carry the same edge the higher weight
// wins; relative order of first appearance is preserved.
func MergeEdges(existing, incoming []InlineEdge) []InlineEdge {
	type edgeKey struct{ dst, rel string }

	merged := make([]InlineEdge, 0, len(existing)+len(incoming))
	index := make(map[edgeKey]int, len(existing)+len(incoming))

	add := func(e InlineEdge) {
		k := edgeKey{e.Dst, e.RelType}
		if i, ok := index[k]; ok {
			if e.Weight > merged[i].Weight {
				merged[i] = e
			}
			return
		}
		index[k] = len(merged)
		merged = append(merged, e)
	}

	for _, e := range existing {
		add(e)
	}
	for _, e := range incoming {
		add(e)
	}

	return merged
}
