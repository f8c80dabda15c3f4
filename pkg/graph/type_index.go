package graph

// TypeIndex maps an event type to the ordered sequence of node ids
// carrying that type, in insertion order.
type TypeIndex struct {
	byType map[EventType][]NodeID
}

// NewTypeIndex returns an empty TypeIndex.
func NewTypeIndex() *TypeIndex {
	return &TypeIndex{byType: make(map[EventType][]NodeID)}
}

// BuildTypeIndex builds a TypeIndex from every node in nodes.
func BuildTypeIndex(nodes []*CognitiveEvent) *TypeIndex {
	idx := NewTypeIndex()
	for _, n := range nodes {
		idx.byType[n.EventType] = append(idx.byType[n.EventType], n.ID)
	}
	return idx
}

// AddNode records a newly added node.
func (idx *TypeIndex) AddNode(event *CognitiveEvent) {
	idx.byType[event.EventType] = append(idx.byType[event.EventType], event.ID)
}

// RemoveNode removes id from whichever type bucket holds it.
func (idx *TypeIndex) RemoveNode(id NodeID, eventType EventType) {
	bucket := idx.byType[eventType]
	for i, v := range bucket {
		if v == id {
			idx.byType[eventType] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Clear empties the index.
func (idx *TypeIndex) Clear() {
	idx.byType = make(map[EventType][]NodeID)
}

// Rebuild replaces the index contents from scratch.
func (idx *TypeIndex) Rebuild(nodes []*CognitiveEvent) {
	*idx = *BuildTypeIndex(nodes)
}

// Filter returns the node ids whose type is in types. An empty types
// selects every indexed node.
func (idx *TypeIndex) Filter(types []EventType) []NodeID {
	if len(types) == 0 {
		var all []NodeID
		for _, bucket := range idx.byType {
			all = append(all, bucket...)
		}
		return all
	}
	var out []NodeID
	for _, t := range types {
		out = append(out, idx.byType[t]...)
	}
	return out
}

// Contains reports whether id is indexed under type t.
func (idx *TypeIndex) Contains(t EventType, id NodeID) bool {
	for _, v := range idx.byType[t] {
		if v == id {
			return true
		}
	}
	return false
}
