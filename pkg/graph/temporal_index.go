package graph

import "sort"

// temporalEntry is a single (created_at, node_id) pair.
type temporalEntry struct {
	createdAt uint64
	nodeID    NodeID
}

// TemporalIndex keeps node ids sorted by creation time for range and
// most-recent-k queries.
type TemporalIndex struct {
	entries []temporalEntry
}

// NewTemporalIndex returns an empty TemporalIndex.
func NewTemporalIndex() *TemporalIndex {
	return &TemporalIndex{}
}

// BuildTemporalIndex builds a TemporalIndex from every node in nodes.
func BuildTemporalIndex(nodes []*CognitiveEvent) *TemporalIndex {
	idx := NewTemporalIndex()
	for _, n := range nodes {
		idx.entries = append(idx.entries, temporalEntry{n.CreatedAt, n.ID})
	}
	idx.sort()
	return idx
}

func (idx *TemporalIndex) sort() {
	sort.Slice(idx.entries, func(i, j int) bool {
		if idx.entries[i].createdAt != idx.entries[j].createdAt {
			return idx.entries[i].createdAt < idx.entries[j].createdAt
		}
		return idx.entries[i].nodeID < idx.entries[j].nodeID
	})
}

// AddNode inserts a newly added node in sorted position.
func (idx *TemporalIndex) AddNode(event *CognitiveEvent) {
	entry := temporalEntry{event.CreatedAt, event.ID}
	pos := sort.Search(len(idx.entries), func(i int) bool {
		if idx.entries[i].createdAt != entry.createdAt {
			return idx.entries[i].createdAt >= entry.createdAt
		}
		return idx.entries[i].nodeID >= entry.nodeID
	})
	idx.entries = append(idx.entries, temporalEntry{})
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = entry
}

// RemoveNode removes id from the index.
func (idx *TemporalIndex) RemoveNode(id NodeID) {
	for i, e := range idx.entries {
		if e.nodeID == id {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			return
		}
	}
}

// Clear empties the index.
func (idx *TemporalIndex) Clear() {
	idx.entries = nil
}

// Rebuild replaces the index contents from scratch.
func (idx *TemporalIndex) Rebuild(nodes []*CognitiveEvent) {
	*idx = *BuildTemporalIndex(nodes)
}

// Range returns every node id whose created_at lies in [start, end].
func (idx *TemporalIndex) Range(start, end uint64) []NodeID {
	var out []NodeID
	for _, e := range idx.entries {
		if e.createdAt >= start && e.createdAt <= end {
			out = append(out, e.nodeID)
		}
	}
	return out
}

// MostRecent returns up to k node ids with the largest created_at,
// most recent first.
func (idx *TemporalIndex) MostRecent(k int) []NodeID {
	n := len(idx.entries)
	if k > n {
		k = n
	}
	out := make([]NodeID, k)
	for i := 0; i < k; i++ {
		out[i] = idx.entries[n-1-i].nodeID
	}
	return out
}
