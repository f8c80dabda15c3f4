package graph

// SessionIndex maps a session id to the ordered sequence of node ids
// created within it.
type SessionIndex struct {
	bySession map[uint32][]NodeID
}

// NewSessionIndex returns an empty SessionIndex.
func NewSessionIndex() *SessionIndex {
	return &SessionIndex{bySession: make(map[uint32][]NodeID)}
}

// BuildSessionIndex builds a SessionIndex from every node in nodes.
func BuildSessionIndex(nodes []*CognitiveEvent) *SessionIndex {
	idx := NewSessionIndex()
	for _, n := range nodes {
		idx.bySession[n.SessionID] = append(idx.bySession[n.SessionID], n.ID)
	}
	return idx
}

// AddNode records a newly added node.
func (idx *SessionIndex) AddNode(event *CognitiveEvent) {
	idx.bySession[event.SessionID] = append(idx.bySession[event.SessionID], event.ID)
}

// RemoveNode removes id from its session bucket.
func (idx *SessionIndex) RemoveNode(id NodeID, sessionID uint32) {
	bucket := idx.bySession[sessionID]
	for i, v := range bucket {
		if v == id {
			idx.bySession[sessionID] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Clear empties the index.
func (idx *SessionIndex) Clear() {
	idx.bySession = make(map[uint32][]NodeID)
}

// Rebuild replaces the index contents from scratch.
func (idx *SessionIndex) Rebuild(nodes []*CognitiveEvent) {
	*idx = *BuildSessionIndex(nodes)
}

// Nodes returns the node ids belonging to sessionID.
func (idx *SessionIndex) Nodes(sessionID uint32) []NodeID {
	return idx.bySession[sessionID]
}

// SessionIDs returns every known session id, unordered.
func (idx *SessionIndex) SessionIDs() []uint32 {
	out := make([]uint32, 0, len(idx.bySession))
	for s := range idx.bySession {
		out = append(out, s)
	}
	return out
}
