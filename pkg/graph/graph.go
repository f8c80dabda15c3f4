package graph

import "fmt"

// Graph is the authoritative store of cognitive events and edges. It
// exclusively owns its nodes, edges, and all six indexes, propagating
// every mutation to them before returning. A Graph is not safe for
// concurrent use by itself; the session façade serializes access with a
// single mutex.
type Graph struct {
	dimension int

	nodes    []*CognitiveEvent // nil entries mark removed ids
	edgeList []Edge

	edgesFrom map[NodeID][]int // node id -> indices into edgeList
	edgesTo   map[NodeID][]int
	edgeSet   map[[3]uint64]struct{}

	typeIndex     *TypeIndex
	sessionIndex  *SessionIndex
	temporalIndex *TemporalIndex
	clusterMap    *ClusterMap
	termIndex     *TermIndex
	docLengths    *DocLengths
}

// New returns an empty graph with the given feature-vector dimension.
// dimension must be positive.
func New(dimension int) (*Graph, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidParams, dimension)
	}
	return &Graph{
		dimension:     dimension,
		edgesFrom:     make(map[NodeID][]int),
		edgesTo:       make(map[NodeID][]int),
		edgeSet:       make(map[[3]uint64]struct{}),
		typeIndex:     NewTypeIndex(),
		sessionIndex:  NewSessionIndex(),
		temporalIndex: NewTemporalIndex(),
		clusterMap:    NewClusterMap(),
		termIndex:     NewTermIndex(),
		docLengths:    NewDocLengths(),
	}, nil
}

// Dimension returns the graph's configured feature-vector length.
func (g *Graph) Dimension() int { return g.dimension }

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() int {
	count := 0
	for _, n := range g.nodes {
		if n != nil {
			count++
		}
	}
	return count
}

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() int { return len(g.edgeList) }

// TypeIndex exposes the type index for read access.
func (g *Graph) TypeIndex() *TypeIndex { return g.typeIndex }

// SessionIndex exposes the session index for read access.
func (g *Graph) SessionIndex() *SessionIndex { return g.sessionIndex }

// TemporalIndex exposes the temporal index for read access.
func (g *Graph) TemporalIndex() *TemporalIndex { return g.temporalIndex }

// ClusterMap exposes the cluster map for read access.
func (g *Graph) ClusterMap() *ClusterMap { return g.clusterMap }

// TermIndex exposes the term index for read access.
func (g *Graph) TermIndex() *TermIndex { return g.termIndex }

// DocLengths exposes the doc-length table for read access.
func (g *Graph) DocLengths() *DocLengths { return g.docLengths }

// AddNode assigns the next dense id to event, stores it, and updates
// every index atomically. event.ID is ignored on input and overwritten.
// A nil FeatureVec is replaced by a zero vector of the graph's
// dimension; a FeatureVec of any other length is rejected with
// ErrDimensionMismatch.
func (g *Graph) AddNode(event *CognitiveEvent) (NodeID, error) {
	if event.FeatureVec == nil {
		event.FeatureVec = make([]float32, g.dimension)
	} else if len(event.FeatureVec) != g.dimension {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, g.dimension, len(event.FeatureVec))
	}
	if event.Confidence < 0 {
		event.Confidence = 0
	} else if event.Confidence > 1 {
		event.Confidence = 1
	}

	id := NodeID(len(g.nodes))
	event.ID = id
	g.nodes = append(g.nodes, event)

	g.typeIndex.AddNode(event)
	g.sessionIndex.AddNode(event)
	g.temporalIndex.AddNode(event)
	g.clusterMap.AddNode(event)
	g.termIndex.AddNode(event)
	g.docLengths.AddNode(event)

	return id, nil
}

// RestoreNode places event at its own id, padding over any tombstoned
// ids below it with nil entries. The sole caller is the codec, which
// must reproduce exact node ids (including gaps left by removed nodes)
// rather than the dense reassignment AddNode performs for new writes.
func (g *Graph) RestoreNode(id NodeID, event *CognitiveEvent) error {
	if event.FeatureVec == nil {
		event.FeatureVec = make([]float32, g.dimension)
	} else if len(event.FeatureVec) != g.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, g.dimension, len(event.FeatureVec))
	}
	for NodeID(len(g.nodes)) <= id {
		g.nodes = append(g.nodes, nil)
	}
	event.ID = id
	g.nodes[id] = event

	g.typeIndex.AddNode(event)
	g.sessionIndex.AddNode(event)
	g.temporalIndex.AddNode(event)
	g.clusterMap.AddNode(event)
	g.termIndex.AddNode(event)
	g.docLengths.AddNode(event)

	return nil
}

// GetNode returns the live node for id, or ErrNodeNotFound.
func (g *Graph) GetNode(id NodeID) (*CognitiveEvent, error) {
	if int(id) >= len(g.nodes) || g.nodes[id] == nil {
		return nil, NodeNotFoundError(id)
	}
	return g.nodes[id], nil
}

// Nodes returns every live node in id order.
func (g *Graph) Nodes() []*CognitiveEvent {
	out := make([]*CognitiveEvent, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// SetEventType reclassifies a live node's event_type, keeping the
// TypeIndex coherent. The only caller is consolidation's
// inference-promotion step.
func (g *Graph) SetEventType(id NodeID, t EventType) error {
	node, err := g.GetNode(id)
	if err != nil {
		return err
	}
	if node.EventType == t {
		return nil
	}
	g.typeIndex.RemoveNode(id, node.EventType)
	node.EventType = t
	g.typeIndex.AddNode(node)
	return nil
}

// Touch increments id's access_count by one. The session façade calls
// this for every node a read operation returns to the caller; decay_score
// itself is left untouched here since it is a maintenance concern.
func (g *Graph) Touch(id NodeID) error {
	node, err := g.GetNode(id)
	if err != nil {
		return err
	}
	node.AccessCount++
	return nil
}

// SetTermIndex replaces the graph's term index wholesale. The sole caller
// is the codec, restoring a serialized index exactly (including its
// possibly-approximate avg_doc_length) rather than recomputing it from
// node content.
func (g *Graph) SetTermIndex(idx *TermIndex) { g.termIndex = idx }

// SetDocLengths replaces the graph's doc-length table wholesale. The
// sole caller is the codec.
func (g *Graph) SetDocLengths(dl *DocLengths) { g.docLengths = dl }

// AddEdge appends a new edge. Both endpoints must already exist;
// duplicate (source, target, type) triples are rejected.
func (g *Graph) AddEdge(e Edge) error {
	if _, err := g.GetNode(e.SourceID); err != nil {
		return err
	}
	if _, err := g.GetNode(e.TargetID); err != nil {
		return err
	}
	key := edgeKey(e)
	if _, exists := g.edgeSet[key]; exists {
		return fmt.Errorf("%w: %d->%d (%s)", ErrDuplicateEdge, e.SourceID, e.TargetID, e.EdgeType.Name())
	}

	idx := len(g.edgeList)
	g.edgeList = append(g.edgeList, e)
	g.edgeSet[key] = struct{}{}
	g.edgesFrom[e.SourceID] = append(g.edgesFrom[e.SourceID], idx)
	g.edgesTo[e.TargetID] = append(g.edgesTo[e.TargetID], idx)
	return nil
}

// HasEdge reports whether the exact (source, target, type) triple
// already exists.
func (g *Graph) HasEdge(source, target NodeID, edgeType EdgeType) bool {
	_, exists := g.edgeSet[edgeKey(Edge{SourceID: source, TargetID: target, EdgeType: edgeType})]
	return exists
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edgeList...)
}

// EdgesFrom returns every edge whose source is id.
func (g *Graph) EdgesFrom(id NodeID) []Edge {
	idxs := g.edgesFrom[id]
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.edgeList[i])
	}
	return out
}

// EdgesTo returns every edge whose target is id.
func (g *Graph) EdgesTo(id NodeID) []Edge {
	idxs := g.edgesTo[id]
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.edgeList[i])
	}
	return out
}

// RemoveNode deletes a node and every edge incident to it, updating all
// indexes. The node's id is never reassigned.
func (g *Graph) RemoveNode(id NodeID) error {
	node, err := g.GetNode(id)
	if err != nil {
		return err
	}

	incident := make(map[int]struct{})
	for _, i := range g.edgesFrom[id] {
		incident[i] = struct{}{}
	}
	for _, i := range g.edgesTo[id] {
		incident[i] = struct{}{}
	}

	if len(incident) > 0 {
		keep := make([]Edge, 0, len(g.edgeList)-len(incident))
		for i, e := range g.edgeList {
			if _, drop := incident[i]; drop {
				delete(g.edgeSet, edgeKey(e))
				continue
			}
			keep = append(keep, e)
		}
		g.edgeList = keep
		g.rebuildAdjacency()
	}

	g.nodes[id] = nil

	g.typeIndex.RemoveNode(id, node.EventType)
	g.sessionIndex.RemoveNode(id, node.SessionID)
	g.temporalIndex.RemoveNode(id)
	g.clusterMap.RemoveNode(id)
	g.termIndex.RemoveNode(id)
	g.docLengths.RemoveNode(id)

	return nil
}

func (g *Graph) rebuildAdjacency() {
	g.edgesFrom = make(map[NodeID][]int)
	g.edgesTo = make(map[NodeID][]int)
	for i, e := range g.edgeList {
		g.edgesFrom[e.SourceID] = append(g.edgesFrom[e.SourceID], i)
		g.edgesTo[e.TargetID] = append(g.edgesTo[e.TargetID], i)
	}
}

// Resolve follows outgoing Supersedes edges from v as far as possible
// and returns the node where the chain ends, the first one with no
// outgoing Supersedes edge. A visited set guards
// against cycles, which are not enforced by the data model.
func (g *Graph) Resolve(v NodeID) (NodeID, error) {
	if _, err := g.GetNode(v); err != nil {
		return 0, err
	}
	visited := map[NodeID]struct{}{v: {}}
	current := v
	for {
		next, found := NodeID(0), false
		for _, e := range g.EdgesFrom(current) {
			if e.EdgeType == EdgeSupersedes {
				next, found = e.TargetID, true
				break
			}
		}
		if !found {
			return current, nil
		}
		if _, seen := visited[next]; seen {
			return current, nil
		}
		visited[next] = struct{}{}
		current = next
	}
}
