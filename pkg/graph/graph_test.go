package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustGraph(t *testing.T, dim int) *Graph {
	t.Helper()
	g, err := New(dim)
	require.NoError(t, err)
	return g
}

func TestNewRejectsNonPositiveDimension(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestAddNodeAssignsDenseIDs(t *testing.T) {
	g := mustGraph(t, 4)
	for i := 0; i < 5; i++ {
		id, err := g.AddNode(&CognitiveEvent{EventType: EventFact, Content: "x"})
		require.NoError(t, err)
		require.EqualValues(t, i, id)
	}
	require.Equal(t, 5, g.NodeCount())
}

func TestAddNodeRejectsWrongDimension(t *testing.T) {
	g := mustGraph(t, 4)
	_, err := g.AddNode(&CognitiveEvent{EventType: EventFact, FeatureVec: make([]float32, 2)})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAddEdgeRejectsMissingNodesAndDuplicates(t *testing.T) {
	g := mustGraph(t, 4)
	a, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	b, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})

	_, err := g.GetNode(999)
	require.ErrorIs(t, err, ErrNodeNotFound)

	err = g.AddEdge(Edge{SourceID: a, TargetID: 999, EdgeType: EdgeSupports})
	require.ErrorIs(t, err, ErrNodeNotFound)

	require.NoError(t, g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeSupports, Weight: 1}))
	err = g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeSupports, Weight: 0.5})
	require.ErrorIs(t, err, ErrDuplicateEdge)
}

func TestEdgesFromToAreMutualInverses(t *testing.T) {
	g := mustGraph(t, 4)
	a, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	b, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	require.NoError(t, g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeCausedBy}))

	from := g.EdgesFrom(a)
	to := g.EdgesTo(b)
	require.Len(t, from, 1)
	require.Len(t, to, 1)
	require.Equal(t, from[0], to[0])
}

func TestRemoveNodeCascadesEdgesAndIndexes(t *testing.T) {
	g := mustGraph(t, 4)
	a, _ := g.AddNode(&CognitiveEvent{EventType: EventFact, SessionID: 1})
	b, _ := g.AddNode(&CognitiveEvent{EventType: EventFact, SessionID: 1})
	require.NoError(t, g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeRelatedTo}))

	require.NoError(t, g.RemoveNode(a))

	_, err := g.GetNode(a)
	require.True(t, errors.Is(err, ErrNodeNotFound))
	require.Empty(t, g.EdgesFrom(a))
	require.Empty(t, g.EdgesTo(b))
	require.False(t, g.TypeIndex().Contains(EventFact, a))
	require.NotContains(t, g.SessionIndex().Nodes(1), a)
}

func TestResolveFollowsSupersedesChain(t *testing.T) {
	g := mustGraph(t, 4)
	a, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	b, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	c, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	require.NoError(t, g.AddEdge(Edge{SourceID: c, TargetID: b, EdgeType: EdgeSupersedes}))
	require.NoError(t, g.AddEdge(Edge{SourceID: b, TargetID: a, EdgeType: EdgeSupersedes}))

	resolved, err := g.Resolve(a)
	require.NoError(t, err)
	require.Equal(t, a, resolved)

	resolved, err = g.Resolve(c)
	require.NoError(t, err)
	require.Equal(t, a, resolved)
}

func TestResolveCycleTerminates(t *testing.T) {
	g := mustGraph(t, 4)
	a, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	b, _ := g.AddNode(&CognitiveEvent{EventType: EventFact})
	require.NoError(t, g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: EdgeSupersedes}))
	require.NoError(t, g.AddEdge(Edge{SourceID: b, TargetID: a, EdgeType: EdgeSupersedes}))

	_, err := g.Resolve(a)
	require.NoError(t, err)
}
