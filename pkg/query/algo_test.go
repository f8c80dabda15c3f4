package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/agentmem/pkg/graph"
)

func buildStarGraph(t *testing.T) (*graph.Graph, graph.NodeID, []graph.NodeID) {
	t.Helper()
	g, err := graph.New(2)
	require.NoError(t, err)
	center := addTestNode(t, g, graph.EventFact, "center", 1, 1, 1, nil)
	var leaves []graph.NodeID
	for i := 0; i < 4; i++ {
		leaf := addTestNode(t, g, graph.EventFact, "leaf", 1, 1, uint64(i+2), nil)
		require.NoError(t, g.AddEdge(graph.Edge{SourceID: leaf, TargetID: center, EdgeType: graph.EdgeRelatedTo, Weight: 1}))
		leaves = append(leaves, leaf)
	}
	return g, center, leaves
}

func TestCentralityPageRankRanksHubHighest(t *testing.T) {
	g, center, _ := buildStarGraph(t)
	q := New()

	res, err := q.Centrality(g, CentralityParams{
		Algorithm:     AlgorithmPageRank,
		Damping:       0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
		TopK:          10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Scores)
	assert.Equal(t, center, res.Scores[0].NodeID)
	assert.True(t, res.Converged)
}

func TestCentralityDegreeNormalizedByMaxPossible(t *testing.T) {
	g, center, _ := buildStarGraph(t)
	q := New()

	res, err := q.Centrality(g, CentralityParams{Algorithm: AlgorithmDegree, TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, res.Scores)
	assert.Equal(t, center, res.Scores[0].NodeID)
	assert.InDelta(t, 0.5, res.Scores[0].Score, 1e-6) // degree 4 / max_possible 2*(5-1)=8
}

func TestCentralityBetweennessHubIsOnEveryPath(t *testing.T) {
	g, center, _ := buildStarGraph(t)
	q := New()

	res, err := q.Centrality(g, CentralityParams{Algorithm: AlgorithmBetweenness, TopK: 10})
	require.NoError(t, err)
	require.NotEmpty(t, res.Scores)
	assert.Equal(t, center, res.Scores[0].NodeID)
	assert.Greater(t, res.Scores[0].Score, float32(0))
}

func TestShortestPathSameNodeIsTrivial(t *testing.T) {
	g, center, _ := buildStarGraph(t)
	q := New()

	res, err := q.ShortestPath(g, ShortestPathParams{Source: center, Target: center})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []graph.NodeID{center}, res.Path)
	assert.Equal(t, float32(0), res.Cost)
}

func TestShortestPathUnweightedBFS(t *testing.T) {
	g, center, leaves := buildStarGraph(t)
	q := New()

	res, err := q.ShortestPath(g, ShortestPathParams{
		Source:    leaves[0],
		Target:    leaves[1],
		Direction: DirectionBoth,
		MaxDepth:  4,
	})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, []graph.NodeID{leaves[0], center, leaves[1]}, res.Path)
	assert.Equal(t, float32(2), res.Cost)
}

func TestShortestPathMissingNode(t *testing.T) {
	g, center, _ := buildStarGraph(t)
	q := New()

	_, err := q.ShortestPath(g, ShortestPathParams{Source: center, Target: 999})
	require.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestShortestPathWeightedPrefersHighWeightEdge(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	a := addTestNode(t, g, graph.EventFact, "a", 1, 1, 1, nil)
	b := addTestNode(t, g, graph.EventFact, "b", 1, 1, 2, nil)
	c := addTestNode(t, g, graph.EventFact, "c", 1, 1, 3, nil)
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: a, TargetID: b, EdgeType: graph.EdgeRelatedTo, Weight: 0.1}))
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: a, TargetID: c, EdgeType: graph.EdgeRelatedTo, Weight: 0.9}))
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: c, TargetID: b, EdgeType: graph.EdgeRelatedTo, Weight: 0.9}))

	q := New()
	res, err := q.ShortestPath(g, ShortestPathParams{Source: a, Target: b, Weighted: true})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, []graph.NodeID{a, c, b}, res.Path)
}
