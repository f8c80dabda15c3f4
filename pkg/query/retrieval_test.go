package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/agentmem/pkg/graph"
)

func addTestNode(t *testing.T, g *graph.Graph, eventType graph.EventType, content string, confidence float32, sessionID uint32, createdAt uint64, vec []float32) graph.NodeID {
	t.Helper()
	id, err := g.AddNode(&graph.CognitiveEvent{
		EventType:  eventType,
		Content:    content,
		Confidence: confidence,
		SessionID:  sessionID,
		CreatedAt:  createdAt,
		DecayScore: 1.0,
		FeatureVec: vec,
	})
	require.NoError(t, err)
	return id
}

func TestPatternFiltersAndSorts(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventFact, "a", 0.9, 1, 100, nil)
	addTestNode(t, g, graph.EventDecision, "b", 0.3, 1, 200, nil)
	addTestNode(t, g, graph.EventFact, "c", 0.6, 2, 300, nil)

	q := New()
	out, err := q.Pattern(g, PatternParams{
		EventTypes: []graph.EventType{graph.EventFact},
		SortBy:     SortHighestConfidence,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Content)
	assert.Equal(t, "c", out[1].Content)
}

func TestTraverseRespectsDirectionAndDepth(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	a := addTestNode(t, g, graph.EventFact, "a", 1, 1, 1, nil)
	b := addTestNode(t, g, graph.EventFact, "b", 1, 1, 2, nil)
	c := addTestNode(t, g, graph.EventFact, "c", 1, 1, 3, nil)
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: a, TargetID: b, EdgeType: graph.EdgeCausedBy, Weight: 1}))
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: b, TargetID: c, EdgeType: graph.EdgeCausedBy, Weight: 1}))

	q := New()
	res, err := q.Traverse(g, TraverseParams{Start: a, Direction: DirectionForward, MaxDepth: 1, MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, res.Nodes, 2)
	assert.Equal(t, a, res.Nodes[0].ID)
	assert.Equal(t, b, res.Nodes[1].ID)

	res2, err := q.Traverse(g, TraverseParams{Start: c, Direction: DirectionBackward, MaxDepth: 2, MaxResults: 10})
	require.NoError(t, err)
	ids := map[graph.NodeID]bool{}
	for _, n := range res2.Nodes {
		ids[n.ID] = true
	}
	assert.True(t, ids[a])
	assert.True(t, ids[b])
	assert.True(t, ids[c])
}

func TestSimilarityRanksByCosine(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventFact, "a", 1, 1, 1, []float32{1, 0})
	addTestNode(t, g, graph.EventFact, "b", 1, 1, 2, []float32{0, 1})

	q := New()
	out, err := q.Similarity(g, SimilarityParams{QueryVec: []float32{1, 0}, SkipZero: true})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, graph.NodeID(0), out[0].NodeID)
	assert.InDelta(t, 1.0, out[0].Similarity, 1e-6)
}

func TestTextSearchFastAndSlowPathsAgree(t *testing.T) {
	contents := []string{
		"quantum computing research project",
		"quantum entanglement experiment design",
		"classical mechanics lecture notes",
	}

	gFast, err := graph.New(4)
	require.NoError(t, err)
	for i, c := range contents {
		addTestNode(t, gFast, graph.EventFact, c, 1, 1, uint64(i), nil)
	}

	q := New()
	fastResults, err := q.TextSearch(gFast, TextSearchParams{Query: "quantum", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, fastResults, 2)

	// The slow path only runs when the TermIndex is empty; exercise it
	// directly against a freshly cleared index on the same graph so both
	// paths score the identical document set.
	gFast.TermIndex().Clear()
	slowResults, err := q.TextSearch(gFast, TextSearchParams{Query: "quantum", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, slowResults, 2)

	fastScores := map[graph.NodeID]float32{}
	for _, m := range fastResults {
		fastScores[m.NodeID] = m.Score
	}
	for _, m := range slowResults {
		assert.InDelta(t, fastScores[m.NodeID], m.Score, 1e-4)
	}
}

func TestHybridSearchDegradesToBM25WithoutVectors(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventFact, "quantum computing", 1, 1, 1, nil)
	addTestNode(t, g, graph.EventFact, "classical mechanics", 1, 1, 2, nil)

	q := New()
	out, err := q.HybridSearch(g, HybridSearchParams{QueryText: "quantum", MaxResults: 10, TextWeight: 0.5, VectorWeight: 0.5})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, float32(0), out[0].VectorSimilarity)
	assert.Greater(t, out[0].CombinedScore, float32(0))
}

func TestHybridSearchFusesTextAndVector(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventFact, "quantum computing", 1, 1, 1, []float32{1, 0})
	addTestNode(t, g, graph.EventFact, "classical mechanics", 1, 1, 2, []float32{0, 1})

	q := New()
	out, err := q.HybridSearch(g, HybridSearchParams{
		QueryText:    "quantum",
		QueryVec:     []float32{1, 0},
		MaxResults:   10,
		TextWeight:   0.5,
		VectorWeight: 0.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, graph.NodeID(0), out[0].NodeID)
}
