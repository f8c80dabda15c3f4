package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/agentmem/pkg/graph"
)

func TestConsolidateDeduplicatesNearIdenticalFacts(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	a := addTestNode(t, g, graph.EventFact, "the server runs on port 8080", 0.9, 1, 1, []float32{1, 0})
	b := addTestNode(t, g, graph.EventFact, "the server runs on port 8080 today", 0.7, 1, 2, []float32{1, 0})

	q := New()
	report, err := q.Consolidate(g, ConsolidateParams{
		Operations: []ConsolidationOp{{Kind: OpDeduplicateFacts, Threshold: 0.95}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduplicated)

	edges := g.EdgesFrom(a)
	require.Len(t, edges, 1)
	assert.Equal(t, graph.EdgeSupersedes, edges[0].EdgeType)
	assert.Equal(t, b, edges[0].TargetID)
}

func TestConsolidateDryRunDoesNotMutate(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventFact, "alpha beta gamma", 0.9, 1, 1, []float32{1, 0})
	addTestNode(t, g, graph.EventFact, "alpha beta gamma delta", 0.7, 1, 2, []float32{1, 0})

	q := New()
	report, err := q.Consolidate(g, ConsolidateParams{
		Operations: []ConsolidationOp{{Kind: OpDeduplicateFacts, Threshold: 0.95}},
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduplicated)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestConsolidatePruneOrphansIsAlwaysDryRun(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	orphan := addTestNode(t, g, graph.EventFact, "unused fact", 0.5, 1, 1, nil)
	g.Nodes()[0].DecayScore = 0.01

	q := New()
	report, err := q.Consolidate(g, ConsolidateParams{
		Operations: []ConsolidationOp{{Kind: OpPruneOrphans, MaxDecay: 0.1}},
		DryRun:     false,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pruned)

	node, err := g.GetNode(orphan)
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestConsolidateLinkContradictionsRequiresAsymmetricNegation(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	a := addTestNode(t, g, graph.EventFact, "the build is passing", 0.9, 1, 1, []float32{1, 0})
	b := addTestNode(t, g, graph.EventFact, "the build is not passing", 0.9, 1, 2, []float32{1, 0})

	q := New()
	report, err := q.Consolidate(g, ConsolidateParams{
		Operations: []ConsolidationOp{{Kind: OpLinkContradictions, Threshold: 0.5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ContradictionsLinked)

	edges := g.EdgesFrom(a)
	require.Len(t, edges, 1)
	assert.Equal(t, graph.EdgeContradicts, edges[0].EdgeType)
	assert.Equal(t, b, edges[0].TargetID)
}

func TestConsolidatePromoteInferencesRequiresBothThresholds(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	low := addTestNode(t, g, graph.EventInference, "low confidence inference", 0.4, 1, 1, nil)
	high := addTestNode(t, g, graph.EventInference, "high confidence inference", 0.95, 1, 2, nil)
	g.Nodes()[1].AccessCount = 10

	q := New()
	report, err := q.Consolidate(g, ConsolidateParams{
		Operations: []ConsolidationOp{{Kind: OpPromoteInferences, MinAccess: 5, MinConfidence: 0.9}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.InferencesPromoted)

	lowNode, _ := g.GetNode(low)
	highNode, _ := g.GetNode(high)
	assert.Equal(t, graph.EventInference, lowNode.EventType)
	assert.Equal(t, graph.EventFact, highNode.EventType)
}
