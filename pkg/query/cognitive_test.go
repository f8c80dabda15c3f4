package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/agentmem/pkg/graph"
)

func TestBeliefRevisionFindsContradictionAndCascades(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)

	decision := addTestNode(t, g, graph.EventDecision, "use postgres for storage", 0.9, 1, 1, nil)
	contradiction := addTestNode(t, g, graph.EventFact, "postgres is not suitable for this workload", 0.8, 1, 2, nil)
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: decision, TargetID: contradiction, EdgeType: graph.EdgeCausedBy, Weight: 1}))

	q := New()
	report, err := q.BeliefRevision(g, BeliefRevisionParams{
		QueryText:       "postgres storage",
		MinRelevance:    0.1,
		WeakeningFactor: 0.5,
		MaxCascadeDepth: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, report.Contradicted)
	assert.Equal(t, contradiction, report.Contradicted[0].NodeID)
	require.NotEmpty(t, report.Weakened)
	assert.Equal(t, decision, report.Weakened[0].NodeID)
	assert.Less(t, report.Weakened[0].RevisedConfidence, report.Weakened[0].OriginalConfidence)
	assert.Contains(t, report.InvalidatedDecisions, decision)
}

func TestGapDetectionFlagsUnjustifiedDecision(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventDecision, "ship it", 0.9, 1, 1, nil)

	q := New()
	report, err := q.GapDetection(g, GapDetectionParams{MinConfidence: 0.5, StaleThreshold: 0.2, SortBy: SortByHighestImpact})
	require.NoError(t, err)
	require.NotEmpty(t, report.Gaps)
	assert.Equal(t, GapUnjustifiedDecision, report.Gaps[0].Type)
	assert.InDelta(t, 0.9, report.Gaps[0].Severity, 1e-6)
}

func TestGapDetectionHealthScoreReflectsProportion(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)
	addTestNode(t, g, graph.EventDecision, "decision one", 0.9, 1, 1, nil)
	addTestNode(t, g, graph.EventFact, "fact one", 0.9, 1, 2, nil)

	q := New()
	report, err := q.GapDetection(g, GapDetectionParams{MinConfidence: 0.5, StaleThreshold: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.TotalNodes)
	assert.Less(t, report.Summary.HealthScore, float32(1.0))
}

func TestAnalogicalMatchesSimilarStructure(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)

	anchor := addTestNode(t, g, graph.EventDecision, "chose redis for caching", 0.9, 1, 1, nil)
	anchorCause := addTestNode(t, g, graph.EventFact, "redis has low latency", 0.9, 1, 2, nil)
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: anchor, TargetID: anchorCause, EdgeType: graph.EdgeCausedBy, Weight: 1}))

	candidate := addTestNode(t, g, graph.EventDecision, "chose memcached for caching", 0.9, 2, 3, nil)
	candidateCause := addTestNode(t, g, graph.EventFact, "memcached has low latency", 0.9, 2, 4, nil)
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: candidate, TargetID: candidateCause, EdgeType: graph.EdgeCausedBy, Weight: 1}))

	unrelated := addTestNode(t, g, graph.EventEpisode, "unrelated episode", 0.9, 3, 5, nil)
	_ = unrelated

	q := New()
	result, err := q.Analogical(g, AnalogicalParams{
		Anchor:       AnalogicalAnchor{NodeID: anchor},
		ContextDepth: 2,
		MinSimilarity: 0.1,
		MaxResults:    5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, candidate, result.Matches[0].NodeID)
}

func TestDriftDetectionClassifiesCorrectionChain(t *testing.T) {
	g, err := graph.New(2)
	require.NoError(t, err)

	original := addTestNode(t, g, graph.EventFact, "the deploy window is Tuesday", 0.8, 1, 1, nil)
	corrected := addTestNode(t, g, graph.EventCorrection, "the deploy window is Thursday", 0.9, 1, 2, nil)
	require.NoError(t, g.AddEdge(graph.Edge{SourceID: corrected, TargetID: original, EdgeType: graph.EdgeSupersedes, Weight: 1}))

	q := New()
	report, err := q.DriftDetection(g, DriftParams{QueryText: "deploy window", MinRelevance: 0.1, MaxResults: 10})
	require.NoError(t, err)
	require.NotEmpty(t, report.Timelines)

	timeline := report.Timelines[0]
	require.Len(t, timeline.Snapshots, 2)
	assert.Equal(t, ChangeInitial, timeline.Snapshots[0].ChangeType)
	assert.Equal(t, ChangeCorrected, timeline.Snapshots[1].ChangeType)
	assert.Equal(t, 1, timeline.ChangeCount)
}
