package writeengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/agentmem/pkg/graph"
)

func fakeClock() Clock {
	var t uint64
	return func() uint64 {
		t++
		return t
	}
}

func TestAddEventTemporalChain(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	we := New(fakeClock())

	var lastID graph.NodeID
	for i := 0; i < 5; i++ {
		res, err := we.AddEvent(g, AddEventParams{
			EventType: graph.EventFact,
			Content:   "fact",
			SessionID: 1,
			AutoChain: true,
		})
		require.NoError(t, err)
		lastID = res.NodeID
		require.EqualValues(t, i, res.NodeID)
	}
	require.EqualValues(t, 4, lastID)

	temporalEdges := 0
	for _, e := range g.Edges() {
		if e.EdgeType == graph.EdgeTemporalNext {
			temporalEdges++
		}
	}
	assert.Equal(t, 4, temporalEdges)
}

func TestAddEventClampsConfidence(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	we := New(fakeClock())

	res, err := we.AddEvent(g, AddEventParams{EventType: graph.EventFact, Confidence: 5})
	require.NoError(t, err)
	node, err := g.GetNode(res.NodeID)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), node.Confidence)
	assert.Equal(t, float32(1.0), node.DecayScore)
}

func TestCorrectAddsSupersedesWithoutMutatingOld(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	we := New(fakeClock())

	orig, err := we.AddEvent(g, AddEventParams{EventType: graph.EventFact, Content: "old", Confidence: 0.9})
	require.NoError(t, err)

	newID, err := we.Correct(g, orig.NodeID, "new content", 1)
	require.NoError(t, err)

	oldNode, _ := g.GetNode(orig.NodeID)
	assert.Equal(t, float32(0.9), oldNode.Confidence)

	newNode, _ := g.GetNode(newID)
	assert.Equal(t, graph.EventCorrection, newNode.EventType)

	edges := g.EdgesFrom(newID)
	require.Len(t, edges, 1)
	assert.Equal(t, graph.EdgeSupersedes, edges[0].EdgeType)
	assert.Equal(t, orig.NodeID, edges[0].TargetID)
}

func TestCorrectMissingNode(t *testing.T) {
	g, err := graph.New(4)
	require.NoError(t, err)
	we := New(fakeClock())
	_, err = we.Correct(g, 999, "x", 1)
	require.ErrorIs(t, err, graph.ErrNodeNotFound)
}
