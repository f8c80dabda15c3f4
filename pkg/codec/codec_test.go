package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/agentmem/pkg/graph"
)

func buildSampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(3)
	require.NoError(t, err)

	id1, err := g.AddNode(&graph.CognitiveEvent{
		EventType:  graph.EventFact,
		Content:    "the cache expires after five minutes",
		Confidence: 0.9,
		SessionID:  1,
		CreatedAt:  100,
		FeatureVec: []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)

	id2, err := g.AddNode(&graph.CognitiveEvent{
		EventType:  graph.EventInference,
		Content:    "therefore requests must retry on a miss",
		Confidence: 0.7,
		SessionID:  1,
		CreatedAt:  101,
		FeatureVec: []float32{0.4, 0.5, 0.6},
	})
	require.NoError(t, err)

	require.NoError(t, g.AddEdge(graph.Edge{
		SourceID: id2, TargetID: id1, EdgeType: graph.EdgeDerivedFrom, Weight: 0.8, CreatedAt: 102,
	}))

	require.NoError(t, g.Touch(id1))
	require.NoError(t, g.Touch(id1))

	return g
}

func TestSaveLoadRoundTripWithoutIndexes(t *testing.T) {
	g := buildSampleGraph(t)

	var buf bytes.Buffer
	require.NoError(t, Save(g, &buf, SaveOptions{CreatedAt: 500}))

	loaded, err := Load(&buf, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, g.Dimension(), loaded.Dimension())
	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	assert.Equal(t, g.EdgeCount(), loaded.EdgeCount())

	for _, n := range g.Nodes() {
		got, err := loaded.GetNode(n.ID)
		require.NoError(t, err)
		assert.Equal(t, n.Content, got.Content)
		assert.Equal(t, n.EventType, got.EventType)
		assert.Equal(t, n.SessionID, got.SessionID)
		assert.Equal(t, n.CreatedAt, got.CreatedAt)
		assert.Equal(t, n.Confidence, got.Confidence)
		assert.Equal(t, n.AccessCount, got.AccessCount)
		assert.Equal(t, n.FeatureVec, got.FeatureVec)
	}

	edges := loaded.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, graph.EdgeDerivedFrom, edges[0].EdgeType)
}

func TestSaveLoadRoundTripWithIndexes(t *testing.T) {
	g := buildSampleGraph(t)

	var buf bytes.Buffer
	require.NoError(t, Save(g, &buf, SaveOptions{
		CreatedAt:         500,
		IncludeTermIndex:  true,
		IncludeDocLengths: true,
	}))

	loaded, err := Load(&buf, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, g.TermIndex().DocCount(), loaded.TermIndex().DocCount())
	assert.Equal(t, g.TermIndex().AvgDocLength(), loaded.TermIndex().AvgDocLength())
	assert.Equal(t, g.TermIndex().Terms(), loaded.TermIndex().Terms())
	for _, term := range g.TermIndex().Terms() {
		assert.Equal(t, g.TermIndex().Get(term), loaded.TermIndex().Get(term))
	}
	assert.Equal(t, g.DocLengths().Raw(), loaded.DocLengths().Raw())
}

func TestSaveLoadPreservesIdGapsAfterRemoval(t *testing.T) {
	g := buildSampleGraph(t)
	id3, err := g.AddNode(&graph.CognitiveEvent{
		EventType:  graph.EventEpisode,
		Content:    "a node slated for removal",
		Confidence: 0.5,
		SessionID:  1,
		CreatedAt:  103,
		FeatureVec: []float32{0, 0, 0},
	})
	require.NoError(t, err)
	require.NoError(t, g.RemoveNode(id3))

	id4, err := g.AddNode(&graph.CognitiveEvent{
		EventType:  graph.EventFact,
		Content:    "a node added after the gap",
		Confidence: 0.6,
		SessionID:  1,
		CreatedAt:  104,
		FeatureVec: []float32{0, 0, 1},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(g, &buf, SaveOptions{CreatedAt: 600}))

	loaded, err := Load(&buf, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
	got, err := loaded.GetNode(id4)
	require.NoError(t, err)
	assert.Equal(t, "a node added after the gap", got.Content)

	_, err = loaded.GetNode(id3)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestSaveLoadRejectsWrongMagic(t *testing.T) {
	_, err := Load(bytes.NewReader(make([]byte, headerSize)), LoadOptions{})
	assert.ErrorIs(t, err, ErrUnexpectedMagic)
}

func TestSaveLoadEncryptedEnvelopeRequiresPassphrase(t *testing.T) {
	g := buildSampleGraph(t)

	var buf bytes.Buffer
	require.NoError(t, Save(g, &buf, SaveOptions{CreatedAt: 500, Passphrase: "hunter2"}))

	_, err := Load(bytes.NewReader(buf.Bytes()), LoadOptions{})
	assert.Error(t, err)

	loaded, err := Load(bytes.NewReader(buf.Bytes()), LoadOptions{Passphrase: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), loaded.NodeCount())
}

func TestSaveLoadEncryptedEnvelopeRejectsWrongPassphrase(t *testing.T) {
	g := buildSampleGraph(t)

	var buf bytes.Buffer
	require.NoError(t, Save(g, &buf, SaveOptions{CreatedAt: 500, Passphrase: "hunter2"}))

	_, err := Load(bytes.NewReader(buf.Bytes()), LoadOptions{Passphrase: "wrong"})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
