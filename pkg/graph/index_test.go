package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermIndexPostingsSortedByNodeID(t *testing.T) {
	nodes := []*CognitiveEvent{
		{ID: 0, Content: "quantum project"},
		{ID: 1, Content: "project plan"},
		{ID: 2, Content: "quantum project plan"},
	}
	idx := BuildTermIndex(nodes)
	postings := idx.Get("project")
	require.Len(t, postings, 3)
	for i := 1; i < len(postings); i++ {
		assert.Less(t, postings[i-1].NodeID, postings[i].NodeID)
	}
	assert.Equal(t, 2, idx.DocFrequency("quantum"))
	assert.EqualValues(t, 3, idx.DocCount())
}

func TestTermIndexRemoveNode(t *testing.T) {
	idx := NewTermIndex()
	idx.AddNode(&CognitiveEvent{ID: 0, Content: "alpha beta"})
	idx.AddNode(&CognitiveEvent{ID: 1, Content: "alpha gamma"})
	idx.RemoveNode(0)
	postings := idx.Get("alpha")
	require.Len(t, postings, 1)
	assert.EqualValues(t, 1, postings[0].NodeID)
}

func TestDocLengthsTracksTokenCounts(t *testing.T) {
	short := &CognitiveEvent{ID: 0, Content: "Rust developer"}
	dl := BuildDocLengths([]*CognitiveEvent{short})
	assert.EqualValues(t, 2, dl.Get(0))
	assert.EqualValues(t, 0, dl.Get(99))
}

func TestTemporalIndexRangeAndMostRecent(t *testing.T) {
	idx := NewTemporalIndex()
	idx.AddNode(&CognitiveEvent{ID: 0, CreatedAt: 100})
	idx.AddNode(&CognitiveEvent{ID: 1, CreatedAt: 50})
	idx.AddNode(&CognitiveEvent{ID: 2, CreatedAt: 150})

	assert.Equal(t, []NodeID{1, 0, 2}, idx.Range(0, 1000))
	assert.Equal(t, []NodeID{2, 0}, idx.MostRecent(2))
}

func TestClusterMapKeepsValidAfterRemoval(t *testing.T) {
	nodes := []*CognitiveEvent{
		{ID: 0, FeatureVec: []float32{1, 0}},
		{ID: 1, FeatureVec: []float32{1, 0}},
		{ID: 2, FeatureVec: []float32{0, 1}},
	}
	cm := BuildClusterMap(nodes)
	c0, ok := cm.ClusterOf(0)
	require.True(t, ok)
	cm.RemoveNode(0)
	_, ok = cm.ClusterOf(0)
	assert.False(t, ok)
	assert.NotContains(t, cm.Members(c0), NodeID(0))
}
