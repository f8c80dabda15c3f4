package graph

import "github.com/orneryd/agentmem/pkg/tokenizer"

// DocLengths is a dense node_id -> token-count table used to normalize
// BM25 scores against document length.
type DocLengths struct {
	lengths []uint32
}

// NewDocLengths returns an empty DocLengths table.
func NewDocLengths() *DocLengths {
	return &DocLengths{}
}

// BuildDocLengths tokenizes every node's content and records its length.
func BuildDocLengths(nodes []*CognitiveEvent) *DocLengths {
	dl := NewDocLengths()
	tok := tokenizer.New()
	for _, n := range nodes {
		dl.ensure(n.ID)
		dl.lengths[n.ID] = uint32(len(tok.Tokenize(n.Content)))
	}
	return dl
}

func (dl *DocLengths) ensure(id NodeID) {
	if int(id) >= len(dl.lengths) {
		grown := make([]uint32, id+1)
		copy(grown, dl.lengths)
		dl.lengths = grown
	}
}

// Get returns the token count for a node, or 0 if absent.
func (dl *DocLengths) Get(id NodeID) uint32 {
	if int(id) < len(dl.lengths) {
		return dl.lengths[id]
	}
	return 0
}

// Average returns the mean length over non-zero-length documents.
func (dl *DocLengths) Average() float32 {
	var sum uint64
	var count uint64
	for _, l := range dl.lengths {
		if l > 0 {
			sum += uint64(l)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float32(sum) / float32(count)
}

// Len returns the number of documents with non-zero length.
func (dl *DocLengths) Len() int {
	count := 0
	for _, l := range dl.lengths {
		if l > 0 {
			count++
		}
	}
	return count
}

// AddNode records a single node's document length.
func (dl *DocLengths) AddNode(event *CognitiveEvent) {
	tok := tokenizer.New()
	dl.ensure(event.ID)
	dl.lengths[event.ID] = uint32(len(tok.Tokenize(event.Content)))
}

// RemoveNode zeroes a node's recorded length.
func (dl *DocLengths) RemoveNode(id NodeID) {
	if int(id) < len(dl.lengths) {
		dl.lengths[id] = 0
	}
}

// Clear empties the table.
func (dl *DocLengths) Clear() {
	dl.lengths = nil
}

// Rebuild replaces the table contents from scratch.
func (dl *DocLengths) Rebuild(nodes []*CognitiveEvent) {
	*dl = *BuildDocLengths(nodes)
}

// Raw exposes the dense backing slice for codec serialization.
func (dl *DocLengths) Raw() []uint32 {
	return dl.lengths
}

// DocLengthsFromRaw reconstructs a DocLengths table from a previously serialized
// dense slice.
func DocLengthsFromRaw(lengths []uint32) *DocLengths {
	return &DocLengths{lengths: lengths}
}
