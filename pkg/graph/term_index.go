package graph

import (
	"sort"

	"github.com/orneryd/agentmem/pkg/tokenizer"
)

// Posting is a single (node id, term frequency) entry in a term's
// posting list.
type Posting struct {
	NodeID NodeID
	TF      uint32
}

// TermIndex is the inverted index backing BM25 text search: term ->
// posting list, sorted by node id so posting-list merges stay linear.
type TermIndex struct {
	postings     map[string][]Posting
	docCount     uint64
	avgDocLength float32
}

// NewTermIndex returns an empty TermIndex.
func NewTermIndex() *TermIndex {
	return &TermIndex{postings: make(map[string][]Posting)}
}

// BuildTermIndex tokenizes every node's content and builds postings.
func BuildTermIndex(nodes []*CognitiveEvent) *TermIndex {
	idx := NewTermIndex()
	tok := tokenizer.New()
	var totalTokens uint64

	for _, n := range nodes {
		freqs := tok.TermFrequencies(n.Content)
		var docLen uint32
		for _, f := range freqs {
			docLen += f
		}
		totalTokens += uint64(docLen)

		for term, freq := range freqs {
			idx.insertPosting(term, n.ID, freq)
		}
		idx.docCount++
	}

	if idx.docCount > 0 {
		idx.avgDocLength = float32(totalTokens) / float32(idx.docCount)
	}
	return idx
}

func (idx *TermIndex) insertPosting(term string, nodeID NodeID, tf uint32) {
	list := idx.postings[term]
	pos := sort.Search(len(list), func(i int) bool { return list[i].NodeID >= nodeID })
	list = append(list, Posting{})
	copy(list[pos+1:], list[pos:])
	list[pos] = Posting{NodeID: nodeID, TF: tf}
	idx.postings[term] = list
}

// Get returns the posting list for a term, or nil if unindexed.
func (idx *TermIndex) Get(term string) []Posting {
	return idx.postings[term]
}

// DocFrequency returns the number of documents containing term.
func (idx *TermIndex) DocFrequency(term string) int {
	return len(idx.postings[term])
}

// DocCount returns the total number of indexed documents.
func (idx *TermIndex) DocCount() uint64 {
	return idx.docCount
}

// AvgDocLength returns the average document length in tokens. It
// becomes approximate (not recomputed) after incremental AddNode calls.
func (idx *TermIndex) AvgDocLength() float32 {
	return idx.avgDocLength
}

// TermCount returns the number of unique indexed terms.
func (idx *TermIndex) TermCount() int {
	return len(idx.postings)
}

// AddNode incrementally indexes a single node's content.
func (idx *TermIndex) AddNode(event *CognitiveEvent) {
	tok := tokenizer.New()
	freqs := tok.TermFrequencies(event.Content)
	for term, freq := range freqs {
		idx.insertPosting(term, event.ID, freq)
	}
	idx.docCount++
}

// RemoveNode removes a node from every posting list it appears in.
func (idx *TermIndex) RemoveNode(id NodeID) {
	for term, list := range idx.postings {
		pos := sort.Search(len(list), func(i int) bool { return list[i].NodeID >= id })
		if pos < len(list) && list[pos].NodeID == id {
			idx.postings[term] = append(list[:pos], list[pos+1:]...)
		}
	}
	if idx.docCount > 0 {
		idx.docCount--
	}
}

// Clear empties the index.
func (idx *TermIndex) Clear() {
	idx.postings = make(map[string][]Posting)
	idx.docCount = 0
	idx.avgDocLength = 0
}

// Rebuild replaces the index contents from scratch.
func (idx *TermIndex) Rebuild(nodes []*CognitiveEvent) {
	*idx = *BuildTermIndex(nodes)
}

// Terms returns every indexed term in lexicographic order, used by the
// codec for deterministic serialization.
func (idx *TermIndex) Terms() []string {
	terms := make([]string, 0, len(idx.postings))
	for t := range idx.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// TermIndexFromRaw reconstructs a TermIndex from a previously serialized
// doc_count, avg_doc_length, and per-term posting lists (already sorted
// by node id on disk, so no re-sort is needed). This restores the exact
// values the codec wrote, including an approximate avg_doc_length,
// rather than recomputing from node content.
func TermIndexFromRaw(docCount uint64, avgDocLength float32, postings map[string][]Posting) *TermIndex {
	return &TermIndex{
		postings:     postings,
		docCount:     docCount,
		avgDocLength: avgDocLength,
	}
}
