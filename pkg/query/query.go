// Package query implements the stateless, read-mostly QueryEngine:
// retrieval, graph algorithms, and cognitive analyses against a
// graph.Graph. Every method takes a shared borrow of the graph except
// Consolidate, which takes an exclusive borrow — the only mutator among
// the analyses.
package query

import (
	"strings"

	"github.com/orneryd/agentmem/pkg/graph"
	"github.com/orneryd/agentmem/pkg/tokenizer"
)

// QueryEngine implements every read (and the one write) operation
// against a graph.Graph. It holds no state of its own.
type QueryEngine struct {
	tok tokenizer.Tokenizer
}

// New returns a ready QueryEngine.
func New() *QueryEngine {
	return &QueryEngine{tok: tokenizer.New()}
}

// negationWords is the single list shared by belief revision and
// consolidation's contradiction linking. It is the union of the two
// near-duplicate lists found upstream: the fuller belief-revision list
// already contains every word the consolidation list used, so the union
// collapses to it.
var negationWords = []string{
	"not", "no", "never", "neither", "nor", "none", "nothing", "nowhere",
	"nobody", "cannot", "can't", "don't", "doesn't", "didn't", "won't",
	"wouldn't", "shouldn't", "couldn't", "isn't", "aren't", "wasn't",
	"weren't", "hasn't", "haven't", "hadn't", "false", "incorrect",
	"wrong", "invalid", "untrue", "deny", "denied", "disagree", "unlike",
	"opposite", "contrary", "instead", "rather",
}

// containsNegation reports whether content contains any negation word as
// a substring, case-insensitively — matching the reference behavior of
// scanning lowercased content rather than tokenizing it (so contractions
// like "don't" survive the tokenizer's boundary splitting).
func containsNegation(content string) bool {
	lower := strings.ToLower(content)
	for _, neg := range negationWords {
		if strings.Contains(lower, neg) {
			return true
		}
	}
	return false
}

// relevance blends term-overlap fraction and cosine similarity: 0.5/0.5
// when a query vector is supplied, text-only (weight 1.0) otherwise.
func relevance(textSim, vecSim float32, hasVec bool) float32 {
	if hasVec {
		return 0.5*textSim + 0.5*vecSim
	}
	return textSim
}

// termOverlapFraction returns |queryTerms ∩ nodeTerms| / |queryTerms|.
func termOverlapFraction(queryTerms, nodeTerms map[string]struct{}) float32 {
	if len(queryTerms) == 0 {
		return 0
	}
	overlap := 0
	for t := range queryTerms {
		if _, ok := nodeTerms[t]; ok {
			overlap++
		}
	}
	return float32(overlap) / float32(len(queryTerms))
}

func toTermSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// context extracts the subgraph reachable from center within depth hops
// following any edge in either direction — used by analogical matching.
// It is a thin wrapper over Traverse with direction Both.
func (q *QueryEngine) context(g *graph.Graph, center graph.NodeID, depth uint32) (TraverseResult, error) {
	return q.Traverse(g, TraverseParams{
		Start:     center,
		Direction: DirectionBoth,
		MaxDepth:  depth,
		MaxResults: 1 << 20,
	})
}
