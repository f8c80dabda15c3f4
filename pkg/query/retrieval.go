package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/orneryd/agentmem/pkg/graph"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// PatternSort names how Pattern results are ordered.
type PatternSort int

const (
	SortMostRecent PatternSort = iota
	SortHighestConfidence
	SortHighestDecay
)

// PatternParams filters nodes by type, confidence, session, time, and
// decay score.
type PatternParams struct {
	EventTypes     []graph.EventType
	MinConfidence  float32
	MaxConfidence  float32
	SessionIDs     []uint32
	After          uint64
	Before         uint64
	MinDecayScore  float32
	SortBy         PatternSort
	MaxResults     int
}

// Pattern returns nodes matching every filter in params, sorted and
// truncated to MaxResults.
func (q *QueryEngine) Pattern(g *graph.Graph, params PatternParams) ([]*graph.CognitiveEvent, error) {
	typeSet := toEventTypeSet(params.EventTypes)
	sessionSet := toSessionSet(params.SessionIDs)

	maxConf := params.MaxConfidence
	if maxConf == 0 {
		maxConf = 1
	}
	before := params.Before
	if before == 0 {
		before = ^uint64(0)
	}

	var out []*graph.CognitiveEvent
	for _, n := range g.Nodes() {
		if len(typeSet) > 0 {
			if _, ok := typeSet[n.EventType]; !ok {
				continue
			}
		}
		if n.Confidence < params.MinConfidence || n.Confidence > maxConf {
			continue
		}
		if len(sessionSet) > 0 {
			if _, ok := sessionSet[n.SessionID]; !ok {
				continue
			}
		}
		if n.CreatedAt < params.After || n.CreatedAt > before {
			continue
		}
		if n.DecayScore < params.MinDecayScore {
			continue
		}
		out = append(out, n)
	}

	switch params.SortBy {
	case SortHighestConfidence:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	case SortHighestDecay:
		sort.SliceStable(out, func(i, j int) bool { return out[i].DecayScore > out[j].DecayScore })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	}

	if params.MaxResults > 0 && len(out) > params.MaxResults {
		out = out[:params.MaxResults]
	}
	return out, nil
}

func toEventTypeSet(types []graph.EventType) map[graph.EventType]struct{} {
	set := make(map[graph.EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

func toSessionSet(ids []uint32) map[uint32]struct{} {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Direction names which adjacency a traversal follows.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
	DirectionBoth
)

// TraverseParams configures a bounded BFS from Start.
type TraverseParams struct {
	Start         graph.NodeID
	EdgeTypes     []graph.EdgeType
	Direction     Direction
	MaxDepth      uint32
	MaxResults    int
	MinConfidence float32
}

// TraverseResult is the ordered set of nodes visited and edges taken.
type TraverseResult struct {
	Nodes []*graph.CognitiveEvent
	Edges []graph.Edge
}

// Traverse performs a breadth-first walk from Start following only the
// allowed edge types (empty means all) in the requested direction,
// visiting only nodes whose confidence is at least MinConfidence,
// bounded by depth and total visited count.
func (q *QueryEngine) Traverse(g *graph.Graph, params TraverseParams) (TraverseResult, error) {
	if _, err := g.GetNode(params.Start); err != nil {
		return TraverseResult{}, err
	}
	edgeTypeSet := toEdgeTypeSet(params.EdgeTypes)

	type frontierEntry struct {
		id    graph.NodeID
		depth uint32
	}

	visited := map[graph.NodeID]struct{}{params.Start: {}}
	queue := []frontierEntry{{params.Start, 0}}
	var resultNodes []*graph.CognitiveEvent
	var resultEdges []graph.Edge

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = 1 << 30
	}

	for len(queue) > 0 && len(resultNodes) < maxResults {
		cur := queue[0]
		queue = queue[1:]

		node, err := g.GetNode(cur.id)
		if err == nil {
			resultNodes = append(resultNodes, node)
		}

		if cur.depth >= params.MaxDepth {
			continue
		}

		var candidates []graph.Edge
		if params.Direction == DirectionForward || params.Direction == DirectionBoth {
			candidates = append(candidates, g.EdgesFrom(cur.id)...)
		}
		if params.Direction == DirectionBackward || params.Direction == DirectionBoth {
			candidates = append(candidates, g.EdgesTo(cur.id)...)
		}

		for _, e := range candidates {
			if len(edgeTypeSet) > 0 {
				if _, ok := edgeTypeSet[e.EdgeType]; !ok {
					continue
				}
			}
			next := e.TargetID
			if next == cur.id {
				next = e.SourceID
			}
			if next == cur.id {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			nextNode, err := g.GetNode(next)
			if err != nil || nextNode.Confidence < params.MinConfidence {
				continue
			}
			visited[next] = struct{}{}
			resultEdges = append(resultEdges, e)
			queue = append(queue, frontierEntry{next, cur.depth + 1})
		}
	}

	return TraverseResult{Nodes: resultNodes, Edges: resultEdges}, nil
}

func toEdgeTypeSet(types []graph.EdgeType) map[graph.EdgeType]struct{} {
	set := make(map[graph.EdgeType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// SimilarityParams configures a linear cosine scan.
type SimilarityParams struct {
	QueryVec     []float32
	EventTypes   []graph.EventType
	TopK         int
	MinSimilarity float32
	SkipZero     bool
}

// SimilarityMatch is a single cosine-similarity hit.
type SimilarityMatch struct {
	NodeID     graph.NodeID
	Similarity float32
}

// Similarity performs a linear scan of feature_vec against QueryVec.
func (q *QueryEngine) Similarity(g *graph.Graph, params SimilarityParams) ([]SimilarityMatch, error) {
	typeSet := toEventTypeSet(params.EventTypes)
	var matches []SimilarityMatch

	for _, n := range g.Nodes() {
		if len(typeSet) > 0 {
			if _, ok := typeSet[n.EventType]; !ok {
				continue
			}
		}
		if params.SkipZero && graph.IsZeroVector(n.FeatureVec) {
			continue
		}
		sim := graph.CosineSimilarity(params.QueryVec, n.FeatureVec)
		if sim >= params.MinSimilarity {
			matches = append(matches, SimilarityMatch{NodeID: n.ID, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if params.TopK > 0 && len(matches) > params.TopK {
		matches = matches[:params.TopK]
	}
	return matches, nil
}

// TextSearchParams configures a BM25 search.
type TextSearchParams struct {
	Query      string
	MaxResults int
	EventTypes []graph.EventType
	SessionIDs []uint32
	MinScore   float32
}

// TextMatch is a single BM25 hit.
type TextMatch struct {
	NodeID       graph.NodeID
	Score        float32
	MatchedTerms []string
}

// TextSearch runs BM25 over node content, using the fast TermIndex +
// DocLengths path when the TermIndex holds any document, else
// tokenizing on demand. Both paths take N, document frequencies and the
// average length from the whole graph (the average over non-empty
// documents) and apply the filters only to which nodes are scored, so
// they agree within 1e-4.
func (q *QueryEngine) TextSearch(g *graph.Graph, params TextSearchParams) ([]TextMatch, error) {
	queryTerms := q.tok.Tokenize(params.Query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	typeSet := toEventTypeSet(params.EventTypes)
	sessionSet := toSessionSet(params.SessionIDs)

	var matches []TextMatch
	if g.TermIndex().DocCount() > 0 {
		matches = q.bm25FastPath(g, queryTerms, typeSet, sessionSet)
	} else {
		matches = q.bm25SlowPath(g, queryTerms, typeSet, sessionSet)
	}

	out := matches[:0]
	for _, m := range matches {
		if m.Score >= params.MinScore {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if params.MaxResults > 0 && len(out) > params.MaxResults {
		out = out[:params.MaxResults]
	}
	return out, nil
}

func (q *QueryEngine) bm25FastPath(g *graph.Graph, queryTerms []string, typeSet map[graph.EventType]struct{}, sessionSet map[uint32]struct{}) []TextMatch {
	ti := g.TermIndex()
	dl := g.DocLengths()
	n := float64(ti.DocCount())
	avgdl := dl.Average()
	if avgdl < 1 {
		avgdl = 1
	}

	type accum struct {
		score   float32
		matched map[string]struct{}
	}
	scores := make(map[graph.NodeID]*accum)

	for _, term := range queryTerms {
		postings := ti.Get(term)
		df := float64(len(postings))
		idf := float32(idf(n, df))

		for _, p := range postings {
			node, err := g.GetNode(p.NodeID)
			if err != nil {
				continue
			}
			if !passesFilters(node, typeSet, sessionSet) {
				continue
			}
			docLen := float32(dl.Get(p.NodeID))
			bm25Term := bm25Score(idf, float32(p.TF), docLen, avgdl)

			a, ok := scores[p.NodeID]
			if !ok {
				a = &accum{matched: make(map[string]struct{})}
				scores[p.NodeID] = a
			}
			a.score += bm25Term
			a.matched[term] = struct{}{}
		}
	}

	out := make([]TextMatch, 0, len(scores))
	for id, a := range scores {
		out = append(out, TextMatch{NodeID: id, Score: a.score, MatchedTerms: setToSlice(a.matched)})
	}
	return out
}

func (q *QueryEngine) bm25SlowPath(g *graph.Graph, queryTerms []string, typeSet map[graph.EventType]struct{}, sessionSet map[uint32]struct{}) []TextMatch {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return nil
	}

	type docData struct {
		id     graph.NodeID
		freqs  map[string]uint32
		length uint32
	}

	var docs []docData
	docFreqs := make(map[string]int)
	var totalTokens uint64
	var nonEmpty int

	for _, node := range nodes {
		freqs := q.tok.TermFrequencies(node.Content)
		var length uint32
		for _, f := range freqs {
			length += f
		}
		if length > 0 {
			totalTokens += uint64(length)
			nonEmpty++
		}
		for term := range freqs {
			docFreqs[term]++
		}
		if !passesFilters(node, typeSet, sessionSet) {
			continue
		}
		docs = append(docs, docData{id: node.ID, freqs: freqs, length: length})
	}

	var avgdl float32
	if nonEmpty > 0 {
		avgdl = float32(totalTokens) / float32(nonEmpty)
	}
	if avgdl < 1 {
		avgdl = 1
	}
	n := float64(len(nodes))

	var out []TextMatch
	for _, d := range docs {
		var score float32
		matched := make(map[string]struct{})
		for _, term := range queryTerms {
			tf, ok := d.freqs[term]
			if !ok {
				continue
			}
			df := float64(docFreqs[term])
			idfVal := float32(idf(n, df))
			score += bm25Score(idfVal, float32(tf), float32(d.length), avgdl)
			matched[term] = struct{}{}
		}
		if score > 0 {
			out = append(out, TextMatch{NodeID: d.id, Score: score, MatchedTerms: setToSlice(matched)})
		}
	}
	return out
}

func idf(n, df float64) float64 {
	return math.Log((n-df+0.5)/(df+0.5) + 1.0)
}

func bm25Score(idfVal, tf, docLen, avgdl float32) float32 {
	return idfVal * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avgdl))
}

func passesFilters(node *graph.CognitiveEvent, typeSet map[graph.EventType]struct{}, sessionSet map[uint32]struct{}) bool {
	if len(typeSet) > 0 {
		if _, ok := typeSet[node.EventType]; !ok {
			return false
		}
	}
	if len(sessionSet) > 0 {
		if _, ok := sessionSet[node.SessionID]; !ok {
			return false
		}
	}
	return true
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

// HybridSearchParams configures a BM25 + vector RRF search.
type HybridSearchParams struct {
	QueryText  string
	QueryVec   []float32
	MaxResults int
	EventTypes []graph.EventType
	TextWeight float32
	VectorWeight float32
	RRFK       int
}

// HybridMatch is a single fused hit with both raw and rank components.
type HybridMatch struct {
	NodeID             graph.NodeID
	CombinedScore       float32
	TextRank            int
	VectorRank          int
	TextScore           float32
	VectorSimilarity    float32
}

// HybridSearch runs BM25 and vector similarity with overfetch = 3 ×
// MaxResults and fuses them via Reciprocal Rank Fusion. If there is no
// QueryVec or no node carries a non-zero vector, the vector term
// contributes 0 and the result degrades to pure BM25.
func (q *QueryEngine) HybridSearch(g *graph.Graph, params HybridSearchParams) ([]HybridMatch, error) {
	overfetch := params.MaxResults * 3
	if overfetch <= 0 {
		overfetch = 30
	}

	tw, vw := params.TextWeight, params.VectorWeight
	total := tw + vw
	if total > 0 {
		tw, vw = tw/total, vw/total
	} else {
		tw, vw = 0.5, 0.5
	}

	rrfK := params.RRFK
	if rrfK <= 0 {
		rrfK = 60
	}

	bm25Results, err := q.TextSearch(g, TextSearchParams{
		Query:      params.QueryText,
		MaxResults: overfetch,
		EventTypes: params.EventTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	bm25Rank := make(map[graph.NodeID]int, len(bm25Results))
	bm25Scores := make(map[graph.NodeID]float32, len(bm25Results))
	for i, m := range bm25Results {
		bm25Rank[m.NodeID] = i + 1
		bm25Scores[m.NodeID] = m.Score
	}

	hasVectors := len(params.QueryVec) > 0 && graphHasAnyVector(g)

	vecRank := make(map[graph.NodeID]int)
	vecScore := make(map[graph.NodeID]float32)
	if hasVectors {
		sims, err := q.Similarity(g, SimilarityParams{
			QueryVec:   params.QueryVec,
			EventTypes: params.EventTypes,
			TopK:       overfetch,
			SkipZero:   true,
		})
		if err != nil {
			return nil, err
		}
		filtered := sims[:0]
		for _, s := range sims {
			if s.Similarity > 0 {
				filtered = append(filtered, s)
			}
		}
		for i, s := range filtered {
			vecRank[s.NodeID] = i + 1
			vecScore[s.NodeID] = s.Similarity
		}
	}

	allIDs := make(map[graph.NodeID]struct{})
	for id := range bm25Rank {
		allIDs[id] = struct{}{}
	}
	for id := range vecRank {
		allIDs[id] = struct{}{}
	}

	maxBM25Rank := len(bm25Results) + 1
	maxVecRank := len(vecRank) + 1

	out := make([]HybridMatch, 0, len(allIDs))
	for id := range allIDs {
		textRank, ok := bm25Rank[id]
		if !ok {
			textRank = maxBM25Rank
		}
		vectorRank, ok := vecRank[id]
		if !ok {
			vectorRank = maxVecRank
		}

		rrfText := tw / float32(rrfK+textRank)
		var rrfVec float32
		if hasVectors {
			rrfVec = vw / float32(rrfK+vectorRank)
		}

		out = append(out, HybridMatch{
			NodeID:           id,
			CombinedScore:    rrfText + rrfVec,
			TextRank:         textRank,
			VectorRank:       vectorRank,
			TextScore:        bm25Scores[id],
			VectorSimilarity: vecScore[id],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].NodeID < out[j].NodeID
	})
	if params.MaxResults > 0 && len(out) > params.MaxResults {
		out = out[:params.MaxResults]
	}
	return out, nil
}

func graphHasAnyVector(g *graph.Graph) bool {
	for _, n := range g.Nodes() {
		if !graph.IsZeroVector(n.FeatureVec) {
			return true
		}
	}
	return false
}
