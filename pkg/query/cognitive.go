package query

import (
	"math"
	"sort"

	"github.com/orneryd/agentmem/pkg/graph"
)

// BeliefRevisionParams configures a belief-revision scan.
type BeliefRevisionParams struct {
	QueryText        string
	QueryVec         []float32
	MinRelevance     float32
	WeakeningFactor  float32
	MaxCascadeDepth  uint32
}

// ContradictedNode is a node whose relevance to the query plus a
// contradiction signal (explicit edge, negation wording, or a
// Correction event type) marks it as directly affected.
type ContradictedNode struct {
	NodeID    graph.NodeID
	Relevance float32
	Strength  float32
}

// CascadeStep records one hop of confidence weakening propagated from a
// contradicted node through its CausedBy/Supports dependents.
type CascadeStep struct {
	NodeID           graph.NodeID
	Depth            uint32
	OriginalConfidence float32
	RevisedConfidence  float32
}

// WeakenedNode is the terminal, de-duplicated view of CascadeStep —
// one entry per node actually weakened, keeping its shallowest hop.
type WeakenedNode struct {
	NodeID             graph.NodeID
	Depth              uint32
	OriginalConfidence float32
	RevisedConfidence  float32
}

// RevisionReport is the result of a belief-revision pass. Read-only:
// nothing in the graph is mutated.
type RevisionReport struct {
	Contradicted []ContradictedNode
	Cascade      []CascadeStep
	Weakened     []WeakenedNode
	InvalidatedDecisions []graph.NodeID
}

// BeliefRevision finds nodes that contradict the query (phase 1), walks
// the dependency graph to find what those contradictions would weaken
// (phase 2), and reports every affected Decision node (phase 3). It
// never mutates the graph — callers decide what to do with the report.
func (q *QueryEngine) BeliefRevision(g *graph.Graph, params BeliefRevisionParams) (RevisionReport, error) {
	queryTerms := toTermSet(q.tok.Tokenize(params.QueryText))
	hasVec := len(params.QueryVec) > 0

	weakening := params.WeakeningFactor
	if weakening == 0 {
		weakening = 0.5
	}
	maxDepth := params.MaxCascadeDepth
	if maxDepth == 0 {
		maxDepth = 5
	}

	var contradicted []ContradictedNode
	for _, n := range g.Nodes() {
		nodeTerms := toTermSet(q.tok.Tokenize(n.Content))
		textSim := termOverlapFraction(queryTerms, nodeTerms)
		var vecSim float32
		if hasVec {
			vecSim = graph.CosineSimilarity(params.QueryVec, n.FeatureVec)
		}
		rel := relevance(textSim, vecSim, hasVec)
		if rel < params.MinRelevance {
			continue
		}

		hasContradictsEdge := edgeExistsEitherDirection(g, n.ID, graph.EdgeContradicts)
		hasNegation := containsNegation(n.Content)
		isCorrection := n.EventType == graph.EventCorrection

		if !hasContradictsEdge && !hasNegation && !isCorrection {
			continue
		}

		strength := rel
		if hasContradictsEdge {
			strength *= 1.0
		} else {
			strength *= 0.8
		}
		if hasNegation {
			strength *= 1.0
		} else {
			strength *= 0.7
		}
		strength = clamp01(strength)

		contradicted = append(contradicted, ContradictedNode{NodeID: n.ID, Relevance: rel, Strength: strength})
	}

	sort.SliceStable(contradicted, func(i, j int) bool { return contradicted[i].Strength > contradicted[j].Strength })

	visited := make(map[graph.NodeID]struct{})
	var cascade []CascadeStep
	for _, c := range contradicted {
		cascadeFrom(g, c.NodeID, c.Strength, weakening, maxDepth, visited, &cascade)
	}

	weakened := dedupeCascade(cascade)

	invalidSet := make(map[graph.NodeID]struct{})
	var invalidated []graph.NodeID
	for _, c := range contradicted {
		markIfDecision(g, c.NodeID, invalidSet, &invalidated)
	}
	for _, w := range weakened {
		markIfDecision(g, w.NodeID, invalidSet, &invalidated)
	}
	sort.Slice(invalidated, func(i, j int) bool { return invalidated[i] < invalidated[j] })

	return RevisionReport{
		Contradicted:         contradicted,
		Cascade:              cascade,
		Weakened:             weakened,
		InvalidatedDecisions: invalidated,
	}, nil
}

func markIfDecision(g *graph.Graph, id graph.NodeID, seen map[graph.NodeID]struct{}, out *[]graph.NodeID) {
	if _, ok := seen[id]; ok {
		return
	}
	node, err := g.GetNode(id)
	if err != nil || node.EventType != graph.EventDecision {
		return
	}
	seen[id] = struct{}{}
	*out = append(*out, id)
}

func edgeExistsEitherDirection(g *graph.Graph, id graph.NodeID, edgeType graph.EdgeType) bool {
	for _, e := range g.EdgesFrom(id) {
		if e.EdgeType == edgeType {
			return true
		}
	}
	for _, e := range g.EdgesTo(id) {
		if e.EdgeType == edgeType {
			return true
		}
	}
	return false
}

// cascadeFrom walks dependents (nodes whose CausedBy/Supports edges
// point back to the contradicted node) breadth-first, weakening
// confidence by weakeningFactor * edge.weight * 0.7^(depth+1) at each
// hop, visiting every dependent at most once across the whole pass.
func cascadeFrom(g *graph.Graph, root graph.NodeID, rootStrength, weakeningFactor float32, maxDepth uint32, visited map[graph.NodeID]struct{}, out *[]CascadeStep) {
	type frontierEntry struct {
		id    graph.NodeID
		depth uint32
	}
	queue := []frontierEntry{{root, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		for _, e := range g.EdgesTo(cur.id) {
			if e.EdgeType != graph.EdgeCausedBy && e.EdgeType != graph.EdgeSupports {
				continue
			}
			dependent := e.SourceID
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}

			node, err := g.GetNode(dependent)
			if err != nil {
				continue
			}

			decay := pow07(cur.depth + 1)
			effectiveWeakening := weakeningFactor * e.Weight * decay
			revised := clamp01(node.Confidence - effectiveWeakening)

			*out = append(*out, CascadeStep{
				NodeID:             dependent,
				Depth:              cur.depth + 1,
				OriginalConfidence: node.Confidence,
				RevisedConfidence:  revised,
			})

			queue = append(queue, frontierEntry{dependent, cur.depth + 1})
		}
	}
}

func pow07(exp uint32) float32 {
	result := float32(1.0)
	for i := uint32(0); i < exp; i++ {
		result *= 0.7
	}
	return result
}

func dedupeCascade(cascade []CascadeStep) []WeakenedNode {
	best := make(map[graph.NodeID]CascadeStep)
	for _, c := range cascade {
		existing, ok := best[c.NodeID]
		if !ok || c.Depth < existing.Depth {
			best[c.NodeID] = c
		}
	}
	out := make([]WeakenedNode, 0, len(best))
	for id, c := range best {
		out = append(out, WeakenedNode{NodeID: id, Depth: c.Depth, OriginalConfidence: c.OriginalConfidence, RevisedConfidence: c.RevisedConfidence})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// GapType names which rule produced a gap.
type GapType int

const (
	GapUnjustifiedDecision GapType = iota
	GapSingleSourceInference
	GapLowConfidenceFoundation
	GapUnstableKnowledge
	GapStaleEvidence
)

// GapSortMode orders GapDetection's output.
type GapSortMode int

const (
	SortByHighestImpact GapSortMode = iota
	SortByLowestConfidence
	SortByMostRecentGap
)

// GapDetectionParams configures a gap scan.
type GapDetectionParams struct {
	MinConfidence   float32
	StaleThreshold  float32
	MinSupportCount int
	SortBy          GapSortMode
	MaxResults      int
}

// Gap is one detected weakness in the graph's justification structure.
type Gap struct {
	NodeID          graph.NodeID
	Type            GapType
	Severity        float32
	DownstreamCount int
}

// GapSummary tallies gaps by type and reports an overall health score.
type GapSummary struct {
	TotalGaps     int
	TotalNodes    int
	ByType        map[GapType]int
	HealthScore   float32
}

// GapReport is the result of a gap-detection pass.
type GapReport struct {
	Gaps    []Gap
	Summary GapSummary
}

// GapDetection scans the graph for five kinds of justification
// weakness: decisions without any incoming CausedBy/Supports
// justification, inferences with fewer than MinSupportCount incoming
// Supports edges, low-confidence Fact/Inference foundations that other
// nodes depend on, knowledge unstable under a long Supersedes chain,
// and Facts with at least one dependent whose decay_score has fallen
// below StaleThreshold.
func (q *QueryEngine) GapDetection(g *graph.Graph, params GapDetectionParams) (GapReport, error) {
	nodes := g.Nodes()
	var gaps []Gap
	byType := make(map[GapType]int)

	for _, n := range nodes {
		if n.EventType == graph.EventDecision {
			if !hasJustification(g, n.ID) {
				downstream := countDownstream(g, n.ID)
				gaps = append(gaps, Gap{NodeID: n.ID, Type: GapUnjustifiedDecision, Severity: 0.9, DownstreamCount: downstream})
				byType[GapUnjustifiedDecision]++
				continue
			}
		}

		if n.EventType == graph.EventInference {
			if countIncomingSupports(g, n.ID) < params.MinSupportCount {
				downstream := countDownstream(g, n.ID)
				gaps = append(gaps, Gap{NodeID: n.ID, Type: GapSingleSourceInference, Severity: 0.7, DownstreamCount: downstream})
				byType[GapSingleSourceInference]++
			}
		}

		if (n.EventType == graph.EventFact || n.EventType == graph.EventInference) && n.Confidence < params.MinConfidence {
			downstream := countDownstream(g, n.ID)
			if downstream > 0 {
				severity := clamp01(1 - n.Confidence)
				gaps = append(gaps, Gap{NodeID: n.ID, Type: GapLowConfidenceFoundation, Severity: severity, DownstreamCount: downstream})
				byType[GapLowConfidenceFoundation]++
			}
		}

		chainLen := countSupersedesChain(g, n.ID)
		if chainLen >= 3 {
			severity := clamp01(float32(chainLen) / 5.0)
			downstream := countDownstream(g, n.ID)
			gaps = append(gaps, Gap{NodeID: n.ID, Type: GapUnstableKnowledge, Severity: severity, DownstreamCount: downstream})
			byType[GapUnstableKnowledge]++
		}

		if n.EventType == graph.EventFact && n.DecayScore < params.StaleThreshold {
			downstream := countDownstream(g, n.ID)
			if downstream > 0 {
				severity := clamp01(1 - n.DecayScore)
				gaps = append(gaps, Gap{NodeID: n.ID, Type: GapStaleEvidence, Severity: severity, DownstreamCount: downstream})
				byType[GapStaleEvidence]++
			}
		}
	}

	switch params.SortBy {
	case SortByLowestConfidence:
		sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].Severity > gaps[j].Severity })
	case SortByMostRecentGap:
		sort.SliceStable(gaps, func(i, j int) bool {
			ni, _ := g.GetNode(gaps[i].NodeID)
			nj, _ := g.GetNode(gaps[j].NodeID)
			if ni == nil || nj == nil {
				return false
			}
			return ni.CreatedAt > nj.CreatedAt
		})
	default:
		sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].DownstreamCount > gaps[j].DownstreamCount })
	}

	if params.MaxResults > 0 && len(gaps) > params.MaxResults {
		gaps = gaps[:params.MaxResults]
	}

	totalNodes := len(nodes)
	healthScore := float32(1.0)
	if totalNodes > 0 {
		ratio := float32(len(gaps)) / float32(totalNodes)
		if ratio > 1 {
			ratio = 1
		}
		healthScore = 1 - ratio
	}

	return GapReport{
		Gaps: gaps,
		Summary: GapSummary{
			TotalGaps:   len(gaps),
			TotalNodes:  totalNodes,
			ByType:      byType,
			HealthScore: healthScore,
		},
	}, nil
}

func hasJustification(g *graph.Graph, id graph.NodeID) bool {
	for _, e := range g.EdgesTo(id) {
		if e.EdgeType == graph.EdgeCausedBy || e.EdgeType == graph.EdgeSupports {
			return true
		}
	}
	return false
}

func countIncomingSupports(g *graph.Graph, id graph.NodeID) int {
	count := 0
	for _, e := range g.EdgesTo(id) {
		if e.EdgeType == graph.EdgeSupports {
			count++
		}
	}
	return count
}

// countDownstream breadth-first counts nodes reachable by following
// CausedBy/Supports edges backward into id (i.e. nodes that depend on
// id), excluding id itself.
func countDownstream(g *graph.Graph, id graph.NodeID) int {
	visited := map[graph.NodeID]struct{}{id: {}}
	queue := []graph.NodeID{id}
	count := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.EdgesTo(cur) {
			if e.EdgeType != graph.EdgeCausedBy && e.EdgeType != graph.EdgeSupports {
				continue
			}
			dependent := e.SourceID
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			count++
			queue = append(queue, dependent)
		}
	}
	return count
}

// countSupersedesChain walks Supersedes edges in both directions from
// id and returns the total chain length (including id), guarding
// against cycles with a visited set.
func countSupersedesChain(g *graph.Graph, id graph.NodeID) int {
	visited := map[graph.NodeID]struct{}{id: {}}
	queue := []graph.NodeID{id}
	count := 1

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.EdgesFrom(cur) {
			if e.EdgeType != graph.EdgeSupersedes {
				continue
			}
			if _, seen := visited[e.TargetID]; seen {
				continue
			}
			visited[e.TargetID] = struct{}{}
			count++
			queue = append(queue, e.TargetID)
		}
		for _, e := range g.EdgesTo(cur) {
			if e.EdgeType != graph.EdgeSupersedes {
				continue
			}
			if _, seen := visited[e.SourceID]; seen {
				continue
			}
			visited[e.SourceID] = struct{}{}
			count++
			queue = append(queue, e.SourceID)
		}
	}
	return count
}

// AnalogicalAnchor identifies the subgraph to pattern-match against:
// either a node directly, or a query vector resolved to its
// most-similar node.
type AnalogicalAnchor struct {
	NodeID graph.NodeID
	Vector []float32
}

// AnalogicalParams configures an analogical-match search.
type AnalogicalParams struct {
	Anchor          AnalogicalAnchor
	ContextDepth    uint32
	ExcludeSessions []uint32
	MinSimilarity   float32
	MaxResults      int
}

// PatternMatch is one candidate node found structurally and
// content-wise similar to the anchor's context subgraph.
type PatternMatch struct {
	NodeID     graph.NodeID
	Similarity float32
}

// Analogy is the result of an analogical-match search.
type Analogy struct {
	AnchorNodeID graph.NodeID
	Matches      []PatternMatch
}

type structuralFingerprintData struct {
	eventHist       map[graph.EventType]int
	edgeHist        map[graph.EdgeType]int
	causalChainDepth int
	branchingFactor  float32
	memberSet        map[graph.NodeID]struct{}
}

// Analogical resolves the anchor (a node id, or the node nearest a
// query vector), extracts its context subgraph, and ranks every other
// node's context subgraph by a blend of structural and content
// similarity.
func (q *QueryEngine) Analogical(g *graph.Graph, params AnalogicalParams) (Analogy, error) {
	anchorID := params.Anchor.NodeID
	if len(params.Anchor.Vector) > 0 {
		sims, err := q.Similarity(g, SimilarityParams{QueryVec: params.Anchor.Vector, TopK: 1, SkipZero: true})
		if err != nil {
			return Analogy{}, err
		}
		if len(sims) > 0 {
			anchorID = sims[0].NodeID
		}
	}

	anchorNode, err := g.GetNode(anchorID)
	if err != nil {
		return Analogy{}, err
	}

	anchorCtx, err := q.context(g, anchorID, params.ContextDepth)
	if err != nil {
		return Analogy{}, err
	}
	anchorFP := structuralFingerprint(g, anchorCtx)

	excludeSessions := toSessionSet(params.ExcludeSessions)
	sessionSet := make(map[uint32]struct{})
	for _, n := range g.Nodes() {
		sessionSet[n.SessionID] = struct{}{}
	}
	singleSession := len(sessionSet) <= 1

	var matches []PatternMatch
	for _, n := range g.Nodes() {
		if _, inAnchor := anchorFP.memberSet[n.ID]; inAnchor {
			continue
		}
		if _, excluded := excludeSessions[n.SessionID]; excluded {
			continue
		}
		if !singleSession && n.SessionID == anchorNode.SessionID {
			continue
		}

		candidateCtx, err := q.context(g, n.ID, params.ContextDepth)
		if err != nil {
			continue
		}
		candidateFP := structuralFingerprint(g, candidateCtx)

		structural := compareFingerprints(anchorFP, candidateFP)
		contentSim := clamp01(graph.CosineSimilarity(anchorNode.FeatureVec, n.FeatureVec))
		combined := 0.6*structural + 0.4*contentSim

		if combined >= params.MinSimilarity {
			matches = append(matches, PatternMatch{NodeID: n.ID, Similarity: combined})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if params.MaxResults > 0 && len(matches) > params.MaxResults {
		matches = matches[:params.MaxResults]
	}

	return Analogy{AnchorNodeID: anchorID, Matches: matches}, nil
}

func structuralFingerprint(g *graph.Graph, ctx TraverseResult) structuralFingerprintData {
	fp := structuralFingerprintData{
		eventHist: make(map[graph.EventType]int),
		edgeHist:  make(map[graph.EdgeType]int),
		memberSet: make(map[graph.NodeID]struct{}),
	}
	for _, n := range ctx.Nodes {
		fp.eventHist[n.EventType]++
		fp.memberSet[n.ID] = struct{}{}
	}
	for _, e := range ctx.Edges {
		fp.edgeHist[e.EdgeType]++
	}

	fp.causalChainDepth = causalChainDepth(g, ctx)
	fp.branchingFactor = branchingFactor(ctx)
	return fp
}

func causalChainDepth(g *graph.Graph, ctx TraverseResult) int {
	members := make(map[graph.NodeID]struct{}, len(ctx.Nodes))
	for _, n := range ctx.Nodes {
		members[n.ID] = struct{}{}
	}

	maxDepth := 0
	for _, n := range ctx.Nodes {
		depth := bfsCausalDepth(g, n.ID, members)
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}

func bfsCausalDepth(g *graph.Graph, start graph.NodeID, members map[graph.NodeID]struct{}) int {
	visited := map[graph.NodeID]struct{}{start: {}}
	queue := []struct {
		id    graph.NodeID
		depth int
	}{{start, 0}}

	maxDepth := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > maxDepth {
			maxDepth = cur.depth
		}
		for _, e := range g.EdgesFrom(cur.id) {
			if e.EdgeType != graph.EdgeCausedBy {
				continue
			}
			if _, inMembers := members[e.TargetID]; !inMembers {
				continue
			}
			if _, seen := visited[e.TargetID]; seen {
				continue
			}
			visited[e.TargetID] = struct{}{}
			queue = append(queue, struct {
				id    graph.NodeID
				depth int
			}{e.TargetID, cur.depth + 1})
		}
	}
	return maxDepth
}

func branchingFactor(ctx TraverseResult) float32 {
	if len(ctx.Nodes) == 0 {
		return 0
	}
	outDegree := make(map[graph.NodeID]int)
	for _, e := range ctx.Edges {
		outDegree[e.SourceID]++
	}
	var total int
	for _, n := range ctx.Nodes {
		total += outDegree[n.ID]
	}
	return float32(total) / float32(len(ctx.Nodes))
}

func compareFingerprints(a, b structuralFingerprintData) float32 {
	typeSim := mapCosineSimilarity(eventHistToMap(a.eventHist), eventHistToMap(b.eventHist))
	edgeSim := mapCosineSimilarity(edgeHistToMap(a.edgeHist), edgeHistToMap(b.edgeHist))

	chainSim := float32(1.0)
	maxChain := maxInt(a.causalChainDepth, b.causalChainDepth)
	if maxChain > 0 {
		diff := a.causalChainDepth - b.causalChainDepth
		if diff < 0 {
			diff = -diff
		}
		chainSim = 1 - float32(diff)/float32(maxChain)
	}

	branchMax := a.branchingFactor
	if b.branchingFactor > branchMax {
		branchMax = b.branchingFactor
	}
	if branchMax < 0.01 {
		branchMax = 0.01
	}
	branchDiff := a.branchingFactor - b.branchingFactor
	if branchDiff < 0 {
		branchDiff = -branchDiff
	}
	branchSim := 1 - branchDiff/branchMax

	return 0.3*typeSim + 0.3*edgeSim + 0.2*chainSim + 0.2*branchSim
}

func eventHistToMap(h map[graph.EventType]int) map[string]float32 {
	out := make(map[string]float32, len(h))
	for t, count := range h {
		out[t.Name()] = float32(count)
	}
	return out
}

func edgeHistToMap(h map[graph.EdgeType]int) map[string]float32 {
	out := make(map[string]float32, len(h))
	for t, count := range h {
		out[t.Name()] = float32(count)
	}
	return out
}

// mapCosineSimilarity is a sparse-map cosine similarity: 1.0 if both
// maps are empty, else dot/norms with a 1e-12 floor on the denominator.
func mapCosineSimilarity(a, b map[string]float32) float32 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	var dot, normA, normB float32
	for k, v := range a {
		normA += v * v
		if bv, ok := b[k]; ok {
			dot += v * bv
		}
	}
	for _, v := range b {
		normB += v * v
	}
	denom := sqrt32(normA) * sqrt32(normB)
	if denom < 1e-12 {
		return 0
	}
	return dot / denom
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ChangeType classifies one step in a belief's drift timeline.
type ChangeType int

const (
	ChangeInitial ChangeType = iota
	ChangeRefined
	ChangeCorrected
	ChangeContradicted
	ChangeReinforced
)

// BeliefSnapshot is one point in a belief's timeline.
type BeliefSnapshot struct {
	NodeID         graph.NodeID
	CreatedAt      uint64
	Confidence     float32
	ChangeType     ChangeType
	ContentPreview string
}

// BeliefTimeline is the ordered history of a belief as it evolved
// through Supersedes chains, plus summary stability metrics.
type BeliefTimeline struct {
	Snapshots       []BeliefSnapshot
	ChangeCount     int
	Stability       float32
	LikelyToChange  bool
}

// DriftParams configures a drift-detection scan.
type DriftParams struct {
	QueryText    string
	QueryVec     []float32
	MinRelevance float32
	MaxResults   int
}

// DriftReport is the result of a drift-detection pass.
type DriftReport struct {
	Timelines []BeliefTimeline
}

// DriftDetection finds every node relevant to the query, groups them
// into Supersedes chains (falling back to the top relevant nodes if no
// chain roots are found), classifies each non-initial snapshot's
// change type, and ranks timelines by how much they've changed.
func (q *QueryEngine) DriftDetection(g *graph.Graph, params DriftParams) (DriftReport, error) {
	queryTerms := toTermSet(q.tok.Tokenize(params.QueryText))
	hasVec := len(params.QueryVec) > 0

	type relevantNode struct {
		id  graph.NodeID
		rel float32
	}
	var relevant []relevantNode
	relevantSet := make(map[graph.NodeID]struct{})

	for _, n := range g.Nodes() {
		nodeTerms := toTermSet(q.tok.Tokenize(n.Content))
		textSim := termOverlapFraction(queryTerms, nodeTerms)
		var vecSim float32
		if hasVec {
			vecSim = graph.CosineSimilarity(params.QueryVec, n.FeatureVec)
		}
		rel := relevance(textSim, vecSim, hasVec)
		if rel >= params.MinRelevance {
			relevant = append(relevant, relevantNode{n.ID, rel})
			relevantSet[n.ID] = struct{}{}
		}
	}

	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].rel > relevant[j].rel })

	var roots []graph.NodeID
	for _, r := range relevant {
		if !supersededByRelevant(g, r.id, relevantSet) {
			roots = append(roots, r.id)
		}
	}
	if len(roots) == 0 {
		limit := params.MaxResults
		if limit <= 0 || limit > len(relevant) {
			limit = len(relevant)
		}
		for i := 0; i < limit; i++ {
			roots = append(roots, relevant[i].id)
		}
	}

	chained := make(map[graph.NodeID]struct{})
	var timelines []BeliefTimeline
	for _, root := range roots {
		if _, used := chained[root]; used {
			continue
		}
		chain := buildChain(g, root, chained)
		timeline := classifyTimeline(g, chain)
		timelines = append(timelines, timeline)
	}

	for _, r := range relevant {
		if _, used := chained[r.id]; used {
			continue
		}
		node, err := g.GetNode(r.id)
		if err != nil {
			continue
		}
		timelines = append(timelines, BeliefTimeline{
			Snapshots: []BeliefSnapshot{{
				NodeID:         node.ID,
				CreatedAt:      node.CreatedAt,
				Confidence:     node.Confidence,
				ChangeType:     ChangeInitial,
				ContentPreview: preview(node.Content),
			}},
			ChangeCount: 0,
			Stability:   1.0,
		})
	}

	sort.SliceStable(timelines, func(i, j int) bool { return timelines[i].ChangeCount > timelines[j].ChangeCount })
	if params.MaxResults > 0 && len(timelines) > params.MaxResults {
		timelines = timelines[:params.MaxResults]
	}

	return DriftReport{Timelines: timelines}, nil
}

func supersededByRelevant(g *graph.Graph, id graph.NodeID, relevantSet map[graph.NodeID]struct{}) bool {
	for _, e := range g.EdgesTo(id) {
		if e.EdgeType != graph.EdgeSupersedes {
			continue
		}
		if _, ok := relevantSet[e.SourceID]; ok {
			return true
		}
	}
	return false
}

func buildChain(g *graph.Graph, root graph.NodeID, chained map[graph.NodeID]struct{}) []graph.NodeID {
	visited := map[graph.NodeID]struct{}{root: {}}
	chain := []graph.NodeID{root}
	chained[root] = struct{}{}

	frontier := root
	for {
		var next graph.NodeID
		found := false
		for _, e := range g.EdgesFrom(frontier) {
			if e.EdgeType == graph.EdgeSupersedes {
				if _, seen := visited[e.TargetID]; !seen {
					next = e.TargetID
					found = true
					break
				}
			}
		}
		if !found {
			break
		}
		visited[next] = struct{}{}
		chained[next] = struct{}{}
		chain = append(chain, next)
		frontier = next
	}

	frontier = root
	for {
		var next graph.NodeID
		found := false
		for _, e := range g.EdgesTo(frontier) {
			if e.EdgeType == graph.EdgeSupersedes {
				if _, seen := visited[e.SourceID]; !seen {
					next = e.SourceID
					found = true
					break
				}
			}
		}
		if !found {
			break
		}
		visited[next] = struct{}{}
		chained[next] = struct{}{}
		chain = append(chain, next)
		frontier = next
	}

	return chain
}

func classifyTimeline(g *graph.Graph, chain []graph.NodeID) BeliefTimeline {
	nodes := make([]*graph.CognitiveEvent, 0, len(chain))
	for _, id := range chain {
		n, err := g.GetNode(id)
		if err == nil {
			nodes = append(nodes, n)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].CreatedAt < nodes[j].CreatedAt })

	var snapshots []BeliefSnapshot
	changeCount := 0
	corrections := 0
	contradictions := 0

	for i, n := range nodes {
		if i == 0 {
			snapshots = append(snapshots, BeliefSnapshot{
				NodeID: n.ID, CreatedAt: n.CreatedAt, Confidence: n.Confidence,
				ChangeType: ChangeInitial, ContentPreview: preview(n.Content),
			})
			continue
		}
		prev := nodes[i-1]
		changeType := classifyChange(g, n, prev)
		changeCount++
		if changeType == ChangeCorrected {
			corrections++
		}
		if changeType == ChangeContradicted {
			contradictions++
		}
		snapshots = append(snapshots, BeliefSnapshot{
			NodeID: n.ID, CreatedAt: n.CreatedAt, Confidence: n.Confidence,
			ChangeType: changeType, ContentPreview: preview(n.Content),
		})
	}

	stability := float32(1.0)
	total := len(snapshots)
	if total > 1 {
		stability = clamp01(1 - float32(corrections+contradictions)/float32(total))
	}

	likely := false
	if changeCount > 0 {
		likely = float32(corrections+contradictions)/float32(changeCount) > 0.3
	}

	return BeliefTimeline{
		Snapshots:      snapshots,
		ChangeCount:    changeCount,
		Stability:      stability,
		LikelyToChange: likely,
	}
}

func classifyChange(g *graph.Graph, n, prev *graph.CognitiveEvent) ChangeType {
	if edgeBetweenEitherDirection(g, n.ID, prev.ID, graph.EdgeContradicts) {
		return ChangeContradicted
	}
	if n.EventType == graph.EventCorrection || edgeBetween(g, n.ID, prev.ID, graph.EdgeSupersedes) {
		return ChangeCorrected
	}
	if edgeBetweenEitherDirection(g, n.ID, prev.ID, graph.EdgeSupports) {
		return ChangeReinforced
	}
	if n.Confidence >= prev.Confidence {
		return ChangeRefined
	}
	return ChangeCorrected
}

func edgeBetween(g *graph.Graph, from, to graph.NodeID, edgeType graph.EdgeType) bool {
	for _, e := range g.EdgesFrom(from) {
		if e.EdgeType == edgeType && e.TargetID == to {
			return true
		}
	}
	return false
}

func edgeBetweenEitherDirection(g *graph.Graph, a, b graph.NodeID, edgeType graph.EdgeType) bool {
	return edgeBetween(g, a, b, edgeType) || edgeBetween(g, b, a, edgeType)
}

func preview(content string) string {
	const limit = 120
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
