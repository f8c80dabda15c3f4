package query

import (
	"container/heap"
	"sort"

	"github.com/orneryd/agentmem/pkg/graph"
)

// CentralityAlgorithm selects which centrality computation to run.
type CentralityAlgorithm int

const (
	AlgorithmPageRank CentralityAlgorithm = iota
	AlgorithmDegree
	AlgorithmBetweenness
)

const betweennessSampleCap = 10000
const betweennessSampleSize = 1000

// CentralityParams configures a centrality computation.
type CentralityParams struct {
	Algorithm     CentralityAlgorithm
	Damping       float32 // PageRank only; typically 0.85
	MaxIterations uint32
	Tolerance     float32
	TopK          int
	EventTypes    []graph.EventType
	EdgeTypes     []graph.EdgeType
}

// CentralityScore is one node's computed score.
type CentralityScore struct {
	NodeID graph.NodeID
	Score  float32
}

// CentralityResult carries the ranked scores plus PageRank's convergence
// diagnostics (always true/0 for Degree and Betweenness).
type CentralityResult struct {
	Scores     []CentralityScore
	Algorithm  CentralityAlgorithm
	Iterations uint32
	Converged  bool
}

// Centrality computes PageRank, Degree, or Betweenness centrality over
// the subgraph induced by EventTypes/EdgeTypes filters (empty = all).
func (q *QueryEngine) Centrality(g *graph.Graph, params CentralityParams) (CentralityResult, error) {
	typeSet := toEventTypeSet(params.EventTypes)
	edgeSet := toEdgeTypeSet(params.EdgeTypes)

	var nodeIDs []graph.NodeID
	nodeSet := make(map[graph.NodeID]struct{})
	for _, n := range g.Nodes() {
		if len(typeSet) > 0 {
			if _, ok := typeSet[n.EventType]; !ok {
				continue
			}
		}
		nodeIDs = append(nodeIDs, n.ID)
		nodeSet[n.ID] = struct{}{}
	}

	var edges []graph.Edge
	for _, e := range g.Edges() {
		if _, ok := nodeSet[e.SourceID]; !ok {
			continue
		}
		if _, ok := nodeSet[e.TargetID]; !ok {
			continue
		}
		if len(edgeSet) > 0 {
			if _, ok := edgeSet[e.EdgeType]; !ok {
				continue
			}
		}
		edges = append(edges, e)
	}

	switch params.Algorithm {
	case AlgorithmDegree:
		return degreeCentrality(nodeIDs, edges, params.TopK), nil
	case AlgorithmBetweenness:
		return betweennessCentrality(nodeIDs, edges, params.TopK), nil
	default:
		return pagerank(nodeIDs, edges, params.Damping, params.MaxIterations, params.Tolerance, params.TopK), nil
	}
}

func pagerank(nodeIDs []graph.NodeID, edges []graph.Edge, damping float32, maxIterations uint32, tolerance float32, topK int) CentralityResult {
	n := len(nodeIDs)
	if n == 0 {
		return CentralityResult{Algorithm: AlgorithmPageRank, Converged: true}
	}

	idToIdx := make(map[graph.NodeID]int, n)
	for i, id := range nodeIDs {
		idToIdx[id] = i
	}

	outgoing := make([][]int, n)
	incoming := make([][]int, n)
	for _, e := range edges {
		srcIdx, ok1 := idToIdx[e.SourceID]
		tgtIdx, ok2 := idToIdx[e.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		outgoing[srcIdx] = append(outgoing[srcIdx], tgtIdx)
		incoming[tgtIdx] = append(incoming[tgtIdx], srcIdx)
	}

	pr := make([]float32, n)
	for i := range pr {
		pr[i] = 1.0 / float32(n)
	}

	var iterations uint32
	var converged bool

	for iter := uint32(0); iter < maxIterations; iter++ {
		iterations++
		newPR := make([]float32, n)
		base := (1 - damping) / float32(n)
		for i := range newPR {
			newPR[i] = base
		}

		var danglingSum float32
		for i := range outgoing {
			if len(outgoing[i]) == 0 {
				danglingSum += pr[i]
			}
		}

		for i := 0; i < n; i++ {
			newPR[i] += damping * danglingSum / float32(n)
			for _, j := range incoming[i] {
				outDegree := float32(len(outgoing[j]))
				if outDegree > 0 {
					newPR[i] += damping * pr[j] / outDegree
				}
			}
		}

		var maxDiff float32
		for i := 0; i < n; i++ {
			diff := newPR[i] - pr[i]
			if diff < 0 {
				diff = -diff
			}
			if diff > maxDiff {
				maxDiff = diff
			}
		}

		pr = newPR
		if maxDiff < tolerance {
			converged = true
			break
		}
	}

	scores := make([]CentralityScore, n)
	for i, id := range nodeIDs {
		scores[i] = CentralityScore{NodeID: id, Score: pr[i]}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if topK > 0 && len(scores) > topK {
		scores = scores[:topK]
	}

	return CentralityResult{Scores: scores, Algorithm: AlgorithmPageRank, Iterations: iterations, Converged: converged}
}

func degreeCentrality(nodeIDs []graph.NodeID, edges []graph.Edge, topK int) CentralityResult {
	n := len(nodeIDs)
	degrees := make(map[graph.NodeID]uint32, n)
	for _, id := range nodeIDs {
		degrees[id] = 0
	}
	for _, e := range edges {
		degrees[e.SourceID]++
		degrees[e.TargetID]++
	}

	maxPossible := 1
	if n > 1 {
		maxPossible = 2 * (n - 1)
	}

	scores := make([]CentralityScore, 0, len(degrees))
	for id, deg := range degrees {
		scores = append(scores, CentralityScore{NodeID: id, Score: float32(deg) / float32(maxPossible)})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].NodeID < scores[j].NodeID
	})
	if topK > 0 && len(scores) > topK {
		scores = scores[:topK]
	}
	return CentralityResult{Scores: scores, Algorithm: AlgorithmDegree, Converged: true}
}

// betweennessCentrality runs Brandes' algorithm over the undirected
// projection of the filtered subgraph, sampling at most 1000 source
// nodes once the subgraph exceeds 10,000 nodes.
func betweennessCentrality(nodeIDs []graph.NodeID, edges []graph.Edge, topK int) CentralityResult {
	n := len(nodeIDs)
	if n == 0 {
		return CentralityResult{Algorithm: AlgorithmBetweenness, Converged: true}
	}

	idToIdx := make(map[graph.NodeID]int, n)
	for i, id := range nodeIDs {
		idToIdx[id] = i
	}

	adj := make([][]int, n)
	for _, e := range edges {
		src, ok1 := idToIdx[e.SourceID]
		tgt, ok2 := idToIdx[e.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		adj[src] = append(adj[src], tgt)
		adj[tgt] = append(adj[tgt], src)
	}

	betweenness := make([]float64, n)

	sampleSize := n
	if n > betweennessSampleCap {
		sampleSize = betweennessSampleSize
	}

	for s := 0; s < sampleSize; s++ {
		stack := make([]int, 0, n)
		pred := make([][]int, n)
		sigma := make([]float64, n)
		sigma[s] = 1.0
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		dist[s] = 0
		queue := []int{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj[v] {
				if dist[w] < 0 {
					queue = append(queue, w)
					dist[w] = dist[v] + 1
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1.0 + delta[w])
			}
			if w != s {
				betweenness[w] += delta[w]
			}
		}
	}

	norm := float32(1.0)
	if n > 2 {
		norm = float32((n - 1) * (n - 2))
	}

	scores := make([]CentralityScore, n)
	for i, id := range nodeIDs {
		scores[i] = CentralityScore{NodeID: id, Score: float32(betweenness[i]) / norm}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if topK > 0 && len(scores) > topK {
		scores = scores[:topK]
	}

	return CentralityResult{Scores: scores, Algorithm: AlgorithmBetweenness, Converged: true}
}

// ShortestPathParams configures a path query between two nodes.
type ShortestPathParams struct {
	Source        graph.NodeID
	Target        graph.NodeID
	EdgeTypes     []graph.EdgeType
	Direction     Direction
	MaxDepth      uint32
	Weighted      bool
}

// PathResult is the outcome of a shortest-path query.
type PathResult struct {
	Path  []graph.NodeID
	Edges []graph.Edge
	Cost  float32
	Found bool
}

// ShortestPath finds the shortest path from Source to Target: an
// unweighted bidirectional BFS, or — when Weighted is set — Dijkstra
// with edge cost 1-weight (higher weight meaning a cheaper hop).
func (q *QueryEngine) ShortestPath(g *graph.Graph, params ShortestPathParams) (PathResult, error) {
	if params.Source == params.Target {
		return PathResult{Path: []graph.NodeID{params.Source}, Found: true}, nil
	}
	if _, err := g.GetNode(params.Source); err != nil {
		return PathResult{}, err
	}
	if _, err := g.GetNode(params.Target); err != nil {
		return PathResult{}, err
	}

	edgeFilter := toEdgeTypeSet(params.EdgeTypes)

	if params.Weighted {
		return dijkstraPath(g, params, edgeFilter), nil
	}
	return bidirectionalBFS(g, params, edgeFilter), nil
}

func neighborsFiltered(g *graph.Graph, id graph.NodeID, direction Direction, edgeFilter map[graph.EdgeType]struct{}, forward bool) []graph.NodeID {
	var out []graph.NodeID
	effectiveDir := direction
	if !forward {
		// searching backward from the target: every logical direction flips
		switch direction {
		case DirectionForward:
			effectiveDir = DirectionBackward
		case DirectionBackward:
			effectiveDir = DirectionForward
		default:
			effectiveDir = DirectionBoth
		}
	}

	if effectiveDir == DirectionForward || effectiveDir == DirectionBoth {
		for _, e := range g.EdgesFrom(id) {
			if len(edgeFilter) == 0 {
				out = append(out, e.TargetID)
				continue
			}
			if _, ok := edgeFilter[e.EdgeType]; ok {
				out = append(out, e.TargetID)
			}
		}
	}
	if effectiveDir == DirectionBackward || effectiveDir == DirectionBoth {
		for _, e := range g.EdgesTo(id) {
			if len(edgeFilter) == 0 {
				out = append(out, e.SourceID)
				continue
			}
			if _, ok := edgeFilter[e.EdgeType]; ok {
				out = append(out, e.SourceID)
			}
		}
	}
	return out
}

type bfsQueueEntry struct {
	id    graph.NodeID
	depth uint32
}

func bidirectionalBFS(g *graph.Graph, params ShortestPathParams, edgeFilter map[graph.EdgeType]struct{}) PathResult {
	forwardVisited := map[graph.NodeID]graph.NodeID{params.Source: params.Source}
	backwardVisited := map[graph.NodeID]graph.NodeID{params.Target: params.Target}
	forwardQueue := []bfsQueueEntry{{params.Source, 0}}
	backwardQueue := []bfsQueueEntry{{params.Target, 0}}

	halfDepth := params.MaxDepth/2 + 1
	var meeting graph.NodeID
	found := false

outer:
	for len(forwardQueue) > 0 || len(backwardQueue) > 0 {
		if len(forwardQueue) > 0 {
			cur := forwardQueue[0]
			forwardQueue = forwardQueue[1:]
			if cur.depth < halfDepth {
				for _, nb := range neighborsFiltered(g, cur.id, params.Direction, edgeFilter, true) {
					if _, seen := forwardVisited[nb]; !seen {
						forwardVisited[nb] = cur.id
						forwardQueue = append(forwardQueue, bfsQueueEntry{nb, cur.depth + 1})
					}
					if _, ok := backwardVisited[nb]; ok {
						meeting = nb
						found = true
						break outer
					}
				}
			}
		}

		if len(backwardQueue) > 0 {
			cur := backwardQueue[0]
			backwardQueue = backwardQueue[1:]
			if cur.depth < halfDepth {
				for _, nb := range neighborsFiltered(g, cur.id, params.Direction, edgeFilter, false) {
					if _, seen := backwardVisited[nb]; !seen {
						backwardVisited[nb] = cur.id
						backwardQueue = append(backwardQueue, bfsQueueEntry{nb, cur.depth + 1})
					}
					if _, ok := forwardVisited[nb]; ok {
						meeting = nb
						found = true
						break outer
					}
				}
			}
		}
	}

	if !found {
		return PathResult{Found: false}
	}

	var forwardPath []graph.NodeID
	for cur := meeting; cur != params.Source; {
		forwardPath = append(forwardPath, cur)
		cur = forwardVisited[cur]
	}
	forwardPath = append(forwardPath, params.Source)
	for i, j := 0, len(forwardPath)-1; i < j; i, j = i+1, j-1 {
		forwardPath[i], forwardPath[j] = forwardPath[j], forwardPath[i]
	}

	var backwardPath []graph.NodeID
	for cur := meeting; cur != params.Target; {
		cur = backwardVisited[cur]
		backwardPath = append(backwardPath, cur)
	}

	path := append(forwardPath, backwardPath...)
	cost := float32(len(path) - 1)

	var edges []graph.Edge
	for i := 0; i < len(path)-1; i++ {
		edges = append(edges, findConnectingEdge(g, path[i], path[i+1]))
	}

	return PathResult{Path: path, Edges: edges, Cost: cost, Found: true}
}

func findConnectingEdge(g *graph.Graph, a, b graph.NodeID) graph.Edge {
	for _, e := range g.EdgesFrom(a) {
		if e.TargetID == b {
			return e
		}
	}
	for _, e := range g.EdgesFrom(b) {
		if e.TargetID == a {
			return e
		}
	}
	return graph.Edge{}
}

type dijkstraState struct {
	cost float32
	node graph.NodeID
}

type dijkstraHeap []dijkstraState

func (h dijkstraHeap) Len() int            { return len(h) }
func (h dijkstraHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h dijkstraHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dijkstraHeap) Push(x interface{}) { *h = append(*h, x.(dijkstraState)) }
func (h *dijkstraHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func dijkstraPath(g *graph.Graph, params ShortestPathParams, edgeFilter map[graph.EdgeType]struct{}) PathResult {
	const inf = float32(1 << 30)

	dist := map[graph.NodeID]float32{params.Source: 0}
	prev := map[graph.NodeID]graph.NodeID{}

	h := &dijkstraHeap{{cost: 0, node: params.Source}}
	heap.Init(h)

	for h.Len() > 0 {
		cur := heap.Pop(h).(dijkstraState)
		if cur.node == params.Target {
			var path []graph.NodeID
			for c := params.Target; c != params.Source; {
				path = append(path, c)
				c = prev[c]
			}
			path = append(path, params.Source)
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}

			var edges []graph.Edge
			for i := 0; i < len(path)-1; i++ {
				edges = append(edges, findConnectingEdge(g, path[i], path[i+1]))
			}

			return PathResult{Path: path, Edges: edges, Cost: cur.cost, Found: true}
		}

		if best, ok := dist[cur.node]; ok && cur.cost > best {
			continue
		}

		for _, e := range g.EdgesFrom(cur.node) {
			if len(edgeFilter) > 0 {
				if _, ok := edgeFilter[e.EdgeType]; !ok {
					continue
				}
			}
			edgeCost := 1 - e.Weight
			nextCost := cur.cost + edgeCost
			if best, ok := dist[e.TargetID]; !ok || nextCost < best {
				dist[e.TargetID] = nextCost
				prev[e.TargetID] = cur.node
				heap.Push(h, dijkstraState{cost: nextCost, node: e.TargetID})
			}
		}

		if params.Direction == DirectionBackward || params.Direction == DirectionBoth {
			for _, e := range g.EdgesTo(cur.node) {
				if len(edgeFilter) > 0 {
					if _, ok := edgeFilter[e.EdgeType]; !ok {
						continue
					}
				}
				edgeCost := 1 - e.Weight
				nextCost := cur.cost + edgeCost
				if best, ok := dist[e.SourceID]; !ok || nextCost < best {
					dist[e.SourceID] = nextCost
					prev[e.SourceID] = cur.node
					heap.Push(h, dijkstraState{cost: nextCost, node: e.SourceID})
				}
			}
		}
	}

	return PathResult{Found: false}
}
