// Package session implements the SessionManager façade: a single-mutex
// wrapper around one graph.Graph that serializes every call from
// upstream callers into a WriteEngine mutation or a QueryEngine
// read/consolidation. It is the sole owner of the Graph.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/orneryd/agentmem/internal/obslog"
	"github.com/orneryd/agentmem/pkg/graph"
	"github.com/orneryd/agentmem/pkg/query"
	"github.com/orneryd/agentmem/pkg/writeengine"
)

// SessionState tracks the lifecycle of a caller-defined session id.
type SessionState int

const (
	SessionActive SessionState = iota
	SessionEnded
)

func (s SessionState) String() string {
	if s == SessionEnded {
		return "ended"
	}
	return "active"
}

// Manager owns a Graph behind a single mutex and exposes the coarse
// "tool" operations the façade is specified to provide. It holds no
// business logic of its own beyond dispatch, session bookkeeping, and
// the access_count touch on every read that names specific nodes.
type Manager struct {
	mu sync.Mutex

	g  *graph.Graph
	wr *writeengine.WriteEngine
	qe *query.QueryEngine

	sessions map[uint32]SessionState
}

// New returns a Manager over a fresh graph of the given feature-vector
// dimension, using now as the WriteEngine's time source.
func New(dimension int, now writeengine.Clock) (*Manager, error) {
	g, err := graph.New(dimension)
	if err != nil {
		return nil, err
	}
	return &Manager{
		g:        g,
		wr:       writeengine.New(now),
		qe:       query.New(),
		sessions: make(map[uint32]SessionState),
	}, nil
}

// NewFromGraph returns a Manager taking ownership of an already-built
// graph, such as one reconstructed by the codec from a snapshot. Every
// session id present among the graph's nodes is marked active.
func NewFromGraph(g *graph.Graph, now writeengine.Clock) *Manager {
	sessions := make(map[uint32]SessionState)
	for _, n := range g.Nodes() {
		sessions[n.SessionID] = SessionActive
	}
	return &Manager{
		g:        g,
		wr:       writeengine.New(now),
		qe:       query.New(),
		sessions: sessions,
	}
}

// WallClock is the default Clock for production callers: microseconds
// since the Unix epoch.
func WallClock() uint64 {
	return uint64(time.Now().UnixMicro())
}

// Graph returns the underlying graph for callers that need direct
// access (the codec, chiefly). Callers must hold no expectation of
// safety against concurrent Manager calls: access through the returned
// pointer does not take the Manager's mutex.
func (m *Manager) Graph() *graph.Graph {
	return m.g
}

// touchAll increments access_count for every node id in ids, ignoring
// NodeNotFound (a node may have been removed between lookup and touch
// under a different caller, though the single mutex makes that
// unreachable in practice).
func (m *Manager) touchAll(ids []graph.NodeID) {
	for _, id := range ids {
		_ = m.g.Touch(id)
	}
}

// --- session lifecycle -----------------------------------------------

// StartSession records sessionID as active. Starting an already-active
// session is a no-op; starting one that previously ended reactivates it
// (equivalent to ResumeSession).
func (m *Manager) StartSession(sessionID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = SessionActive
	obslog.Info("session started", map[string]any{"session_id": sessionID})
}

// EndSession marks sessionID ended. Events already recorded under it
// are untouched; add_event with auto_chain against an ended session
// still chains normally since the SessionIndex does not track
// lifecycle state.
func (m *Manager) EndSession(sessionID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = SessionEnded
	obslog.Info("session ended", map[string]any{"session_id": sessionID})
}

// ResumeSession reactivates a previously ended session.
func (m *Manager) ResumeSession(sessionID uint32) {
	m.StartSession(sessionID)
}

// SessionStatus reports whether sessionID is known, and its state if so.
func (m *Manager) SessionStatus(sessionID uint32) (SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// --- mutations (WriteEngine) -------------------------------------------

// Add constructs a new cognitive event. See writeengine.AddEvent.
func (m *Manager) Add(params writeengine.AddEventParams) (writeengine.AddEventResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, err := m.wr.AddEvent(m.g, params)
	if err != nil {
		return result, fmt.Errorf("session add: %w", err)
	}
	if _, known := m.sessions[params.SessionID]; !known {
		m.sessions[params.SessionID] = SessionActive
	}
	return result, nil
}

// Correct records a correction for oldID. See writeengine.Correct.
func (m *Manager) Correct(oldID graph.NodeID, newContent string, sessionID uint32) (graph.NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	newID, err := m.wr.Correct(m.g, oldID, newContent, sessionID)
	if err != nil {
		return 0, fmt.Errorf("session correct: %w", err)
	}
	return newID, nil
}

// --- reads (QueryEngine retrieval) -------------------------------------

// Resolve follows id's outgoing Supersedes chain to its terminal node.
// See graph.Graph.Resolve.
func (m *Manager) Resolve(id graph.NodeID) (graph.NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, err := m.g.Resolve(id)
	if err != nil {
		return 0, err
	}
	_ = m.g.Touch(resolved)
	return resolved, nil
}

// Query runs a pattern match (the façade's "query" operation).
func (m *Manager) Query(params query.PatternParams) ([]*graph.CognitiveEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes, err := m.qe.Pattern(m.g, params)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		_ = m.g.Touch(n.ID)
	}
	return nodes, nil
}

// Traverse runs a bounded BFS from params.Start.
func (m *Manager) Traverse(params query.TraverseParams) (query.TraverseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, err := m.qe.Traverse(m.g, params)
	if err != nil {
		return result, err
	}
	for _, n := range result.Nodes {
		_ = m.g.Touch(n.ID)
	}
	return result, nil
}

// Context extracts the subgraph reachable from center within depth hops
// in either direction — a thin Traverse wrapper, matching the core's own
// internal helper of the same name.
func (m *Manager) Context(center graph.NodeID, depth uint32) (query.TraverseResult, error) {
	return m.Traverse(query.TraverseParams{
		Start:      center,
		Direction:  query.DirectionBoth,
		MaxDepth:   depth,
		MaxResults: 1 << 20,
	})
}

// Similar runs a cosine-similarity scan.
func (m *Manager) Similar(params query.SimilarityParams) ([]query.SimilarityMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches, err := m.qe.Similarity(m.g, params)
	if err != nil {
		return nil, err
	}
	for _, mt := range matches {
		_ = m.g.Touch(mt.NodeID)
	}
	return matches, nil
}

// Causal traverses forward along CausedBy/DerivedFrom/Supports edges
// from start, following each node to what it was caused by — the
// façade's narrower, causally-typed sibling of the general-purpose
// Traverse.
func (m *Manager) Causal(start graph.NodeID, maxDepth uint32, maxResults int) (query.TraverseResult, error) {
	return m.Traverse(query.TraverseParams{
		Start:      start,
		EdgeTypes:  []graph.EdgeType{graph.EdgeCausedBy, graph.EdgeDerivedFrom, graph.EdgeSupports},
		Direction:  query.DirectionForward,
		MaxDepth:   maxDepth,
		MaxResults: maxResults,
	})
}

// Temporal returns node ids created within [start, end], or the k most
// recent across the whole graph if k > 0 and start == end == 0.
func (m *Manager) Temporal(start, end uint64, mostRecentK int) []graph.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []graph.NodeID
	if mostRecentK > 0 && start == 0 && end == 0 {
		ids = m.g.TemporalIndex().MostRecent(mostRecentK)
	} else {
		ids = m.g.TemporalIndex().Range(start, end)
	}
	m.touchAll(ids)
	return ids
}

// Stats reports coarse graph-wide counters for diagnostics and health
// checks; it is read-only and does not touch any individual node's
// access_count since it names no specific nodes.
type Stats struct {
	NodeCount    int
	EdgeCount    int
	SessionCount int
	TermCount    int
	Dimension    int
}

// Stats returns current graph-wide counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		NodeCount:    m.g.NodeCount(),
		EdgeCount:    m.g.EdgeCount(),
		SessionCount: len(m.g.SessionIndex().SessionIDs()),
		TermCount:    m.g.TermIndex().TermCount(),
		Dimension:    m.g.Dimension(),
	}
}

// TextSearch runs BM25 lexical search.
func (m *Manager) TextSearch(params query.TextSearchParams) ([]query.TextMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches, err := m.qe.TextSearch(m.g, params)
	if err != nil {
		return nil, err
	}
	for _, mt := range matches {
		_ = m.g.Touch(mt.NodeID)
	}
	return matches, nil
}

// HybridSearch runs RRF-fused BM25 + vector search.
func (m *Manager) HybridSearch(params query.HybridSearchParams) ([]query.HybridMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matches, err := m.qe.HybridSearch(m.g, params)
	if err != nil {
		return nil, err
	}
	for _, mt := range matches {
		_ = m.g.Touch(mt.NodeID)
	}
	return matches, nil
}

// --- reads (QueryEngine graph algorithms) -------------------------------

// Centrality runs PageRank, Degree, or Betweenness centrality.
func (m *Manager) Centrality(params query.CentralityParams) (query.CentralityResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qe.Centrality(m.g, params)
}

// ShortestPath finds a path between two nodes.
func (m *Manager) ShortestPath(params query.ShortestPathParams) (query.PathResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, err := m.qe.ShortestPath(m.g, params)
	if err != nil {
		return result, err
	}
	m.touchAll(result.Path)
	return result, nil
}

// --- reads (QueryEngine cognitive analyses) -----------------------------

// BeliefRevision runs the three-phase contradiction/cascade analysis.
func (m *Manager) BeliefRevision(params query.BeliefRevisionParams) (query.RevisionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qe.BeliefRevision(m.g, params)
}

// GapDetection scans for the five knowledge-gap rule types.
func (m *Manager) GapDetection(params query.GapDetectionParams) (query.GapReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qe.GapDetection(m.g, params)
}

// Analogical finds structurally similar subgraphs to an anchor.
func (m *Manager) Analogical(params query.AnalogicalParams) (query.Analogy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qe.Analogical(m.g, params)
}

// Drift tracks how a topic's belief timeline has evolved.
func (m *Manager) Drift(params query.DriftParams) (query.DriftReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qe.DriftDetection(m.g, params)
}

// --- the sole mutating analysis -----------------------------------------

// Consolidate runs maintenance operations (dedup, pruning, contradiction
// linking, episode compression, inference promotion).
func (m *Manager) Consolidate(params query.ConsolidateParams) (query.ConsolidationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, err := m.qe.Consolidate(m.g, params)
	if err != nil {
		return report, err
	}
	obslog.Info("consolidation run", map[string]any{
		"dry_run":        params.DryRun,
		"deduplicated":   report.Deduplicated,
		"pruned":         report.Pruned,
		"contradictions": report.ContradictionsLinked,
		"promoted":       report.InferencesPromoted,
	})
	return report, nil
}
