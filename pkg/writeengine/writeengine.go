// Package writeengine implements the two mutating operations that
// construct cognitive events and record corrections: add_event and
// correct. Consolidation, node removal and access-count touches mutate
// the graph outside this package.
package writeengine

import (
	"errors"
	"fmt"

	"github.com/orneryd/agentmem/pkg/graph"
)

// Clock supplies the current time as microseconds since the epoch. The
// core takes no dependency on wall-clock time directly so tests can
// supply a deterministic source.
type Clock func() uint64

// WriteEngine holds no persistent state beyond a clock source; the
// graph's dimension is read from the graph itself on every call.
type WriteEngine struct {
	now Clock
}

// New returns a WriteEngine using now as its time source.
func New(now Clock) *WriteEngine {
	return &WriteEngine{now: now}
}

// AddEventParams carries the inputs to AddEvent.
type AddEventParams struct {
	EventType   graph.EventType
	Content     string
	Confidence  float32
	SessionID   uint32
	FeatureVec  []float32
	Explicit    []graph.Edge // edges to append once the node exists
	AutoChain   bool
}

// AddEventResult reports what AddEvent created.
type AddEventResult struct {
	NodeID       graph.NodeID
	EdgesCreated int
}

// AddEvent constructs a node with the current time, clamps confidence to
// [0,1], sets decay_score=1.0 and access_count=0, appends every explicit
// edge, and — if AutoChain is set and the session already has a node —
// appends one TemporalNext edge from the previous node to the new one
// with weight 1.0.
func (w *WriteEngine) AddEvent(g *graph.Graph, params AddEventParams) (AddEventResult, error) {
	event := &graph.CognitiveEvent{
		EventType:  params.EventType,
		Content:    params.Content,
		Confidence: clamp01(params.Confidence),
		SessionID:  params.SessionID,
		CreatedAt:  w.now(),
		DecayScore: 1.0,
		FeatureVec: params.FeatureVec,
	}

	id, err := g.AddNode(event)
	if err != nil {
		return AddEventResult{}, err
	}

	edgesCreated := 0
	for _, e := range params.Explicit {
		e.SourceID, e.TargetID = resolveEndpoints(e, id)
		e.CreatedAt = w.now()
		if err := g.AddEdge(e); err != nil {
			return AddEventResult{NodeID: id, EdgesCreated: edgesCreated}, err
		}
		edgesCreated++
	}

	if params.AutoChain {
		prevIDs := g.SessionIndex().Nodes(params.SessionID)
		// prevIDs includes the node just added; the previous one (if any)
		// is the second-to-last entry.
		if len(prevIDs) >= 2 {
			prev := prevIDs[len(prevIDs)-2]
			err := g.AddEdge(graph.Edge{
				SourceID:  prev,
				TargetID:  id,
				EdgeType:  graph.EdgeTemporalNext,
				Weight:    1.0,
				CreatedAt: w.now(),
			})
			if err != nil && !errors.Is(err, graph.ErrDuplicateEdge) {
				return AddEventResult{NodeID: id, EdgesCreated: edgesCreated}, err
			}
			if err == nil {
				edgesCreated++
			}
		}
	}

	return AddEventResult{NodeID: id, EdgesCreated: edgesCreated}, nil
}

// resolveEndpoints lets callers specify explicit edges with either
// endpoint left as zero meaning "the node being created". When both are
// zero, the source is the new node and the target is node 0.
func resolveEndpoints(e graph.Edge, newID graph.NodeID) (graph.NodeID, graph.NodeID) {
	source, target := e.SourceID, e.TargetID
	if e.SourceID == 0 {
		source = newID
	}
	if e.TargetID == 0 && e.SourceID != 0 {
		target = newID
	}
	return source, target
}

// Correct creates a Correction event with newContent and links it to
// oldID with a Supersedes edge (new -> old, weight 1.0). It does NOT
// mutate oldID's confidence. Fails with graph.ErrNodeNotFound if oldID
// is absent.
func (w *WriteEngine) Correct(g *graph.Graph, oldID graph.NodeID, newContent string, sessionID uint32) (graph.NodeID, error) {
	old, err := g.GetNode(oldID)
	if err != nil {
		return 0, fmt.Errorf("correcting %d: %w", oldID, err)
	}

	newID, err := g.AddNode(&graph.CognitiveEvent{
		EventType:  graph.EventCorrection,
		Content:    newContent,
		Confidence: old.Confidence,
		SessionID:  sessionID,
		CreatedAt:  w.now(),
		DecayScore: 1.0,
	})
	if err != nil {
		return 0, err
	}

	if err := g.AddEdge(graph.Edge{
		SourceID:  newID,
		TargetID:  oldID,
		EdgeType:  graph.EdgeSupersedes,
		Weight:    1.0,
		CreatedAt: w.now(),
	}); err != nil {
		return newID, err
	}

	return newID, nil
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
