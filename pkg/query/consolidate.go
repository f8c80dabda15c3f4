package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/orneryd/agentmem/pkg/graph"
)

// ConsolidationOpKind selects which maintenance operation to run.
type ConsolidationOpKind int

const (
	OpDeduplicateFacts ConsolidationOpKind = iota
	OpPruneOrphans
	OpLinkContradictions
	OpCompressEpisodes
	OpPromoteInferences
)

// ConsolidationOp is one operation in a consolidation run, carrying
// only the parameters its kind uses.
type ConsolidationOp struct {
	Kind          ConsolidationOpKind
	Threshold     float32 // DeduplicateFacts, LinkContradictions
	MaxDecay      float32 // PruneOrphans
	GroupSize     uint32  // CompressEpisodes
	MinAccess     uint32  // PromoteInferences
	MinConfidence float32 // PromoteInferences
}

// SessionRange restricts consolidation to nodes whose session_id falls
// in [Start, End] inclusive.
type SessionRange struct {
	Start uint32
	End   uint32
}

// ConsolidateParams configures a consolidation run. Consolidate is the
// sole mutator among QueryEngine's operations.
type ConsolidateParams struct {
	SessionRange *SessionRange
	Operations   []ConsolidationOp
	DryRun       bool
	BackupPath   string
}

// ConsolidationAction is one action taken, or proposed, by a
// consolidation operation.
type ConsolidationAction struct {
	Operation      string
	Description    string
	AffectedNodes  []graph.NodeID
}

// ConsolidationReport summarizes a consolidation run.
type ConsolidationReport struct {
	Actions              []ConsolidationAction
	Deduplicated         int
	Pruned               int
	ContradictionsLinked int
	EpisodesCompressed   int
	InferencesPromoted   int
	BackupPath           string
}

// consolidationNegationSet is the set form of negationWords, the same
// list belief revision scans for, used by contradiction linking for
// whole-word lookups.
var consolidationNegationSet = buildNegationSet()

func buildNegationSet() map[string]struct{} {
	set := make(map[string]struct{}, len(negationWords))
	for _, w := range negationWords {
		set[w] = struct{}{}
	}
	return set
}

// Consolidate runs every operation in params.Operations in order
// against g. PruneOrphans and CompressEpisodes are always dry-run —
// they only ever report candidates, never mutate. DeduplicateFacts,
// LinkContradictions, and PromoteInferences mutate g unless
// params.DryRun is set.
func (q *QueryEngine) Consolidate(g *graph.Graph, params ConsolidateParams) (ConsolidationReport, error) {
	report := ConsolidationReport{BackupPath: params.BackupPath}

	for _, op := range params.Operations {
		switch op.Kind {
		case OpDeduplicateFacts:
			q.deduplicateFacts(g, op.Threshold, params.SessionRange, params.DryRun, &report)
		case OpPruneOrphans:
			q.pruneOrphans(g, op.MaxDecay, params.SessionRange, &report)
		case OpLinkContradictions:
			q.linkContradictions(g, op.Threshold, params.SessionRange, params.DryRun, &report)
		case OpCompressEpisodes:
			q.compressEpisodes(g, op.GroupSize, params.SessionRange, &report)
		case OpPromoteInferences:
			q.promoteInferences(g, op.MinAccess, op.MinConfidence, params.SessionRange, params.DryRun, &report)
		}
	}

	return report, nil
}

func inSessionRange(sessionID uint32, r *SessionRange) bool {
	if r == nil {
		return true
	}
	return sessionID >= r.Start && sessionID <= r.End
}

func jaccard(a, b map[string]struct{}) float32 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float32(intersection) / float32(union)
}

func (q *QueryEngine) deduplicateFacts(g *graph.Graph, threshold float32, sessionRange *SessionRange, dryRun bool, report *ConsolidationReport) {
	var factIDs []graph.NodeID
	factSet := make(map[graph.NodeID]struct{})
	for _, n := range g.Nodes() {
		if n.EventType == graph.EventFact && inSessionRange(n.SessionID, sessionRange) {
			factIDs = append(factIDs, n.ID)
			factSet[n.ID] = struct{}{}
		}
	}

	var groups [][]graph.NodeID
	clusters := g.ClusterMap().Clusters()
	for _, c := range clusters {
		var members []graph.NodeID
		for _, id := range g.ClusterMap().Members(c) {
			if _, ok := factSet[id]; ok {
				members = append(members, id)
			}
		}
		if len(members) >= 2 {
			groups = append(groups, members)
		}
	}
	if len(groups) == 0 && len(factIDs) >= 2 {
		groups = append(groups, factIDs)
	}

	superseded := make(map[graph.NodeID]struct{})

	for _, group := range groups {
		for i := 0; i < len(group); i++ {
			if _, ok := superseded[group[i]]; ok {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if _, ok := superseded[group[j]]; ok {
					continue
				}

				a, errA := g.GetNode(group[i])
				b, errB := g.GetNode(group[j])
				if errA != nil || errB != nil {
					continue
				}

				sim := graph.CosineSimilarity(a.FeatureVec, b.FeatureVec)
				if sim < threshold {
					continue
				}

				tokensA := toTermSet(q.tok.Tokenize(a.Content))
				tokensB := toTermSet(q.tok.Tokenize(b.Content))
				if len(tokensA) == 0 && len(tokensB) == 0 {
					continue
				}
				if jaccard(tokensA, tokensB) < 0.5 {
					continue
				}

				winner, loser := group[i], group[j]
				if b.Confidence > a.Confidence {
					winner, loser = group[j], group[i]
				}
				superseded[loser] = struct{}{}

				report.Actions = append(report.Actions, ConsolidationAction{
					Operation:     "deduplicate_facts",
					Description:   fmt.Sprintf("node %d supersedes duplicate node %d (cosine=%.3f)", winner, loser, sim),
					AffectedNodes: []graph.NodeID{winner, loser},
				})
				report.Deduplicated++

				if !dryRun {
					_ = g.AddEdge(graph.Edge{SourceID: winner, TargetID: loser, EdgeType: graph.EdgeSupersedes, Weight: sim})
				}
			}
		}
	}
}

func (q *QueryEngine) pruneOrphans(g *graph.Graph, maxDecay float32, sessionRange *SessionRange, report *ConsolidationReport) {
	var orphans []graph.NodeID
	for _, n := range g.Nodes() {
		if n.AccessCount != 0 {
			continue
		}
		if n.DecayScore >= maxDecay {
			continue
		}
		if !inSessionRange(n.SessionID, sessionRange) {
			continue
		}
		if len(g.EdgesTo(n.ID)) > 0 {
			continue
		}
		orphans = append(orphans, n.ID)
	}

	if len(orphans) == 0 {
		return
	}

	report.Actions = append(report.Actions, ConsolidationAction{
		Operation:     "prune_orphans",
		Description:   fmt.Sprintf("would prune %d orphaned node(s) with decay_score < %.2f and no incoming edges", len(orphans), maxDecay),
		AffectedNodes: orphans,
	})
	report.Pruned += len(orphans)
}

func orderedPair(a, b graph.NodeID) [2]graph.NodeID {
	if a <= b {
		return [2]graph.NodeID{a, b}
	}
	return [2]graph.NodeID{b, a}
}

func (q *QueryEngine) linkContradictions(g *graph.Graph, threshold float32, sessionRange *SessionRange, dryRun bool, report *ConsolidationReport) {
	var candidates []graph.NodeID
	for _, n := range g.Nodes() {
		if (n.EventType == graph.EventFact || n.EventType == graph.EventInference) && inSessionRange(n.SessionID, sessionRange) {
			candidates = append(candidates, n.ID)
		}
	}

	existing := make(map[[2]graph.NodeID]struct{})
	for _, e := range g.Edges() {
		if e.EdgeType == graph.EdgeContradicts {
			existing[orderedPair(e.SourceID, e.TargetID)] = struct{}{}
		}
	}

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			idA, idB := candidates[i], candidates[j]
			pair := orderedPair(idA, idB)
			if _, ok := existing[pair]; ok {
				continue
			}

			a, errA := g.GetNode(idA)
			b, errB := g.GetNode(idB)
			if errA != nil || errB != nil {
				continue
			}

			sim := graph.CosineSimilarity(a.FeatureVec, b.FeatureVec)
			if sim < threshold {
				continue
			}

			negInA := hasAnyNegation(a.Content)
			negInB := hasAnyNegation(b.Content)
			if negInA == negInB {
				continue
			}

			existing[pair] = struct{}{}

			report.Actions = append(report.Actions, ConsolidationAction{
				Operation:     "link_contradictions",
				Description:   fmt.Sprintf("nodes %d and %d appear contradictory (cosine=%.3f)", idA, idB, sim),
				AffectedNodes: []graph.NodeID{idA, idB},
			})
			report.ContradictionsLinked++

			if !dryRun {
				_ = g.AddEdge(graph.Edge{SourceID: idA, TargetID: idB, EdgeType: graph.EdgeContradicts, Weight: sim})
			}
		}
	}
}

// hasAnyNegation reports whether content holds a word from the negation
// list. Words are split on anything but letters, digits and apostrophes
// and are not stop-word filtered, so "not", "no" and "can't" count.
func hasAnyNegation(content string) bool {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	for _, w := range words {
		if _, ok := consolidationNegationSet[w]; ok {
			return true
		}
	}
	return false
}

func (q *QueryEngine) compressEpisodes(g *graph.Graph, groupSize uint32, sessionRange *SessionRange, report *ConsolidationReport) {
	type episode struct {
		id        graph.NodeID
		createdAt uint64
		sessionID uint32
	}
	var episodes []episode
	for _, n := range g.Nodes() {
		if n.EventType == graph.EventEpisode && inSessionRange(n.SessionID, sessionRange) {
			episodes = append(episodes, episode{n.ID, n.CreatedAt, n.SessionID})
		}
	}
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].createdAt < episodes[j].createdAt })

	if uint32(len(episodes)) < groupSize {
		return
	}

	var groups [][]graph.NodeID
	current := []graph.NodeID{episodes[0].id}
	currentSession := episodes[0].sessionID

	flush := func() {
		if uint32(len(current)) >= groupSize {
			groups = append(groups, current)
		}
	}

	for _, ep := range episodes[1:] {
		if ep.sessionID == currentSession {
			current = append(current, ep.id)
			continue
		}
		flush()
		current = []graph.NodeID{ep.id}
		currentSession = ep.sessionID
	}
	flush()

	for _, group := range groups {
		report.Actions = append(report.Actions, ConsolidationAction{
			Operation:     "compress_episodes",
			Description:   fmt.Sprintf("would compress %d contiguous episode(s) into a summary", len(group)),
			AffectedNodes: group,
		})
		report.EpisodesCompressed += len(group)
	}
}

func (q *QueryEngine) promoteInferences(g *graph.Graph, minAccess uint32, minConfidence float32, sessionRange *SessionRange, dryRun bool, report *ConsolidationReport) {
	var eligible []graph.NodeID
	for _, n := range g.Nodes() {
		if n.EventType != graph.EventInference {
			continue
		}
		if n.AccessCount < minAccess || n.Confidence < minConfidence {
			continue
		}
		if !inSessionRange(n.SessionID, sessionRange) {
			continue
		}
		eligible = append(eligible, n.ID)
	}

	for _, id := range eligible {
		report.Actions = append(report.Actions, ConsolidationAction{
			Operation:     "promote_inferences",
			Description:   fmt.Sprintf("promote inference node %d to fact", id),
			AffectedNodes: []graph.NodeID{id},
		})
		report.InferencesPromoted++

		if !dryRun {
			_ = g.SetEventType(id, graph.EventFact)
		}
	}
}
