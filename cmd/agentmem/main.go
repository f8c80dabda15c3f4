// Package main provides the agentmem CLI entry point: a thin collaborator
// over the WriteEngine, QueryEngine, Codec, and SessionManager façade —
// it holds no business logic of its own.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/agentmem/pkg/codec"
	"github.com/orneryd/agentmem/pkg/config"
	"github.com/orneryd/agentmem/pkg/graph"
	"github.com/orneryd/agentmem/pkg/query"
	"github.com/orneryd/agentmem/pkg/session"
	"github.com/orneryd/agentmem/pkg/writeengine"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func wallClock() uint64 { return uint64(time.Now().UnixMicro()) }

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentmem",
		Short: "agentmem - an in-memory cognitive event graph for agent memory",
		Long: `agentmem holds a session's cognitive events — facts, decisions,
inferences, corrections, skills, episodes — as a typed graph with hybrid
BM25+vector retrieval, graph algorithms, and belief-revision/consolidation
analyses, backed by a versioned snapshot format.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentmem v%s (%s)\n", version, commit)
		},
	})

	replCmd := &cobra.Command{
		Use:   "serve-repl",
		Short: "Run an interactive line-oriented session over stdin/stdout",
		RunE:  runServeREPL,
	}
	replCmd.Flags().Int("dimension", 0, "feature-vector dimension (0 = use config default)")
	replCmd.Flags().String("load", "", "load a snapshot at startup instead of starting empty")
	replCmd.Flags().String("passphrase", "", "passphrase for an encrypted --load snapshot")
	rootCmd.AddCommand(replCmd)

	importCmd := &cobra.Command{
		Use:   "import <snapshot>",
		Short: "Load a snapshot and print its summary statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	importCmd.Flags().String("passphrase", "", "passphrase for an encrypted snapshot")
	rootCmd.AddCommand(importCmd)

	exportCmd := &cobra.Command{
		Use:   "export <in-snapshot> <out-snapshot>",
		Short: "Re-encode a snapshot, optionally changing its encryption",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}
	exportCmd.Flags().String("in-passphrase", "", "passphrase to decrypt the input snapshot")
	exportCmd.Flags().String("out-passphrase", "", "passphrase to encrypt the output snapshot (empty = cleartext)")
	exportCmd.Flags().Bool("term-index", true, "include the term index section")
	exportCmd.Flags().Bool("doc-lengths", true, "include the doc-lengths section")
	rootCmd.AddCommand(exportCmd)

	consolidateCmd := &cobra.Command{
		Use:   "consolidate <snapshot>",
		Short: "Run consolidation over a snapshot and save the result back",
		Args:  cobra.ExactArgs(1),
		RunE:  runConsolidate,
	}
	consolidateCmd.Flags().String("passphrase", "", "passphrase for an encrypted snapshot")
	consolidateCmd.Flags().Bool("dedupe", true, "run deduplicate_facts")
	consolidateCmd.Flags().Bool("prune", false, "run prune_orphans")
	consolidateCmd.Flags().Bool("link-contradictions", false, "run link_contradictions")
	consolidateCmd.Flags().Float64("threshold", 0.92, "similarity threshold for deduplicate_facts")
	consolidateCmd.Flags().Bool("dry-run", false, "report what would change without mutating the snapshot")
	rootCmd.AddCommand(consolidateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSnapshot(path, passphrase string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	g, err := codec.Load(f, codec.LoadOptions{Passphrase: passphrase})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return g, nil
}

func saveSnapshot(g *graph.Graph, path string, opts codec.SaveOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	opts.CreatedAt = wallClock()
	if err := codec.Save(g, f, opts); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	passphrase, _ := cmd.Flags().GetString("passphrase")
	g, err := loadSnapshot(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Printf("nodes: %d\n", g.NodeCount())
	fmt.Printf("edges: %d\n", g.EdgeCount())
	fmt.Printf("terms: %d\n", g.TermIndex().TermCount())
	fmt.Printf("dimension: %d\n", g.Dimension())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	inPassphrase, _ := cmd.Flags().GetString("in-passphrase")
	outPassphrase, _ := cmd.Flags().GetString("out-passphrase")
	includeTermIndex, _ := cmd.Flags().GetBool("term-index")
	includeDocLengths, _ := cmd.Flags().GetBool("doc-lengths")

	g, err := loadSnapshot(args[0], inPassphrase)
	if err != nil {
		return err
	}

	return saveSnapshot(g, args[1], codec.SaveOptions{
		IncludeTermIndex:  includeTermIndex,
		IncludeDocLengths: includeDocLengths,
		Passphrase:        outPassphrase,
	})
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	passphrase, _ := cmd.Flags().GetString("passphrase")
	dedupe, _ := cmd.Flags().GetBool("dedupe")
	prune, _ := cmd.Flags().GetBool("prune")
	linkContradictions, _ := cmd.Flags().GetBool("link-contradictions")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	g, err := loadSnapshot(args[0], passphrase)
	if err != nil {
		return err
	}

	mgr := session.NewFromGraph(g, wallClock)

	var ops []query.ConsolidationOp
	if dedupe {
		ops = append(ops, query.ConsolidationOp{Kind: query.OpDeduplicateFacts, Threshold: float32(threshold)})
	}
	if prune {
		ops = append(ops, query.ConsolidationOp{Kind: query.OpPruneOrphans})
	}
	if linkContradictions {
		ops = append(ops, query.ConsolidationOp{Kind: query.OpLinkContradictions})
	}

	report, err := mgr.Consolidate(query.ConsolidateParams{Operations: ops, DryRun: dryRun})
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	fmt.Printf("deduplicated: %d\n", report.Deduplicated)
	fmt.Printf("pruned: %d\n", report.Pruned)
	fmt.Printf("contradictions linked: %d\n", report.ContradictionsLinked)
	fmt.Printf("inferences promoted: %d\n", report.InferencesPromoted)

	if dryRun {
		fmt.Println("dry run: snapshot not modified")
		return nil
	}
	return saveSnapshot(mgr.Graph(), args[0], codec.SaveOptions{IncludeTermIndex: true, IncludeDocLengths: true})
}

func runServeREPL(cmd *cobra.Command, args []string) error {
	dimFlag, _ := cmd.Flags().GetInt("dimension")
	loadPath, _ := cmd.Flags().GetString("load")
	passphrase, _ := cmd.Flags().GetString("passphrase")

	cfg := config.LoadFromEnv()
	dimension := cfg.Graph.Dimension
	if dimFlag > 0 {
		dimension = dimFlag
	}

	var mgr *session.Manager
	if loadPath != "" {
		g, err := loadSnapshot(loadPath, passphrase)
		if err != nil {
			return err
		}
		mgr = session.NewFromGraph(g, wallClock)
		fmt.Printf("loaded %s: %d nodes, %d edges\n", loadPath, g.NodeCount(), g.EdgeCount())
	} else {
		m, err := session.New(dimension, wallClock)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		mgr = m
	}

	fmt.Println("agentmem ready. Commands: add <type> <confidence> <session> <text...> | query | stats | save <path> | exit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := dispatchREPLCommand(mgr, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func dispatchREPLCommand(mgr *session.Manager, line string) error {
	fields := strings.SplitN(line, " ", 2)
	switch fields[0] {
	case "add":
		return replAdd(mgr, strings.TrimSpace(fields0or(fields)))
	case "query":
		return replQuery(mgr)
	case "stats":
		return replStats(mgr)
	case "save":
		if len(fields) < 2 {
			return fmt.Errorf("usage: save <path>")
		}
		return saveSnapshot(mgr.Graph(), strings.TrimSpace(fields[1]), codec.SaveOptions{IncludeTermIndex: true, IncludeDocLengths: true})
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func fields0or(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func replAdd(mgr *session.Manager, rest string) error {
	parts := strings.SplitN(rest, " ", 4)
	if len(parts) < 4 {
		return fmt.Errorf("usage: add <type> <confidence> <session> <text...>")
	}
	eventType, ok := graph.EventTypeFromName(parts[0])
	if !ok {
		return fmt.Errorf("unknown event type %q", parts[0])
	}
	confidence, err := strconv.ParseFloat(parts[1], 32)
	if err != nil {
		return fmt.Errorf("invalid confidence: %w", err)
	}
	sessionID, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	result, err := mgr.Add(writeengine.AddEventParams{
		EventType:  eventType,
		Content:    parts[3],
		Confidence: float32(confidence),
		SessionID:  uint32(sessionID),
	})
	if err != nil {
		return err
	}
	fmt.Printf("added node %d\n", result.NodeID)
	return nil
}

func replQuery(mgr *session.Manager) error {
	nodes, err := mgr.Query(query.PatternParams{SortBy: query.SortMostRecent})
	if err != nil {
		return err
	}
	for _, n := range nodes {
		fmt.Printf("%d\t%s\t%s\n", n.ID, n.EventType.Name(), n.Content)
	}
	return nil
}

func replStats(mgr *session.Manager) error {
	s := mgr.Stats()
	fmt.Printf("nodes: %d, edges: %d, sessions: %d, terms: %d, dimension: %d\n",
		s.NodeCount, s.EdgeCount, s.SessionCount, s.TermCount, s.Dimension)
	return nil
}
