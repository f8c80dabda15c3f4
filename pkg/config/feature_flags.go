// Feature flags for optional agentmem behavior.
//
// Centralized feature flag management, mirroring the teacher's
// env-var-keyed, atomically-toggled pattern: flags are seeded from
// AGENTMEM_* environment variables at process start and can also be
// toggled at runtime (mainly useful for tests).
package config

import (
	"os"
	"sync"
	"sync/atomic"
)

// Environment variable names for each flag. The flags are registry
// state only: no other package in this module reads them, so the term
// index, doc lengths, hybrid search, drift detection and consolidation
// behave the same whatever they are set to.
const (
	// EnvTermIndexEnabled seeds the term-index flag. Enabled by default.
	EnvTermIndexEnabled = "AGENTMEM_TERM_INDEX_ENABLED"

	// EnvDocLengthsEnabled seeds the doc-lengths flag. Enabled by
	// default.
	EnvDocLengthsEnabled = "AGENTMEM_DOC_LENGTHS_ENABLED"

	// EnvHybridSearchEnabled seeds the hybrid-search flag. Enabled by
	// default.
	EnvHybridSearchEnabled = "AGENTMEM_HYBRID_SEARCH_ENABLED"

	// EnvDriftTrackingEnabled seeds the drift-tracking flag. Enabled by
	// default.
	EnvDriftTrackingEnabled = "AGENTMEM_DRIFT_TRACKING_ENABLED"

	// EnvAutoConsolidateEnabled seeds the auto-consolidate flag.
	// Disabled by default; cmd/agentmem runs consolidation only when
	// its consolidate subcommand is invoked.
	EnvAutoConsolidateEnabled = "AGENTMEM_AUTO_CONSOLIDATE_ENABLED"
)

var (
	termIndexEnabled       atomic.Bool
	docLengthsEnabled      atomic.Bool
	hybridSearchEnabled    atomic.Bool
	driftTrackingEnabled   atomic.Bool
	autoConsolidateEnabled atomic.Bool

	initOnce sync.Once
)

func init() {
	initOnce.Do(func() {
		termIndexEnabled.Store(true)
		if env := os.Getenv(EnvTermIndexEnabled); env == "false" || env == "0" {
			termIndexEnabled.Store(false)
		}

		docLengthsEnabled.Store(true)
		if env := os.Getenv(EnvDocLengthsEnabled); env == "false" || env == "0" {
			docLengthsEnabled.Store(false)
		}

		hybridSearchEnabled.Store(true)
		if env := os.Getenv(EnvHybridSearchEnabled); env == "false" || env == "0" {
			hybridSearchEnabled.Store(false)
		}

		driftTrackingEnabled.Store(true)
		if env := os.Getenv(EnvDriftTrackingEnabled); env == "false" || env == "0" {
			driftTrackingEnabled.Store(false)
		}

		if env := os.Getenv(EnvAutoConsolidateEnabled); env == "true" || env == "1" {
			autoConsolidateEnabled.Store(true)
		}
	})
}

// IsTermIndexEnabled reports whether the term index is active.
func IsTermIndexEnabled() bool { return termIndexEnabled.Load() }

// SetTermIndexEnabled sets the term index flag.
func SetTermIndexEnabled(enabled bool) { termIndexEnabled.Store(enabled) }

// IsDocLengthsEnabled reports whether the doc-length table is active.
func IsDocLengthsEnabled() bool { return docLengthsEnabled.Load() }

// SetDocLengthsEnabled sets the doc-lengths flag.
func SetDocLengthsEnabled(enabled bool) { docLengthsEnabled.Store(enabled) }

// IsHybridSearchEnabled reports whether hybrid_search blends BM25 and
// vector cosine, as opposed to vector-only.
func IsHybridSearchEnabled() bool { return hybridSearchEnabled.Load() }

// SetHybridSearchEnabled sets the hybrid-search flag.
func SetHybridSearchEnabled(enabled bool) { hybridSearchEnabled.Store(enabled) }

// IsDriftTrackingEnabled reports whether drift_detection is active.
func IsDriftTrackingEnabled() bool { return driftTrackingEnabled.Load() }

// SetDriftTrackingEnabled sets the drift-tracking flag.
func SetDriftTrackingEnabled(enabled bool) { driftTrackingEnabled.Store(enabled) }

// IsAutoConsolidateEnabled reports whether automatic consolidation
// between commands is active.
func IsAutoConsolidateEnabled() bool { return autoConsolidateEnabled.Load() }

// SetAutoConsolidateEnabled sets the auto-consolidate flag.
func SetAutoConsolidateEnabled(enabled bool) { autoConsolidateEnabled.Store(enabled) }

// WithTermIndexEnabled temporarily sets the term-index flag and
// returns a cleanup function restoring the previous value. Useful for
// tests that need to exercise the slow-path fallback.
func WithTermIndexEnabled(enabled bool) func() {
	prev := termIndexEnabled.Load()
	termIndexEnabled.Store(enabled)
	return func() { termIndexEnabled.Store(prev) }
}
