package config

import "testing"

func TestTermIndexFlagDefaultsEnabled(t *testing.T) {
	if !IsTermIndexEnabled() {
		t.Error("term index should default to enabled")
	}
}

func TestWithTermIndexEnabledRestoresPreviousValue(t *testing.T) {
	SetTermIndexEnabled(true)

	cleanup := WithTermIndexEnabled(false)
	if IsTermIndexEnabled() {
		t.Error("term index should be disabled inside WithTermIndexEnabled")
	}
	cleanup()
	if !IsTermIndexEnabled() {
		t.Error("term index should be restored to enabled after cleanup")
	}
}

func TestAutoConsolidateFlagDefaultsDisabled(t *testing.T) {
	if IsAutoConsolidateEnabled() {
		t.Error("auto-consolidate should default to disabled")
	}

	SetAutoConsolidateEnabled(true)
	defer SetAutoConsolidateEnabled(false)
	if !IsAutoConsolidateEnabled() {
		t.Error("auto-consolidate should be enabled after SetAutoConsolidateEnabled(true)")
	}
}

func TestHybridSearchAndDriftTrackingDefaultEnabled(t *testing.T) {
	if !IsHybridSearchEnabled() {
		t.Error("hybrid search should default to enabled")
	}
	if !IsDriftTrackingEnabled() {
		t.Error("drift tracking should default to enabled")
	}
}
