// Package config loads agentmem's configuration from environment
// variables (AGENTMEM_* prefix), with an optional YAML override file,
// mirroring the env-var-first approach the teacher uses for its own
// NORNICDB_* settings. Configuration governs graph dimension, snapshot
// location, auto-chain defaults, and optional codec encryption — never
// core algorithmic constants (BM25 k1/b, RRF k, decay thresholds),
// which stay fixed as specified.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all agentmem configuration.
type Config struct {
	Graph    GraphConfig    `yaml:"graph"`
	Codec    CodecConfig    `yaml:"codec"`
	Logging  LoggingConfig  `yaml:"logging"`
	Features FeaturesConfig `yaml:"features"`
}

// GraphConfig controls the session façade's single graph instance.
type GraphConfig struct {
	// Dimension is the fixed feature-vector length every node's
	// FeatureVec must match.
	Dimension int `yaml:"dimension"`
	// SnapshotPath holds a snapshot file path. cmd/agentmem's
	// export/import subcommands take their path as an argument and do
	// not read this field.
	SnapshotPath string `yaml:"snapshot_path"`
	// AutoChainDefault holds a default auto-chain setting. Nothing in
	// this module reads it; AddEventParams.AutoChain defaults to false.
	AutoChainDefault bool `yaml:"auto_chain_default"`
}

// CodecConfig controls optional encryption-at-rest for snapshots.
type CodecConfig struct {
	EncryptionEnabled    bool   `yaml:"encryption_enabled"`
	EncryptionPassphrase string `yaml:"-"` // never serialized; env-only
	IncludeTermIndex     bool   `yaml:"include_term_index"`
	IncludeDocLengths    bool   `yaml:"include_doc_lengths"`
}

// LoggingConfig holds a log level name, checked by Validate. It is not
// passed to internal/obslog, which logs at its own default level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FeaturesConfig mirrors the global feature-flag registry in
// feature_flags.go so a loaded Config can seed it in one pass.
type FeaturesConfig struct {
	TermIndexEnabled       bool `yaml:"term_index_enabled"`
	DocLengthsEnabled      bool `yaml:"doc_lengths_enabled"`
	HybridSearchEnabled    bool `yaml:"hybrid_search_enabled"`
	DriftTrackingEnabled   bool `yaml:"drift_tracking_enabled"`
	AutoConsolidateEnabled bool `yaml:"auto_consolidate_enabled"`
}

// LoadFromEnv loads configuration from AGENTMEM_* environment
// variables. All values have sensible defaults, so LoadFromEnv can be
// called without any environment variables set.
func LoadFromEnv() *Config {
	c := &Config{}

	c.Graph.Dimension = getEnvInt("AGENTMEM_DIMENSION", 256)
	c.Graph.SnapshotPath = getEnv("AGENTMEM_SNAPSHOT_PATH", "./agentmem.snapshot")
	c.Graph.AutoChainDefault = getEnvBool("AGENTMEM_AUTO_CHAIN_DEFAULT", true)

	c.Codec.EncryptionEnabled = getEnvBool("AGENTMEM_ENCRYPTION_ENABLED", false)
	c.Codec.EncryptionPassphrase = getEnv("AGENTMEM_ENCRYPTION_PASSPHRASE", "")
	c.Codec.IncludeTermIndex = getEnvBool("AGENTMEM_SNAPSHOT_TERM_INDEX", true)
	c.Codec.IncludeDocLengths = getEnvBool("AGENTMEM_SNAPSHOT_DOC_LENGTHS", true)

	c.Logging.Level = getEnv("AGENTMEM_LOG_LEVEL", "INFO")

	c.Features.TermIndexEnabled = getEnvBool(EnvTermIndexEnabled, true)
	c.Features.DocLengthsEnabled = getEnvBool(EnvDocLengthsEnabled, true)
	c.Features.HybridSearchEnabled = getEnvBool(EnvHybridSearchEnabled, true)
	c.Features.DriftTrackingEnabled = getEnvBool(EnvDriftTrackingEnabled, true)
	c.Features.AutoConsolidateEnabled = getEnvBool(EnvAutoConsolidateEnabled, false)

	return c
}

// LoadFromFile reads a YAML override file and applies it on top of
// LoadFromEnv's defaults. A missing file is not an error — only the
// environment-derived defaults apply. The encryption passphrase is
// never read from YAML, only from AGENTMEM_ENCRYPTION_PASSPHRASE,
// keeping secrets out of a file that's likely to end up checked in.
func LoadFromFile(path string) (*Config, error) {
	c := LoadFromEnv()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	passphrase := c.Codec.EncryptionPassphrase
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.Codec.EncryptionPassphrase = passphrase

	return c, nil
}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.Graph.Dimension <= 0 {
		return fmt.Errorf("invalid graph dimension: %d", c.Graph.Dimension)
	}
	if c.Codec.EncryptionEnabled && c.Codec.EncryptionPassphrase == "" {
		return fmt.Errorf("encryption enabled but AGENTMEM_ENCRYPTION_PASSPHRASE is not set")
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// String returns a safe representation of c with secrets omitted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Dimension: %d, SnapshotPath: %s, Encryption: %v, LogLevel: %s}",
		c.Graph.Dimension, c.Graph.SnapshotPath, c.Codec.EncryptionEnabled, c.Logging.Level,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
