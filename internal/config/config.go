// Package config holds the small per-concern configuration structs for
// the engine, stores, and logging, each with a DefaultXConfig
// constructor in the teacher's style.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects a concrete blackboard.Store implementation.
type StoreBackend string

const (
	BackendSQLite   StoreBackend = "sqlite"
	BackendMemory   StoreBackend = "memory"
	BackendHybrid   StoreBackend = "hybrid"
)

// StoreConfig configures a blackboard Store backend.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend" json:"backend"`

	// SQLitePath is the durable store's database file (sqlite / hybrid backends).
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path,omitempty"`

	// MemoryPath optionally persists the in-memory store to disk
	// (":memory:" keeps it purely in-process).
	MemoryPath string `yaml:"memory_path" json:"memory_path,omitempty"`

	// TombstoneRetention bounds how long soft-deleted facts survive
	// before Vacuum physically removes them.
	TombstoneRetention time.Duration `yaml:"tombstone_retention" json:"tombstone_retention,omitempty"`
}

// DefaultStoreConfig returns sensible defaults: hybrid backend, 30-day
// tombstone retention per spec.md §9.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:            BackendHybrid,
		SQLitePath:         "rete.db",
		MemoryPath:         ":memory:",
		TombstoneRetention: 30 * 24 * time.Hour,
	}
}

// AuditConfig bounds the size of in-memory audit lists. Per spec.md §9
// Open Questions these are configuration, not hard-coded constants.
type AuditConfig struct {
	GlobalCap  int `yaml:"global_cap" json:"global_cap,omitempty"`
	PerFactCap int `yaml:"per_fact_cap" json:"per_fact_cap,omitempty"`
	PerRuleCap int `yaml:"per_rule_cap" json:"per_rule_cap,omitempty"`
}

// DefaultAuditConfig mirrors the caps spec.md §6/§9 names: 10000
// global, 1000 per-fact and per-rule.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{GlobalCap: 10000, PerFactCap: 1000, PerRuleCap: 1000}
}

// LoggingConfig configures the logging package. Mirrors the teacher's
// internal/config/logging.go shape.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`
	Level      string          `yaml:"level" json:"level,omitempty"`
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`
}

// DefaultLoggingConfig returns production defaults: logging disabled.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{DebugMode: false, Level: "info"}
}

// IsCategoryEnabled returns whether logging is enabled for a category.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// EngineConfig configures the RETE engine's run policy.
type EngineConfig struct {
	// FactLimit is a soft cap on WorkingMemory size. Nothing in this
	// module reads it, and the network itself enforces no limit.
	FactLimit int `yaml:"fact_limit" json:"fact_limit,omitempty"`
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{FactLimit: 100000}
}

// Config aggregates the engine, store, audit, and logging configs that
// a BlackboardEngine is constructed from.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig aggregates all section defaults.
func DefaultConfig() Config {
	return Config{
		Engine:  DefaultEngineConfig(),
		Store:   DefaultStoreConfig(),
		Audit:   DefaultAuditConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Load reads a YAML config file, falling back to defaults for any
// unspecified section. A missing file is not an error: it yields
// DefaultConfig().
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
