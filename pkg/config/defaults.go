package config

import (
	"slices"
	"time"

	"github.com/Sumatoshi-tech/loctrail/pkg/sizeoracle"
)

// Repository and ledger defaults.
const (
	DefaultRepositoryPath = "."
	DefaultLedgerPath     = "loc_history.csv"
)

// History defaults.
const (
	BackendLibgit2 = "libgit2"
	BackendGoGit   = "gogit"

	DefaultBackend  = BackendLibgit2
	DefaultTimezone = "Local"
)

// Oracle defaults.
const DefaultOracleCommand = sizeoracle.DefaultCommand

// Collection defaults.
const (
	DefaultSubtreeWorkers   = 2
	DefaultTimeout          = time.Duration(0)
	DefaultStaleSnapshotAge = 24 * time.Hour
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultOracleArgs are passed to the oracle after the measured directory.
func DefaultOracleArgs() []string {
	return slices.Clone(sizeoracle.DefaultArgs)
}

// DefaultFallbackExtensions are the extensions the built-in counter reads.
func DefaultFallbackExtensions() []string {
	return slices.Clone(sizeoracle.DefaultFallbackExtensions)
}

// DefaultSubtrees are the tracked subtrees of a Tauri-style project.
func DefaultSubtrees() []SubtreeConfig {
	return []SubtreeConfig{
		{Name: "frontend", Path: "src"},
		{Name: "backend", Path: "src-tauri/src"},
	}
}
