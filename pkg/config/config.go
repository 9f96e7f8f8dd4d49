// Package config loads loctrail settings from .loctrail.yaml, LOCTRAIL_*
// environment variables and defaults, and validates them.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Sentinel validation errors.
var (
	ErrSchema             = errors.New("configuration does not match schema")
	ErrNoSubtrees         = errors.New("at least one subtree must be tracked")
	ErrInvalidSubtreeName = errors.New("invalid subtree name")
	ErrDuplicateSubtree   = errors.New("duplicate subtree name")
	ErrEmptySubtreePath   = errors.New("subtree path must not be empty")
	ErrUnknownBackend     = errors.New("unknown history backend")
	ErrInvalidTimezone    = errors.New("invalid time zone")
	ErrInvalidWorkers     = errors.New("subtree workers must be positive")
	ErrNegativeDuration   = errors.New("duration must not be negative")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrEmptyOracle        = errors.New("oracle command must not be empty")
)

// subtreeName matches names that are safe as CSV column prefixes and
// directory names.
var subtreeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Config holds all loctrail settings.
type Config struct {
	Repository    RepositoryConfig    `json:"repository"    mapstructure:"repository"`
	Ledger        LedgerConfig        `json:"ledger"        mapstructure:"ledger"`
	Subtrees      []SubtreeConfig     `json:"subtrees"      mapstructure:"subtrees"`
	History       HistoryConfig       `json:"history"       mapstructure:"history"`
	Oracle        OracleConfig        `json:"oracle"        mapstructure:"oracle"`
	Collect       CollectConfig       `json:"collect"       mapstructure:"collect"`
	Logging       LoggingConfig       `json:"logging"       mapstructure:"logging"`
	Metrics       MetricsConfig       `json:"metrics"       mapstructure:"metrics"`
	Observability ObservabilityConfig `json:"observability" mapstructure:"observability"`
}

// RepositoryConfig locates the analyzed repository.
type RepositoryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LedgerConfig locates the CSV ledger.
type LedgerConfig struct {
	// Path is resolved against the repository path when relative.
	Path string `json:"path" mapstructure:"path"`
}

// SubtreeConfig is one tracked directory and its column name.
type SubtreeConfig struct {
	Name string `json:"name" mapstructure:"name"`
	Path string `json:"path" mapstructure:"path"`
}

// HistoryConfig selects how history is read.
type HistoryConfig struct {
	Backend  string `json:"backend"  mapstructure:"backend"`
	Timezone string `json:"timezone" mapstructure:"timezone"`
}

// OracleConfig configures the external line counter.
type OracleConfig struct {
	Command            string   `json:"command"             mapstructure:"command"`
	Args               []string `json:"args"                mapstructure:"args"`
	FallbackExtensions []string `json:"fallback_extensions" mapstructure:"fallback_extensions"`
}

// CollectConfig tunes the collection run.
type CollectConfig struct {
	SubtreeWorkers   int           `json:"subtree_workers"    mapstructure:"subtree_workers"`
	TempDir          string        `json:"temp_dir"           mapstructure:"temp_dir"`
	Timeout          time.Duration `json:"timeout"            mapstructure:"timeout"`
	StaleSnapshotAge time.Duration `json:"stale_snapshot_age" mapstructure:"stale_snapshot_age"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"  mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is the Prometheus textfile written after each run; empty disables it.
	Textfile string `json:"textfile" mapstructure:"textfile"`
}

// ObservabilityConfig holds OTLP export settings.
type ObservabilityConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure" mapstructure:"otlp_insecure"`
	OTLPHeaders  string `json:"otlp_headers"  mapstructure:"otlp_headers"`
	Environment  string `json:"environment"   mapstructure:"environment"`
}

// Validate checks the settings beyond what the schema expresses.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Subtrees) == 0 {
		errs = append(errs, ErrNoSubtrees)
	}

	seen := make(map[string]struct{}, len(c.Subtrees))

	for _, s := range c.Subtrees {
		if !subtreeName.MatchString(s.Name) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidSubtreeName, s.Name))
		}

		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateSubtree, s.Name))
		}

		seen[s.Name] = struct{}{}

		if strings.TrimSpace(s.Path) == "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrEmptySubtreePath, s.Name))
		}
	}

	if !slices.Contains([]string{BackendLibgit2, BackendGoGit}, c.History.Backend) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.History.Backend))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(c.Oracle.Command) == "" {
		errs = append(errs, ErrEmptyOracle)
	}

	if c.Collect.SubtreeWorkers <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Collect.SubtreeWorkers))
	}

	if c.Collect.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: collect.timeout %s", ErrNegativeDuration, c.Collect.Timeout))
	}

	if c.Collect.StaleSnapshotAge < 0 {
		errs = append(errs, fmt.Errorf("%w: collect.stale_snapshot_age %s", ErrNegativeDuration, c.Collect.StaleSnapshotAge))
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}

	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Logging.Format)) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Location returns the time zone commit days are computed in.
func (c *Config) Location() (*time.Location, error) {
	if c.History.Timezone == "" || strings.EqualFold(c.History.Timezone, "local") {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.History.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidTimezone, c.History.Timezone, err)
	}

	return loc, nil
}

// LedgerPath returns the ledger location, resolving a relative path against
// the repository path.
func (c *Config) LedgerPath() string {
	if filepath.IsAbs(c.Ledger.Path) {
		return c.Ledger.Path
	}

	return filepath.Join(c.Repository.Path, c.Ledger.Path)
}

// SubtreeNames returns the subtree names in declared order.
func (c *Config) SubtreeNames() []string {
	names := make([]string, len(c.Subtrees))
	for i, s := range c.Subtrees {
		names[i] = s.Name
	}

	return names
}
