package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/loctrail/pkg/config"
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
	"github.com/Sumatoshi-tech/loctrail/pkg/version"
)

// Standard OTel exporter environment variables, used when the config file
// does not set the OTLP endpoint.
const (
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
	envOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

const shutdownTimeout = 5 * time.Second

// session is the loaded configuration plus the observability providers and
// the opened repository a command works with.
type session struct {
	cfg       *config.Config
	loc       *time.Location
	providers observability.Providers
	logger    *slog.Logger
	repo      history.Repository
}

// loadConfig reads the configuration, looking in repoPath first when set, and
// applies the repository path override.
func loadConfig(opts *globalOptions, repoPath string) (*config.Config, error) {
	var searchDirs []string
	if repoPath != "" {
		searchDirs = append(searchDirs, repoPath)
	}

	cfg, err := config.LoadConfig(opts.configPath, searchDirs...)
	if err != nil {
		return nil, err
	}

	if repoPath != "" {
		cfg.Repository.Path = repoPath
	}

	return cfg, nil
}

func observabilityConfig(cmd *cobra.Command, cfg *config.Config, opts *globalOptions, mode observability.AppMode) observability.Config {
	oc := observability.DefaultConfig()
	oc.ServiceVersion = version.Version
	oc.Environment = cfg.Observability.Environment
	oc.Mode = mode
	oc.LogOutput = cmd.ErrOrStderr()
	oc.LogJSON = strings.EqualFold(cfg.Logging.Format, "json")

	oc.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	oc.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	oc.OTLPInsecure = cfg.Observability.OTLPInsecure

	if oc.OTLPEndpoint == "" {
		oc.OTLPEndpoint = os.Getenv(envOTLPEndpoint)
		oc.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv(envOTLPHeaders))
		oc.OTLPInsecure = oc.OTLPInsecure || os.Getenv(envOTLPInsecure) == "true"
	}

	var level slog.Level

	err := level.UnmarshalText([]byte(cfg.Logging.Level))
	if err != nil {
		level = slog.LevelInfo
	}

	switch {
	case opts.verbose:
		level = slog.LevelDebug
	case opts.quiet:
		level = slog.LevelError
	}

	oc.LogLevel = level

	if mode == observability.ModeCollect {
		oc.MetricsTextfile = cfg.Metrics.Textfile
	}

	return oc
}

// openSession initializes observability and, when withRepo is set, opens the
// repository. The returned session must be closed.
func openSession(
	ctx context.Context,
	cmd *cobra.Command,
	rt runtime,
	cfg *config.Config,
	opts *globalOptions,
	mode observability.AppMode,
	withRepo bool,
) (*session, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	providers, err := rt.initObservability(ctx, observabilityConfig(cmd, cfg, opts, mode))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	logger := providers.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &session{cfg: cfg, loc: loc, providers: providers, logger: logger}

	if !withRepo {
		return s, nil
	}

	repo, err := rt.openRepository(cfg.History.Backend, cfg.Repository.Path)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open repository %s: %w", cfg.Repository.Path, err), s.shutdown())
	}

	s.repo = repo

	return s, nil
}

func (s *session) shutdown() error {
	if s.providers.Shutdown == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.providers.Shutdown(ctx)
}

// Close releases the repository and flushes telemetry. Failures are logged.
func (s *session) Close() {
	if s.repo != nil {
		err := s.repo.Close()
		if err != nil {
			s.logger.Warn("close repository", "error", err)
		}
	}

	err := s.shutdown()
	if err != nil {
		s.logger.Warn("observability shutdown", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
