package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName      = ".loctrail"
	configType      = "yaml"
	envPrefix       = "LOCTRAIL"
	envKeySeparator = "_"
)

// LoadConfig loads settings from file, env vars and defaults. When configPath
// is empty, .loctrail.yaml is searched in searchDirs, the working directory
// and $HOME, in that order; a missing file is not an error.
func LoadConfig(configPath string, searchDirs ...string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)

		for _, dir := range searchDirs {
			viperCfg.AddConfigPath(dir)
		}

		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	schemaErr := CheckSchema(&cfg)
	if schemaErr != nil {
		return nil, fmt.Errorf("validate config: %w", schemaErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// ConfigFileUsed reports which file LoadConfig would read, or "" when none
// is found.
func ConfigFileUsed(configPath string, searchDirs ...string) string {
	if configPath != "" {
		return configPath
	}

	viperCfg := viper.New()
	viperCfg.SetConfigName(configName)
	viperCfg.SetConfigType(configType)

	for _, dir := range searchDirs {
		viperCfg.AddConfigPath(dir)
	}

	viperCfg.AddConfigPath(".")

	if viperCfg.ReadInConfig() != nil {
		return ""
	}

	return viperCfg.ConfigFileUsed()
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("repository.path", DefaultRepositoryPath)
	viperCfg.SetDefault("ledger.path", DefaultLedgerPath)

	subtrees := make([]map[string]any, 0, len(DefaultSubtrees()))
	for _, s := range DefaultSubtrees() {
		subtrees = append(subtrees, map[string]any{"name": s.Name, "path": s.Path})
	}

	viperCfg.SetDefault("subtrees", subtrees)

	viperCfg.SetDefault("history.backend", DefaultBackend)
	viperCfg.SetDefault("history.timezone", DefaultTimezone)

	viperCfg.SetDefault("oracle.command", DefaultOracleCommand)
	viperCfg.SetDefault("oracle.args", DefaultOracleArgs())
	viperCfg.SetDefault("oracle.fallback_extensions", DefaultFallbackExtensions())

	viperCfg.SetDefault("collect.subtree_workers", DefaultSubtreeWorkers)
	viperCfg.SetDefault("collect.temp_dir", "")
	viperCfg.SetDefault("collect.timeout", DefaultTimeout)
	viperCfg.SetDefault("collect.stale_snapshot_age", DefaultStaleSnapshotAge)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("metrics.textfile", "")

	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.environment", "")
}
