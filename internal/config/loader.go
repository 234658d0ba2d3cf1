package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName      = ".dumpstats"
	configType      = "yaml"
	envPrefix       = "DUMPSTATS"
	envKeySeparator = "_"
)

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"data-dir":    "data_dir",
	"db-path":     "db_path",
	"project":     "project",
	"parquet":     "output.parquet",
	"allow-stale": "cache.allow_stale",
	"cache-dir":   "cache.dir",
}

// Load reads configuration from defaults, then the config file, then
// DUMPSTATS_* environment variables, then any flags in flags that were set.
// If configPath is empty .dumpstats.yaml is searched for in the working
// directory and $HOME; a missing file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for flagName, key := range flagKeys {
			if f := flags.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DbPath == "" && cfg.DataDir != "" {
		cfg.DbPath = filepath.Join(cfg.DataDir, DBFileName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "")
	v.SetDefault("project", DefaultProject)

	v.SetDefault("dump.mounts", DefaultMounts)
	v.SetDefault("dump.index_url", DefaultIndexURL)
	mirrors := make([]map[string]any, 0, len(DefaultMirrors))
	for _, m := range DefaultMirrors {
		mirrors = append(mirrors, map[string]any{"name": m.Name, "url": m.URL})
	}
	v.SetDefault("dump.mirrors", mirrors)

	v.SetDefault("query.endpoint", DefaultQueryEndpoint)
	v.SetDefault("query.timeout", DefaultQueryTimeout)

	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_age", DefaultCacheMaxAge)
	v.SetDefault("cache.allow_stale", false)

	v.SetDefault("output.parquet", false)
	v.SetDefault("progress.every", DefaultProgressEvery)

	v.SetDefault("http.timeout", 0)
	v.SetDefault("http.user_agent", DefaultUserAgent)
}
