package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/brensch/dumpstats/internal/cache"
	"github.com/brensch/dumpstats/internal/downloader"
	"github.com/brensch/dumpstats/internal/dump"
	"github.com/brensch/dumpstats/internal/query"
	"github.com/brensch/dumpstats/internal/util"
)

// Defaults come from the packages that use them.
const (
	DefaultProject       = dump.DefaultProject
	DefaultIndexURL      = downloader.DefaultIndexURL
	DefaultQueryEndpoint = query.DefaultEndpoint
	DefaultCacheMaxAge   = cache.DefaultMaxAge
	DefaultUserAgent     = util.UserAgent
	// DefaultQueryTimeout bounds one reference dataset query.
	DefaultQueryTimeout = 60 * time.Second
	// DefaultProgressEvery is how many records pass between progress lines.
	DefaultProgressEvery = 100_000
	// DBFileName is the state database created in the data directory.
	DBFileName = "dumpstats_state.duckdb"
)

// DefaultMounts are checked after the data directory, in order.
var DefaultMounts = dump.DefaultMounts

// DefaultMirrors are tried in order when no local copy exists.
var DefaultMirrors = mirrorsFrom(dump.DefaultMirrors)

func mirrorsFrom(ms []dump.Mirror) []Mirror {
	out := make([]Mirror, 0, len(ms))
	for _, m := range ms {
		out = append(out, Mirror{Name: m.Name, URL: m.URLTemplate})
	}
	return out
}

// Config holds application settings.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	DbPath   string         `mapstructure:"db_path"`
	Project  string         `mapstructure:"project"`
	Dump     DumpConfig     `mapstructure:"dump"`
	Query    QueryConfig    `mapstructure:"query"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Output   OutputConfig   `mapstructure:"output"`
	Progress ProgressConfig `mapstructure:"progress"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// DumpConfig says where dumps are looked for.
type DumpConfig struct {
	Mounts   []string `mapstructure:"mounts"`
	IndexURL string   `mapstructure:"index_url"`
	Mirrors  []Mirror `mapstructure:"mirrors"`
}

// Mirror is a remote dump host. URL may use {date} and {project}.
type Mirror struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// QueryConfig configures the SPARQL client.
type QueryConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig configures the reference dataset cache. An empty Dir means the
// run's output directory.
type CacheConfig struct {
	Dir        string        `mapstructure:"dir"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	AllowStale bool          `mapstructure:"allow_stale"`
}

// OutputConfig selects extra output formats.
type OutputConfig struct {
	Parquet bool `mapstructure:"parquet"`
}

// ProgressConfig controls progress narration.
type ProgressConfig struct {
	Every int64 `mapstructure:"every"`
}

// HTTPConfig configures dump downloads. A zero timeout means none.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// OutputDir is where results for date are written.
func (c Config) OutputDir(date string) string {
	return filepath.Join(c.DataDir, date)
}

// CacheDir is where reference datasets for date are cached.
func (c Config) CacheDir(date string) string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return c.OutputDir(date)
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Progress.Every <= 0 {
		errs = append(errs, fmt.Errorf("progress.every must be positive, got %d", c.Progress.Every))
	}
	if c.Cache.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_age must be positive, got %s", c.Cache.MaxAge))
	}
	if c.HTTP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("http.timeout must not be negative, got %s", c.HTTP.Timeout))
	}
	for i, m := range c.Dump.Mirrors {
		if m.Name == "" || m.URL == "" {
			errs = append(errs, fmt.Errorf("dump.mirrors[%d] needs both name and url", i))
		}
	}
	return errors.Join(errs...)
}
