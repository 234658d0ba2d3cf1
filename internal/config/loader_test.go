package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/dumpstats/internal/config"
	"github.com/brensch/dumpstats/internal/dump"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dumpstats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EmptyFile_UsesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""), nil)
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", config.DBFileName), cfg.DbPath)
	assert.Equal(t, config.DefaultProject, cfg.Project)
	assert.Equal(t, config.DefaultMounts, cfg.Dump.Mounts)
	assert.Equal(t, config.DefaultMirrors, cfg.Dump.Mirrors)
	assert.Equal(t, config.DefaultQueryEndpoint, cfg.Query.Endpoint)
	assert.Equal(t, config.DefaultCacheMaxAge, cfg.Cache.MaxAge)
	assert.Equal(t, int64(config.DefaultProgressEvery), cfg.Progress.Every)
	assert.Zero(t, cfg.HTTP.Timeout)
	assert.Equal(t, filepath.Join("data", "20160104"), cfg.CacheDir("20160104"))
}

func TestDefaultMirrorsFollowResolver(t *testing.T) {
	require.Len(t, config.DefaultMirrors, len(dump.DefaultMirrors))
	for i, m := range dump.DefaultMirrors {
		assert.Equal(t, m.Name, config.DefaultMirrors[i].Name)
		assert.Equal(t, m.URLTemplate, config.DefaultMirrors[i].URL)
	}
	assert.Equal(t, dump.DefaultMounts, config.DefaultMounts)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `data_dir: /srv/wd
dump:
  mounts: []
  mirrors:
    - name: local-mirror
      url: http://mirror.internal/{date}.json.gz
cache:
  dir: /var/cache/dumpstats
  max_age: 72h
  allow_stale: true
progress:
  every: 5000
http:
  timeout: 30m
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/srv/wd", cfg.DataDir)
	assert.Equal(t, "/srv/wd/"+config.DBFileName, cfg.DbPath)
	assert.Empty(t, cfg.Dump.Mounts)
	assert.Equal(t, []config.Mirror{{Name: "local-mirror", URL: "http://mirror.internal/{date}.json.gz"}}, cfg.Dump.Mirrors)
	assert.Equal(t, 72*time.Hour, cfg.Cache.MaxAge)
	assert.True(t, cfg.Cache.AllowStale)
	assert.Equal(t, "/var/cache/dumpstats", cfg.CacheDir("20160104"))
	assert.Equal(t, int64(5000), cfg.Progress.Every)
	assert.Equal(t, 30*time.Minute, cfg.HTTP.Timeout)
}

func TestLoad_EnvAndFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "data_dir: /from/file\nproject: testwiki\n")
	t.Setenv("DUMPSTATS_PROJECT", "envwiki")
	t.Setenv("DUMPSTATS_PROGRESS_EVERY", "42")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("data-dir", "./data", "")
	flags.Bool("parquet", false, "")
	require.NoError(t, flags.Parse([]string{"--data-dir", "/from/flag", "--parquet"}))

	cfg, err := config.Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.DataDir)
	assert.Equal(t, "envwiki", cfg.Project)
	assert.Equal(t, int64(42), cfg.Progress.Every)
	assert.True(t, cfg.Output.Parquet)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := config.Load(writeConfig(t, "progress:\n  every: 0\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress.every")

	_, err = config.Load(writeConfig(t, "dump:\n  mirrors:\n    - name: nameless-url\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dump.mirrors[0]")

	_, err = config.Load(writeConfig(t, "data_dir: [unterminated"), nil)
	assert.Error(t, err)
}
