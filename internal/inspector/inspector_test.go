package inspector

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/dumpstats/internal/saver"
)

func TestExtractRunDate(t *testing.T) {
	d, err := extractRunDate("/data/20160104/metrics.parquet")
	require.NoError(t, err)
	assert.Equal(t, "20160104", d)

	_, err = extractRunDate("/data/latest/metrics.parquet")
	assert.Error(t, err)
}

func TestTrendAcrossRuns(t *testing.T) {
	dataDir := t.TempDir()
	write := func(date string, values map[string]float64) {
		dir := filepath.Join(dataDir, date)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, saver.ParquetFile{Path: filepath.Join(dir, "metrics.parquet")}.WriteCounters(values))
	}
	write("20160111", map[string]float64{"item.count": 5, "property.count": 2})
	write("20160104", map[string]float64{"item.count": 3, "property.count": 2})

	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	points, err := Trend(context.Background(), conn, dataDir, "metrics", "item.", logger)
	require.NoError(t, err)
	assert.Equal(t, []Point{
		{Date: "20160104", Key: "item.count", Value: 3},
		{Date: "20160111", Key: "item.count", Value: 5},
	}, points)

	var buf bytes.Buffer
	PrintTrend(&buf, "metrics", points)
	assert.Contains(t, buf.String(), "+2")
}

func TestTrendWithoutFiles(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	points, err := Trend(context.Background(), conn, t.TempDir(), "metrics", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Empty(t, points)
}
