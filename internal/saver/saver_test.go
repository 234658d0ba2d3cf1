package saver

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/dumpstats/internal/counters"
)

func TestParquetFileRoundTripThroughDuckDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.parquet")

	r := counters.NewRegistry()
	r.Add("item.count", 3)
	r.Add("item.statements.total", 9)
	require.NoError(t, r.DeriveRatio("item.statements.total", "item.count", "item.statements.avg"))
	require.NoError(t, r.Emit(ParquetFile{Path: path}))
	assert.NoFileExists(t, path+".tmp")

	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Query(fmt.Sprintf(`SELECT key, value FROM read_parquet('%s') ORDER BY key`, filepath.ToSlash(path)))
	require.NoError(t, err)
	defer rows.Close()
	got := map[string]float64{}
	for rows.Next() {
		var k string
		var v float64
		require.NoError(t, rows.Scan(&k, &v))
		got[k] = v
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[string]float64{"item.count": 3, "item.statements.total": 9, "item.statements.avg": 3}, got)
}

func TestParquetFileWriteError(t *testing.T) {
	err := ParquetFile{Path: filepath.Join(t.TempDir(), "missing", "x.parquet")}.WriteCounters(map[string]float64{"a": 1})
	var owe *counters.OutputWriteError
	require.ErrorAs(t, err, &owe)
}

func TestSaveTablesToParquet(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TABLE dump_event_log (subject VARCHAR, event VARCHAR)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO dump_event_log VALUES ('20160104', 'run_end')`)
	require.NoError(t, err)

	out := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, SaveTablesToParquet(context.Background(), conn, out, logger))
	assert.FileExists(t, filepath.Join(out, "dump_event_log.parquet"))
}
