package db

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/dumpstats/internal/dump"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, InitializeSchema(conn))
	// schema creation is idempotent
	require.NoError(t, InitializeSchema(conn))
	return conn
}

func TestRecorderAndCompletedRuns(t *testing.T) {
	ctx := context.Background()
	conn := openMemory(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := NewRecorder(conn, logger)

	d := 1500 * time.Millisecond
	rec.RecordEvent(ctx, dump.Event{Subject: "20160104", Event: dump.EventDownloadEnd, Source: "https://mirror/x.json.gz", OutputPath: "/data/x.json.gz", Duration: &d})
	rec.Record(ctx, SubjectRun, dump.Event{Subject: "20160104", Event: EventRunEnd, Message: RunSucceeded})
	rec.Record(ctx, SubjectRun, dump.Event{Subject: "20160111", Event: EventRunEnd, Message: "processor metric: boom"})

	var n int
	var ms int64
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT count(*), max(duration_ms) FROM dump_event_log WHERE subject_type = ?`, SubjectDump).Scan(&n, &ms))
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1500), ms)

	completed, err := GetCompletedRunDates(ctx, conn, logger)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"20160104": true}, completed)

	require.NoError(t, DisplayEventHistory(ctx, conn, SubjectRun, "", 10))
}

func TestRecorderWithoutDatabase(t *testing.T) {
	// must not panic
	NewRecorder(nil, nil).RecordEvent(context.Background(), dump.Event{Subject: "x", Event: "y"})
}
