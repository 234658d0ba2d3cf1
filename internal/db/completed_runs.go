package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// RunSucceeded is the run_end message of a run without errors.
const RunSucceeded = "ok"

// GetCompletedRunDates returns the dump dates with at least one successful run.
func GetCompletedRunDates(ctx context.Context, dbConnPool *sql.DB, logger *slog.Logger) (map[string]bool, error) {
	logger.Debug("Querying database for completed runs...")
	completed := make(map[string]bool)

	query := `
		SELECT DISTINCT subject
		FROM dump_event_log
		WHERE subject_type = ? AND event = ? AND message = ?;
	`
	rows, err := dbConnPool.QueryContext(ctx, query, SubjectRun, EventRunEnd, RunSucceeded)
	if err != nil {
		return nil, fmt.Errorf("query completed runs: %w", err)
	}
	defer rows.Close()

	var scanErrors error // Accumulate scan errors
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan completed run date: %w", err))
			continue
		}
		if date != "" {
			completed[date] = true
		}
	}
	if err := rows.Err(); err != nil {
		return completed, errors.Join(scanErrors, fmt.Errorf("iterate completed runs: %w", err))
	}

	logger.Debug("Found completed runs in DB.", slog.Int("count", len(completed)))
	return completed, scanErrors
}
