package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Register DuckDB driver
)

// SaveTablesToParquet copies every table of the state database into
// <outputDir>/<table>.parquet.
func SaveTablesToParquet(ctx context.Context, db *sql.DB, outputDir string, logger *slog.Logger) error {
	logger.Info("--- Starting DuckDB Table to Parquet Save Process ---")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	tableNames, err := listTables(ctx, db)
	if err != nil {
		return err
	}
	if len(tableNames) == 0 {
		logger.Info("No tables found in the database to save.")
		return nil
	}
	logger.Info("Found tables to save.", slog.Int("count", len(tableNames)))

	var saveErrors []error
	for _, tn := range tableNames {
		if err := ctx.Err(); err != nil {
			logger.Warn("Context cancelled before saving all tables.", "error", err)
			saveErrors = append(saveErrors, err)
			break
		}
		l := logger.With(slog.String("table", tn))

		safeFilename := strings.NewReplacer(`"`, "", "/", "_").Replace(tn)
		outputFilePath := filepath.Join(outputDir, safeFilename+".parquet")
		duckdbFilePath := filepath.ToSlash(outputFilePath)

		quotedTableName := fmt.Sprintf(`"%s"`, strings.ReplaceAll(tn, `"`, `""`))
		copySQL := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`,
			quotedTableName,
			strings.ReplaceAll(duckdbFilePath, "'", "''"),
		)
		if _, err := db.ExecContext(ctx, copySQL); err != nil {
			l.Error("Failed to save table to Parquet.", "error", err)
			saveErrors = append(saveErrors, fmt.Errorf("save %s: %w", tn, err))
			continue
		}
		l.Info("Saved table to Parquet.", slog.String("output_path", outputFilePath))
	}

	if finalErr := errors.Join(saveErrors...); finalErr != nil {
		logger.Error("Save process completed with errors.", "error", finalErr)
		return finalErr
	}
	logger.Info("--- DuckDB Table to Parquet Save Process Finished Successfully ---")
	return nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA show_tables;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tableNames []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tableNames = append(tableNames, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tableNames, nil
}
