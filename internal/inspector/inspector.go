package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	_ "github.com/marcboeker/go-duckdb"
)

// Point is the value of one counter in one dated run.
type Point struct {
	Date  string
	Key   string
	Value float64
}

// runDirRegex captures the run date from <data>/<YYYYMMDD>/<name>.parquet.
var runDirRegex = regexp.MustCompile(`(?:^|/)(\d{8})/[^/]+\.parquet$`)

func extractRunDate(path string) (string, error) {
	matches := runDirRegex.FindStringSubmatch(filepath.ToSlash(path))
	if len(matches) > 1 {
		return matches[1], nil
	}
	return "", fmt.Errorf("path '%s' is not inside a dated run directory", path)
}

// Trend reads <dataDir>/*/<output>.parquet and returns every counter whose
// key starts with prefix, ordered by key then date.
func Trend(ctx context.Context, db *sql.DB, dataDir, output, prefix string, logger *slog.Logger) ([]Point, error) {
	globPattern := filepath.Join(dataDir, "*", output+".parquet")
	files, err := filepath.Glob(globPattern)
	if err != nil {
		return nil, fmt.Errorf("failed glob parquet files %s: %w", globPattern, err)
	}
	if len(files) == 0 {
		logger.Info("No parquet counter files found.", slog.String("pattern", globPattern))
		return nil, nil
	}
	logger.Debug("Found parquet counter files.", slog.Int("count", len(files)))

	query := fmt.Sprintf(`
		SELECT filename, key, value
		FROM read_parquet('%s', filename=true)
		WHERE starts_with(key, ?)
	`, strings.ReplaceAll(filepath.ToSlash(globPattern), "'", "''"))
	rows, err := db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("query parquet counters: %w", err)
	}
	defer rows.Close()

	var points []Point
	var skipped error
	for rows.Next() {
		var filename, key string
		var value float64
		if err := rows.Scan(&filename, &key, &value); err != nil {
			return nil, fmt.Errorf("scan counter row: %w", err)
		}
		date, err := extractRunDate(filename)
		if err != nil {
			skipped = errors.Join(skipped, err)
			continue
		}
		points = append(points, Point{Date: date, Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counter rows: %w", err)
	}
	if skipped != nil {
		logger.Warn("Some counter rows were skipped.", "error", skipped)
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Key != points[j].Key {
			return points[i].Key < points[j].Key
		}
		return points[i].Date < points[j].Date
	})
	return points, nil
}

// PrintTrend writes points as a table, with the change from the previous run
// of the same key.
func PrintTrend(w io.Writer, output string, points []Point) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "--- %s ---\n", output)
	fmt.Fprintf(w, "%-50s | %-8s | %-16s | %s\n", "Key", "Date", "Value", "Change")
	fmt.Fprintln(w, strings.Repeat("-", 95))
	var prev *Point
	for i := range points {
		p := points[i]
		change := ""
		if prev != nil && prev.Key == p.Key {
			change = fmt.Sprintf("%+g", p.Value-prev.Value)
		}
		fmt.Fprintf(w, "%-50s | %-8s | %-16s | %s\n", p.Key, p.Date, humanize.Commaf(p.Value), change)
		prev = &points[i]
	}
	fmt.Fprintf(w, "Displayed %d values.\n", len(points))
}
