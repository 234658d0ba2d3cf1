package downloader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/brensch/dumpstats/internal/util"
)

// DefaultIndexURL lists the available JSON dumps.
const DefaultIndexURL = "https://dumps.wikimedia.org/other/wikidata/"

// dumpSuffixLen is the length of ".json.gz", stripped from the anchor text.
const dumpSuffixLen = 8

// LatestDumpDate reads the dump index page and returns the date stamp of the
// last anchor in document order, with its 8-character suffix stripped.
//
// This assumes the listing is sorted so that the last entry is the newest.
// That holds for the current index but nothing guarantees it.
func LatestDumpDate(ctx context.Context, f *Fetcher, indexURL string) (string, error) {
	if indexURL == "" {
		indexURL = DefaultIndexURL
	}
	body, err := f.GetBytes(ctx, indexURL)
	if err != nil {
		return "", fmt.Errorf("fetch dump index: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse dump index %s: %w", indexURL, err)
	}

	anchors := util.ParseAnchors(root)
	if len(anchors) == 0 {
		return "", fmt.Errorf("dump index %s has no entries", indexURL)
	}
	last := anchors[len(anchors)-1]
	text := strings.TrimSpace(last.Text)
	if len(text) < dumpSuffixLen {
		return "", fmt.Errorf("last dump index entry %q is too short to hold a date", text)
	}
	date := text[:len(text)-dumpSuffixLen]

	f.logger.Debug("Derived latest dump date from last index entry; relies on the index being sorted.",
		slog.String("anchor_text", text), slog.String("anchor_href", last.Href), slog.String("date", date))

	if _, err := util.ParseDumpDate(date); err != nil {
		return "", fmt.Errorf("last dump index entry %q: %w", text, err)
	}
	return date, nil
}
