package util

import (
	"fmt"
	"regexp"
	"time"
)

// DumpDateLayout is the layout of dump date stamps, e.g. 20160104.
const DumpDateLayout = "20060102"

var dumpDateRegex = regexp.MustCompile(`^\d{8}$`)

// IsDumpDate reports whether s looks like a YYYYMMDD dump stamp.
func IsDumpDate(s string) bool {
	return dumpDateRegex.MatchString(s)
}

// ParseDumpDate parses and validates a YYYYMMDD stamp.
func ParseDumpDate(s string) (time.Time, error) {
	if !IsDumpDate(s) {
		return time.Time{}, fmt.Errorf("dump date '%s' must be 8 digits in the format YYYYMMDD", s)
	}
	t, err := time.ParseInLocation(DumpDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse dump date '%s': %w", s, err)
	}
	return t, nil
}
