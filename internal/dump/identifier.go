// Package dump locates a dated JSON dump on local mounts or remote mirrors
// and opens it as a decompressed byte stream.
package dump

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Latest is resolved to a concrete date through the dump index.
	Latest = "latest"
	// DefaultProject is the wiki whose entity dumps are analysed.
	DefaultProject = "wikidatawiki"
)

var digitsRegex = regexp.MustCompile(`^[0-9]+$`)

// Identifier names one dump. It is immutable once resolved.
type Identifier struct {
	Project string
	Date    string
}

// NewIdentifier validates date, which must be all digits or "latest".
func NewIdentifier(project, date string) (Identifier, error) {
	if project == "" {
		project = DefaultProject
	}
	date = strings.TrimSpace(date)
	if date != Latest && !digitsRegex.MatchString(date) {
		return Identifier{}, fmt.Errorf("invalid dump date %q: must be digits (YYYYMMDD) or %q", date, Latest)
	}
	return Identifier{Project: project, Date: date}, nil
}

// IsLatest reports whether the date still needs resolving.
func (id Identifier) IsLatest() bool { return id.Date == Latest }

func (id Identifier) String() string { return id.Project + "/" + id.Date }

// expand fills {project} and {date} in a path or URL template.
func (id Identifier) expand(tmpl string) string {
	return strings.NewReplacer("{project}", id.Project, "{date}", id.Date).Replace(tmpl)
}

// FileNameVariants lists the names dumps have been published under, most
// common first.
func FileNameVariants(date string) []string {
	return []string{
		date + ".json.gz",
		date + "-all.json.gz",
		"wikidata-" + date + ".json.gz",
		"wikidata-" + date + "-all.json.gz",
	}
}
