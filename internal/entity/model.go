// Package entity decodes Wikidata JSON dumps into items and properties.
package entity

import (
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Snak types.
const (
	SnakValue     = "value"
	SnakSomeValue = "somevalue"
	SnakNoValue   = "novalue"
)

// Calendar models used by time values.
const (
	CalendarGregorian = "http://www.wikidata.org/entity/Q1985727"
	CalendarJulian    = "http://www.wikidata.org/entity/Q1985786"
)

// Record is a decoded entity: *Item or *Property.
type Record interface {
	EntityID() string
	Doc() *Document
}

// Document holds the parts shared by items and properties.
type Document struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Labels map[string]Term        `json:"labels"`
	Claims map[string][]Statement `json:"claims"`
}

// Item is an item document (Q-id).
type Item struct {
	Document
}

// Property is a property document (P-id).
type Property struct {
	Document
	Datatype string `json:"datatype"`
}

func (d *Document) EntityID() string { return d.ID }
func (d *Document) Doc() *Document   { return d }

// Term is a language-tagged string.
type Term struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// Label returns the label in lang.
func (d *Document) Label(lang string) (string, bool) {
	t, ok := d.Labels[lang]
	return t.Value, ok
}

// StatementGroup is every statement for one property.
type StatementGroup struct {
	Property   string
	Statements []Statement
}

// StatementGroups returns the claims ordered by numeric property id.
func (d *Document) StatementGroups() []StatementGroup {
	groups := make([]StatementGroup, 0, len(d.Claims))
	for pid, stmts := range d.Claims {
		groups = append(groups, StatementGroup{Property: pid, Statements: stmts})
	}
	sort.Slice(groups, func(i, j int) bool {
		return lessID(groups[i].Property, groups[j].Property)
	})
	return groups
}

// Statements returns every statement in property order.
func (d *Document) Statements() []Statement {
	var out []Statement
	for _, g := range d.StatementGroups() {
		out = append(out, g.Statements...)
	}
	return out
}

// StatementCount returns the number of statements without ordering them.
func (d *Document) StatementCount() int {
	n := 0
	for _, stmts := range d.Claims {
		n += len(stmts)
	}
	return n
}

// Statement is one claim with its qualifiers and references.
type Statement struct {
	ID              string            `json:"id"`
	Rank            string            `json:"rank"`
	MainSnak        Snak              `json:"mainsnak"`
	Qualifiers      map[string][]Snak `json:"qualifiers"`
	QualifiersOrder []string          `json:"qualifiers-order"`
	References      []Reference       `json:"references"`
}

// AllQualifiers returns the qualifier snaks in their declared order.
func (s Statement) AllQualifiers() []Snak {
	return orderedSnaks(s.Qualifiers, s.QualifiersOrder)
}

// Reference is one source for a statement.
type Reference struct {
	Hash       string            `json:"hash"`
	Snaks      map[string][]Snak `json:"snaks"`
	SnaksOrder []string          `json:"snaks-order"`
}

// AllSnaks returns the reference snaks in their declared order.
func (r Reference) AllSnaks() []Snak {
	return orderedSnaks(r.Snaks, r.SnaksOrder)
}

// Snak is a property with a value, an unknown value, or no value.
type Snak struct {
	SnakType  string     `json:"snaktype"`
	Property  string     `json:"property"`
	Datatype  string     `json:"datatype"`
	DataValue *DataValue `json:"datavalue"`
}

// DataValue is a typed value kept raw until an accessor asks for it.
type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Quantity is a numeric value with optional bounds and unit. Absent bounds are
// empty strings.
type Quantity struct {
	Amount     string `json:"amount"`
	Unit       string `json:"unit"`
	UpperBound string `json:"upperBound"`
	LowerBound string `json:"lowerBound"`
}

// Time is a point in time with precision and calendar model.
type Time struct {
	Time          string `json:"time"`
	Timezone      int    `json:"timezone"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
	Precision     int    `json:"precision"`
	CalendarModel string `json:"calendarmodel"`
}

// GlobeCoordinate is a latitude/longitude pair.
type GlobeCoordinate struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Precision *float64 `json:"precision"`
	Globe     string   `json:"globe"`
}

type entityIDValue struct {
	EntityType string `json:"entity-type"`
	NumericID  int64  `json:"numeric-id"`
	ID         string `json:"id"`
}

func (s Snak) value(kind string, dst any) bool {
	if s.SnakType != SnakValue || s.DataValue == nil || s.DataValue.Type != kind {
		return false
	}
	return json.Unmarshal(s.DataValue.Value, dst) == nil
}

// EntityID returns the id of a wikibase-entityid value.
func (s Snak) EntityID() (string, bool) {
	var v entityIDValue
	if !s.value("wikibase-entityid", &v) {
		return "", false
	}
	if v.ID != "" {
		return v.ID, true
	}
	// older dumps carry only the numeric id
	switch v.EntityType {
	case "item":
		return "Q" + strconv.FormatInt(v.NumericID, 10), true
	case "property":
		return "P" + strconv.FormatInt(v.NumericID, 10), true
	}
	return "", false
}

// Quantity returns the value of a quantity snak.
func (s Snak) Quantity() (Quantity, bool) {
	var q Quantity
	ok := s.value("quantity", &q)
	return q, ok
}

// Time returns the value of a time snak.
func (s Snak) Time() (Time, bool) {
	var t Time
	ok := s.value("time", &t)
	return t, ok
}

// GlobeCoordinate returns the value of a globe-coordinate snak.
func (s Snak) GlobeCoordinate() (GlobeCoordinate, bool) {
	var g GlobeCoordinate
	ok := s.value("globecoordinate", &g)
	return g, ok
}

// StringValue returns the value of a string snak.
func (s Snak) StringValue() (string, bool) {
	var v string
	ok := s.value("string", &v)
	return v, ok
}

// Year returns the signed year of t, e.g. -500 for 500 BCE.
func (t Time) Year() (int64, error) {
	v := t.Time
	sign := int64(1)
	switch {
	case strings.HasPrefix(v, "-"):
		sign, v = -1, v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	dash := strings.IndexByte(v, '-')
	if dash <= 0 {
		return 0, strconv.ErrSyntax
	}
	y, err := strconv.ParseInt(v[:dash], 10, 64)
	if err != nil {
		return 0, err
	}
	return sign * y, nil
}

func orderedSnaks(m map[string][]Snak, order []string) []Snak {
	if len(m) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(order))
	var out []Snak
	for _, pid := range order {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		out = append(out, m[pid]...)
	}
	if len(seen) == len(m) {
		return out
	}
	rest := make([]string, 0, len(m)-len(seen))
	for pid := range m {
		if !seen[pid] {
			rest = append(rest, pid)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return lessID(rest[i], rest[j]) })
	for _, pid := range rest {
		out = append(out, m[pid]...)
	}
	return out
}

// lessID orders ids like P31 < P279 by their numeric part.
func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(strings.TrimLeft(a, "PQLpql"), 10, 64)
	nb, errB := strconv.ParseInt(strings.TrimLeft(b, "PQLpql"), 10, 64)
	if errA != nil || errB != nil || na == nb {
		return a < b
	}
	return na < nb
}
