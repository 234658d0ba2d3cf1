package processor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProcessor is returned by Build for names with no constructor.
var ErrUnknownProcessor = errors.New("unknown processor")

// Constructor creates a fresh processor.
type Constructor func(opts ...Option) Processor

// Registry maps processor names to constructors.
type Registry struct {
	ctors map[string]Constructor
	descs map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor), descs: make(map[string]string)}
}

// DefaultRegistry holds every built-in processor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("metric", "General statement, qualifier and reference counts", NewMetric)
	r.Register("reference", "Per-property reference coverage", NewReference)
	r.Register("exactvaluequantity", "Precision of quantity values", NewExactValueQuantity)
	r.Register("baddate", "Lists of suspicious calendar model usage", NewBadDate)
	r.Register("map", "Coordinates and relation graph for the map view", NewMap)
	return r
}

// Register adds a constructor. Registering a name twice replaces it.
func (r *Registry) Register(name, description string, c Constructor) {
	key := normalize(name)
	r.ctors[key] = c
	r.descs[key] = description
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe returns the description given at registration.
func (r *Registry) Describe(name string) string {
	return r.descs[normalize(name)]
}

// Build constructs processors in the order named. Names are matched
// case-insensitively and a trailing "Processor" is ignored, so "Metric",
// "metric" and "MetricProcessor" are the same.
func (r *Registry) Build(names []string, opts ...Option) ([]Processor, error) {
	if len(names) == 0 {
		return nil, errors.New("no processors requested")
	}
	var unknown []string
	seen := make(map[string]bool)
	procs := make([]Processor, 0, len(names))
	for _, n := range names {
		key := normalize(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		c, ok := r.ctors[key]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		procs = append(procs, c(opts...))
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownProcessor, strings.Join(unknown, ", "), strings.Join(r.Names(), ", "))
	}
	return procs, nil
}

func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(n, "processor")
}
