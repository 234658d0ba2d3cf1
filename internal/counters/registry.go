// Package counters holds the flat, dot-keyed metric registry each processor
// accumulates into, plus the sinks that persist it.
package counters

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingDenominator is returned by DeriveRatio when the denominator
	// key was never written.
	ErrMissingDenominator = errors.New("denominator key was never incremented")
	// ErrZeroDenominator is returned by DeriveRatio when the denominator key
	// exists but holds zero.
	ErrZeroDenominator = errors.New("denominator is zero")
)

// Registry maps dotted keys such as references.snaks.type.value to float
// accumulators. Unset keys read as zero and keys are never removed.
// A Registry is owned by a single processor and is not safe for concurrent use.
type Registry struct {
	values map[string]float64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{values: make(map[string]float64)}
}

// Key joins semantic prefixes and an identifier with dots.
// Key("propertyCounters", "noUnit", "P1234") == "propertyCounters.noUnit.P1234".
func Key(parts ...string) string {
	return strings.Join(parts, ".")
}

// Increment adds one to key.
func (r *Registry) Increment(key string) {
	r.values[key]++
}

// Add adds amount to key.
func (r *Registry) Add(key string, amount float64) {
	r.values[key] += amount
}

// Set stores value under key, replacing any accumulated amount.
// Only post-processing derivations should call it.
func (r *Registry) Set(key string, value float64) {
	r.values[key] = value
}

// Get returns the value of key, or 0 if it was never written.
func (r *Registry) Get(key string) float64 {
	return r.values[key]
}

// Has reports whether key has ever been written.
func (r *Registry) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Len returns the number of keys in the registry.
func (r *Registry) Len() int {
	return len(r.values)
}

// Keys returns all keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the registry contents.
func (r *Registry) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// DeriveRatio stores numerator/denominator under into. It must only be called
// once every increment for the run has happened.
//
// A denominator that was never written fails with ErrMissingDenominator, and
// one that is present but zero fails with ErrZeroDenominator. In both cases
// into is left unwritten. A missing numerator reads as zero.
func (r *Registry) DeriveRatio(numerator, denominator, into string) error {
	if !r.Has(denominator) {
		return fmt.Errorf("derive %s from %s/%s: %w", into, numerator, denominator, ErrMissingDenominator)
	}
	den := r.values[denominator]
	if den == 0 {
		return fmt.Errorf("derive %s from %s/%s: %w", into, numerator, denominator, ErrZeroDenominator)
	}
	r.values[into] = r.values[numerator] / den
	return nil
}

// Emit hands the full registry to sink.
func (r *Registry) Emit(sink Sink) error {
	return sink.WriteCounters(r.Snapshot())
}
