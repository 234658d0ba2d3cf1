package counters

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/brensch/dumpstats/internal/util"
)

// Sink persists a flat counter map.
type Sink interface {
	WriteCounters(values map[string]float64) error
}

// OutputWriteError reports that a processor's results could not be persisted.
// The results of that processor are lost for the run.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("write output %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

// JSONFile writes counters as one flat JSON object with sorted keys.
type JSONFile struct {
	Path string
}

// WriteCounters implements Sink.
func (j JSONFile) WriteCounters(values map[string]float64) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return &OutputWriteError{Path: j.Path, Err: err}
	}
	if err := util.WriteFileAtomic(j.Path, append(data, '\n')); err != nil {
		return &OutputWriteError{Path: j.Path, Err: err}
	}
	return nil
}

// MultiSink fans counters out to several sinks and joins their errors.
type MultiSink []Sink

// WriteCounters implements Sink.
func (m MultiSink) WriteCounters(values map[string]float64) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteCounters(values); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
