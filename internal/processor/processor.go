// Package processor defines the collectors that consume the entity stream.
//
// Every processor goes through the same phases, driven by the orchestrator:
// SetUp, PreProcess, one ProcessItem/ProcessProperty call per record,
// PostProcess and TearDown. Counters may only be emitted from TearDown.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/entity"
)

// Processor is a statistics collector.
type Processor interface {
	Name() string
	SetUp(ctx context.Context, env Env) error
	PreProcess(ctx context.Context) error
	ProcessItem(item *entity.Item) error
	ProcessProperty(prop *entity.Property) error
	PostProcess(ctx context.Context) error
	TearDown(ctx context.Context) error
}

// Aborter is implemented by processors that hold open outputs. Abort is
// called instead of TearDown when the run fails before processing starts; it
// releases resources without writing results.
type Aborter interface {
	Abort(ctx context.Context) error
}

// CounterOwner is implemented by processors that aggregate into a registry.
type CounterOwner interface {
	Counters() *counters.Registry
}

// Datasets supplies the cached reference data some processors need.
type Datasets interface {
	ReferenceProperties(ctx context.Context) ([]string, error)
	WikimediaProjects(ctx context.Context) (map[string]string, error)
}

// SinkFactory returns the sink for an output named base (no extension).
type SinkFactory func(outputDir, base string) counters.Sink

// Env is what a processor gets at SetUp.
type Env struct {
	OutputDir string
	Datasets  Datasets
	Logger    *slog.Logger
	Sinks     SinkFactory
}

// Path returns name inside the output directory.
func (e Env) Path(name string) string {
	return filepath.Join(e.OutputDir, name)
}

// CounterSink returns the sink for base, by default a JSON file base.json.
func (e Env) CounterSink(base string) counters.Sink {
	if e.Sinks != nil {
		return e.Sinks(e.OutputDir, base)
	}
	return JSONSink(e.OutputDir, base)
}

// JSONSink writes base.json in outputDir.
func JSONSink(outputDir, base string) counters.Sink {
	return counters.JSONFile{Path: filepath.Join(outputDir, base+".json")}
}

var errNoDatasets = errors.New("processor needs reference datasets but none were configured")

// Option customises a processor at construction.
type Option func(*Base)

// WithCounters makes the processor accumulate into r instead of a fresh registry.
func WithCounters(r *counters.Registry) Option {
	return func(b *Base) { b.counters = r }
}

// Base provides no-op phases and counter ownership. Processors embed it and
// override what they need.
type Base struct {
	name     string
	env      Env
	logger   *slog.Logger
	counters *counters.Registry
}

func newBase(name string, opts []Option) Base {
	b := Base{name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}
	if b.counters == nil {
		b.counters = counters.NewRegistry()
	}
	return b
}

func (b *Base) Name() string                      { return b.name }
func (b *Base) Counters() *counters.Registry      { return b.counters }
func (b *Base) PreProcess(context.Context) error  { return nil }
func (b *Base) ProcessItem(*entity.Item) error    { return nil }
func (b *Base) PostProcess(context.Context) error { return nil }
func (b *Base) TearDown(context.Context) error    { return nil }
func (b *Base) Abort(context.Context) error       { return nil }

func (b *Base) ProcessProperty(*entity.Property) error { return nil }

// SetUp records env.
func (b *Base) SetUp(_ context.Context, env Env) error {
	b.env = env
	if env.Logger != nil {
		b.logger = env.Logger
	}
	b.logger = b.logger.With(slog.String("processor", b.name))
	return nil
}

// emit writes the registry to the sink for base.
func (b *Base) emit(base string) error {
	if err := b.counters.Emit(b.env.CounterSink(base)); err != nil {
		return err
	}
	b.logger.Info("Counters written.", slog.String("output", base), slog.Int("keys", b.counters.Len()))
	return nil
}
