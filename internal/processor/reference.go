package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/entity"
)

// Reference measures, per main snak property, how many statements are
// referenced and how many rely only on Wikimedia projects as sources.
type Reference struct {
	Base
	wikimedias map[string]string
}

// NewReference creates the reference processor.
func NewReference(opts ...Option) Processor {
	return &Reference{Base: newBase("reference", opts)}
}

func (r *Reference) SetUp(ctx context.Context, env Env) error {
	if err := r.Base.SetUp(ctx, env); err != nil {
		return err
	}
	if env.Datasets == nil {
		return errNoDatasets
	}
	var err error
	if r.wikimedias, err = env.Datasets.WikimediaProjects(ctx); err != nil {
		return fmt.Errorf("load wikimedia projects: %w", err)
	}
	return nil
}

func (r *Reference) ProcessItem(item *entity.Item) error {
	for _, g := range item.StatementGroups() {
		for _, s := range g.Statements {
			r.processStatement(g.Property, s)
		}
	}
	return nil
}

func (r *Reference) processStatement(pid string, s entity.Statement) {
	r.counters.Increment(counters.Key("property", pid, "statements"))
	if len(s.References) == 0 {
		return
	}
	r.counters.Increment(counters.Key("property", pid, "referenced"))

	for _, ref := range s.References {
		if !r.isWikimediaReference(ref) {
			return
		}
	}
	r.counters.Increment(counters.Key("property", pid, "wikimediaOnly"))
}

// isWikimediaReference reports whether ref cites a Wikimedia project.
func (r *Reference) isWikimediaReference(ref entity.Reference) bool {
	for _, snak := range ref.AllSnaks() {
		if _, ok := wikimediaSource(snak, r.wikimedias); ok {
			return true
		}
	}
	return false
}

// PostProcess derives property.<pid>.referenced.ratio for every property seen.
func (r *Reference) PostProcess(context.Context) error {
	var errs []error
	for _, key := range r.counters.Keys() {
		if !strings.HasSuffix(key, ".statements") {
			continue
		}
		prefix := strings.TrimSuffix(key, ".statements")
		errs = append(errs, r.counters.DeriveRatio(prefix+".referenced", key, prefix+".referenced.ratio"))
	}
	return errors.Join(errs...)
}

func (r *Reference) TearDown(context.Context) error {
	return r.emit("referenceMetrics")
}
