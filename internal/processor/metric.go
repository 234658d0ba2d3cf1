package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/entity"
)

// Reference properties that point at the source of a claim.
const (
	propImportedFrom = "P143"
	propStatedIn     = "P248"
)

// Metric collects general counts over items, properties, statements,
// qualifiers and references.
type Metric struct {
	Base
	referenceProps map[string]bool
	wikimedias     map[string]string
}

// NewMetric creates the metric processor.
func NewMetric(opts ...Option) Processor {
	return &Metric{Base: newBase("metric", opts)}
}

// SetUp loads the reference property list and the Wikimedia project map.
func (m *Metric) SetUp(ctx context.Context, env Env) error {
	if err := m.Base.SetUp(ctx, env); err != nil {
		return err
	}
	if env.Datasets == nil {
		return errNoDatasets
	}
	props, err := env.Datasets.ReferenceProperties(ctx)
	if err != nil {
		return fmt.Errorf("load reference properties: %w", err)
	}
	m.referenceProps = make(map[string]bool, len(props))
	for _, p := range props {
		m.referenceProps[p] = true
	}
	if m.wikimedias, err = env.Datasets.WikimediaProjects(ctx); err != nil {
		return fmt.Errorf("load wikimedia projects: %w", err)
	}
	m.logger.Debug("Reference datasets loaded.", "reference_properties", len(m.referenceProps), "wikimedia_projects", len(m.wikimedias))
	return nil
}

func (m *Metric) ProcessItem(item *entity.Item) error {
	c := m.counters
	c.Increment("item.count")
	c.Add("item.statements.total", float64(item.StatementCount()))
	for _, g := range item.StatementGroups() {
		for _, s := range g.Statements {
			m.processStatement(s)
		}
	}
	return nil
}

func (m *Metric) ProcessProperty(prop *entity.Property) error {
	m.counters.Increment("property.count")
	m.counters.Add("property.statements.total", float64(prop.StatementCount()))
	return nil
}

func (m *Metric) processStatement(s entity.Statement) {
	c := m.counters
	c.Add("qualifiers", float64(len(s.AllQualifiers())))
	c.Add("references", float64(len(s.References)))
	if len(s.References) == 0 {
		c.Increment("statements.unreferenced")
	} else {
		c.Increment("statements.referenced")
	}

	for _, ref := range s.References {
		snaks := ref.AllSnaks()
		c.Add("references.snaks", float64(len(snaks)))
		for _, snak := range snaks {
			m.processReferenceSnak(snak)
		}
	}
}

func (m *Metric) processReferenceSnak(snak entity.Snak) {
	c := m.counters
	// only properties intended for references, which leaves out external ids
	if m.referenceProps[snak.Property] {
		c.Increment(counters.Key("references.snaks.prop", snak.Property))
	}

	switch snak.SnakType {
	case entity.SnakValue:
		c.Increment("references.snaks.type.value")
		if db, ok := wikimediaSource(snak, m.wikimedias); ok {
			c.Increment("references.snaks.wm")
			c.Increment(counters.Key("references.snaks.wm", db))
		}
	case entity.SnakSomeValue:
		c.Increment("references.snaks.type.somevalue")
	case entity.SnakNoValue:
		c.Increment("references.snaks.type.novalue")
	}
}

// PostProcess derives the average statement counts.
func (m *Metric) PostProcess(context.Context) error {
	return errors.Join(
		m.counters.DeriveRatio("item.statements.total", "item.count", "item.statements.avg"),
		m.counters.DeriveRatio("property.statements.total", "property.count", "property.statements.avg"),
	)
}

func (m *Metric) TearDown(context.Context) error {
	return m.emit("metrics")
}

// wikimediaSource reports whether snak is an "imported from" or "stated in"
// value naming a Wikimedia project, and returns the project's database name.
func wikimediaSource(snak entity.Snak, projects map[string]string) (string, bool) {
	if snak.Property != propImportedFrom && snak.Property != propStatedIn {
		return "", false
	}
	id, ok := snak.EntityID()
	if !ok {
		return "", false
	}
	db, ok := projects[id]
	return db, ok
}
