package processor

import (
	"context"
	"strings"

	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/entity"
)

// Units meaning "no unit".
const (
	unitOne       = "1"
	unitDimension = "http://www.wikidata.org/entity/Q199"
)

// ExactValueQuantity audits the precision of quantity values in main snaks,
// qualifiers and references.
type ExactValueQuantity struct {
	Base
}

// NewExactValueQuantity creates the quantity precision processor.
func NewExactValueQuantity(opts ...Option) Processor {
	return &ExactValueQuantity{Base: newBase("exactvaluequantity", opts)}
}

func (e *ExactValueQuantity) ProcessItem(item *entity.Item) error {
	for _, s := range item.Statements() {
		e.processSnak(s.MainSnak, "main")
		for _, q := range s.AllQualifiers() {
			e.processSnak(q, "qualifier")
		}
		for _, ref := range s.References {
			for _, snak := range ref.AllSnaks() {
				e.processSnak(snak, "reference")
			}
		}
	}
	return nil
}

func (e *ExactValueQuantity) processSnak(snak entity.Snak, slot string) {
	q, ok := snak.Quantity()
	if !ok {
		return
	}
	pid := snak.Property
	c := e.counters
	c.Increment(counters.Key("property", pid))
	c.Increment(counters.Key("type", slot, pid))

	// absent bounds compare equal
	if q.UpperBound == q.LowerBound {
		e.count("noBound", pid)
	}
	if q.Unit == unitOne || q.Unit == unitDimension {
		e.count("noUnit", pid)
	}
	if !strings.Contains(q.Amount, ".") {
		e.count("noDecimal", pid)
	}
}

func (e *ExactValueQuantity) count(stat, pid string) {
	e.counters.Increment(counters.Key("counters", stat))
	e.counters.Increment(counters.Key("propertyCounters", stat, pid))
}

func (e *ExactValueQuantity) TearDown(context.Context) error {
	return e.emit("exactValueQuantityMetrics")
}
