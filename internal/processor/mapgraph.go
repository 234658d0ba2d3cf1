package processor

import (
	"context"
	"errors"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/entity"
	"github.com/brensch/dumpstats/internal/util"
)

const propCoordinateLocation = "P625"

// graphRelations are the item relations drawn on the map.
var graphRelations = map[string]bool{
	"P17":  true, // country
	"P36":  true, // capital
	"P47":  true, // shares border with
	"P138": true, // named after
	"P150": true, // contains administrative territorial entity
	"P190": true, // twinned administrative body
	"P197": true, // adjacent station
	"P403": true, // mouth of the watercourse
}

type geoPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Map extracts coordinates and relations of located items.
type Map struct {
	Base
	points map[string]geoPoint
	graph  map[string]map[string][]string
}

// NewMap creates the map processor.
func NewMap(opts ...Option) Processor {
	return &Map{
		Base:   newBase("map", opts),
		points: make(map[string]geoPoint),
		graph:  make(map[string]map[string][]string),
	}
}

func (m *Map) ProcessItem(item *entity.Item) error {
	stmts := item.Claims[propCoordinateLocation]
	if len(stmts) == 0 {
		return nil
	}
	// only the first coordinate statement counts
	coord, ok := stmts[0].MainSnak.GlobeCoordinate()
	if !ok {
		return nil
	}
	label, ok := item.Label("en")
	if !ok {
		label = "-"
	}
	m.points[item.ID] = geoPoint{X: coord.Latitude, Y: coord.Longitude, Label: label}
	m.counters.Increment("items.located")

	for _, g := range item.StatementGroups() {
		if !graphRelations[g.Property] {
			continue
		}
		targets := make([]string, 0, len(g.Statements))
		for _, s := range g.Statements {
			if id, ok := s.MainSnak.EntityID(); ok {
				targets = append(targets, id)
			}
		}
		if m.graph[g.Property] == nil {
			m.graph[g.Property] = make(map[string][]string)
		}
		m.graph[g.Property][item.ID] = targets
		m.counters.Add(counters.Key("relations", g.Property), float64(len(targets)))
	}
	return nil
}

// TearDown writes wdlabel.json, graph.json and the counters.
func (m *Map) TearDown(context.Context) error {
	return errors.Join(
		m.writeJSON("wdlabel.json", m.points),
		m.writeJSON("graph.json", m.graph),
		m.emit("mapMetrics"),
	)
}

func (m *Map) writeJSON(name string, v any) error {
	path := m.env.Path(name)
	data, err := json.Marshal(v)
	if err != nil {
		return &counters.OutputWriteError{Path: path, Err: err}
	}
	if err := util.WriteFileAtomic(path, data); err != nil {
		return &counters.OutputWriteError{Path: path, Err: err}
	}
	m.logger.Info("Map output written.", slog.String("file", name), slog.Int("bytes", len(data)))
	return nil
}
