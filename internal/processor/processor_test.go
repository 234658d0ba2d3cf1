package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/entity"
)

type staticDatasets struct {
	props    []string
	projects map[string]string
	err      error
}

func (s staticDatasets) ReferenceProperties(context.Context) ([]string, error) {
	return s.props, s.err
}

func (s staticDatasets) WikimediaProjects(context.Context) (map[string]string, error) {
	return s.projects, s.err
}

func testEnv(t *testing.T, ds Datasets) Env {
	return Env{
		OutputDir: t.TempDir(),
		Datasets:  ds,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// decode turns dump lines into records.
func decode(t *testing.T, lines ...string) []entity.Record {
	t.Helper()
	s := entity.NewStream(strings.NewReader("[\n" + strings.Join(lines, ",\n") + "\n]\n"))
	var out []entity.Record
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

// feed runs p through every phase over recs.
func feed(t *testing.T, p Processor, env Env, recs []entity.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.SetUp(ctx, env))
	require.NoError(t, p.PreProcess(ctx))
	for _, rec := range recs {
		switch r := rec.(type) {
		case *entity.Item:
			require.NoError(t, p.ProcessItem(r))
		case *entity.Property:
			require.NoError(t, p.ProcessProperty(r))
		}
	}
	require.NoError(t, p.PostProcess(ctx))
	require.NoError(t, p.TearDown(ctx))
}

func stringSnak(pid, v string) string {
	return `{"snaktype":"value","property":"` + pid + `","datatype":"string","datavalue":{"type":"string","value":"` + v + `"}}`
}

func itemSnak(pid, qid string) string {
	return `{"snaktype":"value","property":"` + pid + `","datatype":"wikibase-item","datavalue":{"type":"wikibase-entityid","value":{"entity-type":"item","id":"` + qid + `"}}}`
}

func noValue(pid string) string   { return `{"snaktype":"novalue","property":"` + pid + `"}` }
func someValue(pid string) string { return `{"snaktype":"somevalue","property":"` + pid + `"}` }

// Q42 with three statements: one with a qualifier and three single-snak
// references, one with two qualifiers and a two-snak reference, and one bare.
var q42 = `{"type":"item","id":"Q42","labels":{"en":{"language":"en","value":"Douglas Adams"}},"claims":{
"P1":[
 {"id":"Q42$1","rank":"normal","mainsnak":` + stringSnak("P1", "a") + `,
  "qualifiers":{"P1":[` + stringSnak("P1", "q") + `]},
  "references":[
   {"hash":"r1","snaks":{"P143":[` + noValue("P143") + `]},"snaks-order":["P143"]},
   {"hash":"r2","snaks":{"P99":[` + someValue("P99") + `]},"snaks-order":["P99"]},
   {"hash":"r3","snaks":{"P2":[` + stringSnak("P2", "src") + `]},"snaks-order":["P2"]}]},
 {"id":"Q42$2","rank":"normal","mainsnak":` + stringSnak("P1", "b") + `,
  "qualifiers":{"P10":[` + stringSnak("P10", "x") + `],"P11":[` + stringSnak("P11", "y") + `]},
  "references":[{"hash":"r4","snaks":{"P55":[` + stringSnak("P55", "s") + `],"P66":[` + noValue("P66") + `]},"snaks-order":["P55","P66"]}]}],
"P100":[{"id":"Q42$3","rank":"normal","mainsnak":` + noValue("P100") + `}]}}`

var p166 = `{"type":"property","id":"P166","datatype":"wikibase-item","claims":{"P1":[{"id":"P166$1","rank":"normal","mainsnak":` + stringSnak("P1", "award") + `}]}}`

// compact strips the newlines used above for readability; the dump has one
// entity per line.
func compact(s string) string { return strings.ReplaceAll(s, "\n", "") }

func TestMetricCounts(t *testing.T) {
	p := NewMetric()
	env := testEnv(t, staticDatasets{props: []string{"P143"}, projects: map[string]string{}})
	feed(t, p, env, decode(t, compact(q42), compact(p166)))

	c := p.(CounterOwner).Counters()
	want := map[string]float64{
		"qualifiers":                      3,
		"references":                      4,
		"statements.referenced":           2,
		"statements.unreferenced":         1,
		"references.snaks":                5,
		"references.snaks.prop.P143":      1,
		"references.snaks.type.value":     2,
		"references.snaks.type.somevalue": 1,
		"references.snaks.type.novalue":   2,
		"item.count":                      1,
		"item.statements.total":           3,
		"item.statements.avg":             3,
		"property.count":                  1,
		"property.statements.total":       1,
		"property.statements.avg":         1,
	}
	assert.Equal(t, want, c.Snapshot())

	raw, err := os.ReadFile(filepath.Join(env.OutputDir, "metrics.json"))
	require.NoError(t, err)
	var written map[string]float64
	require.NoError(t, json.Unmarshal(raw, &written))
	assert.Equal(t, want, written)
}

func TestMetricWikimediaReferences(t *testing.T) {
	item := `{"type":"item","id":"Q1","claims":{"P31":[{"id":"Q1$1","mainsnak":` + itemSnak("P31", "Q5") + `,"references":[
		{"snaks":{"P143":[` + itemSnak("P143", "Q328") + `]}},
		{"snaks":{"P248":[` + itemSnak("P248", "Q48183") + `]}},
		{"snaks":{"P248":[` + itemSnak("P248", "Q1234") + `]}}]}]}}`
	prop := `{"type":"property","id":"P31","claims":{}}`

	p := NewMetric()
	feed(t, p, testEnv(t, staticDatasets{projects: map[string]string{"Q328": "enwiki", "Q48183": "dewiki"}}), decode(t, compact(item), prop))

	c := p.(CounterOwner).Counters()
	assert.Equal(t, 2.0, c.Get("references.snaks.wm"))
	assert.Equal(t, 1.0, c.Get("references.snaks.wm.enwiki"))
	assert.Equal(t, 1.0, c.Get("references.snaks.wm.dewiki"))
	assert.False(t, c.Has("references.snaks.prop.P143"), "P143 was not in the reference property list")
	assert.Equal(t, 0.0, c.Get("property.statements.avg"))
}

func TestMetricWithoutPropertiesFailsPostProcess(t *testing.T) {
	ctx := context.Background()
	p := NewMetric()
	require.NoError(t, p.SetUp(ctx, testEnv(t, staticDatasets{})))
	for _, rec := range decode(t, compact(q42)) {
		require.NoError(t, p.ProcessItem(rec.(*entity.Item)))
	}
	err := p.PostProcess(ctx)
	assert.ErrorIs(t, err, counters.ErrMissingDenominator)
	assert.Equal(t, 3.0, p.(CounterOwner).Counters().Get("item.statements.avg"))
}

func TestMetricSetUpNeedsDatasets(t *testing.T) {
	err := NewMetric().SetUp(context.Background(), testEnv(t, nil))
	assert.ErrorIs(t, err, errNoDatasets)

	boom := errors.New("refresh failed")
	err = NewMetric().SetUp(context.Background(), testEnv(t, staticDatasets{err: boom}))
	assert.ErrorIs(t, err, boom)
}

func TestWithCounters(t *testing.T) {
	shared := counters.NewRegistry()
	shared.Add("item.count", 10)
	p := NewMetric(WithCounters(shared))
	feed(t, p, testEnv(t, staticDatasets{}), decode(t, compact(q42), compact(p166)))
	assert.Equal(t, 11.0, shared.Get("item.count"))
}

func quantitySnak(pid, amount, unit, bounds string) string {
	return `{"snaktype":"value","property":"` + pid + `","datavalue":{"type":"quantity","value":{"amount":"` + amount + `","unit":"` + unit + `"` + bounds + `}}}`
}

func TestExactValueQuantity(t *testing.T) {
	item := `{"type":"item","id":"Q1","claims":{"P1082":[{"id":"Q1$1",
		"mainsnak":` + quantitySnak("P1082", "+100", "1", "") + `,
		"qualifiers":{"P2048":[` + quantitySnak("P2048", "+1.5", "http://www.wikidata.org/entity/Q11573", `,"upperBound":"+1.6","lowerBound":"+1.4"`) + `]},
		"references":[{"snaks":{"P2":[` + quantitySnak("P2", "+7", "http://www.wikidata.org/entity/Q199", `,"upperBound":"+7","lowerBound":"+7"`) + `],"P3":[` + stringSnak("P3", "x") + `]}}]}]}}`

	p := NewExactValueQuantity()
	env := testEnv(t, nil)
	feed(t, p, env, decode(t, compact(item)))

	want := map[string]float64{
		"property.P1082":                   1,
		"property.P2048":                   1,
		"property.P2":                      1,
		"type.main.P1082":                  1,
		"type.qualifier.P2048":             1,
		"type.reference.P2":                1,
		"counters.noBound":                 2,
		"counters.noUnit":                  2,
		"counters.noDecimal":               2,
		"propertyCounters.noBound.P1082":   1,
		"propertyCounters.noBound.P2":      1,
		"propertyCounters.noUnit.P1082":    1,
		"propertyCounters.noUnit.P2":       1,
		"propertyCounters.noDecimal.P1082": 1,
		"propertyCounters.noDecimal.P2":    1,
	}
	assert.Equal(t, want, p.(CounterOwner).Counters().Snapshot())
	assert.FileExists(t, filepath.Join(env.OutputDir, "exactValueQuantityMetrics.json"))
}

func timeSnak(pid, ts string, precision int, calendar string) string {
	return `{"snaktype":"value","property":"` + pid + `","datavalue":{"type":"time","value":{"time":"` + ts + `","timezone":0,"before":0,"after":0,"precision":` + strconv.Itoa(precision) + `,"calendarmodel":"` + calendar + `"}}}`
}

func TestBadDate(t *testing.T) {
	item := `{"type":"item","id":"Q1","claims":{"P569":[
		{"id":"Q1$julian-day","mainsnak":` + timeSnak("P569", "+1500-03-01T00:00:00Z", 11, entity.CalendarJulian) + `},
		{"id":"Q1$julian-year","mainsnak":` + timeSnak("P569", "+1500-00-00T00:00:00Z", 9, entity.CalendarJulian) + `},
		{"id":"Q1$greg-old","mainsnak":` + timeSnak("P569", "+1200-00-00T00:00:00Z", 9, entity.CalendarGregorian) + `},
		{"id":"Q1$greg-bce","mainsnak":` + timeSnak("P569", "-0044-03-15T00:00:00Z", 11, entity.CalendarGregorian) + `},
		{"id":"Q1$greg-ok","mainsnak":` + timeSnak("P569", "+1952-03-11T00:00:00Z", 11, entity.CalendarGregorian) + `}]}}`

	p := NewBadDate()
	env := testEnv(t, nil)
	feed(t, p, env, decode(t, compact(item)))

	list1, err := os.ReadFile(filepath.Join(env.OutputDir, "date_list1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Dates marked as Julian that are more precise than year\n----\nQ1$julian-day\n", string(list1))

	list2, err := os.ReadFile(filepath.Join(env.OutputDir, "date_list2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Dates marked as gregorian, before 1584\n----\nQ1$greg-old\nQ1$greg-bce\n", string(list2))

	c := p.(CounterOwner).Counters()
	assert.Equal(t, 5.0, c.Get("time.values"))
	assert.Equal(t, 1.0, c.Get("julian.precise"))
	assert.Equal(t, 2.0, c.Get("gregorian.pre1584"))
}

func coordSnak(lat, lon string) string {
	return `{"snaktype":"value","property":"P625","datavalue":{"type":"globecoordinate","value":{"latitude":` + lat + `,"longitude":` + lon + `,"precision":0.01,"globe":"http://www.wikidata.org/entity/Q2"}}}`
}

func TestMap(t *testing.T) {
	berlin := `{"type":"item","id":"Q64","labels":{"en":{"language":"en","value":"Berlin"}},"claims":{
		"P625":[{"id":"Q64$c","mainsnak":` + coordSnak("52.5", "13.4") + `}],
		"P17":[{"id":"Q64$p17","mainsnak":` + itemSnak("P17", "Q183") + `}],
		"P47":[{"id":"Q64$a","mainsnak":` + itemSnak("P47", "Q1208") + `},{"id":"Q64$b","mainsnak":` + noValue("P47") + `}],
		"P31":[{"id":"Q64$i","mainsnak":` + itemSnak("P31", "Q515") + `}]}}`
	unlabelled := `{"type":"item","id":"Q2","claims":{"P625":[{"id":"Q2$c","mainsnak":` + coordSnak("1", "2") + `}]}}`
	unlocated := `{"type":"item","id":"Q3","claims":{"P17":[{"id":"Q3$p17","mainsnak":` + itemSnak("P17", "Q183") + `}]}}`

	p := NewMap()
	env := testEnv(t, nil)
	feed(t, p, env, decode(t, compact(berlin), compact(unlabelled), compact(unlocated)))

	var labels map[string]geoPoint
	raw, err := os.ReadFile(filepath.Join(env.OutputDir, "wdlabel.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &labels))
	assert.Equal(t, map[string]geoPoint{
		"Q64": {X: 52.5, Y: 13.4, Label: "Berlin"},
		"Q2":  {X: 1, Y: 2, Label: "-"},
	}, labels)

	var graph map[string]map[string][]string
	raw, err = os.ReadFile(filepath.Join(env.OutputDir, "graph.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &graph))
	assert.Equal(t, map[string]map[string][]string{
		"P17": {"Q64": {"Q183"}},
		"P47": {"Q64": {"Q1208"}},
	}, graph)
}

func TestReference(t *testing.T) {
	item := `{"type":"item","id":"Q1","claims":{
		"P31":[
			{"id":"a","mainsnak":` + itemSnak("P31", "Q5") + `,"references":[{"snaks":{"P143":[` + itemSnak("P143", "Q328") + `]}}]},
			{"id":"b","mainsnak":` + itemSnak("P31", "Q5") + `,"references":[{"snaks":{"P143":[` + itemSnak("P143", "Q328") + `]}},{"snaks":{"P854":[` + stringSnak("P854", "http://example.org") + `]}}]},
			{"id":"c","mainsnak":` + itemSnak("P31", "Q5") + `}],
		"P21":[{"id":"d","mainsnak":` + itemSnak("P21", "Q6581097") + `}]}}`

	p := NewReference()
	feed(t, p, testEnv(t, staticDatasets{projects: map[string]string{"Q328": "enwiki"}}), decode(t, compact(item)))

	c := p.(CounterOwner).Counters()
	assert.Equal(t, 3.0, c.Get("property.P31.statements"))
	assert.Equal(t, 2.0, c.Get("property.P31.referenced"))
	assert.Equal(t, 1.0, c.Get("property.P31.wikimediaOnly"))
	assert.InDelta(t, 2.0/3.0, c.Get("property.P31.referenced.ratio"), 1e-9)
	assert.Equal(t, 0.0, c.Get("property.P21.referenced.ratio"))
	assert.True(t, c.Has("property.P21.referenced.ratio"))
}

func TestRegistryBuild(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"baddate", "exactvaluequantity", "map", "metric", "reference"}, r.Names())

	procs, err := r.Build([]string{"MetricProcessor", "map", "Metric", " BadDate "})
	require.NoError(t, err)
	require.Len(t, procs, 3)
	assert.Equal(t, "metric", procs[0].Name())
	assert.Equal(t, "map", procs[1].Name())
	assert.Equal(t, "baddate", procs[2].Name())

	_, err = r.Build([]string{"metric", "Nonexistent"})
	assert.ErrorIs(t, err, ErrUnknownProcessor)
	assert.Contains(t, err.Error(), "Nonexistent")

	_, err = r.Build(nil)
	assert.Error(t, err)
}
