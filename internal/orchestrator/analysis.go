package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/dumpstats/internal/cache"
	"github.com/brensch/dumpstats/internal/config"
	"github.com/brensch/dumpstats/internal/counters"
	"github.com/brensch/dumpstats/internal/db"
	"github.com/brensch/dumpstats/internal/downloader"
	"github.com/brensch/dumpstats/internal/dump"
	"github.com/brensch/dumpstats/internal/entity"
	"github.com/brensch/dumpstats/internal/processor"
	"github.com/brensch/dumpstats/internal/query"
	"github.com/brensch/dumpstats/internal/refdata"
	"github.com/brensch/dumpstats/internal/saver"
	"github.com/brensch/dumpstats/internal/util"
)

// Request selects what to analyse.
type Request struct {
	Date       string // YYYYMMDD or dump.Latest
	Processors []string
}

// Deps are the collaborators of a run. Zero values get defaults.
type Deps struct {
	DB               *sql.DB // event log, optional
	Registry         *processor.Registry
	HTTPClient       *http.Client
	Progress         ProgressFunc
	DownloadProgress downloader.ProgressFunc
	Started          func(h dump.Handle) // called once the dump is resolved
}

// NewResolver builds the dump resolver described by cfg.
func NewResolver(cfg config.Config, client *http.Client, recorder dump.EventRecorder, logger *slog.Logger) *dump.Resolver {
	if client == nil {
		client = util.DefaultHTTPClient(cfg.HTTP.Timeout)
	}
	fetcher := downloader.NewFetcher(client, cfg.HTTP.UserAgent, logger)
	mirrors := make([]dump.Mirror, 0, len(cfg.Dump.Mirrors))
	for _, m := range cfg.Dump.Mirrors {
		mirrors = append(mirrors, dump.Mirror{Name: m.Name, URLTemplate: m.URL})
	}
	return dump.NewResolver(dump.ResolverConfig{
		DataDir:  cfg.DataDir,
		Mounts:   cfg.Dump.Mounts,
		Mirrors:  mirrors,
		IndexURL: cfg.Dump.IndexURL,
	}, fetcher, recorder, logger)
}

// RunAnalysis resolves the dump, runs the selected processors over it and
// writes their outputs to <data>/<date>/.
func RunAnalysis(ctx context.Context, cfg config.Config, req Request, deps Deps, logger *slog.Logger) (Summary, error) {
	start := time.Now()
	logger.Info("Starting analysis...", slog.String("date", req.Date), slog.Any("processors", req.Processors))

	if info, err := os.Stat(cfg.DataDir); err != nil || !info.IsDir() {
		return Summary{}, fmt.Errorf("data directory %s does not exist", cfg.DataDir)
	}

	registry := deps.Registry
	if registry == nil {
		registry = processor.DefaultRegistry()
	}
	var sinks processor.SinkFactory
	if cfg.Output.Parquet {
		sinks = func(outputDir, base string) counters.Sink {
			return counters.MultiSink{
				processor.JSONSink(outputDir, base),
				saver.ParquetFile{Path: filepath.Join(outputDir, base+".parquet")},
			}
		}
	}
	procs, err := registry.Build(req.Processors)
	if err != nil {
		return Summary{}, err
	}

	recorder := db.NewRecorder(deps.DB, logger)
	resolver := NewResolver(cfg, deps.HTTPClient, recorder, logger)
	if deps.DownloadProgress != nil {
		resolver.OnDownloadProgress(deps.DownloadProgress)
	}

	id, err := dump.NewIdentifier(cfg.Project, req.Date)
	if err != nil {
		return Summary{}, err
	}
	if id, err = resolver.ResolveDate(ctx, id); err != nil {
		return Summary{}, err
	}
	l := logger.With(slog.String("date", id.Date))

	if deps.DB != nil {
		completed, err := db.GetCompletedRunDates(ctx, deps.DB, l)
		if err != nil {
			l.Warn("Could not read previous runs.", "error", err)
		} else if completed[id.Date] {
			l.Info("Dump was analysed before, outputs will be overwritten.")
		}
	}

	outputDir := cfg.OutputDir(id.Date)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Summary{}, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}
	recorder.Record(ctx, db.SubjectRun, dump.Event{Subject: id.Date, Event: db.EventRunStart, OutputPath: outputDir})

	summary, err := analyse(ctx, cfg, id, outputDir, procs, sinks, resolver, deps, l)

	elapsed := time.Since(start)
	for _, f := range summary.Failures {
		recorder.Record(ctx, db.SubjectProcessor, dump.Event{Subject: f.Processor, Event: db.EventProcessorFailed, OutputPath: outputDir, Message: f.Error()})
	}
	endMsg := db.RunSucceeded
	switch {
	case err != nil:
		endMsg = err.Error()
	case summary.Failed():
		endMsg = fmt.Sprintf("%d processor(s) failed", len(summary.Failures))
	}
	recorder.Record(context.WithoutCancel(ctx), db.SubjectRun, dump.Event{Subject: id.Date, Event: db.EventRunEnd, OutputPath: outputDir, Message: endMsg, Duration: &elapsed})

	if err != nil {
		l.Error("Analysis failed.", "error", err, slog.Duration("elapsed", elapsed))
		return summary, err
	}
	l.Info("Analysis finished.", slog.Int64("records", summary.Records), slog.Int("failed_processors", len(summary.Failures)), slog.Duration("elapsed", elapsed))
	return summary, nil
}

func analyse(ctx context.Context, cfg config.Config, id dump.Identifier, outputDir string, procs []processor.Processor, sinks processor.SinkFactory, resolver *dump.Resolver, deps Deps, logger *slog.Logger) (Summary, error) {
	handle, err := resolver.Resolve(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	logger.Info("Dump resolved.", slog.String("path", handle.Path), slog.String("source", handle.Source))
	if deps.Started != nil {
		deps.Started(handle)
	}

	store := cache.NewStore(cfg.CacheDir(id.Date), logger)
	qc := query.NewClient(cfg.Query.Endpoint, util.DefaultHTTPClient(cfg.Query.Timeout), cfg.HTTP.UserAgent, logger)
	datasets := refdata.NewProvider(store, qc, cfg.Cache.MaxAge, cfg.Cache.AllowStale, logger)

	reader, err := handle.Open()
	if err != nil {
		return Summary{}, err
	}
	defer reader.Close()
	stream := entity.NewStream(reader)

	env := processor.Env{OutputDir: outputDir, Datasets: datasets, Logger: logger, Sinks: sinks}
	mgr := NewManager(env, logger,
		WithProgressEvery(cfg.Progress.Every),
		WithBytesRead(reader.CompressedRead),
		WithProgressFunc(deps.Progress),
	)
	summary, err := mgr.Run(ctx, stream, procs)
	if skipped := stream.Skipped(); len(skipped) > 0 {
		logger.Info("Skipped entities of unknown type.", slog.Any("types", skipped))
	}
	return summary, err
}
