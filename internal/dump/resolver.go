package dump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/brensch/dumpstats/internal/downloader"
	"github.com/brensch/dumpstats/internal/util"
)

// Mirror is a remote host serving dumps. URLTemplate may contain {date} and
// {project}.
type Mirror struct {
	Name        string
	URLTemplate string
}

// DefaultMirrors lists the remote hosts in preference order.
var DefaultMirrors = []Mirror{
	{Name: "dumps.wikimedia.org", URLTemplate: "https://dumps.wikimedia.org/other/wikidata/{date}.json.gz"},
	{Name: "archive.org", URLTemplate: "https://archive.org/download/wikidata-json-{date}/wikidata-{date}-all.json.gz"},
}

// DefaultMounts are the operational mount points checked after the data dir.
var DefaultMounts = []string{
	"/public/dumps/public/{project}/entities/{date}",
	"/mnt/data/xmldatadumps/public/{project}/entities/{date}",
}

// ResolverConfig describes where dumps may be found.
type ResolverConfig struct {
	DataDir  string
	Mounts   []string
	Mirrors  []Mirror
	IndexURL string
}

// Resolver finds a usable dump: the data directory first, then the mounts,
// then the mirrors. A mirror download lands in the data directory, so the
// next run resolves locally without touching the network.
type Resolver struct {
	cfg      ResolverConfig
	fetcher  *downloader.Fetcher
	recorder EventRecorder
	progress downloader.ProgressFunc
	logger   *slog.Logger
}

// NewResolver creates a resolver. recorder may be nil.
func NewResolver(cfg ResolverConfig, fetcher *downloader.Fetcher, recorder EventRecorder, logger *slog.Logger) *Resolver {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mounts == nil {
		cfg.Mounts = DefaultMounts
	}
	if cfg.Mirrors == nil {
		cfg.Mirrors = DefaultMirrors
	}
	return &Resolver{
		cfg:      cfg,
		fetcher:  fetcher,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// OnDownloadProgress registers a callback for mirror downloads.
func (r *Resolver) OnDownloadProgress(fn downloader.ProgressFunc) {
	r.progress = fn
}

// DownloadDir is where mirror downloads for id are stored.
func (r *Resolver) DownloadDir(id Identifier) string {
	return filepath.Join(r.cfg.DataDir, "dumpfiles", "json-"+id.Date)
}

// ResolveDate turns the latest sentinel into a concrete date. Other
// identifiers are returned unchanged.
func (r *Resolver) ResolveDate(ctx context.Context, id Identifier) (Identifier, error) {
	if !id.IsLatest() {
		return id, nil
	}
	date, err := downloader.LatestDumpDate(ctx, r.fetcher, r.cfg.IndexURL)
	if err != nil {
		return id, fmt.Errorf("resolve latest dump date: %w", err)
	}
	r.logger.Info("Resolved latest dump date.", slog.String("date", date))
	return Identifier{Project: id.Project, Date: date}, nil
}

// Resolve returns a handle for id, downloading it if no local copy exists.
func (r *Resolver) Resolve(ctx context.Context, id Identifier) (Handle, error) {
	id, err := r.ResolveDate(ctx, id)
	if err != nil {
		return Handle{}, &ResolutionError{ID: id, Err: err}
	}
	l := r.logger.With(slog.String("dump", id.String()))
	r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventResolveStart})

	h, err := FirstSuccess(ctx, id, r.Tiers(), func(t Tier, err error) {
		l.Info("Source unavailable, trying next.", slog.String("tier", t.Name), slog.Bool("remote", t.Remote),
			slog.Any("candidates", t.Candidates(id)), "error", err)
	})
	if err != nil {
		r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventError, Message: err.Error()})
		return Handle{}, &ResolutionError{ID: id, Err: err}
	}
	l.Info("Dump resolved.", slog.String("source", h.Source), slog.String("path", h.Path), slog.String("size", humanize.Bytes(uint64(h.Size))))
	return h, nil
}

// Tiers returns the sources in the order they are tried.
func (r *Resolver) Tiers() []Tier {
	var tiers []Tier
	dirs := append([]string{r.DownloadDir(Identifier{Date: "{date}"})}, r.cfg.Mounts...)
	for i, dir := range dirs {
		dir := dir
		name := "local:" + dir
		if i == 0 {
			name = "local:data-dir"
		}
		candidates := func(id Identifier) []string {
			base := id.expand(dir)
			out := make([]string, 0, 4)
			for _, v := range FileNameVariants(id.Date) {
				out = append(out, filepath.Join(base, v))
			}
			return out
		}
		tiers = append(tiers, Tier{
			Name:       name,
			Candidates: candidates,
			Attempt:    r.localAttempt(name, candidates),
		})
	}
	for _, m := range r.cfg.Mirrors {
		m := m
		candidates := func(id Identifier) []string { return []string{id.expand(m.URLTemplate)} }
		tiers = append(tiers, Tier{
			Name:       "mirror:" + m.Name,
			Remote:     true,
			Candidates: candidates,
			Attempt:    r.mirrorAttempt(m, candidates),
		})
	}
	return tiers
}

func (r *Resolver) localAttempt(name string, candidates func(Identifier) []string) Attempt {
	return func(ctx context.Context, id Identifier) (Handle, error) {
		var errs []error
		for _, path := range candidates(id) {
			if err := util.IsReadableFile(path); err != nil {
				r.logger.Debug("Local candidate missing.", slog.String("path", path), "error", err)
				r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventCandidateMiss, Source: name, OutputPath: path})
				errs = append(errs, err)
				continue
			}
			h, err := localHandle(id, path, name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			r.logger.Info("Found local dump.", slog.String("tier", name), slog.String("path", path))
			r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventCandidateHit, Source: name, OutputPath: path})
			return h, nil
		}
		return Handle{}, errors.Join(errs...)
	}
}

func (r *Resolver) mirrorAttempt(m Mirror, candidates func(Identifier) []string) Attempt {
	return func(ctx context.Context, id Identifier) (Handle, error) {
		if r.fetcher == nil {
			return Handle{}, errors.New("no fetcher configured")
		}
		url := candidates(id)[0]
		l := r.logger.With(slog.String("mirror", m.Name), slog.String("url", url))
		l.Info("Checking mirror.")

		final, size, err := r.fetcher.Head(ctx, url)
		if err != nil {
			r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventCandidateMiss, Source: url, Message: err.Error()})
			return Handle{}, fmt.Errorf("availability check: %w", err)
		}
		sizeStr := "unknown"
		if size >= 0 {
			sizeStr = humanize.Bytes(uint64(size))
		}
		l.Info("Mirror has dump, downloading.", slog.String("final_url", final), slog.String("size", sizeStr))

		r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventDownloadStart, Source: url})
		start := time.Now()
		dir := r.DownloadDir(id)
		path, written, err := downloader.SaveAtomic(ctx, r.fetcher, url, dir, FileNameVariants(id.Date)[0], r.progress)
		dur := time.Since(start)
		if err != nil {
			r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventError, Source: url, Message: err.Error(), Duration: &dur})
			return Handle{}, fmt.Errorf("download: %w", err)
		}
		r.recorder.RecordEvent(ctx, Event{Subject: id.Date, Event: EventDownloadEnd, Source: url, OutputPath: path, Duration: &dur})
		return Handle{ID: id, Path: path, Source: "mirror:" + m.Name, Size: written}, nil
	}
}

func localHandle(id Identifier, path, source string) (Handle, error) {
	size, err := fileSize(path)
	if err != nil {
		return Handle{}, err
	}
	return Handle{ID: id, Path: path, Source: source, Size: size}, nil
}
