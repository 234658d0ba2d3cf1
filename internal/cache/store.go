// Package cache persists small reference datasets as files whose freshness
// is their modification time.
//
// A cache file is single-writer: two runs refreshing the same file at the
// same time race, and the last rename wins. Nothing here guards against it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/brensch/dumpstats/internal/util"
)

// DefaultMaxAge matches the refresh cadence of the upstream query service datasets.
const DefaultMaxAge = 14 * 24 * time.Hour

// RefreshError reports that a dataset could not be refreshed from its source.
// Any previously cached copy is left untouched.
type RefreshError struct {
	Name string
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh cached dataset %s: %v", e.Name, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Store is a directory of cached datasets plus an in-process memo of decoded
// values so several consumers in one run share a single parse. Memo entries
// are keyed by dataset name and max age; a lookup with a shorter max age
// never sees a value remembered under a longer one.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
	memo   *ttlcache.Cache[string, any]
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first write.
func NewStore(dir string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:    dir,
		logger: logger.With(slog.String("component", "cache"), slog.String("dir", dir)),
		now:    time.Now,
		memo: ttlcache.New(
			ttlcache.WithTTL[string, any](DefaultMaxAge),
			ttlcache.WithDisableTouchOnHit[string, any](),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path for a dataset name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Age returns how long ago name was last written. found is false when the
// file does not exist.
func (s *Store) Age(name string) (age time.Duration, found bool, err error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat cache file %s: %w", name, err)
	}
	return s.now().Sub(info.ModTime()), true, nil
}

// GetOrRefresh returns the dataset stored under name. A file younger than
// maxAge is decoded and returned without calling refresh. Otherwise refresh is
// called once, its result written over the file and returned.
//
// A refresh failure is returned as *RefreshError and the old file is kept.
// A value decoded or refreshed earlier on the same Store with the same maxAge
// is returned from memory until maxAge has passed.
func GetOrRefresh[T any](ctx context.Context, s *Store, name string, maxAge time.Duration, codec Codec[T], refresh func(context.Context) (T, error)) (T, error) {
	var zero T
	logger := s.logger.With(slog.String("dataset", name))
	key := memoKey(name, maxAge)

	if item := s.memo.Get(key); item != nil {
		if v, ok := item.Value().(T); ok {
			logger.Debug("Dataset served from in-process memo.")
			return v, nil
		}
	}

	age, found, err := s.Age(name)
	if err != nil {
		return zero, err
	}
	if found && age < maxAge {
		raw, err := os.ReadFile(s.Path(name))
		if err != nil {
			return zero, fmt.Errorf("read cache file %s: %w", name, err)
		}
		v, err := codec.Decode(raw)
		if err == nil {
			logger.Debug("Using fresh cached dataset.", slog.Duration("age", age))
			s.memo.Set(key, v, maxAge-age)
			return v, nil
		}
		// An unreadable file is treated like a stale one.
		logger.Warn("Cached dataset could not be decoded, refreshing.", "error", err)
	} else if found {
		logger.Info("Cached dataset is stale, refreshing.", slog.Duration("age", age), slog.Duration("max_age", maxAge))
	} else {
		logger.Info("No cached dataset, fetching.")
	}

	v, err := refresh(ctx)
	if err != nil {
		return zero, &RefreshError{Name: name, Err: err}
	}
	raw, err := codec.Encode(v)
	if err != nil {
		return zero, fmt.Errorf("encode dataset %s: %w", name, err)
	}
	if err := util.WriteFileAtomic(s.Path(name), raw); err != nil {
		return zero, fmt.Errorf("write cache file %s: %w", name, err)
	}
	logger.Info("Cached dataset refreshed.", slog.Int("bytes", len(raw)))
	s.memo.Set(key, v, maxAge)
	return v, nil
}

func memoKey(name string, maxAge time.Duration) string {
	return name + "@" + maxAge.String()
}

// LoadStale decodes whatever copy of name exists on disk, regardless of age.
// Callers use it to tolerate a failed refresh.
func LoadStale[T any](s *Store, name string, codec Codec[T]) (T, error) {
	var zero T
	raw, err := os.ReadFile(s.Path(name))
	if err != nil {
		return zero, fmt.Errorf("read stale cache file %s: %w", name, err)
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return zero, fmt.Errorf("decode stale cache file %s: %w", name, err)
	}
	return v, nil
}
