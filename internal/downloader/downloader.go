// Package downloader fetches dump files and the dump index from remote
// mirrors. Every request follows at most one redirect.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/brensch/dumpstats/internal/util"
)

// ErrTooManyRedirects is returned when a redirect target redirects again.
var ErrTooManyRedirects = errors.New("more than one redirect")

// Fetcher issues HTTP requests that follow exactly one 3xx hop.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewFetcher wraps client. The client is copied so that automatic redirect
// following can be disabled without affecting the caller's client.
func NewFetcher(client *http.Client, userAgent string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = util.DefaultHTTPClient(0)
	}
	if userAgent == "" {
		userAgent = util.UserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Fetcher{client: &c, userAgent: userAgent, logger: logger}
}

// Head confirms that rawURL is fetchable and returns the final URL after any
// redirect together with the advertised content length (-1 if unknown).
func (f *Fetcher) Head(ctx context.Context, rawURL string) (finalURL string, size int64, err error) {
	resp, err := f.do(ctx, http.MethodHead, rawURL, "")
	if err != nil {
		return "", 0, err
	}
	resp.Body.Close()
	return resp.Request.URL.String(), resp.ContentLength, nil
}

// Get returns a 200 response for rawURL. The caller must close the body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return f.do(ctx, http.MethodGet, rawURL, "")
}

// GetBytes reads a small response body fully.
func (f *Fetcher) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return f.GetBytesAccepting(ctx, rawURL, "")
}

// GetBytesAccepting is GetBytes with an Accept header, sent on the redirect
// hop too.
func (f *Fetcher) GetBytesAccepting(ctx context.Context, rawURL, accept string) ([]byte, error) {
	resp, err := f.do(ctx, http.MethodGet, rawURL, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading body from %s: %w", rawURL, err)
	}
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL, accept string) (*http.Response, error) {
	resp, err := f.send(ctx, method, rawURL, accept)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		loc, err := resp.Location()
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%s %s: redirect %s without usable Location: %w", method, rawURL, resp.Status, err)
		}
		f.logger.Debug("Following redirect.", slog.String("from", rawURL), slog.String("to", loc.String()), slog.Int("status", resp.StatusCode))

		resp, err = f.send(ctx, method, loc.String(), accept)
		if err != nil {
			return nil, err
		}
		if isRedirect(resp.StatusCode) {
			resp.Body.Close()
			return nil, fmt.Errorf("%s %s: %w", method, rawURL, ErrTooManyRedirects)
		}
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, resp.Request.URL.String(), string(snippet))
	}
	return resp, nil
}

func (f *Fetcher) send(ctx context.Context, method, rawURL, accept string) (*http.Response, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	// Dumps are stored as served. Left unset, the transport would ask for
	// gzip and transparently inflate a gzip-encoded body.
	req.Header.Set("Accept-Encoding", "identity")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s %s: %w", method, rawURL, err)
	}
	return resp, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
