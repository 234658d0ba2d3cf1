package util

import (
	"net/http"
	"time"
)

// UserAgent identifies this tool to dump mirrors and the query service.
const UserAgent = "dumpstats/0.3 (Go-client; dump analysis)"

// DefaultHTTPClient creates an http.Client with the given timeout.
// A zero timeout means no client-side limit, which is what multi-gigabyte
// dump downloads need; callers wanting a bound pass one explicitly.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
