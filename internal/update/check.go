// Package update compares the running loopchat version against a JSON release
// manifest published over HTTP.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// maxManifestSize caps how much of the response body is read.
const maxManifestSize = 64 << 10

// ErrNoVersion is returned when the manifest has no version field.
var ErrNoVersion = errors.New("manifest has no version")

// Manifest is the release document served at the manifest URL:
//
//	{"version": "1.4.0", "url": "https://example.com/loopchat/1.4.0"}
type Manifest struct {
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
}

// Result describes the outcome of a successful check.
type Result struct {
	Current string
	Latest  Manifest
	// Newer is true when Latest.Version sorts after Current.
	Newer bool
}

// ///////////////////////////////////////////////
// Checker
// ///////////////////////////////////////////////

// Checker fetches the manifest with retries.
type Checker struct {
	url    string
	client *retryablehttp.Client
	logger *slog.Logger
}

// Option configures a [Checker].
type Option func(*Checker)

// WithRetry sets the retry count and the minimum and maximum backoff.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Checker) {
		c.client.RetryMax = max
		c.client.RetryWaitMin = waitMin
		c.client.RetryWaitMax = waitMax
	}
}

// WithLogger sets the checker's logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChecker builds a checker for the manifest at url.
func NewChecker(url string, opts ...Option) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	c := &Checker{url: url, client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches the manifest and compares it against current.
func (c *Checker) Check(ctx context.Context, current string) (Result, error) {
	m, err := c.fetch(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Current: current, Latest: m, Newer: Less(current, m.Version)}, nil
}

// Notify runs [Checker.Check] and logs a newer release at info level. Errors
// are logged at debug level only; a failed check never affects the caller.
func (c *Checker) Notify(ctx context.Context, current string) {
	res, err := c.Check(ctx, current)
	if err != nil {
		c.logger.Debug("version check failed", "error", err)
		return
	}
	if res.Newer {
		c.logger.Info("new version available", "current", current, "latest", res.Latest.Version, "url", res.Latest.URL)
	}
}

func (c *Checker) fetch(ctx context.Context) (Manifest, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Manifest{}, fmt.Errorf("GET %s: status %d", c.url, resp.StatusCode)
	}

	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestSize)).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version == "" {
		return Manifest{}, ErrNoVersion
	}
	return m, nil
}

// ///////////////////////////////////////////////
// Version Ordering
// ///////////////////////////////////////////////

// version is a parsed "vMAJOR.MINOR.PATCH[-pre][+build]" string.
type version struct {
	nums [3]int
	pre  bool
}

// parseVersion returns false when s is not a three-part numeric version.
func parseVersion(s string) (version, bool) {
	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	var v version
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.pre = true
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return version{}, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || p == "" || p[0] == '+' {
			return version{}, false
		}
		v.nums[i] = n
	}
	return v, true
}

// Less reports whether version a sorts before b. A pre-release sorts before
// the same release. Strings that are not versions never compare less, so a
// development build ("dev") never reports an update.
func Less(a, b string) bool {
	va, okA := parseVersion(a)
	vb, okB := parseVersion(b)
	if !okA || !okB {
		return false
	}
	for i := range va.nums {
		if va.nums[i] != vb.nums[i] {
			return va.nums[i] < vb.nums[i]
		}
	}
	return va.pre && !vb.pre
}
