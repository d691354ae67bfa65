package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsTTL bounds how long a cached robots.txt is trusted.
const robotsTTL = time.Hour

// robotsMaxBytes caps how much of a robots.txt we read.
const robotsMaxBytes = 1 << 20

// RobotsGate fetches, caches and evaluates robots.txt per origin. A fetch
// failure is treated as allow-all; a parseable file is evaluated for the
// wildcard agent group.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobotsGate builds a RobotsGate with its own short-timeout client.
func NewRobotsGate(userAgent string, logger *zap.Logger) *RobotsGate {
	return &RobotsGate{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether rawURL may be fetched under the origin's
// robots.txt rules.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup("*")
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (g *RobotsGate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)

	g.mu.Lock()
	entry, ok := g.cache[key]
	g.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < robotsTTL {
		return entry.data, nil
	}

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}

	g.mu.Lock()
	g.cache[key] = robotsEntry{data: data, fetchedAt: time.Now()}
	g.mu.Unlock()
	return data, nil
}
