// Package fetch implements the polite page fetcher: robots.txt gating,
// per-origin throttling and bounded body sizes around a Colly collector.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/metrics"
)

// Defaults applied when a request leaves the knob at zero.
const (
	DefaultTimeout  = 8 * time.Second
	DefaultMaxBytes = 200_000
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxBytes      int
	RespectRobots bool
}

// Fetcher implements importer.Fetcher using a Colly collector behind a
// robots gate and a per-origin throttle.
type Fetcher struct {
	cfg           Config
	robots        *RobotsGate
	throttle      *Throttle
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// New builds a Fetcher. The robots gate and throttle are shared so that
// concurrent jobs hitting the same origin observe one budget.
func New(cfg Config, robots *RobotsGate, throttle *Throttle, logger *zap.Logger) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true // the gate owns robots decisions
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		robots:        robots,
		throttle:      throttle,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch retrieves one page. A robots refusal is reported via
// FetchResult.Disallowed, not as an error; the throttle is consulted only
// for pages that will actually be requested.
func (f *Fetcher) Fetch(ctx context.Context, request importer.FetchRequest) (importer.FetchResult, error) {
	if f.cfg.RespectRobots && f.robots != nil && !f.robots.Allowed(ctx, request.URL) {
		metrics.ObserveRobotsBlocked(request.URL)
		f.logger.Info("robots.txt disallows fetch", zap.String("url", request.URL))
		return importer.FetchResult{URL: request.URL, Disallowed: true}, nil
	}

	if f.throttle != nil {
		if err := f.throttle.WaitWith(ctx, request.URL, request.TokensPerSecond, request.BucketCapacity); err != nil {
			return importer.FetchResult{}, err
		}
	}

	var (
		result   importer.FetchResult
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		metrics.ObserveFetch(request.URL, "error", 0)
		return importer.FetchResult{}, err
	}
	metrics.ObserveFetch(request.URL, fmt.Sprintf("%d", result.StatusCode), len(result.Body))
	return result, nil
}

func (f *Fetcher) buildCollector(
	request importer.FetchRequest,
	start time.Time,
	result *importer.FetchResult,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true

	timeout := request.Timeout
	if timeout == 0 {
		timeout = f.cfg.Timeout
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	maxBytes := request.MaxBytes
	if maxBytes == 0 {
		maxBytes = f.cfg.MaxBytes
	}
	if maxBytes == 0 {
		maxBytes = DefaultMaxBytes
	}

	collector.OnResponse(func(r *colly.Response) {
		body := r.Body
		truncated := false
		if len(body) > maxBytes {
			body = body[:maxBytes]
			truncated = true
		}
		*result = importer.FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), body...),
			Truncated:  truncated,
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
	return collector
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
