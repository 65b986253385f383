package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the production fetch transport.
type CollyConfig struct {
	UserAgent          string
	Concurrency        int
	RequestTimeout     time.Duration
	RateLimitPerDomain int
}

// CollyFetcher implements Fetcher using the Colly collector.
type CollyFetcher struct {
	baseCollector *colly.Collector
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg CollyConfig) (*CollyFetcher, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.RateLimitPerDomain <= 0 {
		cfg.RateLimitPerDomain = 1
	}

	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       cfg.Concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	delay := time.Second / time.Duration(cfg.RateLimitPerDomain)
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
		Delay:       delay,
	}); err != nil {
		return nil, fmt.Errorf("configure collector limits: %w", err)
	}

	return &CollyFetcher{baseCollector: base}, nil
}

// Fetch retrieves one page body via a cloned collector. Non-2xx responses
// surface as errors so the controller can log and move on.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			send(fetchResult{err: fmt.Errorf("unexpected status %d", r.StatusCode)})
			return
		}
		send(fetchResult{body: append([]byte(nil), r.Body...)})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return res.body, res.err
	default:
		return nil, errors.New("fetch produced no result")
	}
}

type fetchResult struct {
	body []byte
	err  error
}
