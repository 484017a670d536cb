package chromedp_fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/fetcher"
	"github.com/ghazaziz76/data-scraper/internal/proxy"
	"github.com/ghazaziz76/data-scraper/internal/repository"
	"github.com/ghazaziz76/data-scraper/pkg/utils"
)

// Chrome network errors that will not go away on retry.
var permanentNetErrors = []string{
	"net::ERR_NAME_NOT_RESOLVED",
	"net::ERR_CONNECTION_REFUSED",
	"net::ERR_ADDRESS_UNREACHABLE",
	"net::ERR_INVALID_URL",
	"net::ERR_BLOCKED_BY_CLIENT",
}

// ErrBrowserClosed is returned by Fetch after Close.
var ErrBrowserClosed = errors.New("browser has been closed")

// ChromedpFetcher renders pages as tabs of one headless browser, launched on
// the first fetch. At most maxConcurrency tabs are open at once.
type ChromedpFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        chan struct{}
	timeout     time.Duration
	logger      *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// NewChromedpFetcher creates a new fetcher implementation using chromedp.
func NewChromedpFetcher(maxConcurrency int, pageLoadTimeout time.Duration, proxies *proxy.Manager, logger *zap.Logger) *ChromedpFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(proxies.UserAgent()),
	)
	if p, _ := proxies.Proxy(nil); p != nil {
		opts = append(opts, chromedp.ProxyServer(p.String()))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &ChromedpFetcher{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		tabs:        make(chan struct{}, maxConcurrency),
		timeout:     pageLoadTimeout,
		logger:      logger,
	}
}

// Close shuts the browser down.
func (c *ChromedpFetcher) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.browserCancel != nil {
		c.browserCancel()
	}
	c.allocCancel()
}

// browser returns the context of the shared browser, launching it if needed.
// A failed launch is retried by the next fetch.
func (c *ChromedpFetcher) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrBrowserClosed
	}
	if c.browserCtx != nil {
		return c.browserCtx, nil
	}
	ctx, cancel := chromedp.NewContext(c.allocCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	c.browserCtx, c.browserCancel = ctx, cancel
	c.logger.Info("headless browser started")
	return ctx, nil
}

func (c *ChromedpFetcher) Fetch(ctx context.Context, target entity.FetchTarget) (*entity.RawDocument, error) {
	if !utils.IsHTTP(target.URL) {
		return nil, fetcher.MalformedURL(target.URL, errors.New("not an absolute http(s) URL"))
	}

	select {
	case c.tabs <- struct{}{}:
		defer func() { <-c.tabs }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	browserCtx, err := c.browser()
	if err != nil {
		return nil, &repository.FetchError{URL: target.URL, Err: err}
	}
	// A child of the browser context opens a tab; cancelling it closes only the tab.
	taskCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, c.timeout)
	defer cancelTimeout()
	// Tie the tab to the caller's context as well as the page timeout.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		mu         sync.Mutex
		statusCode int
		retryAfter string
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		// Redirects produce several document responses; the last one counts.
		statusCode = int(resp.Response.Status)
		if v, ok := resp.Response.Headers["Retry-After"]; ok {
			retryAfter = fmt.Sprint(v)
		}
	})

	wait := chromedp.WaitReady("body", chromedp.ByQuery)
	if target.WaitFor != "" {
		wait = chromedp.WaitVisible(target.WaitFor, chromedp.ByQuery)
	}

	start := time.Now()
	var html, finalURL string
	err = chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(target.URL),
		wait,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("failed to render page", zap.String("url", target.URL), zap.Error(err))
		return nil, classifyNavigation(target.URL, err)
	}

	mu.Lock()
	code, ra := statusCode, retryAfter
	mu.Unlock()
	if code != 0 && (code < 200 || code > 299) {
		h := http.Header{}
		if ra != "" {
			h.Set("Retry-After", ra)
		}
		return nil, fetcher.StatusError(target.URL, code, h, time.Now())
	}
	if code == 0 {
		code = http.StatusOK
	}

	c.logger.Debug("rendered page", zap.String("url", target.URL), zap.Duration("duration", time.Since(start)))
	return &entity.RawDocument{
		URL:         target.URL,
		FinalURL:    finalURL,
		StatusCode:  code,
		ContentType: "text/html",
		Body:        []byte(html),
		FetchedAt:   time.Now(),
		Duration:    time.Since(start),
	}, nil
}

func classifyNavigation(rawURL string, err error) *repository.FetchError {
	msg := err.Error()
	for _, p := range permanentNetErrors {
		if strings.Contains(msg, p) {
			return &repository.FetchError{URL: rawURL, Err: err}
		}
	}
	return &repository.FetchError{URL: rawURL, Err: err, Transient: true}
}
