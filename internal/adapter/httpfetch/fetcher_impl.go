package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/fetcher"
	"github.com/ghazaziz76/data-scraper/internal/proxy"
	"github.com/ghazaziz76/data-scraper/pkg/utils"
)

// HTTPFetcher retrieves documents over plain HTTP.
type HTTPFetcher struct {
	client       *http.Client
	proxies      *proxy.Manager
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHTTPFetcher builds a fetcher whose transport routes through the proxy
// manager. timeout bounds a single attempt.
func NewHTTPFetcher(proxies *proxy.Manager, timeout time.Duration, maxBodyBytes int64, logger *zap.Logger) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxies.Proxy
	return &HTTPFetcher{
		client:       &http.Client{Transport: transport, Timeout: timeout},
		proxies:      proxies,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, target entity.FetchTarget) (*entity.RawDocument, error) {
	if !utils.IsHTTP(target.URL) {
		return nil, fetcher.MalformedURL(target.URL, fmt.Errorf("not an absolute http(s) URL"))
	}

	method := strings.ToUpper(target.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if target.Body != "" {
		body = strings.NewReader(target.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.URL, body)
	if err != nil {
		return nil, fetcher.MalformedURL(target.URL, err)
	}
	req.Header.Set("User-Agent", f.proxies.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	if target.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fetcher.TransportError(target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fetcher.StatusError(target.URL, resp.StatusCode, resp.Header, time.Now())
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fetcher.TransportError(target.URL, err)
	}
	if int64(len(data)) > f.maxBodyBytes {
		return nil, fetcher.MalformedURL(target.URL, fmt.Errorf("response body exceeds %d bytes", f.maxBodyBytes))
	}

	f.logger.Debug("fetched document",
		zap.String("url", target.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)))

	return &entity.RawDocument{
		URL:         target.URL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
		FetchedAt:   time.Now(),
		Duration:    time.Since(start),
	}, nil
}
