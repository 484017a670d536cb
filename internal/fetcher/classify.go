package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"
	"time"

	"github.com/ghazaziz76/data-scraper/internal/repository"
)

// StatusError maps a non-2xx response to a FetchError. 429 and 5xx are
// transient, every other status is permanent.
func StatusError(rawURL string, code int, header http.Header, now time.Time) *repository.FetchError {
	fe := &repository.FetchError{URL: rawURL, StatusCode: code}
	switch {
	case code == http.StatusTooManyRequests:
		fe.Transient = true
		fe.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), now)
	case code >= 500:
		fe.Transient = true
	}
	return fe
}

// ParseRetryAfter accepts delay-seconds or an HTTP date. Zero means absent.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// TransportError classifies an error returned before any response arrived.
func TransportError(rawURL string, err error) *repository.FetchError {
	fe := &repository.FetchError{URL: rawURL, Err: err}

	var dnsErr *net.DNSError
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fe.Transient = true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		fe.Transient = true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		fe.Transient = false
	case errors.As(err, &dnsErr):
		fe.Transient = !dnsErr.IsNotFound
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Transient = true
	case errors.As(err, &urlErr):
		// Any remaining url.Error wraps an I/O failure on an established request.
		var opErr *net.OpError
		fe.Transient = errors.As(urlErr.Err, &opErr)
	}
	return fe
}

// MalformedURL reports a target that can never be fetched.
func MalformedURL(rawURL string, err error) *repository.FetchError {
	return &repository.FetchError{URL: rawURL, Err: err}
}
