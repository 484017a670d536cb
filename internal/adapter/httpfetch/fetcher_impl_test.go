package httpfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/proxy"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

func newFetcher(t *testing.T, maxBody int64) *HTTPFetcher {
	pm, err := proxy.NewManager(nil, []string{"scraper-test/1.0"})
	require.NoError(t, err)
	return NewHTTPFetcher(pm, 5*time.Second, maxBody, zaptest.NewLogger(t))
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "scraper-test/1.0", r.UserAgent())
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>hi</body></html>")
	}))
	defer srv.Close()

	doc, err := newFetcher(t, 1<<20).Fetch(context.Background(), entity.FetchTarget{
		URL:     srv.URL + "/page",
		Headers: map[string]string{"X-Custom": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, "text/html", doc.ContentType)
	assert.Contains(t, string(doc.Body), "hi")
}

func TestFetch_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	doc, err := newFetcher(t, 1<<20).Fetch(context.Background(), entity.FetchTarget{
		URL: srv.URL, Method: "post", Body: `{"q":1}`,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"q":1}`, string(doc.Body))
}

func TestFetch_StatusClassification(t *testing.T) {
	cases := map[int]bool{
		http.StatusNotFound:            false,
		http.StatusForbidden:           false,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
	}
	for code, transient := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(code)
		}))
		_, err := newFetcher(t, 1<<20).Fetch(context.Background(), entity.FetchTarget{URL: srv.URL})
		srv.Close()

		var fe *repository.FetchError
		require.True(t, errors.As(err, &fe), "status %d", code)
		assert.Equal(t, code, fe.StatusCode)
		assert.Equal(t, transient, fe.Transient, "status %d", code)
		if code == http.StatusTooManyRequests {
			assert.Equal(t, 3*time.Second, fe.RetryAfter)
		}
	}
}

func TestFetch_MalformedURLIsPermanent(t *testing.T) {
	_, err := newFetcher(t, 1<<20).Fetch(context.Background(), entity.FetchTarget{URL: "not-a-url"})
	assert.True(t, errors.Is(err, repository.ErrPermanentFetch))
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	_, err := newFetcher(t, 5).Fetch(context.Background(), entity.FetchTarget{URL: srv.URL})
	assert.True(t, errors.Is(err, repository.ErrPermanentFetch))
}
