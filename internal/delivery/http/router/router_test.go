package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghazaziz76/data-scraper/internal/adapter/httpfetch"
	"github.com/ghazaziz76/data-scraper/internal/adapter/memory"
	wshub "github.com/ghazaziz76/data-scraper/internal/adapter/websocket"
	"github.com/ghazaziz76/data-scraper/internal/delivery/http/handler"
	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/fetcher"
	"github.com/ghazaziz76/data-scraper/internal/proxy"
	"github.com/ghazaziz76/data-scraper/internal/usecase"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
)

const catalogue = `<html><body>
<table id="products">
  <tr><th>Name</th><th>Price</th></tr>
  <tr><td>Widget</td><td>9.99</td></tr>
  <tr><td>Gadget</td><td>4.50</td></tr>
</table>
</body></html>`

type testAPI struct {
	server *httptest.Server
	source *httptest.Server
	hub    *wshub.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zaptest.NewLogger(t)

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, catalogue)
	}))
	t.Cleanup(source.Close)

	proxies, err := proxy.NewManager(nil, nil)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memory.NewStore()
	hub := wshub.NewHub(logger)
	dispatcher := usecase.NewProgressDispatcher(64, logger, m, hub)

	sched := usecase.NewScheduler(usecase.SchedulerConfig{
		Workers: 2,
		Retry:   fetcher.RetryPolicy{MaxAttempts: 1},
	}, usecase.SchedulerDeps{
		Jobs:      store.Jobs(),
		Runs:      store.Runs(),
		Results:   store.Results(),
		Transport: httpfetch.NewHTTPFetcher(proxies, 5*time.Second, 1<<20, logger),
		Notifier:  dispatcher,
		Logger:    logger,
		Metrics:   m,
	})
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
		dispatcher.Close()
		hub.Close()
	})

	h := handler.NewHandler(sched, hub, map[string]handler.HealthCheck{
		"store": func(context.Context) error { return nil },
	}, logger)
	server := httptest.NewServer(New(h, reg, m, logger))
	t.Cleanup(server.Close)
	return &testAPI{server: server, source: source, hub: hub}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (a *testAPI) tableJob() string {
	return fmt.Sprintf(`{
		"name": "products",
		"type": "web_scraper",
		"source": {"url": %q},
		"extraction": {"mode": "table", "table": "#products"},
		"rateLimitSeconds": 0.01
	}`, a.source.URL+"/catalogue")
}

func (a *testAPI) submit(t *testing.T) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/jobs", a.tableJob())
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var out struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.JobID)
	return out.JobID
}

func (a *testAPI) waitStatus(t *testing.T, jobID string, want entity.RunStatus) entity.JobSummary {
	t.Helper()
	var summary entity.JobSummary
	require.Eventually(t, func() bool {
		resp, body := a.do(t, http.MethodGet, "/api/jobs/"+jobID, "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		summary = entity.JobSummary{}
		if err := json.Unmarshal(body, &summary); err != nil {
			return false
		}
		return summary.LatestRun != nil && summary.LatestRun.Status == want
	}, 5*time.Second, 20*time.Millisecond)
	return summary
}

func TestAPI_JobLifecycle(t *testing.T) {
	api := newTestAPI(t)
	jobID := api.submit(t)

	summary := api.waitStatus(t, jobID, entity.StatusCompleted)
	assert.Equal(t, "products", summary.Spec.Name)
	assert.Equal(t, 2, summary.LatestRun.RecordCount)
	assert.Equal(t, 100, summary.LatestRun.ProgressPercent)

	resp, body := api.do(t, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result entity.Result
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Data, 2)
	assert.Equal(t, []string{"Name", "Price"}, result.Data[0].Keys())

	resp, body = api.do(t, http.MethodGet, "/api/jobs/"+jobID+"/export?format=csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), jobID+".csv")
	assert.Equal(t, "Name,Price\nWidget,9.99\nGadget,4.50\n", string(body))

	resp, _ = api.do(t, http.MethodGet, "/api/jobs/"+jobID+"/export?format=xlsx", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/jobs?status=completed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Jobs  []entity.JobSummary `json:"jobs"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Count)

	resp, _ = api.do(t, http.MethodPost, "/api/jobs/"+jobID+"/run", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	api.waitStatus(t, jobID, entity.StatusCompleted)

	// Cancelling a finished job is accepted and changes nothing.
	resp, body = api.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var run entity.JobRun
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, entity.StatusCompleted, run.Status)

	resp, _ = api.do(t, http.MethodDelete, "/api/jobs/"+jobID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(t, http.MethodGet, "/api/jobs/"+jobID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = api.do(t, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RejectsBadSubmissions(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/api/jobs", `{"type":"web_scraper","source":{"url":"not a url"},"extraction":{"mode":"table","table":"t"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "invalid job spec")

	resp, _ = api.do(t, http.MethodPost, "/api/jobs", `{"type":"web_scraper","selectr":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/jobs", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/jobs?status=paused", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/jobs/missing/cancel", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","store":"healthy"}`, string(body))

	resp, body = api.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/api/health",status="200"} 1`)
}

func TestAPI_ProgressStream(t *testing.T) {
	api := newTestAPI(t)
	jobID := api.submit(t)
	api.waitStatus(t, jobID, entity.StatusCompleted)

	url := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/jobs/" + jobID + "/progress/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return api.hub.Subscribers(jobID) == 1 }, time.Second, 5*time.Millisecond)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(api.server.URL, "http")+"/api/jobs/missing/progress/ws", nil)
	assert.Error(t, err)
}
