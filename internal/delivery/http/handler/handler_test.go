package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/leadflow-service/internal/adapter/memory"
	"github.com/user/leadflow-service/internal/delivery/http/handler"
	"github.com/user/leadflow-service/internal/delivery/http/response"
	"github.com/user/leadflow-service/internal/delivery/http/router"
	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/usecase"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newServer(t *testing.T, checks map[string]handler.Pinger) (*httptest.Server, string) {
	t.Helper()
	manager := usecase.NewTaskManager(memory.NewTaskRepo(), memory.NewQueueRepo(), memory.NewSnapshotCache())
	dir := t.TempDir()
	srv := httptest.NewServer(router.New(handler.NewHandler(manager, checks), dir))
	t.Cleanup(srv.Close)
	return srv, dir
}

func submit(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/scrape", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandleSubmitScrape(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, nil)

	resp := submit(t, srv, `{"query":"Bakeries Rzeszow","maxResults":20}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	task := decode[entity.ScrapeTask](t, resp)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, entity.TaskStatusPending, task.Status)
	assert.Equal(t, 20, task.MaxResults)
	assert.Zero(t, task.Progress)
	assert.NotNil(t, task.Results)
}

func TestHandleSubmitScrape_BadRequests(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, nil)

	for _, body := range []string{
		`{"query":"","maxResults":20}`,
		`{"query":"Bakeries Rzeszow","maxResults":15}`,
		`{"query":`,
		`not json`,
	} {
		resp := submit(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.NotEmpty(t, decode[response.ErrorResponse](t, resp).Error)
	}

	resp, err := http.Get(srv.URL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, decode[response.TaskListResponse](t, resp).Items, "rejected submissions create no task")
}

func TestHandleGetStatus(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, nil)

	created := decode[entity.ScrapeTask](t, submit(t, srv, `{"query":"Bakeries Rzeszow","maxResults":10}`))

	resp, err := http.Get(srv.URL + "/api/status/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[entity.ScrapeTask](t, resp)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Status, got.Status)

	missing, err := http.Get(srv.URL + "/api/status/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHandleListTasks(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, nil)

	first := decode[entity.ScrapeTask](t, submit(t, srv, `{"query":"Bakeries Rzeszow","maxResults":10}`))
	second := decode[entity.ScrapeTask](t, submit(t, srv, `{"query":"Florists Krakow","maxResults":50}`))

	resp, err := http.Get(srv.URL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[response.TaskListResponse](t, resp)
	require.Len(t, list.Items, 2)
	assert.Equal(t, second.ID, list.Items[0].ID)
	assert.Equal(t, first.ID, list.Items[1].ID)
}

func TestHandleHealthCheck(t *testing.T) {
	t.Parallel()

	healthy, _ := newServer(t, map[string]handler.Pinger{
		"store": pingerFunc(func(context.Context) error { return nil }),
	})
	resp, err := http.Get(healthy.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[response.HealthResponse](t, resp).Status)

	degraded, _ := newServer(t, map[string]handler.Pinger{
		"store": pingerFunc(func(context.Context) error { return nil }),
		"queue": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	resp2, err := http.Get(degraded.URL + "/api/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
	body := decode[response.HealthResponse](t, resp2)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Checks["queue"])
	assert.Equal(t, "ok", body.Checks["store"])
}

func TestDownloadAndMetrics(t *testing.T) {
	t.Parallel()
	srv, dir := newServer(t, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.csv"), []byte("id,name\n"), 0o644))

	resp, err := http.Get(srv.URL + "/download/abc.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n", string(body))

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestRouter_CORS(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/scrape", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/tasks", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "*", resp2.Header.Get("Access-Control-Allow-Origin"))
}
