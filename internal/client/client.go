// Package client talks to the LeadFlow API and keeps a local, reconciled
// view of submitted tasks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/leadflow-service/internal/delivery/http/request"
	"github.com/user/leadflow-service/internal/delivery/http/response"
	"github.com/user/leadflow-service/internal/entity"
)

// Client is a minimal LeadFlow HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

const defaultTimeout = 10 * time.Second

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Timeout:    defaultTimeout,
	}
}

// APIError wraps non-2xx responses. It unwraps to entity.ErrInvalidRequest
// for 400 and entity.ErrNotFound for 404.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	var body response.ErrorResponse
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil && body.Error != "" {
		return fmt.Sprintf("api error: status=%d: %s", e.StatusCode, body.Error)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return entity.ErrInvalidRequest
	case http.StatusNotFound:
		return entity.ErrNotFound
	default:
		return nil
	}
}

// Submit creates a scrape task and returns its first authoritative snapshot.
func (c *Client) Submit(ctx context.Context, query string, maxResults int) (entity.ScrapeTask, error) {
	var task entity.ScrapeTask
	err := c.do(ctx, http.MethodPost, "api/scrape", request.SubmitScrapeRequest{Query: query, MaxResults: maxResults}, &task)
	return task, err
}

// Status fetches the current snapshot of a task.
func (c *Client) Status(ctx context.Context, id string) (entity.ScrapeTask, error) {
	var task entity.ScrapeTask
	err := c.do(ctx, http.MethodGet, "api/status/"+url.PathEscape(id), nil, &task)
	return task, err
}

// List returns the task history, newest first.
func (c *Client) List(ctx context.Context) ([]entity.ScrapeTask, error) {
	var resp response.TaskListResponse
	err := c.do(ctx, http.MethodGet, "api/tasks", nil, &resp)
	return resp.Items, err
}

// DownloadURL resolves a task's csvUrl against the API base.
func (c *Client) DownloadURL(task entity.ScrapeTask) string {
	if task.CSVURL == "" || strings.HasPrefix(task.CSVURL, "http") {
		return task.CSVURL
	}
	return c.base() + "/" + strings.TrimLeft(task.CSVURL, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
