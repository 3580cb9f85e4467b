package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/server"
	"github.com/Kocoro-lab/repo-research/internal/tracing"
)

// Client talks to the research HTTP API.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

// APIError is a non-2xx response
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (c *Client) Submit(ctx context.Context, req server.StartRequest) (*db.ResearchWorkflow, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var wf db.ResearchWorkflow
	if err := c.do(ctx, http.MethodPost, "/api/research", bytes.NewReader(body), &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (c *Client) Get(ctx context.Context, id string) (*db.ResearchWorkflow, error) {
	var wf db.ResearchWorkflow
	if err := c.do(ctx, http.MethodGet, "/api/research/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (c *Client) List(ctx context.Context, opts db.ListOptions) ([]db.ResearchWorkflow, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.SessionID != "" {
		q.Set("session_id", opts.SessionID)
	}
	path := "/api/research"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Workflows []db.ResearchWorkflow `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Workflows, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Code: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
