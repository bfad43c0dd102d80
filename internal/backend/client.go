// Package backend is the HTTP client for the local inference engine's native
// API (Ollama-compatible). The gateway and the diagnostics both consume it;
// neither owns the engine's lifecycle, the supervisor does.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"infergate/pkg/types"
)

// DefaultURL is the engine's well-known loopback address.
const DefaultURL = "http://127.0.0.1:11434"

// Client talks to the inference engine. Immutable after construction, safe
// for concurrent use.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New constructs a Client for baseURL bound to the given model identifier.
// The underlying http.Client carries Timeout 0: every request must bring a
// context deadline.
func New(baseURL, model string, connectTimeout time.Duration) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

// Model returns the bound model identifier.
func (c *Client) Model() string { return c.model }

// BaseURL returns the engine address the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// generateRequest is the engine's native generation payload.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateResponse is the engine's native non-streaming answer.
type GenerateResponse struct {
	Response  string `json:"response"`
	CreatedAt string `json:"created_at"`
	Done      bool   `json:"done"`
}

// Generate runs one non-streaming completion. Transport failures map to an
// unreachable error, non-2xx statuses to a status error; both are
// distinguishable via IsUnreachable / StatusOf.
func (c *Client) Generate(ctx context.Context, prompt string) (GenerateResponse, error) {
	payload := generateRequest{Model: c.model, Prompt: prompt, Stream: false}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return GenerateResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GenerateResponse{}, unreachableError{url: c.baseURL, cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return GenerateResponse{}, statusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GenerateResponse{}, fmt.Errorf("decoding engine response: %w", err)
	}
	return out, nil
}

// tagsResponse mirrors the engine's GET /api/tags body.
type tagsResponse struct {
	Models []types.Model `json:"models"`
}

// ListModels fetches the models known to the engine via its low-cost listing
// endpoint. Also serves as the health signal.
func (c *Client) ListModels(ctx context.Context) ([]types.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unreachableError{url: c.baseURL, cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError{status: resp.StatusCode}
	}
	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	return out.Models, nil
}

// Ping probes the engine with a bounded timeout. Used by GET /health.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.ListModels(ctx)
	return err
}

// PullProgress reports one progress event from a model pull.
type PullProgress func(status string, completed, total int64)

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type pullEvent struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error"`
}

// Pull downloads a model through the engine, reporting NDJSON progress
// events through the callback until the stream ends.
func (c *Client) Pull(ctx context.Context, name string, progress PullProgress) error {
	body, _ := json.Marshal(pullRequest{Name: name, Stream: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachableError{url: c.baseURL, cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev pullEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Error != "" {
			return fmt.Errorf("pull %s: %s", name, ev.Error)
		}
		if progress != nil {
			progress(ev.Status, ev.Completed, ev.Total)
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
