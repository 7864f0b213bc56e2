// Package browseruse is a small client for the hosted browser-use agent API.
// It creates natural-language browser tasks, reads their status and stops
// the backing browser session when a task is done.
package browseruse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.browser-use.com/api/v2"

// Client defines the agent API operations used by the submission handlers.
type Client interface {
	CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	StopSession(ctx context.Context, sessionID string) error
}

// CreateTaskRequest is the body for POST /tasks.
type CreateTaskRequest struct {
	Task     string `json:"task"`
	MaxSteps int    `json:"maxSteps,omitempty"`
}

// Task is the view of a remote task returned by both create and get.
type Task struct {
	ID        string
	SessionID string
	Status    string
	Output    string
	LiveURL   string
	Error     string
}

// UnmarshalJSON accepts the snake_case and camelCase field spellings the API
// has used, and an output that is either a string or an object with text.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           string          `json:"id"`
		TaskID       string          `json:"task_id"`
		TaskIDCamel  string          `json:"taskId"`
		SessionID    string          `json:"session_id"`
		SessionCamel string          `json:"sessionId"`
		Status       string          `json:"status"`
		Output       json.RawMessage `json:"output"`
		Result       json.RawMessage `json:"result"`
		LiveURL      string          `json:"live_url"`
		LiveURLCamel string          `json:"liveUrl"`
		Error        string          `json:"error"`
		ErrorMessage string          `json:"error_message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	t.ID = firstNonEmpty(raw.ID, raw.TaskID, raw.TaskIDCamel)
	t.SessionID = firstNonEmpty(raw.SessionID, raw.SessionCamel)
	t.Status = raw.Status
	t.LiveURL = firstNonEmpty(raw.LiveURL, raw.LiveURLCamel)
	t.Error = firstNonEmpty(raw.Error, raw.ErrorMessage)
	t.Output = outputText(raw.Output)
	if t.Output == "" {
		t.Output = outputText(raw.Result)
	}
	return nil
}

func outputText(msg json.RawMessage) string {
	if len(msg) == 0 || string(msg) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(msg, &obj); err == nil {
		if text, ok := obj["text"]; ok && text != nil {
			if s := fmt.Sprint(text); s != "" {
				return s
			}
		}
	}
	return string(msg)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// APIError is returned when the agent API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("browseruse: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a browser-use client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	var task Task
	if err := c.call(ctx, http.MethodPost, "/tasks", req, &task); err != nil {
		return nil, eris.Wrap(err, "browseruse: create task")
	}
	if task.ID == "" {
		return nil, eris.New("browseruse: create task: response has no task id")
	}
	return &task, nil
}

func (c *httpClient) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.call(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, eris.Wrapf(err, "browseruse: get task %s", id)
	}
	return &task, nil
}

func (c *httpClient) StopSession(ctx context.Context, sessionID string) error {
	body := map[string]string{"action": "stop"}
	if err := c.call(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(sessionID), body, nil); err != nil {
		return eris.Wrapf(err, "browseruse: stop session %s", sessionID)
	}
	return nil
}

func (c *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("X-Browser-Use-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
