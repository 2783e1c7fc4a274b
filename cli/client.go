package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const requestTimeout = 30 * time.Second

// APIError is a non-2xx response or a failed tool envelope.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Client talks to the REST surface and the tool surface.
type Client struct {
	api   *resty.Client
	tools *resty.Client
}

// NewClient creates a client. hc may be nil.
func NewClient(apiURL, toolURL string, hc *http.Client, verbose bool) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	build := func(base string) *resty.Client {
		return resty.NewWithClient(hc).
			SetBaseURL(base).
			SetTimeout(requestTimeout).
			SetHeader("Accept", "application/json").
			SetDebug(verbose)
	}
	return &Client{api: build(apiURL), tools: build(toolURL)}
}

// SearchLogs posts body to /v1/logs/search.
func (c *Client) SearchLogs(ctx context.Context, body map[string]any) (gjson.Result, error) {
	return do(c.api.R().SetContext(ctx).SetBody(body), http.MethodPost, "/v1/logs/search")
}

// MetricNames fetches /v1/metrics/names.
func (c *Client) MetricNames(ctx context.Context) (gjson.Result, error) {
	return do(c.api.R().SetContext(ctx), http.MethodGet, "/v1/metrics/names")
}

// QueryMetrics posts body to /v1/metrics/query.
func (c *Client) QueryMetrics(ctx context.Context, body map[string]any) (gjson.Result, error) {
	return do(c.api.R().SetContext(ctx).SetBody(body), http.MethodPost, "/v1/metrics/query")
}

// Status fetches /v1/status.
func (c *Client) Status(ctx context.Context) (gjson.Result, error) {
	return do(c.api.R().SetContext(ctx), http.MethodGet, "/v1/status")
}

// CallTool invokes a tool on the tool surface and returns the whole
// envelope. A failed envelope is returned as *APIError.
func (c *Client) CallTool(ctx context.Context, tool string, params map[string]any) (gjson.Result, error) {
	env, err := do(c.tools.R().SetContext(ctx).SetBody(map[string]any{"tool": tool, "params": params}), http.MethodPost, "/mcp")
	if err != nil {
		return env, err
	}
	if !env.Get("success").Bool() {
		return env, &APIError{Kind: env.Get("error").String(), Message: env.Get("message").String()}
	}
	return env, nil
}

func do(req *resty.Request, method, path string) (gjson.Result, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return gjson.Result{}, err
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &APIError{
			Status:  resp.StatusCode(),
			Kind:    "InvalidResponse",
			Message: fmt.Sprintf("%s %s returned a non-JSON body", method, path),
		}
	}

	result := gjson.ParseBytes(body)
	if resp.IsError() {
		kind := result.Get("error").String()
		if kind == "" {
			kind = http.StatusText(resp.StatusCode())
		}
		return result, &APIError{Status: resp.StatusCode(), Kind: kind, Message: result.Get("message").String()}
	}
	return result, nil
}
