package dispatch

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
)

const defaultTimeout = 30 * time.Second

// HTTPConnector implements every HTTP-shaped connector on one client.
// Endpoints maps endpoint names to base URLs; ResolveService maps an app ID
// to its base URL, defaulting to http://<appID> when nil.
type HTTPConnector struct {
	client         *http.Client
	endpoints      map[string]string
	resolveService func(appID string) string
}

type HTTPConnectorOption func(*HTTPConnector)

func WithEndpoints(endpoints map[string]string) HTTPConnectorOption {
	return func(c *HTTPConnector) { c.endpoints = endpoints }
}

func WithServiceResolver(resolve func(appID string) string) HTTPConnectorOption {
	return func(c *HTTPConnector) { c.resolveService = resolve }
}

func WithClient(client *http.Client) HTTPConnectorOption {
	return func(c *HTTPConnector) { c.client = client }
}

func NewHTTPConnector(opts ...HTTPConnectorOption) *HTTPConnector {
	c := &HTTPConnector{
		client:    &http.Client{Timeout: defaultTimeout},
		endpoints: make(map[string]string),
		resolveService: func(appID string) string {
			return "http://" + appID
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *HTTPConnector) Call(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (*Result, error) {
	return c.do(ctx, method, rawURL, headers, body)
}

func (c *HTTPConnector) CallEndpoint(ctx context.Context, endpoint, method, path string, body []byte) (*Result, error) {
	base, ok := c.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown HTTP endpoint %q", endpoint)
	}

	target, err := url.JoinPath(base, path)
	if err != nil {
		return nil, fmt.Errorf("failed to build endpoint URL: %w", err)
	}

	return c.do(ctx, method, target, nil, body)
}

func (c *HTTPConnector) InvokeService(ctx context.Context, appID, verb, method string, body []byte) (*Result, error) {
	target, err := url.JoinPath(c.resolveService(appID), method)
	if err != nil {
		return nil, fmt.Errorf("failed to build service URL: %w", err)
	}

	return c.do(ctx, verb, target, nil, body)
}

func (c *HTTPConnector) InvokeBinding(ctx context.Context, binding, operation string, metadata map[string]string, body []byte) (*Result, error) {
	target, err := url.JoinPath(c.resolveService(binding), operation)
	if err != nil {
		return nil, fmt.Errorf("failed to build binding URL: %w", err)
	}

	headers := make(map[string]string, len(metadata))
	for key, value := range metadata {
		headers["X-Binding-"+key] = value
	}

	return c.do(ctx, http.MethodPost, target, headers, body)
}

func (c *HTTPConnector) do(ctx context.Context, method, target string, headers map[string]string, body []byte) (*Result, error) {
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		result.JSON = parsed
	}

	return result, nil
}
