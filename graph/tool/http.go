package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxBodyBytes caps how much of a response body HTTPTool keeps.
const DefaultMaxBodyBytes = 1 << 20

// DefaultTimeout bounds each request made with the client NewHTTPTool
// builds when given none.
const DefaultTimeout = 30 * time.Second

const maxRedirects = 10

// HTTPTool performs an HTTP request described by the run state.
//
// Input keys:
//   - url: target URL (required)
//   - method: GET, POST, PUT, PATCH or DELETE (default GET)
//   - headers: map of header name to string value
//   - body: string sent as-is, or any other value encoded as JSON
//
// Output keys:
//   - http_status: response status code
//   - http_headers: response headers (single values flattened to strings)
//   - http_body: response body as a string, truncated to MaxBodyBytes
//
// Non-2xx responses are not errors; branch on http_status with an edge
// condition instead.
//
// Only http and https URLs are accepted. AllowHosts further restricts the
// hosts a request, or any redirect it follows, may reach.
type HTTPTool struct {
	client       *http.Client
	allowed      map[string]bool
	MaxBodyBytes int64
}

// NewHTTPTool creates an HTTPTool. A nil client means a fresh client with
// DefaultTimeout.
func NewHTTPTool(client *http.Client) *HTTPTool {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTool{client: client, MaxBodyBytes: DefaultMaxBodyBytes}
}

// AllowHosts limits requests to the given host names (no ports, matched
// case-insensitively) and returns h. Redirects to other hosts are refused.
func (h *HTTPTool) AllowHosts(hosts ...string) *HTTPTool {
	h.allowed = make(map[string]bool, len(hosts))
	for _, host := range hosts {
		h.allowed[strings.ToLower(strings.TrimSpace(host))] = true
	}

	client := *h.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return h.checkURL(req.URL)
	}
	h.client = &client
	return h
}

func (h *HTTPTool) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if h.allowed == nil {
		return nil
	}
	if host := strings.ToLower(u.Hostname()); !h.allowed[host] {
		return fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
	}
	return nil
}

// ErrHostNotAllowed is returned for requests outside the AllowHosts list.
var ErrHostNotAllowed = errors.New("host not allowed")

// Name returns "http_request".
func (h *HTTPTool) Name() string {
	return "http_request"
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Call implements Tool.
func (h *HTTPTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	urlStr, ok := input["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter required (string)")
	}

	method := http.MethodGet
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if !allowedMethods[method] {
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	body, contentType, err := requestBody(input["body"])
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := h.checkURL(req.URL); err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := input["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			respHeaders[key] = values[0]
			continue
		}
		list := make([]interface{}, len(values))
		for i, v := range values {
			list[i] = v
		}
		respHeaders[key] = list
	}

	return map[string]interface{}{
		"http_status":  resp.StatusCode,
		"http_headers": respHeaders,
		"http_body":    string(respBody),
	}, nil
}

func requestBody(v interface{}) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}
		return strings.NewReader(b), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
