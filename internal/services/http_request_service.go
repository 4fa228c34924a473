package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cbfilter/internal/logger"
)

// HTTPRequestService is the transport collaborator for the engine. It is
// stateless beyond its client configuration and reports HTTP failure
// out-of-band: a status >= 400 still returns the response body together
// with a *StatusError, so callers can attempt extraction on error bodies.
type HTTPRequestService struct {
	initialized bool
	timeout     time.Duration
	client      *http.Client
}

// HTTPRequest represents an HTTP request configuration.
type HTTPRequest struct {
	Method  string       // HTTP method (GET, POST, ...)
	Host    string       // Host name, no scheme
	Path    string       // Request path, leading slash
	Secure  bool         // HTTPS when true
	Headers []HeaderLine // Ordered header lines
	Body    []byte       // Request body, nil for none
}

// HeaderLine is one rendered request header.
type HeaderLine struct {
	Key   string
	Value string
}

// HTTPResponse represents an HTTP response.
type HTTPResponse struct {
	StatusCode int
	Status     string
	Body       string
}

// StatusError signals an HTTP status >= 400. The response body is still
// delivered alongside it.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status %d", e.StatusCode)
}

// NewHTTPRequestService creates a new HTTPRequestService instance with a
// default timeout of 120 seconds. Model endpoints can be slow; the
// engine itself never enforces a deadline beyond this client setting.
func NewHTTPRequestService() *HTTPRequestService {
	return &HTTPRequestService{
		timeout: 120 * time.Second,
	}
}

// Name returns the service name "http_request" for registration.
func (h *HTTPRequestService) Name() string {
	return "http_request"
}

// Initialize sets up the HTTPRequestService for operation.
func (h *HTTPRequestService) Initialize() error {
	h.client = &http.Client{
		Timeout: h.timeout,
	}
	h.initialized = true
	logger.Debug("HTTPRequestService initialized", "timeout", h.timeout.String())
	return nil
}

// SetTimeout configures the request timeout. Zero disables it.
func (h *HTTPRequestService) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
	if h.client != nil {
		h.client.Timeout = timeout
	}
	logger.Debug("HTTP request timeout updated", "timeout", timeout.String())
}

// Send issues the request and returns the response body text. Transport
// failures return a nil response; HTTP status >= 400 returns the
// response together with a *StatusError.
func (h *HTTPRequestService) Send(request HTTPRequest) (*HTTPResponse, error) {
	if !h.initialized {
		logger.Error("HTTP request attempted on uninitialized service")
		return nil, fmt.Errorf("http request service not initialized")
	}
	if request.Host == "" {
		logger.Error("HTTP request attempted with empty host")
		return nil, fmt.Errorf("host is required")
	}

	method := strings.ToUpper(request.Method)
	if method == "" {
		method = "GET"
	}

	scheme := "https"
	if !request.Secure {
		scheme = "http"
	}
	u := url.URL{Scheme: scheme, Host: request.Host, Path: "/"}
	target := strings.TrimSuffix(u.String(), "/") + request.Path

	logger.Debug("Starting HTTP request",
		"method", method,
		"url", target,
		"headers_count", len(request.Headers),
		"has_body", len(request.Body) > 0)

	var bodyReader io.Reader
	if len(request.Body) > 0 {
		bodyReader = strings.NewReader(string(request.Body))
	}

	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		logger.Error("Failed to create HTTP request", "error", err, "method", method, "url", target)
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for _, hl := range request.Headers {
		httpReq.Header.Set(hl.Key, hl.Value)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		logger.Error("Failed to execute HTTP request", "error", err, "method", method, "url", target)
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("Failed to read response body", "error", err, "method", method, "url", target, "status_code", resp.StatusCode)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Debug("HTTP request completed",
		"method", method,
		"url", target,
		"status_code", resp.StatusCode,
		"body_length", len(bodyBytes))

	response := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(bodyBytes),
	}
	if resp.StatusCode >= 400 {
		return response, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return response, nil
}
