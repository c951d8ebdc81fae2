package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fanprompt/internal/core"
	"fanprompt/internal/jsonx"
	"fanprompt/internal/logger"
)

// ErrStatus marks a non-2xx response from the backend.
var ErrStatus = errors.New("unexpected response status")

// StatusError carries the rejected response's status and a body excerpt.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend responded %d", e.Code)
	}
	return fmt.Sprintf("backend responded %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// HTTP posts the submission request to a backend and hands back the
// streaming response body.
type HTTP struct {
	url    string
	client *http.Client
	header http.Header
	log    *logger.Logger
}

type Option func(*HTTP)

// WithClient replaces the default client. It must not set a Timeout, which
// would cut long-running streams.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(h *HTTP) { h.header.Add(key, value) }
}

func WithLogger(l *logger.Logger) Option {
	return func(h *HTTP) { h.log = l }
}

// NewHTTP targets baseURL joined with path.
func NewHTTP(baseURL, path string, opts ...Option) *HTTP {
	h := &HTTP{
		url:    strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		client: &http.Client{},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logger.OrNop(h.log).With("component", "HTTPTransport")
	return h
}

// URL is the endpoint requests are sent to.
func (h *HTTP) URL() string { return h.url }

func (h *HTTP) Open(ctx context.Context, req core.Request) (io.ReadCloser, error) {
	payload, err := jsonx.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range h.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	h.log.Debug("opening stream", "url", h.url, "projects", len(req.ProjectPaths))
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	return resp.Body, nil
}
