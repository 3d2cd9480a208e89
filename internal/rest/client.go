package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vendor-chat/internal/observability"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == fasthttp.StatusNotFound
}

// Client talks to the chat backend REST API.
type Client struct {
	base    string
	http    *fasthttp.Client
	timeout time.Duration
	tracer  trace.Tracer
}

// NewClient builds a client for baseURL, e.g. http://localhost:8080/api.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &fasthttp.Client{
			Name:                "vendor-chat",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: timeout,
		tracer:  otel.Tracer("vendor-chat/rest"),
	}
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	body, err := c.do(ctx, op, fasthttp.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

// do performs the request and returns a copy of the response body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "rest."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	uri := c.base + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", uri),
	)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	err := c.http.DoTimeout(req, resp, timeout)
	if err != nil {
		observability.ObserveREST(op, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.Wrapf(err, "%s: %s %s", op, method, path)
	}

	status := resp.StatusCode()
	observability.ObserveREST(op, status, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", status))
	body := append([]byte(nil), resp.Body()...)
	if status < 200 || status >= 300 {
		span.SetStatus(codes.Error, "unexpected status")
		return nil, &StatusError{Op: op, Status: status, Body: strings.TrimSpace(truncate(string(body), 256))}
	}
	return body, nil
}

func segment(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
