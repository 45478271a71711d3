package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dpc-contract-tests/bulkcheck/transport"

// Logger receives one line per request and per response.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Client sends Requests. The zero value is not usable; call New.
type Client struct {
	httpClient *http.Client
	logger     Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient makes the Client use a specific *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger that receives request and response summaries.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		logger:     nullLogger{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithLogger returns a copy of the Client that logs to logger instead. The copy shares the
// underlying *http.Client.
func (c *Client) WithLogger(logger Logger) *Client {
	c1 := *c
	WithLogger(logger)(&c1)
	return &c1
}

// Do sends the request and reads the whole response body.
//
// A 2xx answer is returned as a Response. Any other answer is returned as a *StatusError that
// still carries the Response. If the request could not be sent or the body could not be read,
// the error is a *TransportError.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "HTTP "+r.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.full", r.URL),
		))
	defer span.End()

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, c.transportError(span, r, err)
	}
	for k, vv := range r.header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	c.logger.Printf(">> %s %s", r.Method, r.URL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(span, r, err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, c.transportError(span, r, err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Compressed: resp.Uncompressed || strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip"),
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Printf("<< %d %s (%d bytes)", resp.StatusCode, resp.Header.Get("Content-Type"), len(data))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return result, &StatusError{Method: r.Method, URL: r.URL, Response: result}
	}
	return result, nil
}

func (c *Client) transportError(span trace.Span, r Request, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Printf("!! %s %s: %s", r.Method, r.URL, err)
	return &TransportError{Method: r.Method, URL: r.URL, Err: err}
}

// ExpectStatus inspects the result of Do when a specific non-2xx status is the expected
// outcome. It returns the response if err is a *StatusError with that status, or if err is nil
// and the response has it. Anything else is returned as an error.
func ExpectStatus(resp *Response, err error, status int) (*Response, error) {
	var se *StatusError
	if errors.As(err, &se) {
		if se.Response.StatusCode == status {
			return se.Response, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != status {
		return nil, &StatusError{Response: resp}
	}
	return resp, nil
}
