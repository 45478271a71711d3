// Package bulkexport implements the client side of the asynchronous bulk export protocol:
// starting an export of a roster, polling the job until it completes, and verifying the
// manifest and the NDJSON files it points to.
package bulkexport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
	"github.com/dpc-contract-tests/bulkcheck/transport"
)

const (
	DefaultPollInterval = time.Second

	// The freshness window for a completed job: its files must expire between these two
	// durations from now.
	MinExpiry = 23 * time.Hour
	MaxExpiry = 24 * time.Hour
)

// Logger receives progress messages.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (nullLogger) Printf(string, ...interface{}) {}

// Client talks to the export endpoints of one API.
type Client struct {
	baseURL     string
	transport   *transport.Client
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
	logger      Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPollInterval sets the delay between status requests while a job is in progress.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.interval = d
		}
	}
}

// WithMaxAttempts bounds the number of status requests made by Poll. Zero means no bound other
// than the context.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now, for checking the Expires header against a fixed time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the API at baseURL, which must end in a slash.
func NewClient(baseURL string, t *transport.Client, opts ...Option) *Client {
	if t == nil {
		t = transport.New()
	}
	c := &Client{
		baseURL:   baseURL,
		transport: t,
		interval:  DefaultPollInterval,
		now:       time.Now,
		logger:    nullLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExportURL returns the group export URL for a roster.
func (c *Client) ExportURL(rosterID string, params servicedef.ExportParams) string {
	u := c.baseURL + "Group/" + url.PathEscape(rosterID) + "/$export"
	q := url.Values{}
	if since, ok := params.Since.Get(); ok {
		q.Set("_since", since)
	}
	for _, t := range params.Types {
		q.Add("_type", t)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Submit starts an export of the roster. The server must accept it with a 202 and a
// Content-Location header naming the job status URL.
func (c *Client) Submit(ctx context.Context, rosterID string, params servicedef.ExportParams) (*Job, error) {
	req := transport.Get(c.ExportURL(rosterID, params)).
		WithHeader(servicedef.HeaderAccept, servicedef.FHIRJSON).
		WithHeader(servicedef.HeaderContentType, servicedef.FHIRJSON).
		WithHeader(servicedef.HeaderPrefer, servicedef.PreferAsync)
	submittedAt := c.now()
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := expect.Equal(resp.StatusCode, http.StatusAccepted, "export status"); err != nil {
		return nil, err
	}
	location := resp.Header.Get(servicedef.HeaderContentLocation)
	if err := expect.Truthy(location, "content-location"); err != nil {
		return nil, err
	}
	c.logger.Printf("export of roster %s accepted, job status at %s", rosterID, location)
	return newJob(location, rosterID, params.Since, submittedAt), nil
}

// Poll requests the job status until the job completes, fails, or polling is cut short.
//
// A 202 means the job is still running; Poll waits for the poll interval and asks again. A 200
// completes the job and its body is returned as the Manifest. Any other answer fails the job.
// If the attempt limit is reached, or ctx is done, the job is timed out and the error is a
// *PollTimeoutError.
//
// The manifest is returned even if the 200 response does not satisfy the content type and
// freshness checks; the error then describes every violation.
func (c *Client) Poll(ctx context.Context, job *Job) (*Manifest, error) {
	if err := job.transition(JobSubmitted, JobPolling); err != nil {
		return nil, err
	}
	started := c.now()

	timeout := func(cause error) error {
		_ = job.transition(JobPolling, JobTimedOut)
		return &PollTimeoutError{Location: job.Location, Attempts: job.polls, Elapsed: c.now().Sub(started), Err: cause}
	}

	for {
		if ctx.Err() != nil {
			return nil, timeout(ctx.Err())
		}

		job.polls++
		resp, err := c.transport.Do(ctx, transport.Get(job.Location))
		if err != nil {
			if ctx.Err() != nil {
				return nil, timeout(ctx.Err())
			}
			_ = job.transition(JobPolling, JobFailed)
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusAccepted:
			if progress := resp.Header.Get(servicedef.HeaderProgress); progress != "" {
				c.logger.Printf("export job %s in progress: %s", job.Location, progress)
			}
			if c.maxAttempts > 0 && job.polls >= c.maxAttempts {
				return nil, timeout(nil)
			}
			if err := sleep(ctx, c.interval); err != nil {
				return nil, timeout(err)
			}
		case http.StatusOK:
			if err := job.transition(JobPolling, JobCompleted); err != nil {
				return nil, err
			}
			c.logger.Printf("export job %s completed after %d status request(s)", job.Location, job.polls)
			return c.readManifest(resp)
		default:
			_ = job.transition(JobPolling, JobFailed)
			return nil, &expect.Failure{Expected: http.StatusOK, Actual: resp.StatusCode, Label: "job status"}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) readManifest(resp *transport.Response) (*Manifest, error) {
	var failures expect.Failures
	failures.Check(expect.Equal(resp.MediaType(), servicedef.JSON, "job result content type"))

	expires, expiresErr := c.checkExpires(resp.Header.Get(servicedef.HeaderExpires))
	failures.Check(expiresErr)

	m, err := ParseManifest(resp.Body)
	if err != nil {
		failures.Check(err)
		return nil, failures.Err()
	}
	m.Expires = expires
	return m, failures.Err()
}

// checkExpires verifies that the Expires header is an HTTP date strictly within the
// freshness window.
func (c *Client) checkExpires(header string) (time.Time, error) {
	expires, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}, &expect.Failure{Expected: "an HTTP date", Actual: header, Label: servicedef.HeaderExpires}
	}
	return expires, expect.Between(expires.Sub(c.now()), MinExpiry, MaxExpiry, "Expires")
}

// IsTimeout reports whether err means that a job was still running when polling stopped.
func IsTimeout(err error) bool {
	var te *PollTimeoutError
	return errors.As(err, &te)
}
