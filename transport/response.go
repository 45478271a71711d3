package transport

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const maxBodyInError = 500

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Compressed is true if the payload was gzip-encoded on the wire, whether or not the HTTP
	// client decoded it before handing it to us.
	Compressed bool
}

// MediaType returns the Content-Type header without parameters, lowercased.
func (r *Response) MediaType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// JSON parses the body as a JSON value.
func (r *Response) JSON() (ldvalue.Value, error) {
	var v ldvalue.Value
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return ldvalue.Null(), fmt.Errorf("malformed JSON response body: %w", err)
	}
	return v, nil
}

// TransportError means that no HTTP response was received at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError means that the server answered with a status outside the 2xx range. The full
// response is kept so that callers expecting an error status can inspect its headers and body.
type StatusError struct {
	Method   string
	URL      string
	Response *Response
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("unexpected response status %d from %s %s", e.Response.StatusCode, e.Method, e.URL)
	if len(e.Response.Body) > 0 {
		body := string(e.Response.Body)
		if len(body) > maxBodyInError {
			body = body[:maxBodyInError] + "..."
		}
		msg += ": " + body
	}
	return msg
}

// StatusCode returns the HTTP status of the failed response.
func (e *StatusError) StatusCode() int { return e.Response.StatusCode }
