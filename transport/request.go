// Package transport issues HTTP requests to the export API and surfaces the outcome as either a
// Response, a *StatusError for non-2xx answers, or a *TransportError when no answer arrived.
//
// It never retries. Retrying is a protocol decision that belongs to the caller.
package transport

import (
	"encoding/json"
	"net/http"
)

// Request describes one HTTP request. It is a value: the With methods return a modified copy
// and never change the receiver, so a request built at one call site can't be altered by another.
type Request struct {
	Method string
	URL    string
	header http.Header
	body   []byte
}

// NewRequest returns a request with no headers and no body.
func NewRequest(method, url string) Request {
	return Request{Method: method, URL: url}
}

// Get is shorthand for NewRequest(http.MethodGet, url).
func Get(url string) Request { return NewRequest(http.MethodGet, url) }

// Post is shorthand for NewRequest(http.MethodPost, url).
func Post(url string) Request { return NewRequest(http.MethodPost, url) }

// Put is shorthand for NewRequest(http.MethodPut, url).
func Put(url string) Request { return NewRequest(http.MethodPut, url) }

// Delete is shorthand for NewRequest(http.MethodDelete, url).
func Delete(url string) Request { return NewRequest(http.MethodDelete, url) }

// WithHeader returns a copy of the request with the header set to value.
func (r Request) WithHeader(name, value string) Request {
	h := r.header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(name, value)
	r.header = h
	return r
}

// WithBody returns a copy of the request carrying body.
func (r Request) WithBody(body []byte) Request {
	r.body = append([]byte(nil), body...)
	return r
}

// WithJSONBody returns a copy of the request whose body is the JSON encoding of v.
func (r Request) WithJSONBody(v interface{}) (Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return r, err
	}
	r.body = data
	return r, nil
}

// Header returns a copy of the request headers.
func (r Request) Header() http.Header {
	return r.header.Clone()
}

// Body returns the request body, or nil if there is none.
func (r Request) Body() []byte {
	return r.body
}
