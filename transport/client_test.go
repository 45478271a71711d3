package transport

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIsImmutable(t *testing.T) {
	base := Get("http://example/x").WithHeader("Accept", "application/fhir+json")
	derived := base.WithHeader("Prefer", "respond-async")

	assert.Equal(t, "", base.Header().Get("Prefer"))
	assert.Equal(t, "respond-async", derived.Header().Get("Prefer"))
	assert.Equal(t, "application/fhir+json", derived.Header().Get("Accept"))

	h := derived.Header()
	h.Set("Accept", "changed")
	assert.Equal(t, "application/fhir+json", derived.Header().Get("Accept"))
}

func TestSendsMethodHeadersAndBody(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(201))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		req, err := Put(server.URL + "/Organization/1").
			WithHeader("Content-Type", "application/fhir+json").
			WithJSONBody(map[string]string{"name": "x"})
		require.NoError(t, err)

		resp, err := New().Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)

		r := <-requestsCh
		assert.Equal(t, "PUT", r.Request.Method)
		assert.Equal(t, "/Organization/1", r.Request.URL.Path)
		assert.Equal(t, "application/fhir+json", r.Request.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"name":"x"}`, string(r.Body))
	})
}

func TestNon2xxStatusIsInspectable(t *testing.T) {
	headers := make(http.Header)
	headers.Set("Content-Type", "application/fhir+json")
	body := []byte(`{"resourceType":"OperationOutcome","issue":[{"details":{"text":"nope"}}]}`)
	handler := httphelpers.HandlerWithResponse(400, headers, body)
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		resp, err := New().Do(context.Background(), Post(server.URL))
		require.Error(t, err)

		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 400, se.StatusCode())
		assert.Equal(t, "application/fhir+json", se.Response.MediaType())
		assert.Equal(t, body, se.Response.Body)
		assert.Same(t, resp, se.Response)

		v, err := se.Response.JSON()
		require.NoError(t, err)
		assert.Equal(t, "nope", v.GetByKey("issue").GetByIndex(0).GetByKey("details").GetByKey("text").StringValue())
	})
}

func TestConnectionFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	url := server.URL
	server.Close()

	_, err := New().Do(context.Background(), Get(url))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "GET", te.Method)
}

func TestGzipInTransitIsReported(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ndjson")
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("{}\n"))
		_ = zw.Close()
	})
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		resp, err := New().Do(context.Background(), Get(server.URL))
		require.NoError(t, err)
		assert.True(t, resp.Compressed)
		assert.Equal(t, "{}\n", string(resp.Body))
	})
}

func TestExpectStatus(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(304), func(server *httptest.Server) {
		resp, err := New().Do(context.Background(), Get(server.URL))
		matched, err := ExpectStatus(resp, err, 304)
		require.NoError(t, err)
		assert.Equal(t, 304, matched.StatusCode)

		resp, err = New().Do(context.Background(), Get(server.URL))
		_, err = ExpectStatus(resp, err, 400)
		assert.Error(t, err)
	})
	httphelpers.WithServer(httphelpers.HandlerWithStatus(200), func(server *httptest.Server) {
		resp, err := New().Do(context.Background(), Get(server.URL))
		_, err = ExpectStatus(resp, err, 304)
		var se *StatusError
		assert.True(t, errors.As(err, &se))
	})
}
