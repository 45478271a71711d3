package framework

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func describeName(status ldvalue.Value) ServiceInfo {
	return ServiceInfo{
		Description:  status.GetByKey("name").StringValue(),
		Capabilities: []string{"export"},
	}
}

func TestNewTestHarness(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithResponse(200,
		http.Header{"Content-Type": {"application/fhir+json"}}, []byte(`{"name":"fake"}`)))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		var out bytes.Buffer
		h, err := NewTestHarness(server.URL+"/", server.URL+"/metadata", time.Second, nil, describeName, nil, &out)
		require.NoError(t, err)

		r := <-requests
		assert.Equal(t, "/metadata", r.Request.URL.Path)
		assert.Equal(t, "application/fhir+json", r.Request.Header.Get("Accept"))
		assert.Equal(t, server.URL+"/", h.BaseURL())
		assert.NotNil(t, h.Client())
		assert.Equal(t, "fake", h.ServiceInfo().Description)
		assert.Equal(t, "fake", h.ServiceInfo().Raw.GetByKey("name").StringValue())
		assert.True(t, h.HasCapability("export"))
		assert.False(t, h.HasCapability("submit"))
		assert.Contains(t, out.String(), "Service reports: fake")
	})
}

func TestHarnessWithoutCapabilitiesSupportsEverything(t *testing.T) {
	h := &TestHarness{}
	assert.True(t, h.HasCapability("anything"))
}

func TestNewTestHarnessFailsOnErrorStatus(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(503), func(server *httptest.Server) {
		var out bytes.Buffer
		_, err := NewTestHarness(server.URL+"/", server.URL+"/metadata", time.Second, nil, describeName, nil, &out)
		require.Error(t, err)
		assert.Equal(t, "service returned status code 503", err.Error())
	})
}

func TestNewTestHarnessTimesOut(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	url := server.URL + "/metadata"
	server.Close()

	var out bytes.Buffer
	var debug CapturingLogger
	_, err := NewTestHarness(url, url, 250*time.Millisecond, nil, nil, &debug, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	require.NotEmpty(t, debug.Output())
	assert.Contains(t, debug.Output()[0].Message, "[harness] status query failed")
}
