package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/transport"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const statusRetryInterval = time.Millisecond * 100

// ServiceInfo is what the harness learned about the service under test from its status resource.
type ServiceInfo struct {
	Description  string
	Capabilities []string
	Raw          ldvalue.Value
}

// DescribeFunc extracts ServiceInfo from the JSON body of the status resource.
type DescribeFunc func(status ldvalue.Value) ServiceInfo

type TestHarness struct {
	baseURL     string
	serviceInfo ServiceInfo
	client      *transport.Client
	logger      Logger
}

// NewTestHarness creates a TestHarness for the service at baseURL, and verifies that the service
// is responding by querying its status resource at statusURL until it answers or the timeout
// elapses.
func NewTestHarness(
	baseURL string,
	statusURL string,
	statusQueryTimeout time.Duration,
	client *transport.Client,
	describe DescribeFunc,
	debugLogger Logger,
	startupOutput io.Writer,
) (*TestHarness, error) {
	if client == nil {
		client = transport.New()
	}

	h := &TestHarness{
		baseURL: baseURL,
		client:  client,
		logger:  LoggerWithPrefix(debugLogger, "[harness] "),
	}

	info, err := h.queryServiceInfo(statusURL, statusQueryTimeout, describe, startupOutput)
	if err != nil {
		return nil, err
	}
	h.serviceInfo = info
	return h, nil
}

func (h *TestHarness) queryServiceInfo(
	url string,
	timeout time.Duration,
	describe DescribeFunc,
	output io.Writer,
) (ServiceInfo, error) {
	fmt.Fprintf(output, "Connecting to service at %s", url)

	deadline := time.Now().Add(timeout)
	for {
		fmt.Fprintf(output, ".")
		resp, err := h.client.Do(context.Background(), transport.Get(url).WithHeader("Accept", "application/fhir+json"))
		if err == nil {
			fmt.Fprintln(output)
			status, jsonErr := resp.JSON()
			if jsonErr != nil {
				fmt.Fprintf(output, "Status query successful, but service provided no metadata\n")
				return ServiceInfo{}, nil
			}
			info := ServiceInfo{Raw: status}
			if describe != nil {
				info = describe(status)
				info.Raw = status
			}
			if info.Description != "" {
				fmt.Fprintf(output, "Service reports: %s\n", info.Description)
			}
			return info, nil
		}
		var se *transport.StatusError
		if errors.As(err, &se) {
			fmt.Fprintln(output)
			return ServiceInfo{}, fmt.Errorf("service returned status code %d", se.StatusCode())
		}
		h.logger.Printf("status query failed: %s", err)
		if !time.Now().Before(deadline) {
			fmt.Fprintln(output)
			return ServiceInfo{}, fmt.Errorf("timed out, result of last query was: %w", err)
		}
		time.Sleep(statusRetryInterval)
	}
}

// BaseURL returns the base URL of the service under test, always ending in a slash.
func (h *TestHarness) BaseURL() string {
	return h.baseURL
}

// Client returns the HTTP transport shared by all tests.
func (h *TestHarness) Client() *transport.Client {
	return h.client
}

func (h *TestHarness) ServiceInfo() ServiceInfo {
	return h.serviceInfo
}

// HasCapability reports whether the service advertised the capability. A service that
// advertised no capabilities at all is assumed to support everything.
func (h *TestHarness) HasCapability(desired string) bool {
	if len(h.serviceInfo.Capabilities) == 0 {
		return true
	}
	for _, capability := range h.serviceInfo.Capabilities {
		if capability == desired {
			return true
		}
	}
	return false
}
