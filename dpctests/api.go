package dpctests

import (
	"context"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/bulkexport"
	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/fixtures"
	"github.com/dpc-contract-tests/bulkcheck/framework"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
	"github.com/dpc-contract-tests/bulkcheck/transport"

	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Config holds the suite settings that are not part of the test harness.
type Config struct {
	Fixtures *fixtures.Loader
	Rules    bulkexport.RuleSet

	PollInterval    time.Duration
	PollTimeout     time.Duration
	PollMaxAttempts int

	// RangeBytes is the size of the partial range requested from the claims file.
	RangeBytes int
}

// DefaultRangeBytes is the partial range size used if Config.RangeBytes is zero.
const DefaultRangeBytes = 10240

type environment struct {
	harness *framework.TestHarness
	config  Config
}

// T is used similarly to *testing.T in the test suite. It implements require.TestingT, so the
// standard assertions from assert and require can be used, and has methods for issuing
// requests to the service under test.
type T struct {
	context *framework.Context
	env     *environment
}

var _ require.TestingT = (*T)(nil)

func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

func (t *T) FailNow() {
	t.context.FailNow()
}

func (t *T) Debug(message string, args ...interface{}) {
	t.context.Debug(message, args...)
}

func (t *T) Skip(reason string) {
	t.context.SkipWithReason(reason)
}

// Check records err, if it is not nil, as a failure of the test and continues.
func (t *T) Check(err error) {
	t.context.Error(err)
}

// Require records err, if it is not nil, as a failure of the test and stops the test.
func (t *T) Require(err error) {
	if err != nil {
		t.context.Error(err)
		t.FailNow()
	}
}

// RequireCapability skips the test if the service does not support the operation.
func (t *T) RequireCapability(capability string) {
	if !t.env.harness.HasCapability(capability) {
		t.Skip("service does not support $" + capability)
	}
}

func (t *T) Run(name string, action func(*T)) {
	t.context.Run(name, func(c *framework.Context) {
		action(&T{context: c, env: t.env})
	})
}

func (t *T) RunAfter(name string, requires []framework.Requirement, action func(*T)) {
	t.context.RunAfter(name, requires, func(c *framework.Context) {
		action(&T{context: c, env: t.env})
	})
}

// step runs a test that produces a value for later tests.
func step[V any](t *T, name string, requires []framework.Requirement, action func(*T) V) framework.Dependency[V] {
	return framework.Step(t.context, name, requires, func(c *framework.Context) V {
		return action(&T{context: c, env: t.env})
	})
}

func (t *T) ctx() context.Context {
	return context.Background()
}

// url resolves a path against the API base URL.
func (t *T) url(path string) string {
	return t.env.harness.BaseURL() + path
}

// client returns a transport client that logs to the test's debug output.
func (t *T) client() *transport.Client {
	return t.env.harness.Client().WithLogger(t.context.DebugLogger())
}

func (t *T) bulk() *bulkexport.Client {
	cfg := t.env.config
	return bulkexport.NewClient(t.env.harness.BaseURL(), t.client(),
		bulkexport.WithPollInterval(cfg.PollInterval),
		bulkexport.WithMaxAttempts(cfg.PollMaxAttempts),
		bulkexport.WithLogger(t.context.DebugLogger()),
	)
}

// pollContext bounds the time spent waiting for an export job.
func (t *T) pollContext() (context.Context, context.CancelFunc) {
	if t.env.config.PollTimeout <= 0 {
		return context.WithCancel(t.ctx())
	}
	return context.WithTimeout(t.ctx(), t.env.config.PollTimeout)
}

func (t *T) fixture(name string) ldvalue.Value {
	v, err := t.env.config.Fixtures.Load(name)
	require.NoError(t, err)
	return v
}

// fhirRequest builds a request that sends and accepts FHIR JSON.
func fhirRequest(req transport.Request) transport.Request {
	return req.
		WithHeader(servicedef.HeaderAccept, servicedef.FHIRJSON).
		WithHeader(servicedef.HeaderContentType, servicedef.FHIRJSON)
}

// withAttestation adds the X-Provenance header that roster and patient data operations require.
func withAttestation(req transport.Request, orgID, providerID string) transport.Request {
	return req.WithHeader(servicedef.HeaderProvenance, servicedef.Attestation(orgID, providerID, time.Now()))
}

func (t *T) send(req transport.Request) *transport.Response {
	resp, err := t.client().Do(t.ctx(), req)
	t.Require(err)
	return resp
}

func (t *T) sendJSON(req transport.Request, body interface{}) *transport.Response {
	req, err := req.WithJSONBody(body)
	require.NoError(t, err)
	return t.send(req)
}

// sendExpectingError sends a request that is expected to fail with the given status, and
// returns the response.
func (t *T) sendExpectingError(req transport.Request, status int) *transport.Response {
	resp, err := t.client().Do(t.ctx(), req)
	resp, err = transport.ExpectStatus(resp, err, status)
	t.Require(err)
	return resp
}

// fhirResult checks that a response has the given status and a FHIR JSON body, and parses it.
func (t *T) fhirResult(resp *transport.Response, status int) ldvalue.Value {
	t.Require(expect.Equal(resp.StatusCode, status, "status"))
	t.Check(expect.Equal(resp.MediaType(), servicedef.FHIRJSON, "content type"))
	body, err := resp.JSON()
	t.Require(err)
	return body
}
