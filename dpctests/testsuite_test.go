package dpctests

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/bulkexport"
	"github.com/dpc-contract-tests/bulkcheck/fakeapi"
	"github.com/dpc-contract-tests/bulkcheck/framework"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

var allSteps = []string{
	"Create organization",
	"Register providers",
	"Register patients",
	"Submit roster",
	"Find patient by MBI",
	"Find roster by NPI",
	"Add patient to roster",
	"Remove patient from roster",
	"Add unknown patient to roster",
	"Bulk export",
	"Job result",
	"Patient data",
	"Eob data",
	"Request partial range",
	"Request modified since",
	"Coverage data",
	"Operation outcome data",
	"Bulk export with since",
	"Job result with since",
	"Re-add removed patient to roster",
	"Patient everything",
	"Update invalid content type",
	"Update organization",
	"Find practitioner by NPI",
	"Patient missing after delete",
	"Roster missing after practitioner delete",
}

func testConfig() Config {
	return Config{
		PollInterval:    time.Millisecond,
		PollTimeout:     10 * time.Second,
		PollMaxAttempts: 20,
	}
}

func newHarness(t *testing.T, server *httptest.Server, describe framework.DescribeFunc) *framework.TestHarness {
	base := server.URL + fakeapi.BasePath + "/"
	h, err := framework.NewTestHarness(base, base+"metadata", time.Second, nil, describe, nil, io.Discard)
	require.NoError(t, err)
	return h
}

func testIDs(results []framework.TestResult) []string {
	var ret []string
	for _, r := range results {
		ret = append(ret, r.TestID.String())
	}
	return ret
}

func failureDetails(results framework.Results) []string {
	var ret []string
	for _, f := range results.Failures {
		for _, err := range f.Errors {
			ret = append(ret, f.TestID.String()+": "+err.Error())
		}
	}
	return ret
}

func TestSuitePassesAgainstFakeAPI(t *testing.T) {
	server := httptest.NewServer(fakeapi.New(fakeapi.Options{PendingPolls: 2}).Handler())
	defer server.Close()

	results := RunTestSuite(newHarness(t, server, DescribeCapabilityStatement), testConfig(), nil, nil)

	assert.Empty(t, failureDetails(results))
	assert.Empty(t, testIDs(results.Skipped))
	assert.Equal(t, allSteps, testIDs(results.Tests))
	assert.True(t, results.OK())
	assert.Equal(t, len(allSteps), results.SuccessCount())
}

func TestSuiteHaltsIfOrganizationCannotBeCreated(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle(fakeapi.BasePath+"/metadata", httphelpers.HandlerWithResponse(http.StatusOK,
		http.Header{"Content-Type": {servicedef.FHIRJSON}}, []byte(`{"resourceType":"CapabilityStatement"}`)))
	mux.Handle("/", httphelpers.HandlerWithStatus(http.StatusInternalServerError))

	httphelpers.WithServer(mux, func(server *httptest.Server) {
		results := RunTestSuite(newHarness(t, server, DescribeCapabilityStatement), testConfig(), nil, nil)

		assert.False(t, results.OK())
		assert.Equal(t, "Create organization", results.HaltedBy)
		assert.Equal(t, []string{"Create organization"}, testIDs(results.Failures))
		assert.Len(t, results.Skipped, len(allSteps)-1)
		for _, s := range results.Skipped {
			assert.Contains(t, s.SkipReason, `"Create organization"`)
		}
	})
}

func TestStepsNeedingUnsupportedOperationsAreSkipped(t *testing.T) {
	server := httptest.NewServer(fakeapi.New(fakeapi.Options{}).Handler())
	defer server.Close()

	noExport := func(status ldvalue.Value) framework.ServiceInfo {
		info := DescribeCapabilityStatement(status)
		info.Capabilities = []string{CapabilitySubmit, CapabilityAdd, CapabilityRemove}
		return info
	}
	results := RunTestSuite(newHarness(t, server, noExport), testConfig(), nil, nil)

	assert.Empty(t, failureDetails(results))
	skipped := make(map[string]string)
	for _, s := range results.Skipped {
		skipped[s.TestID.String()] = s.SkipReason
	}
	assert.Equal(t, "service does not support $export", skipped["Bulk export"])
	assert.Equal(t, "requires Bulk export", skipped["Job result"])
	assert.Equal(t, "requires Job result", skipped["Patient data"])
	assert.Equal(t, "service does not support $everything", skipped["Patient everything"])
	assert.NotContains(t, skipped, "Update organization")
}

func TestExportExpectationsComeFromRules(t *testing.T) {
	server := httptest.NewServer(fakeapi.New(fakeapi.Options{}).Handler())
	defer server.Close()

	config := testConfig()
	config.Rules = bulkexport.DefaultRuleSet()
	config.Rules.Types[servicedef.TypeCoverage] = bulkexport.Rule{
		Count: bulkexport.CountPredicate{Op: bulkexport.CountEquals, Value: 8},
	}
	filter := framework.RegexFilters{}
	require.NoError(t, filter.MustNotMatch.Set("delete"))

	results := RunTestSuite(newHarness(t, server, DescribeCapabilityStatement), config, filter.AsFilter, nil)

	require.Equal(t, []string{"Job result"}, testIDs(results.Failures))
	assert.Contains(t, failureDetails(results)[0], "Coverage count")
	assert.Equal(t, "requires Job result", results.Skipped[0].SkipReason)
	for _, id := range testIDs(results.Tests) {
		assert.NotContains(t, id, "delete")
	}
}

func TestDescribeCapabilityStatement(t *testing.T) {
	status := ldvalue.Parse([]byte(`{
		"resourceType": "CapabilityStatement",
		"software": {"name": "DPC", "version": "1.2"},
		"rest": [
			{"operation": [{"name": "submit"}, {"name": "export"}]},
			{"operation": [{"name": "export"}, {"name": "everything"}]}
		]
	}`))
	info := DescribeCapabilityStatement(status)
	assert.Equal(t, "DPC 1.2", info.Description)
	assert.Equal(t, []string{"submit", "export", "everything"}, info.Capabilities)

	info = DescribeCapabilityStatement(ldvalue.Parse([]byte(`{"description": "sandbox"}`)))
	assert.Equal(t, "sandbox", info.Description)
	assert.Nil(t, info.Capabilities)
}
