package main

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dpc-contract-tests/bulkcheck/config"
	"github.com/dpc-contract-tests/bulkcheck/fakeapi"
	"github.com/dpc-contract-tests/bulkcheck/framework"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func result(name string, requires ...string) framework.TestResult {
	return framework.TestResult{TestID: framework.TestID{Path: []string{name}}, Requires: requires}
}

func TestRerunTestsIncludesDependencies(t *testing.T) {
	failed := result("Eob data", "Job result")
	failed.Errors = []error{errors.New("bad")}
	results := framework.Results{
		Tests: []framework.TestResult{
			result("Create organization"),
			result("Submit roster", "Create organization"),
			result("Bulk export", "Submit roster"),
			result("Job result", "Bulk export"),
			result("Patient data", "Job result"),
			failed,
			result("Update organization", "Create organization"),
		},
		Failures: []framework.TestResult{failed},
	}

	assert.Equal(t, []string{"Create organization", "Submit roster", "Bulk export", "Job result", "Eob data"},
		rerunTests(results))

	cmd := rerunCommand(&config.Config{URL: "http://localhost:3002/api/v1/"}, commandParams{}, results)
	assert.True(t, strings.HasSuffix(cmd,
		`--url http://localhost:3002/api/v1/ --run '^(Create organization|Submit roster|Bulk export|Job result|Eob data)$' --debug`), cmd)
}

func TestConsoleTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := &ConsoleTestLogger{Out: &buf, DebugOutputOnFailure: true}
	id := framework.TestID{Path: []string{"Job result"}}

	logger.TestStarted(id)
	logger.TestError(id, errors.New("Output: Expected 3 | Actual 2\nError: Expected 1 | Actual 0"))
	var debug framework.CapturingLogger
	debug.Printf(">> GET %s", "http://api/Jobs/1")
	logger.TestFinished(id, true, debug.Output())
	logger.TestSkipped(framework.TestID{Path: []string{"Patient data"}}, "requires Job result")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "  FAIL Job result", lines[0])
	assert.Equal(t, "    Output: Expected 3 | Actual 2", lines[1])
	assert.Equal(t, "    Error: Expected 1 | Actual 0", lines[2])
	assert.Contains(t, lines[3], "DEBUG")
	assert.Contains(t, lines[3], ">> GET http://api/Jobs/1")
	assert.Equal(t, "  SKIP Patient data (requires Job result)", lines[4])
}

func TestRunAgainstFakeAPI(t *testing.T) {
	server := httptest.NewServer(fakeapi.New(fakeapi.Options{PendingPolls: 1}).Handler())
	defer server.Close()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs([]string{
		"--url", server.URL + fakeapi.BasePath,
		"--poll-interval", "1ms",
		"--poll-timeout", "10s",
		"--no-color",
	})

	require.NoError(t, cmd.Execute(), stdout.String())
	assert.Contains(t, stdout.String(), "26 SUCCESSFUL TESTS")
	assert.Contains(t, stdout.String(), "  PASS Request partial range")
}

func TestRunReportsFailures(t *testing.T) {
	server := httptest.NewServer(fakeapi.New(fakeapi.Options{}).Handler())
	defer server.Close()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs([]string{
		"--url", server.URL + fakeapi.BasePath + "/",
		"--poll-interval", "1ms",
		"--range-bytes", "100000000",
		"--run", "Create|Register|MBI|roster|Bulk export$|Job result$|Eob|partial",
		"--no-color",
	})

	err := cmd.Execute()
	require.ErrorIs(t, err, errTestsFailed)
	out := stdout.String()
	assert.Contains(t, out, "  FAIL Request partial range")
	assert.Contains(t, out, "partial body length")
	assert.Contains(t, out, "1 FAILURE")
	assert.Contains(t, out, "To run the failed tests again:")
}
