package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
	Skipped  []TestResult
	HaltedBy string
}

type TestResult struct {
	TestID     TestID
	Errors     []error
	Skipped    bool
	SkipReason string
	// Requires names the steps whose values the test needed.
	Requires []string
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// SuccessCount is the number of tests that ran and did not fail.
func (r Results) SuccessCount() int {
	return len(r.Tests) - len(r.Failures) - len(r.Skipped)
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// PrintResults writes the summary: how many tests passed, and the name and errors of each one
// that failed.
func PrintResults(out io.Writer, results Results) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	green.Fprintf(out, "%d SUCCESSFUL TESTS\n", results.SuccessCount())
	if len(results.Skipped) > 0 {
		fmt.Fprintf(out, "%d skipped\n", len(results.Skipped))
	}
	if results.HaltedBy != "" {
		red.Fprintf(out, "Run halted early after %q failed\n", results.HaltedBy)
	}
	if results.OK() {
		return
	}
	label := "FAILURES"
	if len(results.Failures) == 1 {
		label = "FAILURE"
	}
	red.Fprintln(out, "XXXXXXXXXXXXXXXXXXXX")
	red.Fprintf(out, "%d %s\n", len(results.Failures), label)
	red.Fprintln(out, "XXXXXXXXXXXXXXXXXXXX")
	for _, f := range results.Failures {
		for i, err := range f.Errors {
			name := f.TestID.String()
			if i > 0 {
				name = ""
			}
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(out, "%-40s: %s\n", name, line)
				name = ""
			}
		}
	}
}
