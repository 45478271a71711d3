package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dpc-contract-tests/bulkcheck/framework"

	"github.com/fatih/color"
)

// ConsoleTestLogger prints one line per test, followed by its errors and, if enabled, its
// captured request log.
type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool

	pending []string
}

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
)

func (c *ConsoleTestLogger) TestStarted(id framework.TestID) {
	c.pending = nil
}

// TestError holds the error until the test finishes, so it is printed under the test's name.
func (c *ConsoleTestLogger) TestError(id framework.TestID, err error) {
	c.pending = append(c.pending, strings.Split(err.Error(), "\n")...)
}

func (c *ConsoleTestLogger) TestFinished(id framework.TestID, failed bool, debugOutput framework.CapturedOutput) {
	if failed {
		failColor.Fprintf(c.Out, "  FAIL %s\n", id)
	} else {
		passColor.Fprintf(c.Out, "  PASS %s\n", id)
	}
	for _, line := range c.pending {
		fmt.Fprintf(c.Out, "    %s\n", line)
	}
	c.pending = nil
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(c.Out, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id framework.TestID, reason string) {
	if reason == "" {
		skipColor.Fprintf(c.Out, "  SKIP %s\n", id)
	} else {
		skipColor.Fprintf(c.Out, "  SKIP %s (%s)\n", id, reason)
	}
}
