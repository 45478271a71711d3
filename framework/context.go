package framework

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
	haltedBy   string
}

type Context struct {
	env         *environment
	id          TestID
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	requires    []string
	errors      []error
}

func Run(
	filter func(TestID) bool,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		if r := recover(); r != nil && !c.skipped {
			c.failed = true
			var addError error
			if _, ok := r.(*Context); ok {
				if len(c.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				c.errors = append(c.errors, addError)
				c.env.testLogger.TestError(c.id, addError)
			}
		}
		if c.id.Path == nil {
			return // the root context is not a test
		}
		result := TestResult{TestID: c.id, Errors: c.errors, Skipped: c.skipped, SkipReason: c.skipReason, Requires: c.requires}
		c.env.results.Tests = append(c.env.results.Tests, result)
		switch {
		case c.skipped:
			c.env.results.Skipped = append(c.env.results.Skipped, result)
		case c.failed:
			c.env.results.Failures = append(c.env.results.Failures, result)
		}
	}()

	action(c)
}

func (c *Context) ID() TestID {
	return c.id
}

// Run runs a subtest. The subtest is skipped without being invoked if it is excluded by the
// filter, or if the run has been halted.
func (c *Context) Run(name string, action func(*Context)) {
	c.runChild(name, nil, action)
}

// RunAfter runs a subtest that needs the values produced by earlier steps. If any of them is
// unavailable, the subtest is not invoked and is reported as skipped.
func (c *Context) RunAfter(name string, requires []Requirement, action func(*Context)) {
	c.runChild(name, requires, action)
}

type outcome int

const (
	outcomePassed outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (c *Context) runChild(name string, requires []Requirement, action func(*Context)) outcome {
	id := TestID{Path: append(append([]string(nil), c.id.Path...), name)}

	c.env.testLogger.TestStarted(id)
	if !c.env.filter.Includes(id) {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return outcomeSkipped
	}
	names := requirementNames(requires)
	if c.env.haltedBy != "" {
		c.recordSkip(id, names, fmt.Sprintf("run halted after failure of %q", c.env.haltedBy))
		return outcomeSkipped
	}
	if missing := unavailable(requires); len(missing) > 0 {
		c.recordSkip(id, names, "requires "+strings.Join(missing, ", "))
		return outcomeSkipped
	}

	c1 := &Context{
		id:       id,
		env:      c.env,
		requires: names,
	}
	c1.run(action)
	switch {
	case c1.skipped:
		c.env.testLogger.TestSkipped(id, c1.skipReason)
		return outcomeSkipped
	case c1.failed:
		c.env.testLogger.TestFinished(id, true, c1.debugLogger.Output())
		return outcomeFailed
	default:
		c.env.testLogger.TestFinished(id, false, c1.debugLogger.Output())
		return outcomePassed
	}
}

func (c *Context) recordSkip(id TestID, requires []string, reason string) {
	result := TestResult{TestID: id, Skipped: true, SkipReason: reason, Requires: requires}
	c.env.results.Tests = append(c.env.results.Tests, result)
	c.env.results.Skipped = append(c.env.results.Skipped, result)
	c.env.testLogger.TestSkipped(id, reason)
}

// Halt stops the run because step failed: every subtest started after this is skipped. It is
// for steps that every later step depends on, such as creating the organization that owns all
// other resources.
func (c *Context) Halt(step string) {
	if c.env.haltedBy == "" {
		c.env.haltedBy = step
		c.env.results.HaltedBy = step
	}
}

func (c *Context) Failed() bool {
	return c.failed
}

func (c *Context) Errorf(format string, args ...interface{}) {
	c.failed = true
	err := fmt.Errorf(format, args...)
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, reformatError(err))
}

// Error records err as a failure of the current test without stopping it. It is a no-op if err
// is nil.
func (c *Context) Error(err error) {
	if err == nil {
		return
	}
	c.failed = true
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, reformatError(err))
}

func (c *Context) FailNow() {
	panic(c)
}

func (c *Context) Skip() {
	c.skipped = true
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

func (c *Context) DebugLogger() Logger {
	return &c.debugLogger
}

// reformatError flattens joined errors so that each one is logged on its own line.
func reformatError(err error) error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range joined.Unwrap() {
			lines = append(lines, e.Error())
		}
		return errors.New(strings.Join(lines, "\n"))
	}
	return err
}
