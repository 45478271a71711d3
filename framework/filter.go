package framework

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

// Filter decides whether a test is run. A nil Filter runs every test.
type Filter func(TestID) bool

// Includes reports whether the test with this ID should run.
func (f Filter) Includes(id TestID) bool {
	return f == nil || f(id)
}

// RegexFilters selects tests by matching their full path, as shown in the results, against the
// --run and --skip patterns. A test runs if it matches any MustMatch pattern (or there are none)
// and no MustNotMatch pattern.
type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

func (r RegexFilters) IsDefined() bool {
	return r.MustMatch.IsDefined() || r.MustNotMatch.IsDefined()
}

func (r RegexFilters) AsFilter(id TestID) bool {
	path := id.String()
	if r.MustMatch.IsDefined() && !r.MustMatch.AnyMatch(path) {
		return false
	}
	return !r.MustNotMatch.AnyMatch(path)
}

// RegexList is a repeatable command-line flag whose values are regular expressions.
type RegexList []*regexp.Regexp

func (r RegexList) String() string {
	quoted := make([]string, 0, len(r))
	for _, p := range r {
		quoted = append(quoted, `"`+p.String()+`"`)
	}
	return strings.Join(quoted, " or ")
}

func (r *RegexList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	*r = append(*r, rx)
	return nil
}

func (r *RegexList) Type() string {
	return "regex"
}

func (r RegexList) IsDefined() bool {
	return len(r) != 0
}

func (r RegexList) AnyMatch(s string) bool {
	return slices.ContainsFunc(r, func(p *regexp.Regexp) bool { return p.MatchString(s) })
}

// PrintFilterDescription explains, before the run, which tests will be left out: those excluded
// by the filters, and those needing an operation the service's capability statement omits.
func PrintFilterDescription(out io.Writer, harness *TestHarness, filters RegexFilters, allCapabilities []string) {
	if filters.IsDefined() {
		fmt.Fprintln(out, "Some tests will be skipped based on the filter criteria for this test run:")
		if filters.MustMatch.IsDefined() {
			fmt.Fprintf(out, "  skip any not matching %s\n", filters.MustMatch)
		}
		if filters.MustNotMatch.IsDefined() {
			fmt.Fprintf(out, "  skip any matching %s\n", filters.MustNotMatch)
		}
		fmt.Fprintln(out)
	}

	var missing []string
	if harness != nil && len(harness.ServiceInfo().Capabilities) > 0 {
		for _, c := range allCapabilities {
			if !harness.HasCapability(c) {
				missing = append(missing, c)
			}
		}
	}
	if len(missing) > 0 {
		fmt.Fprintln(out, "Some tests may be skipped because the service does not advertise the following capabilities:")
		fmt.Fprintf(out, "  %s\n\n", strings.Join(missing, ", "))
	}
}
