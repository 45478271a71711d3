// Package expect contains the assertions used to verify responses from the export API.
//
// Each matcher returns nil when the expectation holds and a *Failure describing the expected and
// actual values when it does not. Matchers know nothing about HTTP, so every protocol check can
// be exercised without a live server.
package expect

import (
	"errors"
	"fmt"
)

// Failure is a single unmet expectation.
type Failure struct {
	Expected interface{}
	Actual   interface{}
	Label    string
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("Expected %s | Actual %s", describe(f.Expected), describe(f.Actual))
	if f.Label != "" {
		return f.Label + ": " + msg
	}
	return msg
}

func describe(v interface{}) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func newFailure(expected, actual interface{}, label []string) *Failure {
	f := &Failure{Expected: expected, Actual: actual}
	if len(label) > 0 {
		f.Label = label[0]
	}
	return f
}

// AsFailure reports whether err is, or wraps, an expectation failure.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Failures accumulates the results of several checks so that a multi-field validation can
// report every mismatch instead of stopping at the first one.
type Failures struct {
	errs []error
}

// Check records err if it is non-nil, and reports whether it was nil.
func (f *Failures) Check(err error) bool {
	if err == nil {
		return true
	}
	f.errs = append(f.errs, err)
	return false
}

// Len returns the number of recorded failures.
func (f *Failures) Len() int {
	return len(f.errs)
}

// Err returns nil if nothing was recorded, or all recorded failures joined into one error.
func (f *Failures) Err() error {
	switch len(f.errs) {
	case 0:
		return nil
	case 1:
		return f.errs[0]
	default:
		return errors.Join(f.errs...)
	}
}
