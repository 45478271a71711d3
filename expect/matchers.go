package expect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"github.com/stretchr/testify/assert"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Equal fails unless actual and expected are equal as defined by testify's ObjectsAreEqual.
func Equal(actual, expected interface{}, label ...string) error {
	if assert.ObjectsAreEqual(expected, actual) {
		return nil
	}
	return newFailure(expected, actual, label)
}

// NotEqual fails if actual equals unexpected.
func NotEqual(actual, unexpected interface{}, label ...string) error {
	if !assert.ObjectsAreEqual(unexpected, actual) {
		return nil
	}
	return newFailure(fmt.Sprintf("%s != %s", describe(actual), describe(unexpected)), "equality", label)
}

// Truthy fails if actual is nil, a zero value, an empty collection, or a null/false/empty JSON value.
func Truthy(actual interface{}, what string) error {
	if isTruthy(actual) {
		return nil
	}
	return &Failure{Expected: what + " to be truthy", Actual: fmt.Sprintf("was not %s", describe(actual))}
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if jv, ok := v.(ldvalue.Value); ok {
		switch jv.Type() {
		case ldvalue.NullType:
			return false
		case ldvalue.BoolType:
			return jv.BoolValue()
		case ldvalue.NumberType:
			return jv.Float64Value() != 0
		case ldvalue.StringType:
			return jv.StringValue() != ""
		default:
			return jv.Count() > 0
		}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}

// Digest returns the checksum string for body: "sha256:" followed by the hex-encoded SHA-256
// digest of exactly those bytes.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return servicedef.ChecksumPrefix + hex.EncodeToString(sum[:])
}

// Checksum fails unless the digest of body equals expectedDigest.
func Checksum(body []byte, expectedDigest string) error {
	return Equal(Digest(body), expectedDigest, "checksum")
}

// GreaterThan fails unless actual > bound.
func GreaterThan(actual, bound int, label string) error {
	if actual > bound {
		return nil
	}
	return &Failure{Expected: fmt.Sprintf("%s > %d", label, bound), Actual: actual}
}

// Len fails unless the collection v has exactly n elements.
func Len(v interface{}, n int, label ...string) error {
	var count int
	if jv, ok := v.(ldvalue.Value); ok {
		count = jv.Count()
	} else {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
			count = rv.Len()
		default:
			return newFailure(fmt.Sprintf("collection of length %d", n), v, label)
		}
	}
	return Equal(count, n, label...)
}

// Contains fails unless s contains substr.
func Contains(s, substr, label string) error {
	if strings.Contains(s, substr) {
		return nil
	}
	return &Failure{Expected: fmt.Sprintf("%s in %s", substr, label), Actual: s}
}

// SameSet fails unless actual and expected hold the same strings, ignoring order.
func SameSet(actual, expected []string, label ...string) error {
	a := append([]string(nil), actual...)
	e := append([]string(nil), expected...)
	sort.Strings(a)
	sort.Strings(e)
	if assert.ObjectsAreEqual(e, a) {
		return nil
	}
	return newFailure(e, a, label)
}

// Between fails unless low < actual < high.
func Between(actual, low, high time.Duration, label string) error {
	if actual > low && actual < high {
		return nil
	}
	return &Failure{
		Expected: fmt.Sprintf("%s between %s and %s", label, low, high),
		Actual:   fmt.Sprintf("%s in %.2f hour(s)", label, actual.Hours()),
	}
}
