package bulkexport

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Manifest is the body of the final 200 response to a job status request.
//
// Fields that the server may leave out are held as ldvalue types so that an absent value is
// distinguishable from an empty one.
type Manifest struct {
	TransactionTime     ldvalue.OptionalString
	Request             ldvalue.OptionalString
	RequiresAccessToken ldvalue.Value
	Output              []OutputEntry
	Error               []OutputEntry

	// Expires is the parsed Expires header of the response, if it could be parsed.
	Expires time.Time
	Raw     ldvalue.Value
}

// OutputEntry describes one file of an export, either in "output" or in "error".
type OutputEntry struct {
	Type string
	URL  string
	Raw  ldvalue.Value
}

// ParseManifest parses a manifest body. A body that is not a JSON object, or whose "output"
// and "error" properties are not arrays, is a verification failure.
func ParseManifest(body []byte) (*Manifest, error) {
	var v ldvalue.Value
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &expect.Failure{Expected: "manifest JSON", Actual: err.Error()}
	}
	if v.Type() != ldvalue.ObjectType {
		return nil, &expect.Failure{Expected: "manifest object", Actual: v.Type().String()}
	}
	var failures expect.Failures
	for _, key := range []string{"output", "error"} {
		if v.GetByKey(key).Type() != ldvalue.ArrayType {
			failures.Check(&expect.Failure{Expected: "array", Actual: v.GetByKey(key).Type().String(), Label: key})
		}
	}
	if err := failures.Err(); err != nil {
		return nil, err
	}

	m := &Manifest{
		TransactionTime:     optionalString(v.GetByKey("transactionTime")),
		Request:             optionalString(v.GetByKey("request")),
		RequiresAccessToken: v.GetByKey("requiresAccessToken"),
		Output:              entries(v.GetByKey("output")),
		Error:               entries(v.GetByKey("error")),
		Raw:                 v,
	}
	return m, nil
}

func optionalString(v ldvalue.Value) ldvalue.OptionalString {
	if v.Type() != ldvalue.StringType {
		return ldvalue.OptionalString{}
	}
	return ldvalue.NewOptionalString(v.StringValue())
}

func entries(list ldvalue.Value) []OutputEntry {
	ret := make([]OutputEntry, 0, list.Count())
	for i := 0; i < list.Count(); i++ {
		e := list.GetByIndex(i)
		ret = append(ret, OutputEntry{
			Type: e.GetByKey("type").StringValue(),
			URL:  e.GetByKey("url").StringValue(),
			Raw:  e,
		})
	}
	return ret
}

// Count returns the declared record count. A missing or non-integer count is absent.
func (e OutputEntry) Count() ldvalue.OptionalInt {
	c := e.Raw.GetByKey("count")
	if !c.IsInt() {
		return ldvalue.OptionalInt{}
	}
	return ldvalue.NewOptionalInt(c.IntValue())
}

// Checksum returns the valueString of the first extension. It is null if absent.
func (e OutputEntry) Checksum() ldvalue.Value {
	return e.Raw.GetByKey("extension").GetByIndex(0).GetByKey("valueString")
}

// FileLength returns the valueDecimal of the second extension. It is null if absent.
func (e OutputEntry) FileLength() ldvalue.Value {
	return e.Raw.GetByKey("extension").GetByIndex(1).GetByKey("valueDecimal")
}

// OutputTypes returns the type of every output entry, sorted.
func (m *Manifest) OutputTypes() []string {
	ret := make([]string, 0, len(m.Output))
	for _, e := range m.Output {
		ret = append(ret, e.Type)
	}
	sort.Strings(ret)
	return ret
}

// OutputByType returns the first output entry of the given type.
func (m *Manifest) OutputByType(resourceType string) (OutputEntry, bool) {
	for _, e := range m.Output {
		if e.Type == resourceType {
			return e, true
		}
	}
	return OutputEntry{}, false
}

// FirstError returns the first entry of the error list.
func (m *Manifest) FirstError() (OutputEntry, bool) {
	if len(m.Error) == 0 {
		return OutputEntry{}, false
	}
	return m.Error[0], true
}

// VerifyExtension checks the shape of an entry's extension list: exactly a checksum extension
// followed by a file length extension, each with two properties and a non-empty value.
func VerifyExtension(e OutputEntry) error {
	label := func(s string) string { return fmt.Sprintf("%s %s", e.Type, s) }
	ext := e.Raw.GetByKey("extension")

	var failures expect.Failures
	failures.Check(expect.Len(ext, 2, label("extension count")))

	checksum := ext.GetByIndex(0)
	failures.Check(expect.Len(checksum, 2, label("checksum extension keys")))
	failures.Check(expect.Equal(checksum.GetByKey("url").StringValue(), servicedef.ChecksumExtensionURL, label("checksum extension url")))
	failures.Check(expect.Truthy(checksum.GetByKey("valueString"), label("checksum extension valueString")))

	fileLength := ext.GetByIndex(1)
	failures.Check(expect.Len(fileLength, 2, label("file length extension keys")))
	failures.Check(expect.Equal(fileLength.GetByKey("url").StringValue(), servicedef.FileLengthExtensionURL, label("file length extension url")))
	failures.Check(expect.Truthy(fileLength.GetByKey("valueDecimal"), label("file length extension valueDecimal")))

	return failures.Err()
}

// Expectations describes what a completed export should contain.
type Expectations struct {
	// OutputTypes is the exact set of types expected in "output". Order does not matter.
	OutputTypes []string `yaml:"output_types"`
	// ErrorCount is the expected number of entries in "error".
	ErrorCount int `yaml:"error_count"`

	// Rules holds the per-type count predicates. Types without a rule are not count-checked.
	Rules Rules `yaml:"-"`
}

// VerifyManifest checks the manifest against the expectations, reporting every mismatch.
func VerifyManifest(m *Manifest, exp Expectations) error {
	var failures expect.Failures
	failures.Check(expect.Equal(len(m.Error), exp.ErrorCount, "Error"))
	failures.Check(expect.Equal(len(m.Output), len(exp.OutputTypes), "Output"))
	failures.Check(expect.SameSet(m.OutputTypes(), exp.OutputTypes, "Output types"))

	all := append(append([]OutputEntry(nil), m.Output...), m.Error...)
	for _, e := range all {
		failures.Check(VerifyExtension(e))
		if rule, ok := exp.Rules[e.Type]; ok {
			count, declared := e.Count().Get()
			if !declared {
				failures.Check(&expect.Failure{Expected: "declared count", Actual: e.Raw.GetByKey("count"), Label: e.Type + " count"})
				continue
			}
			failures.Check(rule.Count.Check(count, e.Type+" count"))
		}
	}
	return failures.Err()
}
