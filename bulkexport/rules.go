package bulkexport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"
)

// CountOp is the comparison used by a CountPredicate.
type CountOp string

const (
	CountEquals      CountOp = "eq"
	CountGreaterThan CountOp = "gt"
)

// CountPredicate constrains the number of records of one type. The zero value accepts any count.
type CountPredicate struct {
	Op    CountOp `yaml:"op"`
	Value int     `yaml:"value"`
}

func (p CountPredicate) Check(n int, label string) error {
	switch p.Op {
	case "":
		return nil
	case CountEquals:
		return expect.Equal(n, p.Value, label)
	case CountGreaterThan:
		return expect.GreaterThan(n, p.Value, label)
	default:
		return fmt.Errorf("%s: unknown count operator %q", label, p.Op)
	}
}

func (p CountPredicate) String() string {
	if p.Op == "" {
		return "any"
	}
	if p.Op == CountGreaterThan {
		return fmt.Sprintf("> %d", p.Value)
	}
	return fmt.Sprintf("== %d", p.Value)
}

// LineCheckKind names one of the checks that can be applied to every record of a data file.
type LineCheckKind string

const (
	// IdentifierSystemCount: the record has exactly N identifiers with the given system.
	IdentifierSystemCount LineCheckKind = "identifier_system_count"
	// IssueCount: the record has exactly N issues.
	IssueCount LineCheckKind = "issue_count"
	// IssueDetailsText: the first issue's details.text equals Text.
	IssueDetailsText LineCheckKind = "issue_details_text"
	// IssueLocationContains: the first issue's location contains Fragment.
	IssueLocationContains LineCheckKind = "issue_location_contains"
)

// LineCheck is a declarative check on a single NDJSON record.
type LineCheck struct {
	Kind     LineCheckKind `yaml:"check"`
	System   string        `yaml:"system,omitempty"`
	N        int           `yaml:"n,omitempty"`
	Text     string        `yaml:"text,omitempty"`
	Fragment string        `yaml:"fragment,omitempty"`
}

// Apply runs the check against one record.
func (lc LineCheck) Apply(record ldvalue.Value, label string) error {
	switch lc.Kind {
	case IdentifierSystemCount:
		n := 0
		ids := record.GetByKey("identifier")
		for i := 0; i < ids.Count(); i++ {
			if ids.GetByIndex(i).GetByKey("system").StringValue() == lc.System {
				n++
			}
		}
		return expect.Equal(n, lc.N, label+" identifiers with system "+lc.System)
	case IssueCount:
		return expect.Len(record.GetByKey("issue"), lc.N, label+" issues")
	case IssueDetailsText:
		text := record.GetByKey("issue").GetByIndex(0).GetByKey("details").GetByKey("text")
		return expect.Equal(text.StringValue(), lc.Text, label+" issue details")
	case IssueLocationContains:
		location := record.GetByKey("issue").GetByIndex(0).GetByKey("location")
		if locationContains(location, lc.Fragment) {
			return nil
		}
		return &expect.Failure{Expected: lc.Fragment + " in location", Actual: location.JSONString(), Label: label}
	default:
		return fmt.Errorf("%s: unknown line check %q", label, lc.Kind)
	}
}

// locationContains accepts either a single string or the FHIR array of strings.
func locationContains(location ldvalue.Value, fragment string) bool {
	switch location.Type() {
	case ldvalue.StringType:
		return strings.Contains(location.StringValue(), fragment)
	case ldvalue.ArrayType:
		for i := 0; i < location.Count(); i++ {
			if strings.Contains(location.GetByIndex(i).StringValue(), fragment) {
				return true
			}
		}
	}
	return false
}

func (lc LineCheck) validate() error {
	switch lc.Kind {
	case IdentifierSystemCount:
		if lc.System == "" {
			return fmt.Errorf("%s requires a system", lc.Kind)
		}
	case IssueCount:
	case IssueDetailsText:
		if lc.Text == "" {
			return fmt.Errorf("%s requires text", lc.Kind)
		}
	case IssueLocationContains:
		if lc.Fragment == "" {
			return fmt.Errorf("%s requires a fragment", lc.Kind)
		}
	default:
		return fmt.Errorf("unknown line check %q", lc.Kind)
	}
	return nil
}

// Rule is what a data file of one resource type must satisfy beyond the generic checks.
type Rule struct {
	Count CountPredicate `yaml:"count"`
	Lines []LineCheck    `yaml:"lines,omitempty"`
}

// Rules maps a resource type to its rule.
type Rules map[string]Rule

// RuleSet is everything that can be configured about the contents of an export.
type RuleSet struct {
	Types Rules `yaml:"rules"`
	// Export is the expected manifest of a full export of the test roster.
	Export Expectations `yaml:"export"`
	// Since is the expected manifest of an export with _since set to the time of the request.
	Since Expectations `yaml:"since"`
}

// ExportExpectations returns the full-export expectations with the type rules attached.
func (rs RuleSet) ExportExpectations() Expectations {
	exp := rs.Export
	exp.Rules = rs.Types
	return exp
}

// SinceExpectations returns the _since export expectations with the type rules attached.
func (rs RuleSet) SinceExpectations() Expectations {
	exp := rs.Since
	exp.Rules = rs.Types
	return exp
}

// DefaultRuleSet describes the synthetic data set the test roster is built from: of its five
// patients, one is removed before export and one has no retrievable claims data, leaving three
// patients with four coverages each and a large number of claims.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Types: Rules{
			servicedef.TypePatient: {
				Count: CountPredicate{Op: CountEquals, Value: 3},
				Lines: []LineCheck{
					{Kind: IdentifierSystemCount, System: servicedef.MBISystem, N: 1},
				},
			},
			servicedef.TypeCoverage: {
				Count: CountPredicate{Op: CountEquals, Value: 12},
			},
			servicedef.TypeExplanationOfBenefit: {
				Count: CountPredicate{Op: CountGreaterThan, Value: 100},
			},
			servicedef.TypeOperationOutcome: {
				Count: CountPredicate{Op: CountEquals, Value: 1},
				Lines: []LineCheck{
					{Kind: IssueCount, N: 1},
					{Kind: IssueDetailsText, Text: "Unable to retrieve patient data due to internal error"},
					{Kind: IssueLocationContains, Fragment: "0S80C00AA00"},
				},
			},
		},
		Export: Expectations{
			OutputTypes: []string{servicedef.TypePatient, servicedef.TypeCoverage, servicedef.TypeExplanationOfBenefit},
			ErrorCount:  1,
		},
		Since: Expectations{
			OutputTypes: []string{},
			ErrorCount:  0,
		},
	}
}

type ruleFile struct {
	Rules  map[string]Rule `yaml:"rules"`
	Export *Expectations   `yaml:"export"`
	Since  *Expectations   `yaml:"since"`
}

// LoadRuleSet reads a YAML rule file and merges it over the defaults. A type listed in the file
// replaces the default rule for that type entirely; export and since sections likewise replace
// their defaults when present.
func LoadRuleSet(path string) (RuleSet, error) {
	rs := DefaultRuleSet()
	if path == "" {
		return rs, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return rs, fmt.Errorf("read rules: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet is LoadRuleSet for an in-memory document.
func ParseRuleSet(data []byte) (RuleSet, error) {
	rs := DefaultRuleSet()
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return rs, fmt.Errorf("parse rules: %w", err)
	}

	types := make([]string, 0, len(f.Rules))
	for t := range f.Rules {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		rule := f.Rules[t]
		if err := rule.validate(); err != nil {
			return rs, fmt.Errorf("rule for %s: %w", t, err)
		}
		rs.Types[t] = rule
	}
	if f.Export != nil {
		rs.Export = *f.Export
	}
	if f.Since != nil {
		rs.Since = *f.Since
	}
	return rs, nil
}

func (r Rule) validate() error {
	switch r.Count.Op {
	case "", CountEquals, CountGreaterThan:
	default:
		return fmt.Errorf("unknown count operator %q", r.Count.Op)
	}
	for _, lc := range r.Lines {
		if err := lc.validate(); err != nil {
			return err
		}
	}
	return nil
}
