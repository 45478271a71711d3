package framework

// Requirement is anything a step can depend on.
type Requirement interface {
	// Available reports whether the value was produced.
	Available() bool
	// StepName names the step that produces the value.
	StepName() string
}

// Dependency is the value produced by a step, as seen by the steps that consume it. If the step
// failed, was skipped, or was excluded by the filter, the Dependency is unavailable and steps
// that require it are never invoked. Failed distinguishes the first case from the others.
type Dependency[V any] struct {
	step   string
	value  V
	ok     bool
	failed bool
}

// Provided returns an available Dependency whose value did not come from a step of this run,
// for instance a resource left behind by a previous run.
func Provided[V any](step string, value V) Dependency[V] {
	return Dependency[V]{step: step, value: value, ok: true}
}

// Missing returns an unavailable Dependency attributed to step.
func Missing[V any](step string) Dependency[V] {
	return Dependency[V]{step: step}
}

func (d Dependency[V]) Available() bool  { return d.ok }
func (d Dependency[V]) Failed() bool     { return d.failed }
func (d Dependency[V]) StepName() string { return d.step }

// Value returns the produced value. It is the zero value if the Dependency is unavailable.
func (d Dependency[V]) Value() V { return d.value }

// Step runs a subtest that produces a value for later steps. It is skipped, like RunAfter, if
// any requirement is unavailable.
func Step[V any](c *Context, name string, requires []Requirement, action func(*Context) V) Dependency[V] {
	var value V
	switch c.runChild(name, requires, func(c1 *Context) {
		value = action(c1)
	}) {
	case outcomePassed:
		return Dependency[V]{step: name, value: value, ok: true}
	case outcomeFailed:
		return Dependency[V]{step: name, failed: true}
	default:
		return Missing[V](name)
	}
}

// Requires is a convenience for building a requirement list.
func Requires(reqs ...Requirement) []Requirement {
	return reqs
}

// requirementNames returns the names of the steps that produce reqs, without duplicates.
func requirementNames(reqs []Requirement) []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range reqs {
		if !seen[r.StepName()] {
			seen[r.StepName()] = true
			names = append(names, r.StepName())
		}
	}
	return names
}

func unavailable(reqs []Requirement) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, r := range reqs {
		if r.Available() || seen[r.StepName()] {
			continue
		}
		seen[r.StepName()] = true
		missing = append(missing, r.StepName())
	}
	return missing
}
