package dpctests

import (
	"github.com/dpc-contract-tests/bulkcheck/bulkexport"
	"github.com/dpc-contract-tests/bulkcheck/fixtures"
	"github.com/dpc-contract-tests/bulkcheck/framework"
)

// Names of the operations the suite uses, as advertised in the service's CapabilityStatement.
const (
	CapabilitySubmit     = "submit"
	CapabilityAdd        = "add"
	CapabilityRemove     = "remove"
	CapabilityExport     = "export"
	CapabilityEverything = "everything"
)

// AllCapabilities lists every operation that some test requires.
var AllCapabilities = []string{
	CapabilitySubmit,
	CapabilityAdd,
	CapabilityRemove,
	CapabilityExport,
	CapabilityEverything,
}

// The NPI of the practitioner the test roster is attributed to, and the MBI of the patient that
// is looked up, added, removed and finally deleted. Both are in the default fixtures.
const (
	ProviderNPI = "2459425221"
	PatientMBI  = "1SQ3F00AA00"
)

func RunTestSuite(
	harness *framework.TestHarness,
	config Config,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	if config.Fixtures == nil {
		config.Fixtures = fixtures.NewLoader("")
	}
	if config.Rules.Types == nil {
		config.Rules = bulkexport.DefaultRuleSet()
	}
	if config.RangeBytes <= 0 {
		config.RangeBytes = DefaultRangeBytes
	}

	return framework.Run(filter, testLogger, func(c *framework.Context) {
		t := &T{context: c, env: &environment{harness: harness, config: config}}

		org := step(t, "Create organization", nil, doCreateOrganization)
		if org.Failed() {
			// everything else belongs to the organization
			c.Halt(org.StepName())
		}
		provider := step(t, "Register providers", nil, doRegisterProviders)
		patients := step(t, "Register patients", nil, doRegisterPatients)
		roster := step(t, "Submit roster", framework.Requires(org, provider, patients), func(t *T) string {
			return doSubmitRoster(t, org.Value(), provider.Value(), patients.Value())
		})
		patient := step(t, "Find patient by MBI", framework.Requires(patients), doFindPatientByMBI)

		t.RunAfter("Find roster by NPI", framework.Requires(roster), func(t *T) {
			doFindRosterByNPI(t, roster.Value())
		})
		members := framework.Requires(org, provider, roster, patient)
		t.RunAfter("Add patient to roster", members, func(t *T) {
			doAddPatientToRoster(t, org.Value(), provider.Value(), roster.Value(), patient.Value())
		})
		t.RunAfter("Remove patient from roster", members, func(t *T) {
			doRemovePatientFromRoster(t, org.Value(), provider.Value(), roster.Value(), patient.Value())
		})
		t.RunAfter("Add unknown patient to roster", framework.Requires(org, provider, roster), func(t *T) {
			doAddUnknownPatientToRoster(t, org.Value(), provider.Value(), roster.Value())
		})

		doExportTests(t, roster)

		// after the exports, so that the removed patient is left out of them
		t.RunAfter("Re-add removed patient to roster", members, func(t *T) {
			doAddPatientToRoster(t, org.Value(), provider.Value(), roster.Value(), patient.Value())
		})

		t.RunAfter("Patient everything", framework.Requires(org, provider, patient), func(t *T) {
			doPatientEverything(t, org.Value(), provider.Value(), patient.Value())
		})
		t.RunAfter("Update invalid content type", framework.Requires(org), func(t *T) {
			doUpdateInvalidContentType(t, org.Value())
		})
		t.RunAfter("Update organization", framework.Requires(org), func(t *T) {
			doUpdateOrganization(t, org.Value())
		})
		t.RunAfter("Find practitioner by NPI", framework.Requires(provider), doFindPractitionerByNPI)
		t.RunAfter("Patient missing after delete", framework.Requires(patient, patients, roster), func(t *T) {
			doPatientMissingAfterDelete(t, patient.Value(), patients.Value(), roster.Value())
		})
		t.RunAfter("Roster missing after practitioner delete", framework.Requires(provider, roster), func(t *T) {
			doRosterMissingAfterPractitionerDelete(t, provider.Value())
		})
	})
}
