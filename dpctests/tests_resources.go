package dpctests

import (
	"net/http"
	"net/url"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/fixtures"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
	"github.com/dpc-contract-tests/bulkcheck/transport"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const unknownPatientText = "All patients in group must exist. Cannot find 1 patient(s)."

func rosterSearchURL(t *T) string {
	q := url.Values{"characteristic-value": {"attributed-to$" + ProviderNPI}}
	return t.url("Group?" + q.Encode())
}

// entryIDs returns the resource id of every entry of a Bundle.
func entryIDs(bundle ldvalue.Value) []string {
	entries := bundle.GetByKey("entry")
	ids := make([]string, 0, entries.Count())
	for i := 0; i < entries.Count(); i++ {
		ids = append(ids, entries.GetByIndex(i).GetByKey("resource").GetByKey("id").StringValue())
	}
	return ids
}

// rosterBody is the roster fixture with its member list replaced by the given patients.
func rosterBody(t *T, patientIDs ...string) map[string]interface{} {
	body, ok := t.fixture(fixtures.Roster).AsArbitraryValue().(map[string]interface{})
	require.True(t, ok, "roster fixture must be a JSON object")
	body["member"] = servicedef.MembersFor(patientIDs...)
	return body
}

func members(roster ldvalue.Value) []ldvalue.Value {
	list := roster.GetByKey("member")
	ret := make([]ldvalue.Value, 0, list.Count())
	for i := 0; i < list.Count(); i++ {
		ret = append(ret, list.GetByIndex(i))
	}
	return ret
}

func memberReference(m ldvalue.Value) string {
	return m.GetByKey("entity").GetByKey("reference").StringValue()
}

func doCreateOrganization(t *T) string {
	t.RequireCapability(CapabilitySubmit)
	resp := t.sendJSON(fhirRequest(transport.Post(t.url("Organization/$submit"))), t.fixture(fixtures.Organization))
	if resp.StatusCode != http.StatusCreated {
		t.Check(expect.Equal(resp.StatusCode, http.StatusOK, "status"))
	}
	org := t.fhirResult(resp, resp.StatusCode)
	id := org.GetByKey("id").StringValue()
	t.Require(expect.Truthy(id, "organization id"))
	t.Debug("organization id is %s", id)
	return id
}

// doRegisterProviders returns the id of the first practitioner.
func doRegisterProviders(t *T) string {
	resp := t.sendJSON(fhirRequest(transport.Post(t.url("Practitioner/$submit"))), t.fixture(fixtures.Providers))
	bundle := t.fhirResult(resp, http.StatusOK)

	t.Require(expect.Equal(bundle.GetByKey("entry").Count(), 1, "practitioner count"))
	practitioner := bundle.GetByKey("entry").GetByIndex(0).GetByKey("resource")
	t.Check(expect.Equal(practitioner.GetByKey("identifier").GetByIndex(0).GetByKey("system").StringValue(),
		servicedef.NPISystem, "practitioner identifier system"))
	id := practitioner.GetByKey("id").StringValue()
	t.Require(expect.Truthy(id, "provider id"))
	return id
}

func doRegisterPatients(t *T) []string {
	resp := t.sendJSON(fhirRequest(transport.Post(t.url("Patient/$submit"))), t.fixture(fixtures.Patients))
	bundle := t.fhirResult(resp, http.StatusOK)

	ids := entryIDs(bundle)
	t.Require(expect.Len(ids, 5, "patient count"))
	for _, id := range ids {
		t.Require(expect.Truthy(id, "patient id"))
	}
	return ids
}

// findRosterID returns the id of a roster attributed to the test practitioner that a previous
// run left behind, or "" if there is none.
func findRosterID(t *T) string {
	resp := t.send(fhirRequest(transport.Get(rosterSearchURL(t))))
	bundle := t.fhirResult(resp, http.StatusOK)
	return bundle.GetByKey("entry").GetByIndex(0).GetByKey("resource").GetByKey("id").StringValue()
}

func doSubmitRoster(t *T, orgID, providerID string, patientIDs []string) string {
	if id := findRosterID(t); id != "" {
		t.Debug("using roster %s from a previous run", id)
		return id
	}

	req := withAttestation(fhirRequest(transport.Post(t.url("Group"))), orgID, providerID)
	roster := t.fhirResult(t.sendJSON(req, rosterBody(t, patientIDs...)), http.StatusCreated)

	refs := make(map[string]bool, len(patientIDs))
	for _, id := range patientIDs {
		refs[servicedef.PatientReference(id)] = true
	}
	list := members(roster)
	t.Check(expect.Len(list, len(patientIDs), "member count"))
	for _, m := range list {
		ref := memberReference(m)
		t.Check(expect.Truthy(ref, "patient entity reference"))
		if ref != "" && !refs[ref] {
			t.Errorf("roster member %s is not one of the submitted patients", ref)
		}
		period := m.GetByKey("period")
		t.Check(expect.NotEqual(period.GetByKey("start").StringValue(), period.GetByKey("end").StringValue()))
	}

	id := roster.GetByKey("id").StringValue()
	t.Require(expect.Truthy(id, "roster id"))
	return id
}

func doFindPatientByMBI(t *T) string {
	q := url.Values{"identifier": {PatientMBI}}
	bundle := t.fhirResult(t.send(fhirRequest(transport.Get(t.url("Patient?"+q.Encode())))), http.StatusOK)

	t.Check(expect.Equal(bundle.GetByKey("type").StringValue(), "searchset", "bundle type"))
	t.Require(expect.Equal(bundle.GetByKey("total").IntValue(), 1, "total"))

	patient := bundle.GetByKey("entry").GetByIndex(0).GetByKey("resource")
	var mbi string
	ids := patient.GetByKey("identifier")
	for i := 0; i < ids.Count(); i++ {
		if ids.GetByIndex(i).GetByKey("system").StringValue() == servicedef.MBISystem {
			mbi = ids.GetByIndex(i).GetByKey("value").StringValue()
		}
	}
	t.Check(expect.Equal(mbi, PatientMBI, "MBI"))

	id := patient.GetByKey("id").StringValue()
	t.Require(expect.Truthy(id, "patient id"))
	return id
}

func doFindRosterByNPI(t *T, rosterID string) {
	bundle := t.fhirResult(t.send(fhirRequest(transport.Get(rosterSearchURL(t)))), http.StatusOK)
	t.Check(expect.Equal(bundle.GetByKey("type").StringValue(), "searchset", "bundle type"))
	t.Check(expect.Equal(bundle.GetByKey("total").IntValue(), 1, "total"))
	t.Check(expect.Equal(bundle.GetByKey("entry").GetByIndex(0).GetByKey("resource").GetByKey("id").StringValue(),
		rosterID, "roster id"))
}

func doAddPatientToRoster(t *T, orgID, providerID, rosterID, patientID string) {
	t.RequireCapability(CapabilityAdd)
	req := withAttestation(fhirRequest(transport.Post(t.url("Group/"+rosterID+"/$add"))), orgID, providerID)
	roster := t.fhirResult(t.sendJSON(req, rosterBody(t, patientID)), http.StatusOK)

	t.Require(expect.Truthy(roster.GetByKey("member"), "members"))
	var present []ldvalue.Value
	for _, m := range members(roster) {
		if memberReference(m) == servicedef.PatientReference(patientID) {
			present = append(present, m)
		}
	}
	t.Require(expect.Truthy(present, "added patient"))
	// a patient that was removed earlier stays in the list, so it has to be active again
	for _, m := range present {
		t.Check(expect.Equal(m.GetByKey("inactive").BoolValue(), false, "added patient inactive"))
		period := m.GetByKey("period")
		t.Check(expect.NotEqual(period.GetByKey("start").StringValue(), period.GetByKey("end").StringValue()))
	}
}

func doRemovePatientFromRoster(t *T, orgID, providerID, rosterID, patientID string) {
	t.RequireCapability(CapabilityRemove)
	req := withAttestation(fhirRequest(transport.Post(t.url("Group/"+rosterID+"/$remove"))), orgID, providerID)
	roster := t.fhirResult(t.sendJSON(req, rosterBody(t, patientID)), http.StatusOK)

	var active, inactive int
	for _, m := range members(roster) {
		if m.GetByKey("inactive").BoolValue() {
			inactive++
		} else {
			active++
		}
	}
	t.Check(expect.Equal(inactive, 1, "inactive members"))
	t.Check(expect.Equal(active, 4, "active members"))
}

func doAddUnknownPatientToRoster(t *T, orgID, providerID, rosterID string) {
	t.RequireCapability(CapabilityAdd)
	req := withAttestation(fhirRequest(transport.Post(t.url("Group/"+rosterID+"/$add"))), orgID, providerID)
	req, err := req.WithJSONBody(rosterBody(t, uuid.NewString()))
	require.NoError(t, err)

	resp := t.sendExpectingError(req, http.StatusBadRequest)
	body := t.fhirResult(resp, http.StatusBadRequest)
	t.Check(expect.Len(body.GetByKey("issue"), 1, "issue count"))
	t.Check(expect.Equal(body.GetByKey("issue").GetByIndex(0).GetByKey("details").GetByKey("text").StringValue(),
		unknownPatientText, "issue text"))
}
