package dpctests

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/fixtures"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
	"github.com/dpc-contract-tests/bulkcheck/transport"
)

const invalidContentTypeText = "`Content-Type:` header must specify valid FHIR content type"

// What $everything returns for the test patient.
var everythingCounts = map[string]int{
	servicedef.TypePatient:              1,
	servicedef.TypeCoverage:             4,
	servicedef.TypeExplanationOfBenefit: 10,
}

func doPatientEverything(t *T, orgID, providerID, patientID string) {
	t.RequireCapability(CapabilityEverything)
	req := withAttestation(transport.Get(t.url("Patient/"+patientID+"/$everything")), orgID, providerID)
	resp := t.send(req)
	t.Require(expect.Equal(resp.StatusCode, http.StatusOK, "status"))
	bundle, err := resp.JSON()
	t.Require(err)
	t.Check(expect.Equal(bundle.GetByKey("resourceType").StringValue(), "Bundle", "resourceType"))

	entries := bundle.GetByKey("entry")
	total := 0
	for _, n := range everythingCounts {
		total += n
	}
	t.Check(expect.Equal(entries.Count(), total, "resource count"))

	counts := make(map[string]int)
	for i := 0; i < entries.Count(); i++ {
		counts[entries.GetByIndex(i).GetByKey("resource").GetByKey("resourceType").StringValue()]++
	}
	for _, resourceType := range []string{servicedef.TypePatient, servicedef.TypeCoverage, servicedef.TypeExplanationOfBenefit} {
		t.Check(expect.Equal(counts[resourceType], everythingCounts[resourceType], resourceType+" count"))
	}
}

func doUpdateInvalidContentType(t *T, orgID string) {
	req, err := transport.Put(t.url("Organization/"+orgID)).
		WithHeader(servicedef.HeaderContentType, "application/fire+json").
		WithJSONBody(t.fixture(fixtures.OrganizationUpdate))
	t.Require(err)

	resp := t.sendExpectingError(req, http.StatusUnsupportedMediaType)
	body, err := resp.JSON()
	t.Require(err)
	t.Check(expect.Len(body.GetByKey("issue"), 1, "issue count"))
	t.Check(expect.Equal(body.GetByKey("issue").GetByIndex(0).GetByKey("details").GetByKey("text").StringValue(),
		invalidContentTypeText, "issue text"))
}

func doUpdateOrganization(t *T, orgID string) {
	update := t.fixture(fixtures.OrganizationUpdate)
	org := t.fhirResult(t.sendJSON(fhirRequest(transport.Put(t.url("Organization/"+orgID))), update), http.StatusOK)

	t.Check(expect.Equal(org.GetByKey("name"), update.GetByKey("name"), "name"))
	t.Check(expect.Equal(org.GetByKey("address"), update.GetByKey("address"), "address"))
}

func doFindPractitionerByNPI(t *T) {
	q := url.Values{"identifier": {ProviderNPI}}
	bundle := t.fhirResult(t.send(fhirRequest(transport.Get(t.url("Practitioner?"+q.Encode())))), http.StatusOK)

	t.Check(expect.Equal(bundle.GetByKey("type").StringValue(), "searchset", "bundle type"))
	t.Check(expect.Equal(bundle.GetByKey("total").IntValue(), 1, "total"))
	t.Check(expect.Truthy(bundle.GetByKey("entry").GetByIndex(0).GetByKey("resource").GetByKey("id"), "provider id"))
}

func doPatientMissingAfterDelete(t *T, patientID string, patientIDs []string, rosterID string) {
	t.send(transport.Delete(t.url("Patient/" + patientID)))

	roster := t.fhirResult(t.send(fhirRequest(transport.Get(t.url("Group/"+rosterID)))), http.StatusOK)
	list := members(roster)
	t.Check(expect.Len(list, len(patientIDs)-1, "member count"))

	known := make(map[string]bool, len(patientIDs))
	for _, id := range patientIDs {
		known[id] = true
	}
	for _, m := range list {
		id := strings.TrimPrefix(memberReference(m), "Patient/")
		if !known[id] {
			t.Check(&expect.Failure{Expected: id + " in patients", Actual: "was not"})
		}
		t.Check(expect.NotEqual(id, patientID))
	}
}

func doRosterMissingAfterPractitionerDelete(t *T, providerID string) {
	t.send(transport.Delete(t.url("Practitioner/" + providerID)))

	resp := t.send(fhirRequest(transport.Get(rosterSearchURL(t))))
	t.Require(expect.Equal(resp.StatusCode, http.StatusOK, "status"))
	bundle, err := resp.JSON()
	t.Require(err)
	t.Check(expect.Equal(bundle.GetByKey("type").StringValue(), "searchset", "bundle type"))
	t.Check(expect.Equal(bundle.GetByKey("total").IntValue(), 0, "total"))
}
