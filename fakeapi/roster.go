package fakeapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"github.com/labstack/echo/v4"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	attributionPrefix = "attributed-to$"
	// attributionPeriod is how long a roster membership lasts once added.
	attributionPeriod = 90 * 24 * time.Hour
)

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

// hasAttestation reports whether the request carries a Provenance resource in X-Provenance.
func hasAttestation(c echo.Context) bool {
	header := c.Request().Header.Get(servicedef.HeaderProvenance)
	var v ldvalue.Value
	if header == "" || json.Unmarshal([]byte(header), &v) != nil {
		return false
	}
	return v.GetByKey("resourceType").StringValue() == "Provenance"
}

func rosterNPI(group ldvalue.Value) string {
	chars := group.GetByKey("characteristic")
	for i := 0; i < chars.Count(); i++ {
		ch := chars.GetByIndex(i)
		if ch.GetByKey("code").GetByKey("coding").GetByIndex(0).GetByKey("code").StringValue() == "attributed-to" {
			return ch.GetByKey("valueCodeableConcept").GetByKey("coding").GetByIndex(0).GetByKey("code").StringValue()
		}
	}
	return ""
}

// memberPatientIDs returns the patient ids referenced by a Group's member list.
func memberPatientIDs(group ldvalue.Value) []string {
	var ids []string
	members := group.GetByKey("member")
	for i := 0; i < members.Count(); i++ {
		ref := members.GetByIndex(i).GetByKey("entity").GetByKey("reference").StringValue()
		ids = append(ids, strings.TrimPrefix(ref, "Patient/"))
	}
	return ids
}

func (s *Server) rosterResource(r roster) map[string]interface{} {
	members := make([]interface{}, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, map[string]interface{}{
			"entity": map[string]interface{}{"reference": servicedef.PatientReference(m.PatientID)},
			"period": map[string]interface{}{
				"start": m.Start.UTC().Format(time.RFC3339Nano),
				"end":   m.End.UTC().Format(time.RFC3339Nano),
			},
			"inactive": m.Inactive,
		})
	}
	return map[string]interface{}{
		"resourceType": "Group",
		"id":           r.ID,
		"type":         "person",
		"actual":       true,
		"characteristic": []interface{}{
			map[string]interface{}{
				"code": map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "attributed-to"}}},
				"valueCodeableConcept": map[string]interface{}{
					"coding": []interface{}{map[string]interface{}{"system": servicedef.NPISystem, "code": r.NPI}},
				},
				"exclude": false,
			},
		},
		"member": members,
	}
}

// readRosterRequest parses a Group body and checks that the request is attested and that every
// member exists.
func (s *Server) readRosterRequest(c echo.Context) (ldvalue.Value, []string, error) {
	if !hasAttestation(c) {
		return ldvalue.Null(), nil, fhirError(http.StatusBadRequest, "Must have X-Provenance header")
	}
	body, err := readJSON(c)
	if err != nil {
		return ldvalue.Null(), nil, fhirError(http.StatusBadRequest, "Unable to parse request body")
	}
	ids := memberPatientIDs(body)
	if missing := s.store.missingPatients(ids); missing > 0 {
		return ldvalue.Null(), nil, fhirError(http.StatusBadRequest,
			"All patients in group must exist. Cannot find %d patient(s).", missing)
	}
	return body, ids, nil
}

func (s *Server) createRoster(c echo.Context) error {
	body, ids, err := s.readRosterRequest(c)
	if err != nil {
		return err
	}
	npi := rosterNPI(body)
	if len(s.store.practitionersByNPI(npi)) == 0 {
		return fhirError(http.StatusUnprocessableEntity, "Cannot find practitioner with NPI %s", npi)
	}
	now := s.now()
	r := &roster{NPI: npi}
	for _, id := range ids {
		r.Members = append(r.Members, member{PatientID: id, Start: now, End: now.Add(attributionPeriod)})
	}
	s.store.createRoster(r)
	snapshot, _ := s.store.roster(r.ID)
	return fhirJSON(c, http.StatusCreated, s.rosterResource(snapshot))
}

func (s *Server) searchRosters(c echo.Context) error {
	value := c.QueryParam("characteristic-value")
	if !strings.HasPrefix(value, attributionPrefix) {
		return fhirError(http.StatusBadRequest, "Must search by attributed-to characteristic")
	}
	found := []map[string]interface{}{}
	for _, r := range s.store.rostersByNPI(strings.TrimPrefix(value, attributionPrefix)) {
		found = append(found, s.rosterResource(r))
	}
	return fhirJSON(c, http.StatusOK, searchset(found))
}

func (s *Server) getRoster(c echo.Context) error {
	r, ok := s.store.roster(c.Param("id"))
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find roster")
	}
	return fhirJSON(c, http.StatusOK, s.rosterResource(r))
}

func (s *Server) addMembers(c echo.Context) error {
	_, ids, err := s.readRosterRequest(c)
	if err != nil {
		return err
	}
	now := s.now()
	r, ok := s.store.updateRoster(c.Param("id"), func(r *roster) {
		for _, id := range ids {
			found := false
			for i := range r.Members {
				if r.Members[i].PatientID == id {
					r.Members[i] = member{PatientID: id, Start: now, End: now.Add(attributionPeriod)}
					found = true
				}
			}
			if !found {
				r.Members = append(r.Members, member{PatientID: id, Start: now, End: now.Add(attributionPeriod)})
			}
		}
	})
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find roster")
	}
	return fhirJSON(c, http.StatusOK, s.rosterResource(r))
}

func (s *Server) removeMembers(c echo.Context) error {
	_, ids, err := s.readRosterRequest(c)
	if err != nil {
		return err
	}
	now := s.now()
	r, ok := s.store.updateRoster(c.Param("id"), func(r *roster) {
		for _, id := range ids {
			for i := range r.Members {
				if r.Members[i].PatientID == id {
					r.Members[i].Inactive = true
					r.Members[i].End = now
				}
			}
		}
	})
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find roster")
	}
	return fhirJSON(c, http.StatusOK, s.rosterResource(r))
}
