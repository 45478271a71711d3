package fakeapi

import (
	"net/http"

	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"github.com/labstack/echo/v4"
)

func (s *Server) metadata(c echo.Context) error {
	operations := []interface{}{}
	for _, name := range []string{"submit", "add", "remove", "export", "everything"} {
		operations = append(operations, map[string]interface{}{"name": name})
	}
	return fhirJSON(c, http.StatusOK, map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"software":     map[string]interface{}{"name": "bulkcheck fake API", "version": "1.0"},
		"rest": []interface{}{
			map[string]interface{}{"mode": "server", "operation": operations},
		},
	})
}

func (s *Server) organizationResource(o *organization) map[string]interface{} {
	r := copyResource(o.Resource)
	r["resourceType"] = "Organization"
	r["id"] = o.ID
	return r
}

func (s *Server) submitOrganization(c echo.Context) error {
	body, err := readJSON(c)
	if err != nil {
		return fhirError(http.StatusBadRequest, "Unable to parse request body")
	}
	orgs := bundleResources(body, "Organization")
	if len(orgs) != 1 {
		return fhirError(http.StatusBadRequest, "Bundle must contain exactly one Organization")
	}
	o := s.store.upsertOrganization(identifierValue(orgs[0], servicedef.NPISystem), copyResource(orgs[0]))
	return fhirJSON(c, http.StatusOK, s.organizationResource(o))
}

func (s *Server) getOrganization(c echo.Context) error {
	o, ok := s.store.organization(c.Param("id"))
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find organization")
	}
	return fhirJSON(c, http.StatusOK, s.organizationResource(o))
}

func isFHIRContentType(c echo.Context) bool {
	return mediaType(c.Request().Header.Get(servicedef.HeaderContentType)) == servicedef.FHIRJSON
}

func (s *Server) updateOrganization(c echo.Context) error {
	if !isFHIRContentType(c) {
		return fhirError(http.StatusUnsupportedMediaType, "`Content-Type:` header must specify valid FHIR content type")
	}
	body, err := readJSON(c)
	if err != nil {
		return fhirError(http.StatusBadRequest, "Unable to parse request body")
	}
	update := copyResource(body)
	o, ok := s.store.updateOrganization(c.Param("id"), func(o *organization) {
		for _, key := range []string{"name", "address", "identifier", "type"} {
			if v, present := update[key]; present {
				o.Resource[key] = v
			}
		}
	})
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find organization")
	}
	return fhirJSON(c, http.StatusOK, s.organizationResource(o))
}

func (s *Server) practitionerResource(p *practitioner) map[string]interface{} {
	r := copyResource(p.Resource)
	r["resourceType"] = "Practitioner"
	r["id"] = p.ID
	return r
}

func (s *Server) submitPractitioners(c echo.Context) error {
	body, err := readJSON(c)
	if err != nil {
		return fhirError(http.StatusBadRequest, "Unable to parse request body")
	}
	var created []map[string]interface{}
	for _, r := range bundleResources(body, "Practitioner") {
		npi := identifierValue(r, servicedef.NPISystem)
		if npi == "" {
			return fhirError(http.StatusUnprocessableEntity, "Practitioner must have an NPI")
		}
		created = append(created, s.practitionerResource(s.store.upsertPractitioner(npi, copyResource(r))))
	}
	return fhirJSON(c, http.StatusOK, collection(created))
}

func (s *Server) searchPractitioners(c echo.Context) error {
	found := []map[string]interface{}{}
	for _, p := range s.store.practitionersByNPI(c.QueryParam("identifier")) {
		found = append(found, s.practitionerResource(p))
	}
	return fhirJSON(c, http.StatusOK, searchset(found))
}

func (s *Server) deletePractitioner(c echo.Context) error {
	if !s.store.deletePractitioner(c.Param("id")) {
		return fhirError(http.StatusNotFound, "Cannot find practitioner")
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) submitPatients(c echo.Context) error {
	body, err := readJSON(c)
	if err != nil {
		return fhirError(http.StatusBadRequest, "Unable to parse request body")
	}
	var created []map[string]interface{}
	for _, r := range bundleResources(body, servicedef.TypePatient) {
		mbi := identifierValue(r, servicedef.MBISystem)
		if mbi == "" {
			return fhirError(http.StatusUnprocessableEntity, "Patient must have an MBI")
		}
		created = append(created, s.data.patientResource(s.store.upsertPatient(mbi, copyResource(r))))
	}
	return fhirJSON(c, http.StatusOK, collection(created))
}

func (s *Server) searchPatients(c echo.Context) error {
	found := []map[string]interface{}{}
	for _, p := range s.store.patientsByMBI(c.QueryParam("identifier")) {
		found = append(found, s.data.patientResource(p))
	}
	return fhirJSON(c, http.StatusOK, searchset(found))
}

func (s *Server) deletePatient(c echo.Context) error {
	if !s.store.deletePatient(c.Param("id")) {
		return fhirError(http.StatusNotFound, "Cannot find patient")
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) patientEverything(c echo.Context) error {
	if !hasAttestation(c) {
		return fhirError(http.StatusBadRequest, "Must have X-Provenance header")
	}
	p, ok := s.store.patient(c.Param("id"))
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find patient")
	}
	return fhirJSON(c, http.StatusOK, searchset(s.data.everything(p)))
}
