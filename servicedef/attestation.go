package servicedef

import (
	"encoding/json"
	"time"
)

const attestationProfile = "https://dpc.cms.gov/api/v1/StructureDefinition/dpc-profile-attestation"

type provenance struct {
	ResourceType string            `json:"resourceType"`
	Meta         provenanceMeta    `json:"meta"`
	Recorded     string            `json:"recorded"`
	Reason       []coding          `json:"reason"`
	Agent        []provenanceAgent `json:"agent"`
}

type provenanceMeta struct {
	Profile []string `json:"profile"`
}

type coding struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

type provenanceAgent struct {
	Role                []codeableConcept `json:"role"`
	WhoReference        Reference         `json:"whoReference"`
	OnBehalfOfReference Reference         `json:"onBehalfOfReference"`
}

type codeableConcept struct {
	Coding []coding `json:"coding"`
}

// Attestation returns the Provenance resource sent in the X-Provenance header when acting on
// behalf of a provider: the organization attests that it treats the provider's patients.
func Attestation(orgID, providerID string, recorded time.Time) string {
	p := provenance{
		ResourceType: "Provenance",
		Meta:         provenanceMeta{Profile: []string{attestationProfile}},
		Recorded:     recorded.UTC().Format(time.RFC3339Nano),
		Reason:       []coding{{System: "http://hl7.org/fhir/v3/ActReason", Code: "TREAT"}},
		Agent: []provenanceAgent{{
			Role:                []codeableConcept{{Coding: []coding{{System: "http://hl7.org/fhir/v3/RoleClass", Code: "AGNT"}}}},
			WhoReference:        Reference{Reference: "Organization/" + orgID},
			OnBehalfOfReference: Reference{Reference: "Practitioner/" + providerID},
		}},
	}
	data, _ := json.Marshal(p)
	return string(data)
}
