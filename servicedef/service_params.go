package servicedef

import (
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// SinceFormat is the timestamp layout used for the _since export parameter: millisecond
// precision, always in UTC.
const SinceFormat = "2006-01-02T15:04:05.000Z"

// ExportParams are the query parameters of a group export request.
type ExportParams struct {
	Since ldvalue.OptionalString
	Types []string
}

// SinceTime formats t the way the export endpoint expects it in the _since parameter.
func SinceTime(t time.Time) ldvalue.OptionalString {
	return ldvalue.NewOptionalString(t.UTC().Format(SinceFormat))
}

// MemberRef is one entry of a Group's member list as submitted by the client.
type MemberRef struct {
	Entity Reference `json:"entity"`
}

// Reference is a FHIR literal reference such as "Patient/123".
type Reference struct {
	Reference string `json:"reference"`
}

// PatientReference returns the literal reference for a patient id.
func PatientReference(id string) string {
	return "Patient/" + id
}

// MembersFor builds a member list referencing each of the patient ids.
func MembersFor(patientIDs ...string) []MemberRef {
	ret := make([]MemberRef, 0, len(patientIDs))
	for _, id := range patientIDs {
		ret = append(ret, MemberRef{Entity: Reference{Reference: PatientReference(id)}})
	}
	return ret
}
