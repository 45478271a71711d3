package fakeapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/servicedef"
)

const internalErrorText = "Unable to retrieve patient data due to internal error"

// Dataset is the synthetic claims data behind the fake API, keyed by MBI.
type Dataset struct {
	// CoveragesPerPatient is the number of Coverage resources of every patient.
	CoveragesPerPatient int
	// ClaimsPerPatient is the number of ExplanationOfBenefit resources of a patient whose MBI
	// is not listed in Claims.
	ClaimsPerPatient int
	Claims           map[string]int
	// FailingMBIs are patients whose data cannot be retrieved; exporting them produces an
	// OperationOutcome instead of resources.
	FailingMBIs map[string]bool
	// LastUpdated is the modification time of every resource. An export with a later _since
	// finds nothing.
	LastUpdated time.Time
}

// DefaultDataset matches the synthetic beneficiaries used by the contract tests.
func DefaultDataset(lastUpdated time.Time) Dataset {
	return Dataset{
		CoveragesPerPatient: 4,
		ClaimsPerPatient:    50,
		Claims:              map[string]int{"1SQ3F00AA00": 10},
		FailingMBIs:         map[string]bool{"0S80C00AA00": true},
		LastUpdated:         lastUpdated,
	}
}

func (d Dataset) claimCount(mbi string) int {
	if n, ok := d.Claims[mbi]; ok {
		return n
	}
	return d.ClaimsPerPatient
}

// fingerprint is deterministic filler that does not compress well, so that claim files are
// large enough on the wire for range requests to be meaningful.
func fingerprint(parts ...string) string {
	var out string
	seed := fmt.Sprint(parts)
	for i := 0; i < 4; i++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", seed, i)))
		out += hex.EncodeToString(sum[:])
	}
	return out
}

func (d Dataset) meta() map[string]interface{} {
	return map[string]interface{}{"lastUpdated": d.LastUpdated.UTC().Format(time.RFC3339Nano)}
}

func (d Dataset) patientResource(p *patient) map[string]interface{} {
	r := copyResource(p.Resource)
	r["id"] = p.ID
	r["meta"] = d.meta()
	return r
}

func (d Dataset) coverages(p *patient) []map[string]interface{} {
	ret := make([]map[string]interface{}, 0, d.CoveragesPerPatient)
	parts := []string{"part-a", "part-b", "part-c", "part-d"}
	for i := 0; i < d.CoveragesPerPatient; i++ {
		ret = append(ret, map[string]interface{}{
			"resourceType": servicedef.TypeCoverage,
			"id":           fmt.Sprintf("%s-%s", parts[i%len(parts)], p.MBI),
			"meta":         d.meta(),
			"status":       "active",
			"beneficiary":  map[string]interface{}{"reference": servicedef.PatientReference(p.ID)},
			"grouping":     map[string]interface{}{"subPlan": parts[i%len(parts)]},
		})
	}
	return ret
}

func (d Dataset) claims(p *patient) []map[string]interface{} {
	n := d.claimCount(p.MBI)
	ret := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("carrier-%s-%03d", p.MBI, i)
		ret = append(ret, map[string]interface{}{
			"resourceType": servicedef.TypeExplanationOfBenefit,
			"id":           id,
			"meta":         d.meta(),
			"status":       "active",
			"type":         map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "CARRIER"}}},
			"patient":      map[string]interface{}{"reference": servicedef.PatientReference(p.ID)},
			"identifier": []interface{}{
				map[string]interface{}{"system": "https://bluebutton.cms.gov/resources/variables/clm_id", "value": fingerprint(p.MBI, id)},
			},
		})
	}
	return ret
}

func (d Dataset) failure(p *patient) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": servicedef.TypeOperationOutcome,
		"id":           "failure-" + p.MBI,
		"issue": []interface{}{
			map[string]interface{}{
				"severity": "error",
				"code":     "exception",
				"details":  map[string]interface{}{"text": internalErrorText},
				"location": []interface{}{p.MBI},
			},
		},
	}
}

// everything returns all resources of one patient: the patient, coverages, then claims.
func (d Dataset) everything(p *patient) []map[string]interface{} {
	ret := []map[string]interface{}{d.patientResource(p)}
	ret = append(ret, d.coverages(p)...)
	return append(ret, d.claims(p)...)
}
