package fakeapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
	"github.com/dpc-contract-tests/bulkcheck/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

type fixture struct {
	t      *testing.T
	base   string
	client *transport.Client
}

func withFakeAPI(t *testing.T, opts Options, action func(f fixture)) {
	server := httptest.NewServer(New(opts).Handler())
	defer server.Close()
	action(fixture{t: t, base: server.URL + BasePath + "/", client: transport.New()})
}

func (f fixture) do(req transport.Request) (*transport.Response, error) {
	return f.client.Do(context.Background(), req)
}

func (f fixture) mustJSON(req transport.Request) ldvalue.Value {
	resp, err := f.do(req)
	require.NoError(f.t, err)
	v, err := resp.JSON()
	require.NoError(f.t, err)
	return v
}

func (f fixture) post(path string, body interface{}, headers ...string) transport.Request {
	req, err := transport.Post(f.base+path).
		WithHeader(servicedef.HeaderContentType, servicedef.FHIRJSON).
		WithJSONBody(body)
	require.NoError(f.t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req = req.WithHeader(headers[i], headers[i+1])
	}
	return req
}

func patientBundle(mbis ...string) map[string]interface{} {
	var entries []interface{}
	for _, mbi := range mbis {
		entries = append(entries, map[string]interface{}{"resource": map[string]interface{}{
			"resourceType": "Patient",
			"identifier":   []interface{}{map[string]interface{}{"system": servicedef.MBISystem, "value": mbi}},
		}})
	}
	return map[string]interface{}{"resourceType": "Bundle", "entry": entries}
}

func practitionerBundle(npi string) map[string]interface{} {
	return map[string]interface{}{"resourceType": "Bundle", "entry": []interface{}{
		map[string]interface{}{"resource": map[string]interface{}{
			"resourceType": "Practitioner",
			"identifier":   []interface{}{map[string]interface{}{"system": servicedef.NPISystem, "value": npi}},
		}},
	}}
}

func rosterBody(npi string, patientIDs ...string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Group",
		"characteristic": []interface{}{map[string]interface{}{
			"code":                 map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "attributed-to"}}},
			"valueCodeableConcept": map[string]interface{}{"coding": []interface{}{map[string]interface{}{"system": servicedef.NPISystem, "code": npi}}},
		}},
		"member": servicedef.MembersFor(patientIDs...),
	}
}

func ids(bundle ldvalue.Value) []string {
	var ret []string
	entries := bundle.GetByKey("entry")
	for i := 0; i < entries.Count(); i++ {
		ret = append(ret, entries.GetByIndex(i).GetByKey("resource").GetByKey("id").StringValue())
	}
	return ret
}

// setUp registers a practitioner and the patients, and creates a roster of all of them.
func (f fixture) setUp(mbis ...string) (string, []string) {
	f.mustJSON(f.post("Practitioner/$submit", practitionerBundle("2459425221")))
	patientIDs := ids(f.mustJSON(f.post("Patient/$submit", patientBundle(mbis...))))
	require.Len(f.t, patientIDs, len(mbis))

	attestation := servicedef.Attestation("org", "provider", time.Now())
	roster := f.mustJSON(f.post("Group", rosterBody("2459425221", patientIDs...), servicedef.HeaderProvenance, attestation))
	return roster.GetByKey("id").StringValue(), patientIDs
}

func TestMetadata(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		v := f.mustJSON(transport.Get(f.base + "metadata"))
		assert.Equal(t, "CapabilityStatement", v.GetByKey("resourceType").StringValue())
	})
}

func TestSubmittingPatientsIsIdempotentByMBI(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		first := ids(f.mustJSON(f.post("Patient/$submit", patientBundle("1SQ3F00AA00"))))
		second := ids(f.mustJSON(f.post("Patient/$submit", patientBundle("1SQ3F00AA00"))))
		assert.Equal(t, first, second)

		found := f.mustJSON(transport.Get(f.base + "Patient?identifier=1SQ3F00AA00"))
		assert.Equal(t, 1, found.GetByKey("total").IntValue())
	})
}

func TestRosterRequiresAttestation(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		_, err := f.do(f.post("Group", rosterBody("2459425221")))
		var se *transport.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 400, se.StatusCode())
		assert.Equal(t, servicedef.FHIRJSON, se.Response.MediaType())
	})
}

func TestAddingUnknownPatient(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		rosterID, _ := f.setUp("1SQ3F00AA00")
		attestation := servicedef.Attestation("org", "provider", time.Now())
		_, err := f.do(f.post("Group/"+rosterID+"/$add", rosterBody("2459425221", "nope"), servicedef.HeaderProvenance, attestation))

		var se *transport.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 400, se.StatusCode())
		body, _ := se.Response.JSON()
		assert.Equal(t, "All patients in group must exist. Cannot find 1 patient(s).",
			body.GetByKey("issue").GetByIndex(0).GetByKey("details").GetByKey("text").StringValue())
	})
}

func TestUpdateOrganizationRequiresFHIRContentType(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		org := f.mustJSON(f.post("Organization/$submit", map[string]interface{}{
			"resourceType": "Bundle",
			"entry":        []interface{}{map[string]interface{}{"resource": map[string]interface{}{"resourceType": "Organization", "name": "a"}}},
		}))
		req, err := transport.Put(f.base+"Organization/"+org.GetByKey("id").StringValue()).
			WithHeader(servicedef.HeaderContentType, "application/fire+json").
			WithJSONBody(map[string]interface{}{"name": "b"})
		require.NoError(t, err)

		_, err = f.do(req)
		var se *transport.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, 415, se.StatusCode())
	})
}

func TestExportLifecycle(t *testing.T) {
	withFakeAPI(t, Options{PendingPolls: 2}, func(f fixture) {
		rosterID, _ := f.setUp("5S58A00AA00", "0S80C00AA00")

		resp, err := f.do(transport.Get(f.base+"Group/"+rosterID+"/$export").
			WithHeader(servicedef.HeaderPrefer, servicedef.PreferAsync))
		require.NoError(t, err)
		require.Equal(t, 202, resp.StatusCode)
		location := resp.Header.Get(servicedef.HeaderContentLocation)

		for i := 0; i < 2; i++ {
			resp, err = f.do(transport.Get(location))
			require.NoError(t, err)
			require.Equal(t, 202, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(servicedef.HeaderProgress))
		}

		resp, err = f.do(transport.Get(location))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, servicedef.JSON, resp.MediaType())
		expires, err := time.Parse(time.RFC1123, resp.Header.Get(servicedef.HeaderExpires))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), expires, 2*time.Second)

		manifest, err := resp.JSON()
		require.NoError(t, err)
		output := manifest.GetByKey("output")
		require.Equal(t, 3, output.Count())
		assert.Equal(t, 1, manifest.GetByKey("error").Count())

		eob := output.GetByIndex(2)
		assert.Equal(t, servicedef.TypeExplanationOfBenefit, eob.GetByKey("type").StringValue())
		assert.Equal(t, 50, eob.GetByKey("count").IntValue())

		data, err := f.do(transport.Get(eob.GetByKey("url").StringValue()))
		require.NoError(t, err)
		assert.Equal(t, servicedef.NDJSON, data.MediaType())
		assert.NoError(t, expect.Checksum(data.Body, eob.GetByKey("extension").GetByIndex(0).GetByKey("valueString").StringValue()))
		assert.Equal(t, len(data.Body), eob.GetByKey("extension").GetByIndex(1).GetByKey("valueDecimal").IntValue())
	})
}

func TestSinceAfterLastUpdateFindsNothing(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		rosterID, _ := f.setUp("5S58A00AA00")
		since := servicedef.SinceTime(time.Now()).StringValue()

		resp, err := f.do(transport.Get(f.base+"Group/"+rosterID+"/$export?_since="+since).
			WithHeader(servicedef.HeaderPrefer, servicedef.PreferAsync))
		require.NoError(t, err)

		manifest := f.mustJSON(transport.Get(resp.Header.Get(servicedef.HeaderContentLocation)))
		assert.Equal(t, 0, manifest.GetByKey("output").Count())
		assert.Equal(t, 0, manifest.GetByKey("error").Count())
	})
}

func completedEOBFile(f fixture) (string, *transport.Response) {
	rosterID, _ := f.setUp("5S58A00AA00", "4S58A00AA00", "3S58A00AA00")
	resp, err := f.do(transport.Get(f.base+"Group/"+rosterID+"/$export").
		WithHeader(servicedef.HeaderPrefer, servicedef.PreferAsync))
	require.NoError(f.t, err)
	manifest := f.mustJSON(transport.Get(resp.Header.Get(servicedef.HeaderContentLocation)))
	url := manifest.GetByKey("output").GetByIndex(2).GetByKey("url").StringValue()
	data, err := f.do(transport.Get(url))
	require.NoError(f.t, err)
	return url, data
}

func TestRangeRequestIsGzipped(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		url, full := completedEOBFile(f)

		resp, err := f.do(transport.Get(url).
			WithHeader(servicedef.HeaderRange, "bytes=0-10240").
			WithHeader(servicedef.HeaderAcceptEncoding, servicedef.GzipEncoding))
		require.NoError(t, err)
		assert.Equal(t, 206, resp.StatusCode)
		assert.True(t, resp.Compressed)
		assert.Len(t, resp.Body, 10240)
		assert.Regexp(t, `^bytes 0-10239/\d+$`, resp.Header.Get(servicedef.HeaderContentRange))

		// the partial payload is a prefix of the gzip stream of the whole file
		r, err := gzip.NewReader(bytes.NewReader(resp.Body))
		require.NoError(t, err)
		prefix, _ := io.ReadAll(r)
		assert.True(t, bytes.HasPrefix(full.Body, prefix))
		assert.NotEmpty(t, prefix)
	})
}

func TestConditionalRequest(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		url, full := completedEOBFile(f)
		lastModified := full.Header.Get(servicedef.HeaderLastModified)
		require.NotEmpty(t, lastModified)

		resp, err := f.do(transport.Get(url).WithHeader(servicedef.HeaderIfModifiedSince, lastModified))
		resp, err = transport.ExpectStatus(resp, err, http.StatusNotModified)
		require.NoError(t, err)
		assert.Empty(t, resp.Body)

		earlier := time.Now().Add(-48 * time.Hour).UTC().Format(http.TimeFormat)
		resp, err = f.do(transport.Get(url).WithHeader(servicedef.HeaderIfModifiedSince, earlier))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("bytes=0-10", 100)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10}, []int{start, end})

	start, end, err = parseRange("bytes=5-", 100)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 100}, []int{start, end})

	_, end, err = parseRange("bytes=0-1000", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, end)

	for _, bad := range []string{"items=0-1", "bytes=0-1,3-4", "bytes=200-300", "bytes=5-2", "bytes=x-1"} {
		_, _, err := parseRange(bad, 100)
		assert.Error(t, err, bad)
	}
}

func TestReAddingRemovedPatientReactivatesMember(t *testing.T) {
	withFakeAPI(t, Options{}, func(f fixture) {
		rosterID, patientIDs := f.setUp("1SQ3F00AA00", "2SQ3F00AA00")
		attestation := servicedef.Attestation("org", "provider", time.Now())
		member := func(roster ldvalue.Value, patientID string) ldvalue.Value {
			list := roster.GetByKey("member")
			for i := 0; i < list.Count(); i++ {
				if list.GetByIndex(i).GetByKey("entity").GetByKey("reference").StringValue() == "Patient/"+patientID {
					return list.GetByIndex(i)
				}
			}
			return ldvalue.Null()
		}

		removed := f.mustJSON(f.post("Group/"+rosterID+"/$remove",
			rosterBody("2459425221", patientIDs[0]), servicedef.HeaderProvenance, attestation))
		assert.True(t, member(removed, patientIDs[0]).GetByKey("inactive").BoolValue())
		assert.Equal(t, 2, removed.GetByKey("member").Count())

		added := f.mustJSON(f.post("Group/"+rosterID+"/$add",
			rosterBody("2459425221", patientIDs[0]), servicedef.HeaderProvenance, attestation))
		m := member(added, patientIDs[0])
		assert.False(t, m.GetByKey("inactive").BoolValue())
		assert.NotEqual(t, m.GetByKey("period").GetByKey("start").StringValue(), m.GetByKey("period").GetByKey("end").StringValue())
		assert.Equal(t, 2, added.GetByKey("member").Count())
	})
}
