package fakeapi

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"github.com/labstack/echo/v4"
)

// How long the files of a completed job stay available.
const fileLifetime = 24 * time.Hour

func (s *Server) startExport(c echo.Context) error {
	if c.Request().Header.Get(servicedef.HeaderPrefer) != servicedef.PreferAsync {
		return fhirError(http.StatusBadRequest, "One of the `Prefer: respond-async` request headers must be set")
	}
	r, ok := s.store.roster(c.Param("id"))
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find roster")
	}
	job := &exportJob{
		RosterID:  r.ID,
		Request:   baseURL(c) + strings.TrimPrefix(c.Request().URL.RequestURI(), BasePath+"/"),
		Patients:  s.store.activePatients(r),
		Submitted: s.now(),
	}
	if since := c.QueryParam("_since"); since != "" {
		t, err := time.Parse(time.RFC3339Nano, since)
		if err != nil {
			return fhirError(http.StatusBadRequest, "_since parameter must be a valid FHIR instant")
		}
		if t.After(job.Submitted) {
			return fhirError(http.StatusBadRequest, "_since parameter cannot be a future date")
		}
		job.Since = &t
	}
	s.store.createJob(job)

	c.Response().Header().Set(servicedef.HeaderContentLocation, baseURL(c)+"Jobs/"+job.ID)
	return c.NoContent(http.StatusAccepted)
}

func ndjsonBody(resources []map[string]interface{}) []byte {
	var buf bytes.Buffer
	for _, r := range resources {
		line, _ := json.Marshal(r)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// complete builds the job's files. A patient whose data cannot be retrieved contributes an
// OperationOutcome to the error file instead of resources.
func (s *Server) complete(job *exportJob) {
	job.Completed = s.now()
	if job.Since != nil && !job.Since.Before(s.data.LastUpdated) {
		return
	}

	byType := map[string][]map[string]interface{}{}
	var failures []map[string]interface{}
	for _, p := range job.Patients {
		if s.data.FailingMBIs[p.MBI] {
			failures = append(failures, s.data.failure(p))
			continue
		}
		byType[servicedef.TypePatient] = append(byType[servicedef.TypePatient], s.data.patientResource(p))
		byType[servicedef.TypeCoverage] = append(byType[servicedef.TypeCoverage], s.data.coverages(p)...)
		byType[servicedef.TypeExplanationOfBenefit] = append(byType[servicedef.TypeExplanationOfBenefit], s.data.claims(p)...)
	}

	newFile := func(i int, resourceType string, resources []map[string]interface{}) *dataFile {
		return &dataFile{
			Name:     fmt.Sprintf("%s-%d.%s.ndjson", job.ID, i, resourceType),
			Type:     resourceType,
			Body:     ndjsonBody(resources),
			Count:    len(resources),
			Modified: job.Completed,
		}
	}
	for i, t := range []string{servicedef.TypePatient, servicedef.TypeCoverage, servicedef.TypeExplanationOfBenefit} {
		if len(byType[t]) > 0 {
			job.Output = append(job.Output, newFile(i, t, byType[t]))
		}
	}
	if len(failures) > 0 {
		job.Errors = append(job.Errors, newFile(0, servicedef.TypeOperationOutcome, failures))
	}
}

func manifestEntries(base string, files []*dataFile) []interface{} {
	ret := make([]interface{}, 0, len(files))
	for _, f := range files {
		ret = append(ret, map[string]interface{}{
			"type":  f.Type,
			"url":   base + "Data/" + f.Name,
			"count": f.Count,
			"extension": []interface{}{
				map[string]interface{}{"url": servicedef.ChecksumExtensionURL, "valueString": expect.Digest(f.Body)},
				map[string]interface{}{"url": servicedef.FileLengthExtensionURL, "valueDecimal": len(f.Body)},
			},
		})
	}
	return ret
}

func (s *Server) jobStatus(c echo.Context) error {
	job, ok := s.store.pollJob(c.Param("id"), s.pending, s.complete)
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find export job")
	}
	if job.Completed.IsZero() {
		progress := float64(job.Polls) / float64(s.pending+1) * 100
		c.Response().Header().Set(servicedef.HeaderProgress, fmt.Sprintf("RUNNING: %.2f%%", progress))
		return c.NoContent(http.StatusAccepted)
	}

	base := baseURL(c)
	manifest := map[string]interface{}{
		"transactionTime":     job.Submitted.UTC().Format(time.RFC3339Nano),
		"request":             job.Request,
		"requiresAccessToken": true,
		"output":              manifestEntries(base, job.Output),
		"error":               manifestEntries(base, job.Errors),
		"extension": []interface{}{
			map[string]interface{}{"url": "https://dpc.cms.gov/submit_time", "valueDateTime": job.Submitted.UTC().Format(time.RFC3339Nano)},
			map[string]interface{}{"url": "https://dpc.cms.gov/complete_time", "valueDateTime": job.Completed.UTC().Format(time.RFC3339Nano)},
		},
	}
	c.Response().Header().Set(servicedef.HeaderExpires, job.Completed.Add(fileLifetime).UTC().Format(http.TimeFormat))
	return c.JSON(http.StatusOK, manifest)
}

// dataFile serves an export file. It honors If-Modified-Since, and answers a Range request with
// the requested bytes of the gzip-encoded file when the client accepts gzip. The end of a range
// is exclusive.
func (s *Server) dataFile(c echo.Context) error {
	f, ok := s.store.file(c.Param("file"))
	if !ok {
		return fhirError(http.StatusNotFound, "Cannot find file")
	}
	req := c.Request()
	header := c.Response().Header()
	modified := f.Modified.UTC().Truncate(time.Second)
	header.Set(servicedef.HeaderLastModified, modified.Format(http.TimeFormat))

	if ims := req.Header.Get(servicedef.HeaderIfModifiedSince); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !modified.After(t) {
			return c.NoContent(http.StatusNotModified)
		}
	}

	rangeHeader := req.Header.Get(servicedef.HeaderRange)
	if rangeHeader == "" {
		return c.Blob(http.StatusOK, servicedef.NDJSON, f.Body)
	}

	payload := f.Body
	if strings.Contains(req.Header.Get(servicedef.HeaderAcceptEncoding), servicedef.GzipEncoding) {
		compressed, err := gzipBytes(f.Body)
		if err != nil {
			return err
		}
		payload = compressed
		header.Set(servicedef.HeaderContentEncoding, servicedef.GzipEncoding)
	}
	start, end, err := parseRange(rangeHeader, len(payload))
	if err != nil {
		header.Del(servicedef.HeaderContentEncoding)
		header.Set(servicedef.HeaderContentRange, fmt.Sprintf("bytes */%d", len(payload)))
		return fhirError(http.StatusRequestedRangeNotSatisfiable, "%s", err)
	}
	header.Set(servicedef.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, end-1, len(payload)))
	return c.Blob(http.StatusPartialContent, servicedef.NDJSON, payload[start:end])
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseRange parses a single "bytes=start-end" range and clamps it to size.
func parseRange(header string, size int) (int, int, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	from, to, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	start, err := strconv.Atoi(from)
	if err != nil || start < 0 || start >= size {
		return 0, 0, fmt.Errorf("range %q not satisfiable", header)
	}
	end := size
	if to != "" {
		n, err := strconv.Atoi(to)
		if err != nil || n <= start {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		if n < size {
			end = n
		}
	}
	return start, end, nil
}
