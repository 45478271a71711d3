package bulkexport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
	"github.com/dpc-contract-tests/bulkcheck/transport"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// DataFile is a downloaded export file.
type DataFile struct {
	URL          string
	Body         []byte
	Records      []ldvalue.Value
	LastModified string
	Compressed   bool
}

// SplitLines returns the non-empty lines of an NDJSON body.
func SplitLines(body []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// FetchAndVerifyOutput downloads the file an entry points to and checks it against the entry
// and the rule for its type: the content type is NDJSON, every record has the entry's type, the
// number of records matches both the declared count and the rule, the body matches the checksum
// extension, and every record passes the rule's line checks.
//
// The file is returned as long as it could be downloaded, along with any verification failures.
func (c *Client) FetchAndVerifyOutput(ctx context.Context, entry OutputEntry, rule Rule) (*DataFile, error) {
	resp, err := c.transport.Do(ctx, transport.Get(entry.URL))
	if err != nil {
		return nil, err
	}
	file := &DataFile{
		URL:          entry.URL,
		Body:         resp.Body,
		LastModified: resp.Header.Get(servicedef.HeaderLastModified),
		Compressed:   resp.Compressed,
	}

	var failures expect.Failures
	failures.Check(expect.Equal(resp.StatusCode, http.StatusOK, entry.Type+" status"))
	failures.Check(expect.Equal(resp.MediaType(), servicedef.NDJSON, entry.Type+" content type"))

	lines := SplitLines(resp.Body)
	if declared, ok := entry.Count().Get(); ok {
		failures.Check(expect.Equal(len(lines), declared, entry.Type+" line count"))
	}
	failures.Check(rule.Count.Check(len(lines), entry.Type+" line count"))
	if checksum := entry.Checksum(); checksum.Type() == ldvalue.StringType {
		failures.Check(expect.Checksum(resp.Body, checksum.StringValue()))
	} else {
		failures.Check(&expect.Failure{Expected: "checksum", Actual: checksum.JSONString(), Label: entry.Type})
	}

	for i, line := range lines {
		label := entry.Type + " line " + strconv.Itoa(i+1)
		var record ldvalue.Value
		if err := json.Unmarshal(line, &record); err != nil {
			failures.Check(fmt.Errorf("%s is not valid JSON: %w", label, err))
			continue
		}
		file.Records = append(file.Records, record)
		failures.Check(expect.Equal(record.GetByKey("resourceType").StringValue(), entry.Type, label+" resourceType"))
		for _, lc := range rule.Lines {
			failures.Check(lc.Apply(record, label))
		}
	}
	return file, failures.Err()
}

// FetchPartialRange requests the first n bytes of a file, asking for gzip encoding. The server
// must answer with a Content-Range header and exactly n bytes of compressed payload. Since the
// request sets Accept-Encoding itself, the body is returned still compressed.
func (c *Client) FetchPartialRange(ctx context.Context, fileURL string, n int) (*transport.Response, error) {
	req := transport.Get(fileURL).
		WithHeader(servicedef.HeaderRange, fmt.Sprintf("bytes=0-%d", n)).
		WithHeader(servicedef.HeaderAcceptEncoding, servicedef.GzipEncoding)
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var failures expect.Failures
	failures.Check(expect.Truthy(resp.Header.Get(servicedef.HeaderContentRange), "Content-Range header"))
	failures.Check(expect.Len(resp.Body, n, "partial body length"))
	failures.Check(expect.Equal(resp.Compressed, true, "gzip encoding"))
	return resp, failures.Err()
}

// FetchConditional requests a file with If-Modified-Since set to its own modification time. The
// server must answer 304 Not Modified.
func (c *Client) FetchConditional(ctx context.Context, fileURL, lastModified string) error {
	req := transport.Get(fileURL).WithHeader(servicedef.HeaderIfModifiedSince, lastModified)
	resp, err := c.transport.Do(ctx, req)
	if _, err := transport.ExpectStatus(resp, err, http.StatusNotModified); err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) {
			return &expect.Failure{Expected: http.StatusNotModified, Actual: se.StatusCode(), Label: "conditional request status"}
		}
		return err
	}
	return nil
}
