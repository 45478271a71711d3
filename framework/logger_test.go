package framework

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLogger(t *testing.T) {
	var capture CapturingLogger
	prefixed := LoggerWithPrefix(&capture, "[job] ")
	prefixed.Printf("status %d", 202)
	capture.Printf("done")

	out := capture.Output()
	require.Len(t, out, 2)
	assert.Equal(t, "[job] status 202", out[0].Message)

	var buf bytes.Buffer
	out.Dump(&buf, "> ")
	assert.Regexp(t, `^> \[\d{4}-\d\d-\d\d \d\d:\d\d:\d\d\.\d{3}\] \[job\] status 202\n> \[.*\] done\n$`, buf.String())
}

func TestDumpAlignsContinuationLines(t *testing.T) {
	var capture CapturingLogger
	capture.Printf("<< 400\n{\"resourceType\":\"OperationOutcome\"}\n")

	var buf bytes.Buffer
	capture.Output().Dump(&buf, "  ")
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "] << 400"))
	assert.Equal(t, strings.Index(lines[0], "<<"), strings.Index(lines[1], "{"))
}

func TestLoggerWithPrefixOfNilDiscards(t *testing.T) {
	assert.NotPanics(t, func() { LoggerWithPrefix(nil, "x").Printf("y") })
}
