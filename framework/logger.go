package framework

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger interface {
	Printf(message string, args ...interface{})
}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(message string, args ...interface{})

func (f LoggerFunc) Printf(message string, args ...interface{}) { f(message, args...) }

// NullLogger returns a Logger that discards everything.
func NullLogger() Logger {
	return LoggerFunc(func(string, ...interface{}) {})
}

// LoggerWithPrefix returns a Logger that prepends prefix to every message.
func LoggerWithPrefix(logger Logger, prefix string) Logger {
	if logger == nil {
		return NullLogger()
	}
	return LoggerFunc(func(message string, args ...interface{}) {
		logger.Printf(prefix+message, args...)
	})
}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

// CapturedOutput is the debug log of one test: mostly the requests it sent and the responses
// it got back.
type CapturedOutput []CapturedMessage

// CapturingLogger keeps every message in memory until the test finishes. The zero value is ready
// to use.
type CapturingLogger struct {
	lock   sync.Mutex
	output CapturedOutput
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	m := CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)}
	l.lock.Lock()
	defer l.lock.Unlock()
	l.output = append(l.output, m)
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append(CapturedOutput(nil), l.output...)
}

// Dump writes each message after prefix and a timestamp. Continuation lines of a multi-line
// message, such as a response body, are aligned under the first.
func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		stamp := "[" + m.Time.Format(timestampFormat) + "] "
		indent := strings.Repeat(" ", len(stamp))
		for i, line := range strings.Split(strings.TrimRight(m.Message, "\n"), "\n") {
			if i == 0 {
				fmt.Fprintf(dest, "%s%s%s\n", prefix, stamp, line)
			} else {
				fmt.Fprintf(dest, "%s%s%s\n", prefix, indent, line)
			}
		}
	}
}
