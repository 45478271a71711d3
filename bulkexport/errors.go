package bulkexport

import (
	"fmt"
	"time"
)

// PollTimeoutError means that an export job was still in progress when the poll loop gave up,
// either because it used up its attempts or because the context expired.
type PollTimeoutError struct {
	Location string
	Attempts int
	Elapsed  time.Duration
	// Err is the context error, if the context is what ended polling.
	Err error
}

func (e *PollTimeoutError) Error() string {
	msg := fmt.Sprintf("export job %s did not complete after %d status request(s) in %s",
		e.Location, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PollTimeoutError) Unwrap() error { return e.Err }
