package bulkexport

import (
	"fmt"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// JobState is the client-side view of an export job.
type JobState int

const (
	JobSubmitted JobState = iota
	JobPolling
	JobCompleted
	JobFailed
	JobTimedOut
)

func (s JobState) String() string {
	switch s {
	case JobSubmitted:
		return "SUBMITTED"
	case JobPolling:
		return "POLLING"
	case JobCompleted:
		return "COMPLETED"
	case JobFailed:
		return "FAILED"
	case JobTimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s JobState) bool {
	switch s {
	case JobCompleted, JobFailed, JobTimedOut:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to JobState) bool {
	switch from {
	case JobSubmitted:
		return to == JobPolling
	case JobPolling:
		return to == JobCompleted || to == JobFailed || to == JobTimedOut
	default:
		return false
	}
}

// Job is an export that the server accepted. It exists only for the duration of a test run.
type Job struct {
	// Location is the status URL from the Content-Location header of the 202 response.
	Location    string
	RosterID    string
	Since       ldvalue.OptionalString
	SubmittedAt time.Time

	state JobState
	polls int
}

func newJob(location, rosterID string, since ldvalue.OptionalString, submittedAt time.Time) *Job {
	return &Job{
		Location:    location,
		RosterID:    rosterID,
		Since:       since,
		SubmittedAt: submittedAt,
		state:       JobSubmitted,
	}
}

func (j *Job) State() JobState {
	return j.state
}

// Polls is the number of status requests made so far.
func (j *Job) Polls() int {
	return j.polls
}

// transition moves the job from one state to another. The caller names the state it believes
// the job is in so that misuse, such as polling a finished job, is reported rather than ignored.
func (j *Job) transition(from, to JobState) error {
	if j.state != from {
		return fmt.Errorf("invalid transition for export job %s: expected %s, got %s", j.Location, from, j.state)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for export job %s: %s -> %s", j.Location, from, to)
	}
	j.state = to
	return nil
}
