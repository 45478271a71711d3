package bulkexport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func TestJobTransitions(t *testing.T) {
	j := newJob("http://x/jobs/1", "roster", ldvalue.OptionalString{}, time.Now())
	assert.Equal(t, JobSubmitted, j.State())

	require.NoError(t, j.transition(JobSubmitted, JobPolling))
	require.NoError(t, j.transition(JobPolling, JobCompleted))
	assert.True(t, IsTerminal(j.State()))

	err := j.transition(JobCompleted, JobPolling)
	assert.ErrorContains(t, err, "disallowed transition")
}

func TestJobTransitionFromWrongState(t *testing.T) {
	j := newJob("http://x/jobs/1", "roster", ldvalue.OptionalString{}, time.Now())
	err := j.transition(JobPolling, JobCompleted)
	assert.ErrorContains(t, err, "expected POLLING, got SUBMITTED")
	assert.Equal(t, JobSubmitted, j.State())
}

func TestJobCannotSkipPolling(t *testing.T) {
	j := newJob("http://x/jobs/1", "roster", ldvalue.OptionalString{}, time.Now())
	assert.Error(t, j.transition(JobSubmitted, JobCompleted))
}

func TestJobStateNames(t *testing.T) {
	for s, name := range map[JobState]string{
		JobSubmitted: "SUBMITTED",
		JobPolling:   "POLLING",
		JobCompleted: "COMPLETED",
		JobFailed:    "FAILED",
		JobTimedOut:  "TIMED_OUT",
	} {
		assert.Equal(t, name, s.String())
	}
	assert.False(t, IsTerminal(JobPolling))
	assert.True(t, IsTerminal(JobTimedOut))
}
