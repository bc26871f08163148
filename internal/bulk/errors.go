package bulk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPollTimeout is returned when a job does not reach a terminal state
// within the polling bound. Distinct from a failed job so callers can decide
// whether to re-submit.
var ErrPollTimeout = errors.New("job polling timed out")

// RemoteRejectedError indicates the remote service refused the operation
// (unsupported entity type, malformed predicate). Never retried.
type RemoteRejectedError struct {
	Entity  string
	Message string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected export of %s: %s", e.Entity, e.Message)
}

// JobFailedError indicates the remote job reached the Failed or Aborted
// terminal state.
type JobFailedError struct {
	JobID   string
	State   JobState
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s %s: %s", e.JobID, strings.ToLower(string(e.State)), e.Message)
}

// NoQueryableFieldsError indicates field resolution excluded every field of
// the entity type.
type NoQueryableFieldsError struct {
	Entity string
}

func (e *NoQueryableFieldsError) Error() string {
	return fmt.Sprintf("no queryable fields found for %s", e.Entity)
}

// StatusError carries a non-2xx response for caller classification.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// rejectionMarkers are error-payload fragments that identify entity types the
// bulk API fundamentally does not support. Submissions failing with one of
// these are surfaced as RemoteRejectedError and never retried.
var rejectionMarkers = []string{
	"not supported by the bulk api",
	"invalidentity",
	"compound data not supported",
}

func isRejectionMessage(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range rejectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
