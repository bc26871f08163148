package bulk

// JobState is the remote state of a bulk query job. Transitions are
// monotonic: Created moves through Queued/InProgress to exactly one of the
// terminal states, which are final.
type JobState string

const (
	StateCreated    JobState = "Created"
	StateQueued     JobState = "Queued"
	StateInProgress JobState = "InProgress"
	StateComplete   JobState = "JobComplete"
	StateFailed     JobState = "Failed"
	StateAborted    JobState = "Aborted"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateAborted
}

// ExportJob tracks one remote bulk query job.
type ExportJob struct {
	ID               string
	Entity           string
	Query            string
	State            JobState
	RecordsProcessed int64
}

// ProgressFunc receives processed-record progress while a job is polled.
type ProgressFunc func(recordsProcessed int64)
