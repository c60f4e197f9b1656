package enum

type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

func (t JobStatus) String() string {
	return string(t)
}

// IsTerminal reports whether the status admits no further transitions.
func (t JobStatus) IsTerminal() bool {
	switch t {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}
