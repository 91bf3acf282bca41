package jobs

// Status is the lifecycle state of a job.
type Status string

const (
	// StatusPending is the initial state, set at submission.
	StatusPending Status = "PENDING"
	// StatusRunning is set when the runner picks the job up.
	StatusRunning Status = "RUNNING"
	// StatusComplete is terminal: the workflow returned a result.
	StatusComplete Status = "COMPLETE"
	// StatusError is terminal: the workflow failed and its description is the result.
	StatusError Status = "ERROR"
)

// Valid returns true for the four known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusRunning || s == StatusComplete || s == StatusError
}

// Terminal returns true for COMPLETE and ERROR.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransition reports whether a record in status from may move to status to.
// Staying in the same status is always allowed; leaving a terminal status never is.
func CanTransition(from, to Status) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}

	switch from {
	case StatusPending:
		return to == StatusRunning || to.Terminal()
	case StatusRunning:
		return to.Terminal()
	default:
		return false
	}
}
