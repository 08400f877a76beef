package flow

import "time"

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// CancelReason is reported when a client stops an execution; cancellation is
// advisory, so the row is marked errored with this reason without waiting
// for the runner.
const CancelReason = "canceled"

// Execution is a flow-execution status record. The JSON shape is exactly
// what execution_update events carry; timestamps stay server-side.
type Execution struct {
	ID     int64   `json:"id"`
	FlowID string  `json:"flowId"`
	Status Status  `json:"status"`
	Output *string `json:"output,omitempty"`
	Error  *string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"-"`
	CompletedAt *time.Time `json:"-"`
}
