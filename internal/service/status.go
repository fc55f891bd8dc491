package service

import "github.com/imalyk/deepscan/pkg/job"

// DomainState is the caller-facing analysis status, mapped one-to-one from
// the queue's job states.
type DomainState string

const (
	StatusPending    DomainState = "pending"
	StatusProcessing DomainState = "processing"
	StatusSuccess    DomainState = "success"
	StatusFailed     DomainState = "failed"
	StatusError      DomainState = "error"
)

// Status is the polling response: the domain state, the job handle, the
// verdict once available, and a human-readable reason on failure.
type Status struct {
	State  DomainState `json:"status"`
	JobID  string      `json:"task_id,omitempty"`
	Result *job.Result `json:"result,omitempty"`
	Info   string      `json:"info,omitempty"`
}

// domainState maps a queue state to the caller-facing status.
func domainState(s job.State) DomainState {
	switch s {
	case job.StatePending:
		return StatusPending
	case job.StateStarted:
		return StatusProcessing
	case job.StateSuccess:
		return StatusSuccess
	case job.StateFailure:
		return StatusFailed
	default:
		return StatusError
	}
}
