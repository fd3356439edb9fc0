package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobComplete   = "complete"
	JobFailed     = "failed"
)

// Job identifies one generation run. The orchestrator mutates it exactly once
// per step: append the step's output, then advance or terminate.
type Job struct {
	ID          uuid.UUID                  `json:"id"`
	ClientID    string                     `json:"client_id,omitempty"`
	PageType    string                     `json:"page_type"`
	CurrentStep string                     `json:"current_step"`
	Status      string                     `json:"status"`
	Inputs      map[string]string          `json:"inputs,omitempty"`
	StepOutputs map[string]json.RawMessage `json:"step_outputs"`
	TokensUsed  int                        `json:"tokens_used"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
}

// Terminal reports whether the job can no longer transition.
func (j *Job) Terminal() bool {
	return j.Status == JobComplete || j.Status == JobFailed
}

// ProgressPercent is a pure function of state: the index of the current step
// over the sequence length. It is computed for the UI, never stored.
func (j *Job) ProgressPercent() int {
	if j.CurrentStep == StepComplete || j.Status == JobComplete {
		return 100
	}
	idx := StepIndex(j.CurrentStep)
	if idx < 0 {
		return 0
	}
	return idx * 100 / len(StepSequence)
}

// Output returns the recorded raw output for a step, or nil if the step has
// not run yet.
func (j *Job) Output(step string) json.RawMessage {
	if j.StepOutputs == nil {
		return nil
	}
	return j.StepOutputs[step]
}
