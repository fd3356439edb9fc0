// Package job implements the generation job state machine. The fixed step
// sequence is total, so the machine reduces to a monotonically increasing
// index: resuming a partial job means re-entering the sequence at
// current_step, and a failed job always names the step that failed.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

// TerminalError is returned for mutations against a complete or failed job.
type TerminalError struct {
	ID     uuid.UUID
	Status string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("job %s is %s and cannot transition", e.ID, e.Status)
}

// StepMismatchError is returned when an advance names a step other than the
// job's current one. Accepting it would desync current_step from the
// recorded outputs.
type StepMismatchError struct {
	Expected string
	Got      string
}

func (e *StepMismatchError) Error() string {
	return fmt.Sprintf("step mismatch: job is at %q, got advance for %q", e.Expected, e.Got)
}

// Service drives job records through the persistence abstraction. It performs
// no I/O to generation services; the orchestrator owns those calls.
type Service struct {
	store store.Store
}

// NewService creates a job service over the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Create initializes a job in pending with empty step outputs, positioned at
// the first step of the sequence.
func (s *Service) Create(ctx context.Context, clientID, pageType string, inputs map[string]string) (*types.Job, error) {
	now := time.Now().UTC()
	j := &types.Job{
		ID:          uuid.New(),
		ClientID:    clientID,
		PageType:    pageType,
		CurrentStep: types.StepSequence[0],
		Status:      types.JobPending,
		Inputs:      inputs,
		StepOutputs: map[string]json.RawMessage{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.store.Put(ctx, store.CollectionJobs, j.ID.String(), j, &store.Precondition{Absent: true}); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return j, nil
}

// Get returns the current job snapshot.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	j, _, err := s.load(ctx, id)
	return j, err
}

// AdvanceStep is the single mutation primitive: it records output under
// stepName, adds resourceCost to the job's token counter, and moves
// current_step to the next name in the sequence, or to completion when
// stepName was the last. A committed step is never rolled back.
func (s *Service) AdvanceStep(ctx context.Context, id uuid.UUID, stepName string, output any, resourceCost int) (*types.Job, error) {
	j, version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Terminal() {
		return nil, &TerminalError{ID: id, Status: j.Status}
	}
	if stepName != j.CurrentStep {
		return nil, &StepMismatchError{Expected: j.CurrentStep, Got: stepName}
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s output: %w", stepName, err)
	}

	if j.StepOutputs == nil {
		j.StepOutputs = map[string]json.RawMessage{}
	}
	j.StepOutputs[stepName] = raw
	j.TokensUsed += resourceCost

	now := time.Now().UTC()
	j.UpdatedAt = now
	if next, ok := types.NextStep(stepName); ok {
		j.CurrentStep = next
		j.Status = types.JobProcessing
	} else {
		j.CurrentStep = types.StepComplete
		j.Status = types.JobComplete
		j.CompletedAt = &now
	}

	if _, err := s.store.Put(ctx, store.CollectionJobs, id.String(), j, &store.Precondition{Version: version}); err != nil {
		return nil, fmt.Errorf("failed to advance job %s: %w", id, err)
	}
	return j, nil
}

// Fail sets terminal failure status with the given message. It is absorbing:
// once failed, no further transition is accepted.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, message string) (*types.Job, error) {
	j, version, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Terminal() {
		return nil, &TerminalError{ID: id, Status: j.Status}
	}

	j.Status = types.JobFailed
	j.Error = message
	j.UpdatedAt = time.Now().UTC()

	if _, err := s.store.Put(ctx, store.CollectionJobs, id.String(), j, &store.Precondition{Version: version}); err != nil {
		return nil, fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return j, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*types.Job, string, error) {
	rec, err := s.store.Get(ctx, store.CollectionJobs, id.String())
	if err != nil {
		return nil, "", err
	}
	var j types.Job
	if err := store.Decode(rec, &j); err != nil {
		return nil, "", fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &j, rec.Version, nil
}
