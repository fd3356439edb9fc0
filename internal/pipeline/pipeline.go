// Package pipeline drives a job through the fixed generation sequence. Each
// step reads prior steps' outputs, calls its external collaborator, and
// commits the result through the job state machine. The orchestrator never
// retries a step on its own; a failed call marks the job failed and a fresh
// client request re-enters the sequence at the last successful step.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/imagegen"
	"github.com/mateo/pagesmith/internal/job"
	"github.com/mateo/pagesmith/internal/llm"
	"github.com/mateo/pagesmith/internal/observability"
	"github.com/mateo/pagesmith/internal/research"
	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

// Job input keys supplied at creation time.
const (
	InputBusinessName = "business_name"
	InputIndustry     = "industry"
	InputGoal         = "goal"
	InputCompetitors  = "competitors"
	InputPageName     = "page_name"
)

// Gatherer collects research material for a business.
type Gatherer interface {
	Gather(ctx context.Context, businessName, industry string, competitors []string) ([]research.Source, error)
}

// Deps are the collaborators a Runner needs. Images and Research may be nil;
// the affected steps then degrade (no hero image, research from inputs only).
type Deps struct {
	Jobs     *job.Service
	Store    store.Store
	LLM      llm.Client
	Images   imagegen.Generator
	Research Gatherer
	Logger   *zap.Logger

	// Progress, when set, is called with the job snapshot after every
	// committed step.
	Progress func(j *types.Job)
}

// stepFunc produces a step's output and its resource cost.
type stepFunc func(ctx context.Context, r *Runner, j *types.Job) (output any, cost int, err error)

type stepSpec struct {
	run     stepFunc
	timeout time.Duration
}

// Runner executes pipeline steps for jobs.
type Runner struct {
	deps  Deps
	steps map[string]stepSpec
}

// NewRunner creates a pipeline runner.
func NewRunner(deps Deps) *Runner {
	r := &Runner{deps: deps}
	r.steps = map[string]stepSpec{
		types.StepResearch:  {run: runResearch, timeout: 3 * time.Minute},
		types.StepBrand:     {run: runBrand, timeout: 90 * time.Second},
		types.StepStrategy:  {run: runStrategy, timeout: 90 * time.Second},
		types.StepCopy:      {run: runCopy, timeout: 2 * time.Minute},
		types.StepDesign:    {run: runDesign, timeout: 4 * time.Minute},
		types.StepFactCheck: {run: runFactCheck, timeout: 90 * time.Second},
		types.StepAssembly:  {run: runAssembly, timeout: 30 * time.Second},
	}
	return r
}

// SetProgress installs a per-step progress callback.
func (r *Runner) SetProgress(fn func(j *types.Job)) { r.deps.Progress = fn }

// Run drives the job from its current step to completion. Returns the final
// job snapshot; a step failure marks the job failed and is returned as an
// error naming the step.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (*types.Job, error) {
	j, err := r.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	for !j.Terminal() {
		step := j.CurrentStep
		j, err = r.RunStep(ctx, j)
		if err != nil {
			return j, fmt.Errorf("step %s: %w", step, err)
		}
	}
	return j, nil
}

// RunStep executes exactly one step of the job and commits the transition.
func (r *Runner) RunStep(ctx context.Context, j *types.Job) (*types.Job, error) {
	if j.Terminal() {
		return nil, &job.TerminalError{ID: j.ID, Status: j.Status}
	}
	spec, ok := r.steps[j.CurrentStep]
	if !ok {
		return nil, fmt.Errorf("no runner registered for step %q", j.CurrentStep)
	}

	step := j.CurrentStep
	logger := r.deps.Logger.With(zap.String("job_id", j.ID.String()), zap.String("step", step))
	logger.Info("running step")
	started := time.Now()

	stepCtx, cancel := context.WithTimeout(ctx, spec.timeout)
	output, cost, err := spec.run(stepCtx, r, j)
	cancel()
	observability.StepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())

	if err != nil {
		logger.Error("step failed", zap.Error(err))
		observability.JobsFailed.WithLabelValues(step).Inc()
		if _, ferr := r.deps.Jobs.Fail(ctx, j.ID, fmt.Sprintf("%s: %v", step, err)); ferr != nil {
			logger.Error("failed to record job failure", zap.Error(ferr))
		}
		failed, gerr := r.deps.Jobs.Get(ctx, j.ID)
		if gerr != nil {
			failed = j
		}
		return failed, err
	}

	updated, err := r.deps.Jobs.AdvanceStep(ctx, j.ID, step, output, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to commit %s output: %w", step, err)
	}
	observability.TokensUsed.Add(float64(cost))
	if updated.Status == types.JobComplete {
		observability.JobsCompleted.Inc()
	}
	logger.Info("step complete",
		zap.String("next_step", updated.CurrentStep),
		zap.Int("cost", cost),
		zap.Duration("took", time.Since(started)))
	if r.deps.Progress != nil {
		r.deps.Progress(updated)
	}
	return updated, nil
}

// decodeOutput loads a prior step's output into its concrete type.
func decodeOutput[T any](j *types.Job, step string) (*T, error) {
	out, err := types.DecodeStepOutput(step, j.StepOutputs[step])
	if err != nil {
		return nil, err
	}
	typed, ok := out.(*T)
	if !ok {
		return nil, fmt.Errorf("unexpected output type for step %q", step)
	}
	return typed, nil
}

// claimSlug reserves a slug in the slugs collection, appending a numeric
// suffix until a free one is found.
func (r *Runner) claimSlug(ctx context.Context, base string, docID uuid.UUID) (string, error) {
	for i := 0; i < 20; i++ {
		slug := base
		if i > 0 {
			slug = fmt.Sprintf("%s-%d", base, i+1)
		}
		_, err := r.deps.Store.Put(ctx, store.CollectionSlugs, slug,
			map[string]string{"document_id": docID.String()},
			&store.Precondition{Absent: true})
		if err == nil {
			return slug, nil
		}
		if !store.IsConflict(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("could not find a free slug for %q", base)
}
