package job

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

func newTestService() *Service {
	return NewService(store.NewMemory())
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	j, err := svc.Create(ctx, "client-1", "sales_page", map[string]string{"product": "CRM"})
	require.NoError(t, err)

	assert.Equal(t, types.JobPending, j.Status)
	assert.Equal(t, types.StepResearch, j.CurrentStep)
	assert.Empty(t, j.StepOutputs)
	assert.Equal(t, 0, j.ProgressPercent())

	got, err := svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
}

func TestGetMissing(t *testing.T) {
	svc := newTestService()
	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdvanceStep_FullSequence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	j, err := svc.Create(ctx, "client-1", "sales_page", nil)
	require.NoError(t, err)

	for i, step := range types.StepSequence {
		j, err = svc.AdvanceStep(ctx, j.ID, step, map[string]string{"step": step}, 100)
		require.NoError(t, err, "advancing %s", step)

		if i+1 < len(types.StepSequence) {
			assert.Equal(t, types.StepSequence[i+1], j.CurrentStep)
			assert.Equal(t, types.JobProcessing, j.Status)
			assert.Equal(t, (i+1)*100/len(types.StepSequence), j.ProgressPercent())
		}
	}

	assert.Equal(t, types.StepComplete, j.CurrentStep)
	assert.Equal(t, types.JobComplete, j.Status)
	assert.Equal(t, 100, j.ProgressPercent())
	assert.NotNil(t, j.CompletedAt)
	assert.Equal(t, 700, j.TokensUsed)

	// Every step output slot is populated.
	for _, step := range types.StepSequence {
		assert.NotEmpty(t, j.Output(step), "output for %s", step)
	}
}

func TestAdvanceStep_WrongStepRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	j, err := svc.Create(ctx, "", "sales_page", nil)
	require.NoError(t, err)

	_, err = svc.AdvanceStep(ctx, j.ID, types.StepCopy, map[string]string{}, 0)
	var mismatch *StepMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, types.StepResearch, mismatch.Expected)

	// The job is untouched.
	got, err := svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StepResearch, got.CurrentStep)
	assert.Empty(t, got.StepOutputs)
}

func TestFail_Absorbing(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	j, err := svc.Create(ctx, "", "sales_page", nil)
	require.NoError(t, err)

	j, err = svc.AdvanceStep(ctx, j.ID, types.StepResearch, map[string]string{}, 50)
	require.NoError(t, err)

	j, err = svc.Fail(ctx, j.ID, "brand generation timed out")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, j.Status)
	assert.Equal(t, "brand generation timed out", j.Error)

	// Further advances must be rejected.
	_, err = svc.AdvanceStep(ctx, j.ID, types.StepBrand, map[string]string{}, 0)
	var terminal *TerminalError
	assert.ErrorAs(t, err, &terminal)

	// Failing again is also rejected.
	_, err = svc.Fail(ctx, j.ID, "again")
	assert.ErrorAs(t, err, &terminal)

	// current_step stays at the step that was next when the job failed.
	got, err := svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StepBrand, got.CurrentStep)
}

func TestAdvanceStep_AfterComplete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	j, err := svc.Create(ctx, "", "sales_page", nil)
	require.NoError(t, err)
	for _, step := range types.StepSequence {
		j, err = svc.AdvanceStep(ctx, j.ID, step, map[string]string{}, 0)
		require.NoError(t, err)
	}

	_, err = svc.AdvanceStep(ctx, j.ID, types.StepAssembly, map[string]string{}, 0)
	var terminal *TerminalError
	assert.ErrorAs(t, err, &terminal)
}
