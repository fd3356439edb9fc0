package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/imagegen"
	"github.com/mateo/pagesmith/internal/job"
	"github.com/mateo/pagesmith/internal/llm"
	"github.com/mateo/pagesmith/internal/research"
	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

// scriptedLLM answers each prompt by keying on the system instruction.
type scriptedLLM struct {
	failOn string
}

func (s *scriptedLLM) GenerateJSON(_ context.Context, system, _ string, _ llm.ModelTier) (*llm.Result, error) {
	var text string
	switch {
	case strings.Contains(system, "market researcher"):
		if s.failOn == types.StepResearch {
			return nil, fmt.Errorf("rate limited")
		}
		text = `{"summary": "Acme sells widgets to plumbers.", "audience": "independent plumbers", "angles": ["reliability", "speed"]}`
	case strings.Contains(system, "brand designer"):
		text = `{"palette": ["#102030", "#ffffff", "#ff6600"], "heading_font": "Inter", "body_font": "Open Sans", "tone": "confident and plain-spoken", "personality": ["sturdy", "direct", "warm"]}`
	case strings.Contains(system, "conversion strategist"):
		text = `{"headline": "Widgets that never quit", "subheadline": "Trusted by working plumbers.", "offer": "Get a free quote", "hook": "stop losing jobs to broken tools", "section_plan": ["hero", "problem", "features", "cta"]}`
	case strings.Contains(system, "copywriter"):
		if s.failOn == types.StepCopy {
			return nil, fmt.Errorf("model overloaded")
		}
		text = `{"sections": [
			{"id": "hero", "heading": "Widgets that never quit", "body": "intro", "cta": "Get a free quote"},
			{"id": "problem", "heading": "Tired of breakage?", "body": "Cheap widgets fail on the job. Ours are rated for 10,000 uses."},
			{"id": "features", "heading": "Built to last", "body": "Forged steel, lifetime warranty."},
			{"id": "cta", "heading": "Get started", "body": "Request your free quote today.", "cta": "Get a free quote"}
		]}`
	case strings.Contains(system, "web designer"):
		text = `{"css": "body { font-family: 'Open Sans', sans-serif; color: #102030 } h1 { font-family: Inter }", "layout_notes": ["single column"]}`
	case strings.Contains(system, "fact checker"):
		text = `{"issues": [{"claim": "rated for 10,000 uses", "verdict": "unsupported", "note": "no rating found in research"}], "revisions": {"problem": "Cheap widgets fail on the job. Ours are built from forged steel."}}`
	default:
		return nil, fmt.Errorf("unexpected system prompt: %s", system)
	}
	return &llm.Result{Text: text, Usage: llm.Usage{TotalTokens: 100}}, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, system, prompt string, tier llm.ModelTier) (*llm.Result, error) {
	return s.GenerateJSON(ctx, system, prompt, tier)
}

func (s *scriptedLLM) Close() error { return nil }

type fakeGatherer struct{}

func (fakeGatherer) Gather(_ context.Context, _, _ string, _ []string) ([]research.Source, error) {
	return []research.Source{{URL: "https://acme.example", Title: "Acme", Text: "widget maker"}}, nil
}

type fakeImages struct{ refuse bool }

func (f fakeImages) Generate(_ context.Context, _, _ string) (*imagegen.Image, error) {
	if f.refuse {
		return nil, &imagegen.Refusal{Reason: "policy"}
	}
	return &imagegen.Image{Data: []byte{0x89, 0x50}, MIMEType: "image/png"}, nil
}

func newRunner(st store.Store, client llm.Client) (*Runner, *job.Service) {
	jobs := job.NewService(st)
	return NewRunner(Deps{
		Jobs:     jobs,
		Store:    st,
		LLM:      client,
		Images:   fakeImages{},
		Research: fakeGatherer{},
		Logger:   zap.NewNop(),
	}), jobs
}

func jobInputs() map[string]string {
	return map[string]string{
		InputBusinessName: "Acme Widgets",
		InputIndustry:     "plumbing supplies",
		InputGoal:         "collect quote requests",
		InputCompetitors:  "RivalCo",
	}
}

func TestRunFullPipeline(t *testing.T) {
	st := store.NewMemory()
	runner, jobs := newRunner(st, &scriptedLLM{})

	var progressCalls int
	runner.SetProgress(func(*types.Job) { progressCalls++ })

	created, err := jobs.Create(context.Background(), "client-1", "sales_page", jobInputs())
	require.NoError(t, err)

	final, err := runner.Run(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, len(types.StepSequence), progressCalls)
	assert.Equal(t, types.JobComplete, final.Status)
	assert.Equal(t, types.StepComplete, final.CurrentStep)
	assert.Len(t, final.StepOutputs, len(types.StepSequence))
	assert.Equal(t, 600, final.TokensUsed, "six model calls at 100 tokens; assembly is free")
	require.NotNil(t, final.CompletedAt)

	// The design prompt asks for layout_notes as an array; the recorded
	// output must decode it as one.
	dout, err := types.DecodeStepOutput(types.StepDesign, final.StepOutputs[types.StepDesign])
	require.NoError(t, err)
	assert.Equal(t, []string{"single column"}, dout.(*types.DesignOutput).LayoutNotes)

	// The assembly step produced a published document under a claimed slug.
	out, err := types.DecodeStepOutput(types.StepAssembly, final.StepOutputs[types.StepAssembly])
	require.NoError(t, err)
	assembly := out.(*types.AssemblyOutput)
	assert.Equal(t, "acme-widgets-sales-page", assembly.Slug)

	rec, err := st.Get(context.Background(), store.CollectionDocuments, assembly.DocumentID.String())
	require.NoError(t, err)
	var doc types.Document
	require.NoError(t, store.Decode(rec, &doc))
	assert.Equal(t, types.DocumentPublished, doc.Status)
	assert.Contains(t, doc.HTML, "<!DOCTYPE html>")
	assert.Contains(t, doc.HTML, "Widgets that never quit")
	assert.Contains(t, doc.HTML, "forged steel.", "fact-check revision must replace the original body")
	assert.NotContains(t, doc.HTML, "10,000 uses")
	assert.Contains(t, doc.HTML, "data:image/png;base64,")

	_, err = st.Get(context.Background(), store.CollectionSlugs, assembly.Slug)
	require.NoError(t, err)
}

func TestRunStepFailureMarksJobFailed(t *testing.T) {
	st := store.NewMemory()
	runner, jobs := newRunner(st, &scriptedLLM{failOn: types.StepCopy})

	created, err := jobs.Create(context.Background(), "client-1", "sales_page", jobInputs())
	require.NoError(t, err)

	final, err := runner.Run(context.Background(), created.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step copy")

	assert.Equal(t, types.JobFailed, final.Status)
	assert.Contains(t, final.Error, "copy")
	assert.Equal(t, types.StepCopy, final.CurrentStep, "failed step stays current for resume")

	// Earlier committed steps survive the failure.
	assert.NotEmpty(t, final.StepOutputs[types.StepResearch])
	assert.NotEmpty(t, final.StepOutputs[types.StepStrategy])
	assert.Empty(t, final.StepOutputs[types.StepCopy])
}

func TestRunStepOnTerminalJobRejected(t *testing.T) {
	st := store.NewMemory()
	runner, jobs := newRunner(st, &scriptedLLM{})

	created, err := jobs.Create(context.Background(), "", "sales_page", jobInputs())
	require.NoError(t, err)
	_, err = jobs.Fail(context.Background(), created.ID, "operator cancelled")
	require.NoError(t, err)

	failed, err := jobs.Get(context.Background(), created.ID)
	require.NoError(t, err)
	_, err = runner.RunStep(context.Background(), failed)
	var terminal *job.TerminalError
	require.ErrorAs(t, err, &terminal)
}

func TestHeroImageRefusalRecorded(t *testing.T) {
	st := store.NewMemory()
	jobs := job.NewService(st)
	runner := NewRunner(Deps{
		Jobs:     jobs,
		Store:    st,
		LLM:      &scriptedLLM{},
		Images:   fakeImages{refuse: true},
		Research: fakeGatherer{},
		Logger:   zap.NewNop(),
	})

	created, err := jobs.Create(context.Background(), "", "sales_page", jobInputs())
	require.NoError(t, err)

	final, err := runner.Run(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobComplete, final.Status)

	out, err := types.DecodeStepOutput(types.StepDesign, final.StepOutputs[types.StepDesign])
	require.NoError(t, err)
	design := out.(*types.DesignOutput)
	require.NotNil(t, design.HeroImage)
	assert.True(t, design.HeroImage.Refused)
	assert.Equal(t, "policy", design.HeroImage.RefusalReason)

	// The refused hero never reaches the markup.
	outA, err := types.DecodeStepOutput(types.StepAssembly, final.StepOutputs[types.StepAssembly])
	require.NoError(t, err)
	rec, err := st.Get(context.Background(), store.CollectionDocuments, outA.(*types.AssemblyOutput).DocumentID.String())
	require.NoError(t, err)
	var doc types.Document
	require.NoError(t, store.Decode(rec, &doc))
	assert.NotContains(t, doc.HTML, "data:image")
}

func TestSlugCollisionGetsSuffix(t *testing.T) {
	st := store.NewMemory()
	runner, jobs := newRunner(st, &scriptedLLM{})

	first, err := jobs.Create(context.Background(), "", "sales_page", jobInputs())
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), first.ID)
	require.NoError(t, err)

	second, err := jobs.Create(context.Background(), "", "sales_page", jobInputs())
	require.NoError(t, err)
	final, err := runner.Run(context.Background(), second.ID)
	require.NoError(t, err)

	out, err := types.DecodeStepOutput(types.StepAssembly, final.StepOutputs[types.StepAssembly])
	require.NoError(t, err)
	assert.Equal(t, "acme-widgets-sales-page-2", out.(*types.AssemblyOutput).Slug)
}
