package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Each pipeline step records its own concrete output type. The orchestrator
// treats outputs as opaque; later steps decode them by step name through
// DecodeStepOutput.

// Citation references a page consulted during research.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResearchOutput is the market/competitor digest from the research step.
type ResearchOutput struct {
	Summary   string     `json:"summary"`
	Audience  string     `json:"audience,omitempty"`
	Angles    []string   `json:"angles,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// BrandOutput captures the visual and verbal identity for the page.
type BrandOutput struct {
	Palette     []string `json:"palette"`
	HeadingFont string   `json:"heading_font"`
	BodyFont    string   `json:"body_font"`
	Tone        string   `json:"tone"`
	Personality []string `json:"personality,omitempty"`
}

// StrategyOutput is the persuasion plan for the page.
type StrategyOutput struct {
	Headline    string   `json:"headline"`
	Subheadline string   `json:"subheadline"`
	Offer       string   `json:"offer"`
	Hook        string   `json:"hook,omitempty"`
	SectionPlan []string `json:"section_plan"`
}

// CopySection is one named block of page copy.
type CopySection struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Body    string `json:"body"`
	CTA     string `json:"cta,omitempty"`
}

// CopyOutput is the full written copy for the page.
type CopyOutput struct {
	Sections []CopySection `json:"sections"`
}

// HeroImage is the generated hero asset, or a structured refusal when the
// image service declined the prompt.
type HeroImage struct {
	Data          []byte `json:"data,omitempty"`
	MIMEType      string `json:"mime_type,omitempty"`
	Refused       bool   `json:"refused,omitempty"`
	RefusalReason string `json:"refusal_reason,omitempty"`
}

// DesignOutput holds the page styling and hero asset.
type DesignOutput struct {
	CSS         string     `json:"css"`
	HeroImage   *HeroImage `json:"hero_image,omitempty"`
	LayoutNotes []string   `json:"layout_notes,omitempty"`
}

// FactCheckIssue flags one claim reviewed against the research corpus.
type FactCheckIssue struct {
	Claim   string `json:"claim"`
	Verdict string `json:"verdict"`
	Note    string `json:"note,omitempty"`
}

// FactCheckOutput is the claim review, with optional per-section rewrites
// keyed by section ID.
type FactCheckOutput struct {
	Issues    []FactCheckIssue  `json:"issues,omitempty"`
	Revisions map[string]string `json:"revisions,omitempty"`
}

// AssemblyOutput links the job to the document it produced.
type AssemblyOutput struct {
	DocumentID uuid.UUID `json:"document_id"`
	Slug       string    `json:"slug"`
}

// DecodeStepOutput decodes a step's raw output into its concrete type. The
// caller pattern-matches on the returned value; ad hoc field access is never
// done on the raw blob.
func DecodeStepOutput(step string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no output recorded for step %q", step)
	}

	var out any
	switch step {
	case StepResearch:
		out = &ResearchOutput{}
	case StepBrand:
		out = &BrandOutput{}
	case StepStrategy:
		out = &StrategyOutput{}
	case StepCopy:
		out = &CopyOutput{}
	case StepDesign:
		out = &DesignOutput{}
	case StepFactCheck:
		out = &FactCheckOutput{}
	case StepAssembly:
		out = &AssemblyOutput{}
	default:
		return nil, fmt.Errorf("unknown step %q", step)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", step, err)
	}
	return out, nil
}
