package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/imagegen"
	"github.com/mateo/pagesmith/internal/llm"
	"github.com/mateo/pagesmith/internal/prompts"
	"github.com/mateo/pagesmith/internal/research"
	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

// generateJSON runs one prompt pair and decodes the JSON response into out.
// Returns the token cost.
func (r *Runner) generateJSON(ctx context.Context, systemKey, userKey string, data map[string]string, tier llm.ModelTier, out any) (int, error) {
	system := prompts.MustGet("pipeline.json", systemKey)
	user := prompts.Format(prompts.MustGet("pipeline.json", userKey), data)

	resp, err := r.deps.LLM.GenerateJSON(ctx, system, user, tier)
	if err != nil {
		return 0, err
	}
	cleaned := llm.CleanJSONBlock(resp.Text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return resp.Usage.TotalTokens, fmt.Errorf("malformed response: %w", err)
	}
	return resp.Usage.TotalTokens, nil
}

func runResearch(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	business := j.Inputs[InputBusinessName]
	industry := j.Inputs[InputIndustry]
	var competitors []string
	if raw := strings.TrimSpace(j.Inputs[InputCompetitors]); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				competitors = append(competitors, c)
			}
		}
	}

	var sources []research.Source
	if r.deps.Research != nil {
		var err error
		sources, err = r.deps.Research.Gather(ctx, business, industry, competitors)
		if err != nil {
			return nil, 0, fmt.Errorf("research gathering failed: %w", err)
		}
	}
	digest := research.Digest(sources)
	if digest == "" {
		digest = "(no web material available; reason from the inputs alone)"
	}

	var out types.ResearchOutput
	cost, err := r.generateJSON(ctx, "research_system", "research_user", map[string]string{
		"BusinessName": business,
		"Industry":     industry,
		"Goal":         j.Inputs[InputGoal],
		"Sources":      digest,
	}, llm.TierQuality, &out)
	if err != nil {
		return nil, 0, err
	}
	for _, src := range sources {
		out.Citations = append(out.Citations, types.Citation{Title: src.Title, URL: src.URL})
	}
	return &out, cost, nil
}

func runBrand(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	res, err := decodeOutput[types.ResearchOutput](j, types.StepResearch)
	if err != nil {
		return nil, 0, err
	}

	var out types.BrandOutput
	cost, err := r.generateJSON(ctx, "brand_system", "brand_user", map[string]string{
		"BusinessName":    j.Inputs[InputBusinessName],
		"Industry":        j.Inputs[InputIndustry],
		"ResearchSummary": res.Summary,
	}, llm.TierFast, &out)
	if err != nil {
		return nil, 0, err
	}
	if len(out.Palette) == 0 {
		return nil, cost, fmt.Errorf("brand response missing palette")
	}
	return &out, cost, nil
}

func runStrategy(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	res, err := decodeOutput[types.ResearchOutput](j, types.StepResearch)
	if err != nil {
		return nil, 0, err
	}
	brand, err := decodeOutput[types.BrandOutput](j, types.StepBrand)
	if err != nil {
		return nil, 0, err
	}

	var out types.StrategyOutput
	cost, err := r.generateJSON(ctx, "strategy_system", "strategy_user", map[string]string{
		"BusinessName": j.Inputs[InputBusinessName],
		"PageType":     j.PageType,
		"Goal":         j.Inputs[InputGoal],
		"Audience":     res.Audience,
		"Angles":       strings.Join(res.Angles, "\n"),
		"Tone":         brand.Tone,
	}, llm.TierQuality, &out)
	if err != nil {
		return nil, 0, err
	}
	if out.Headline == "" || len(out.SectionPlan) == 0 {
		return nil, cost, fmt.Errorf("strategy response missing headline or section plan")
	}
	return &out, cost, nil
}

func runCopy(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	res, err := decodeOutput[types.ResearchOutput](j, types.StepResearch)
	if err != nil {
		return nil, 0, err
	}
	brand, err := decodeOutput[types.BrandOutput](j, types.StepBrand)
	if err != nil {
		return nil, 0, err
	}
	strategy, err := decodeOutput[types.StrategyOutput](j, types.StepStrategy)
	if err != nil {
		return nil, 0, err
	}

	var out types.CopyOutput
	cost, err := r.generateJSON(ctx, "copy_system", "copy_user", map[string]string{
		"BusinessName":    j.Inputs[InputBusinessName],
		"Headline":        strategy.Headline,
		"Subheadline":     strategy.Subheadline,
		"Offer":           strategy.Offer,
		"Hook":            strategy.Hook,
		"Tone":            brand.Tone,
		"SectionPlan":     strings.Join(strategy.SectionPlan, ", "),
		"ResearchSummary": res.Summary,
	}, llm.TierQuality, &out)
	if err != nil {
		return nil, 0, err
	}
	if len(out.Sections) == 0 {
		return nil, cost, fmt.Errorf("copy response has no sections")
	}
	return &out, cost, nil
}

func runDesign(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	brand, err := decodeOutput[types.BrandOutput](j, types.StepBrand)
	if err != nil {
		return nil, 0, err
	}
	strategy, err := decodeOutput[types.StrategyOutput](j, types.StepStrategy)
	if err != nil {
		return nil, 0, err
	}

	var out types.DesignOutput
	cost, err := r.generateJSON(ctx, "design_system", "design_user", map[string]string{
		"Palette":     strings.Join(brand.Palette, ", "),
		"HeadingFont": brand.HeadingFont,
		"BodyFont":    brand.BodyFont,
		"Personality": strings.Join(brand.Personality, ", "),
		"SectionPlan": strings.Join(strategy.SectionPlan, ", "),
	}, llm.TierQuality, &out)
	if err != nil {
		return nil, 0, err
	}
	if out.CSS == "" {
		return nil, cost, fmt.Errorf("design response missing stylesheet")
	}

	if r.deps.Images != nil {
		out.HeroImage = r.generateHero(ctx, j, brand, strategy)
	}
	return &out, cost, nil
}

// generateHero asks the image service for a hero asset. A refusal or failure
// is recorded on the output, not treated as a step failure.
func (r *Runner) generateHero(ctx context.Context, j *types.Job, brand *types.BrandOutput, strategy *types.StrategyOutput) *types.HeroImage {
	prompt := prompts.Format(prompts.MustGet("pipeline.json", "image_prompt"), map[string]string{
		"Industry":    j.Inputs[InputIndustry],
		"Hook":        strategy.Hook,
		"Personality": strings.Join(brand.Personality, ", "),
	})

	img, err := r.deps.Images.Generate(ctx, prompt, "16:9")
	if err != nil {
		var refusal *imagegen.Refusal
		if errors.As(err, &refusal) {
			return &types.HeroImage{Refused: true, RefusalReason: refusal.Reason}
		}
		r.deps.Logger.Warn("hero image generation failed", zap.String("job_id", j.ID.String()), zap.Error(err))
		return nil
	}
	return &types.HeroImage{Data: img.Data, MIMEType: img.MIMEType}
}

func runFactCheck(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	res, err := decodeOutput[types.ResearchOutput](j, types.StepResearch)
	if err != nil {
		return nil, 0, err
	}
	pageCopy, err := decodeOutput[types.CopyOutput](j, types.StepCopy)
	if err != nil {
		return nil, 0, err
	}

	copyJSON, err := json.Marshal(pageCopy.Sections)
	if err != nil {
		return nil, 0, err
	}

	var out types.FactCheckOutput
	cost, err := r.generateJSON(ctx, "factcheck_system", "factcheck_user", map[string]string{
		"ResearchSummary": res.Summary,
		"Copy":            string(copyJSON),
	}, llm.TierQuality, &out)
	if err != nil {
		return nil, 0, err
	}
	return &out, cost, nil
}

func runAssembly(ctx context.Context, r *Runner, j *types.Job) (any, int, error) {
	brand, err := decodeOutput[types.BrandOutput](j, types.StepBrand)
	if err != nil {
		return nil, 0, err
	}
	strategy, err := decodeOutput[types.StrategyOutput](j, types.StepStrategy)
	if err != nil {
		return nil, 0, err
	}
	pageCopy, err := decodeOutput[types.CopyOutput](j, types.StepCopy)
	if err != nil {
		return nil, 0, err
	}
	design, err := decodeOutput[types.DesignOutput](j, types.StepDesign)
	if err != nil {
		return nil, 0, err
	}
	factCheck, err := decodeOutput[types.FactCheckOutput](j, types.StepFactCheck)
	if err != nil {
		return nil, 0, err
	}

	// Fact-check revisions replace section bodies before rendering.
	sections := make([]types.CopySection, len(pageCopy.Sections))
	copy(sections, pageCopy.Sections)
	for i, section := range sections {
		if revised, ok := factCheck.Revisions[section.ID]; ok && revised != "" {
			sections[i].Body = revised
		}
	}

	name := j.Inputs[InputPageName]
	if name == "" {
		name = fmt.Sprintf("%s %s", j.Inputs[InputBusinessName], j.PageType)
	}

	docID := uuid.New()
	slug, err := r.claimSlug(ctx, types.Slugify(name), docID)
	if err != nil {
		return nil, 0, err
	}

	html := Assemble(name, brand, strategy, sections, design)
	now := time.Now().UTC()
	doc := &types.Document{
		ID:        docID,
		Name:      name,
		Slug:      slug,
		HTML:      html,
		ClientID:  j.ClientID,
		Status:    types.DocumentPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.deps.Store.Put(ctx, store.CollectionDocuments, docID.String(), doc, &store.Precondition{Absent: true}); err != nil {
		return nil, 0, fmt.Errorf("failed to persist document: %w", err)
	}

	return &types.AssemblyOutput{DocumentID: docID, Slug: slug}, 0, nil
}
