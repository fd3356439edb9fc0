// Package patch applies natural-language change requests to HTML documents
// using a tiered strategy: free deterministic edits first, then AI-proposed
// search/replace pairs, then whole-document replacement.
package patch

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/llm"
	"github.com/mateo/pagesmith/internal/prompts"
)

//go:embed patch_schema.json
var patchSchema string

// Context window limits for the AI request. The stored document is never
// truncated, only the copy sent to the model.
const (
	maxContextChars  = 24000
	truncateHeadSize = 16000
	truncateTailSize = 8000
)

// Result is the outcome of a change request.
type Result struct {
	Document    string
	Description string
	Applied     bool
	Tier        int
	Changes     int
	Usage       llm.Usage
}

// TierError reports which tier a failed change request exhausted on.
type TierError struct {
	Tier    int
	Message string
	Cause   error
}

func (e *TierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("patch tier %d failed: %s: %v", e.Tier, e.Message, e.Cause)
	}
	return fmt.Sprintf("patch tier %d failed: %s", e.Tier, e.Message)
}

func (e *TierError) Unwrap() error { return e.Cause }

// Engine applies change requests to documents.
type Engine struct {
	llm    llm.Client
	logger *zap.Logger
}

// NewEngine creates a patch engine.
func NewEngine(client llm.Client, logger *zap.Logger) *Engine {
	return &Engine{llm: client, logger: logger}
}

type patchPair struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

type patchResponse struct {
	Summary string      `json:"summary"`
	Patches []patchPair `json:"patches"`
}

// ApplyChange mutates document according to instruction. The returned
// document is always a complete standalone page; a request that cannot be
// satisfied on any tier returns a *TierError asking the editor to rephrase.
func (e *Engine) ApplyChange(ctx context.Context, document, instruction string) (*Result, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, fmt.Errorf("instruction is required")
	}

	// Tier 1: deterministic heuristics, zero external cost.
	if hr, ok := runHeuristics(document, instruction); ok && hasRootMarker(hr.Document) {
		e.logger.Info("applied heuristic edit", zap.Int("changes", hr.Changes))
		return &Result{
			Document:    hr.Document,
			Description: hr.Description,
			Applied:     true,
			Tier:        1,
			Changes:     hr.Changes,
		}, nil
	}

	// Tier 2: ask the model for search/replace pairs.
	system := prompts.MustGet("patch.json", "patch_system")
	user := prompts.Format(prompts.MustGet("patch.json", "patch_user"), map[string]string{
		"Instruction": instruction,
		"Document":    truncateForContext(document),
	})
	resp, err := e.llm.Generate(ctx, system, user, llm.TierFast)
	if err != nil {
		return nil, &TierError{Tier: 2, Message: "text service unavailable", Cause: err}
	}

	cleaned := llm.CleanJSONBlock(resp.Text)
	parsed, perr := parsePatchResponse(cleaned)
	if perr == nil {
		result := e.applyPairs(document, parsed)
		result.Usage = resp.Usage
		if result.Applied && !hasRootMarker(result.Document) {
			return nil, &TierError{Tier: 2, Message: "edit would have produced an incomplete document, please rephrase"}
		}
		return result, nil
	}
	e.logger.Warn("patch response not parseable, trying full replacement", zap.Error(perr))

	// Tier 3: accept the raw response wholesale if it is itself a document.
	if raw := stripFences(resp.Text); hasRootMarker(raw) {
		return &Result{
			Document:    raw,
			Description: "Replaced the document with a revised version",
			Applied:     true,
			Tier:        3,
			Changes:     1,
			Usage:       resp.Usage,
		}, nil
	}

	return nil, &TierError{Tier: 3, Message: "could not interpret the change request, please rephrase it more specifically"}
}

// applyPairs applies search/replace pairs in order against the progressively
// mutated document. A pair whose search string is absent is skipped.
func (e *Engine) applyPairs(document string, parsed *patchResponse) *Result {
	doc := document
	applied := 0
	for _, p := range parsed.Patches {
		if !strings.Contains(doc, p.Search) {
			e.logger.Warn("patch search string not found, skipping", zap.String("search", snippet(p.Search)))
			continue
		}
		doc = strings.Replace(doc, p.Search, p.Replace, 1)
		applied++
	}

	description := parsed.Summary
	if applied == 0 {
		description = "None of the proposed edits matched the document"
	}
	return &Result{
		Document:    doc,
		Description: description,
		Applied:     applied > 0,
		Tier:        2,
		Changes:     applied,
	}
}

func parsePatchResponse(cleaned string) (*patchResponse, error) {
	schemaLoader := gojsonschema.NewStringLoader(patchSchema)
	docLoader := gojsonschema.NewStringLoader(cleaned)
	validation, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if !validation.Valid() {
		var msgs []string
		for _, desc := range validation.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("response does not match patch contract: %s", strings.Join(msgs, "; "))
	}

	var parsed patchResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode patch response: %w", err)
	}
	return &parsed, nil
}

// hasRootMarker reports whether s looks like a complete standalone document.
func hasRootMarker(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html")
}

// truncateForContext keeps the head and tail of an oversized document so the
// model sees both the metadata and the closing structure.
func truncateForContext(document string) string {
	if len(document) <= maxContextChars {
		return document
	}
	return document[:truncateHeadSize] +
		"\n<!-- middle of document omitted -->\n" +
		document[len(document)-truncateTailSize:]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func snippet(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
