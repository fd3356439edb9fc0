package patch

import (
	"fmt"
	"regexp"
	"strings"
)

// heuristicResult is the outcome of one deterministic matcher.
type heuristicResult struct {
	Document    string
	Description string
	Changes     int
}

// heuristic recognizes one instruction shape. Matched reports whether the
// instruction fit the pattern; a matched heuristic that changes nothing does
// not count and control falls through to the next tier.
type heuristic struct {
	name  string
	apply func(document, instruction string) (*heuristicResult, bool)
}

// heuristics run in priority order; the first one that both matches the
// instruction and changes the document wins.
var heuristics = []heuristic{
	{name: "cta_link", apply: applyCTALink},
	{name: "quoted_replace", apply: applyQuotedReplace},
	{name: "title_change", apply: applyTitleChange},
}

func runHeuristics(document, instruction string) (*heuristicResult, bool) {
	for _, h := range heuristics {
		result, matched := h.apply(document, instruction)
		if matched && result.Changes > 0 {
			return result, true
		}
	}
	return nil, false
}

var ctaInstructionRe = regexp.MustCompile(`(?i)(?:change|update|set|point|switch)\s+(?:all\s+)?(?:the\s+)?(?:cta|call[\s-]?to[\s-]?action)s?(?:\s+(?:links?|buttons?))?\s+to\s+(https?://\S+)`)

// Anchor tags styled as buttons, in either attribute order.
var (
	ctaHrefFirstRe  = regexp.MustCompile(`(<a\b[^>]*\bhref=")([^"]*)("[^>]*\bclass="[^"]*(?:btn|button|cta)[^"]*"[^>]*>)`)
	ctaClassFirstRe = regexp.MustCompile(`(<a\b[^>]*\bclass="[^"]*(?:btn|button|cta)[^"]*"[^>]*\bhref=")([^"]*)("[^>]*>)`)
)

func applyCTALink(document, instruction string) (*heuristicResult, bool) {
	m := ctaInstructionRe.FindStringSubmatch(instruction)
	if m == nil {
		return nil, false
	}
	target := strings.TrimRight(m[1], `.,;)"'`)

	changes := 0
	rewrite := func(re *regexp.Regexp, doc string) string {
		return re.ReplaceAllStringFunc(doc, func(match string) string {
			parts := re.FindStringSubmatch(match)
			if parts[2] == target {
				return match
			}
			changes++
			return parts[1] + target + parts[3]
		})
	}
	updated := rewrite(ctaHrefFirstRe, document)
	updated = rewrite(ctaClassFirstRe, updated)

	return &heuristicResult{
		Document:    updated,
		Description: fmt.Sprintf("Updated %d CTA link(s) to %s", changes, target),
		Changes:     changes,
	}, true
}

var quotedReplaceRe = regexp.MustCompile(`(?i)(?:replace|change|swap)\s+"([^"]+)"\s+(?:with|to|for)\s+"([^"]*)"`)

func applyQuotedReplace(document, instruction string) (*heuristicResult, bool) {
	m := quotedReplaceRe.FindStringSubmatch(instruction)
	if m == nil {
		return nil, false
	}
	old, replacement := m[1], m[2]

	changes := strings.Count(document, old)
	return &heuristicResult{
		Document:    strings.ReplaceAll(document, old, replacement),
		Description: fmt.Sprintf("Replaced %d occurrence(s) of %q with %q", changes, old, replacement),
		Changes:     changes,
	}, true
}

var titleInstructionRe = regexp.MustCompile(`(?i)(?:change|set|update)\s+(?:the\s+)?(?:page\s+)?title\s+to\s+"?([^"]+?)"?\s*$`)

var (
	titleTagRe = regexp.MustCompile(`(?s)(<title[^>]*>)(.*?)(</title>)`)
	h1TagRe    = regexp.MustCompile(`(?s)(<h1[^>]*>)(.*?)(</h1>)`)
)

func applyTitleChange(document, instruction string) (*heuristicResult, bool) {
	m := titleInstructionRe.FindStringSubmatch(instruction)
	if m == nil {
		return nil, false
	}
	title := strings.TrimSpace(m[1])

	changes := 0
	replaceFirst := func(re *regexp.Regexp, doc string) string {
		loc := re.FindStringSubmatchIndex(doc)
		if loc == nil {
			return doc
		}
		current := doc[loc[4]:loc[5]]
		if strings.TrimSpace(current) == title {
			return doc
		}
		changes++
		return doc[:loc[4]] + title + doc[loc[5]:]
	}
	updated := replaceFirst(titleTagRe, document)
	updated = replaceFirst(h1TagRe, updated)

	return &heuristicResult{
		Document:    updated,
		Description: fmt.Sprintf("Changed the title to %q", title),
		Changes:     changes,
	}, true
}
