package patch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/llm"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Generate(_ context.Context, _, _ string, _ llm.ModelTier) (*llm.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Text: f.response, Usage: llm.Usage{TotalTokens: 50}}, nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, prompt string, tier llm.ModelTier) (*llm.Result, error) {
	return f.Generate(ctx, system, prompt, tier)
}

func (f *fakeLLM) Close() error { return nil }

const sampleDoc = `<!DOCTYPE html>
<html>
<head><title>Acme Widgets</title></head>
<body>
<h1>Acme Widgets</h1>
<p>"Welcome" to the best widget shop.</p>
<a class="btn cta" href="http://old.example">Buy now</a>
<a href="http://old.example" class="button">Order today</a>
<a href="http://other.example">About us</a>
</body>
</html>`

func newEngine(client llm.Client) *Engine {
	return NewEngine(client, zap.NewNop())
}

func TestCTALinkHeuristic(t *testing.T) {
	fake := &fakeLLM{}
	engine := newEngine(fake)

	result, err := engine.ApplyChange(context.Background(), sampleDoc, "change all CTA links to http://new.example")
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, 1, result.Tier)
	assert.Equal(t, 2, result.Changes)
	assert.Contains(t, result.Document, `href="http://new.example"`)
	assert.NotContains(t, result.Document, "http://old.example")
	assert.Contains(t, result.Document, `href="http://other.example"`, "plain links must be untouched")
	assert.Equal(t, 0, fake.calls, "heuristic edits must not call the model")

	// Re-running against the updated document reports zero substitutions
	// needed and falls through without corrupting the href.
	second, err := engine.ApplyChange(context.Background(), result.Document, "change all CTA links to http://new.example")
	if err == nil {
		assert.Contains(t, second.Document, `href="http://new.example"`)
	}
	assert.Equal(t, strings.Count(result.Document, "http://new.example"), 2)
}

func TestQuotedReplaceHeuristic(t *testing.T) {
	engine := newEngine(&fakeLLM{})

	result, err := engine.ApplyChange(context.Background(), sampleDoc, `replace "Welcome" with "Hello"`)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, 1, result.Tier)
	assert.Contains(t, result.Document, `"Hello" to the best widget shop`)
	assert.NotContains(t, result.Document, "Welcome")
}

func TestTitleChangeHeuristic(t *testing.T) {
	engine := newEngine(&fakeLLM{})

	result, err := engine.ApplyChange(context.Background(), sampleDoc, `change the title to "Widget World"`)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, 1, result.Tier)
	assert.Contains(t, result.Document, "<title>Widget World</title>")
	assert.Contains(t, result.Document, "<h1>Widget World</h1>")
}

func TestTier2PartialApplication(t *testing.T) {
	fake := &fakeLLM{response: `{
		"summary": "Updated shop copy",
		"patches": [
			{"search": "best widget shop", "replace": "finest widget shop"},
			{"search": "this text does not exist", "replace": "whatever"},
			{"search": "Buy now", "replace": "Shop now"}
		]
	}`}
	engine := newEngine(fake)

	result, err := engine.ApplyChange(context.Background(), sampleDoc, "make the copy more upmarket")
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, 2, result.Tier)
	assert.Equal(t, 2, result.Changes)
	assert.Contains(t, result.Document, "finest widget shop")
	assert.Contains(t, result.Document, "Shop now")
	assert.Equal(t, "Updated shop copy", result.Description)
	assert.Equal(t, 50, result.Usage.TotalTokens, "tier 2 is billed")
}

func TestTier2NothingApplies(t *testing.T) {
	fake := &fakeLLM{response: `{"summary": "no-op", "patches": [{"search": "absent", "replace": "x"}]}`}
	engine := newEngine(fake)

	result, err := engine.ApplyChange(context.Background(), sampleDoc, "do something vague")
	require.NoError(t, err)

	assert.False(t, result.Applied)
	assert.Equal(t, 0, result.Changes)
	assert.Equal(t, sampleDoc, result.Document, "document unchanged on no-op")
	assert.Equal(t, 50, result.Usage.TotalTokens, "billed even when zero pairs apply")
}

func TestTier3FullReplacement(t *testing.T) {
	replacement := "<!DOCTYPE html>\n<html><body><h1>Brand new page</h1></body></html>"
	fake := &fakeLLM{response: "Here you go:\n```html\n" + replacement + "\n```"}
	engine := newEngine(fake)

	result, err := engine.ApplyChange(context.Background(), sampleDoc, "rewrite the page from scratch")
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, 3, result.Tier)
	assert.Contains(t, result.Document, "Brand new page")
}

func TestAllTiersExhausted(t *testing.T) {
	fake := &fakeLLM{response: "I'm not sure what you mean by that."}
	engine := newEngine(fake)

	_, err := engine.ApplyChange(context.Background(), sampleDoc, "do the thing")
	require.Error(t, err)

	var tierErr *TierError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, 3, tierErr.Tier)
	assert.Contains(t, tierErr.Message, "rephrase")
}

func TestLLMFailureSurfacesTier(t *testing.T) {
	fake := &fakeLLM{err: fmt.Errorf("rate limited")}
	engine := newEngine(fake)

	_, err := engine.ApplyChange(context.Background(), sampleDoc, "make it blue")
	require.Error(t, err)

	var tierErr *TierError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, 2, tierErr.Tier)
	assert.True(t, errors.Is(err, fake.err) || strings.Contains(err.Error(), "rate limited"))
}

func TestEmptyInstructionRejected(t *testing.T) {
	engine := newEngine(&fakeLLM{})
	_, err := engine.ApplyChange(context.Background(), sampleDoc, "   ")
	require.Error(t, err)
}

func TestTruncateForContext(t *testing.T) {
	head := strings.Repeat("a", truncateHeadSize)
	middle := strings.Repeat("m", maxContextChars)
	tail := strings.Repeat("z", truncateTailSize)
	doc := head + middle + tail

	truncated := truncateForContext(doc)
	assert.Less(t, len(truncated), len(doc))
	assert.True(t, strings.HasPrefix(truncated, "a"))
	assert.True(t, strings.HasSuffix(truncated, "z"))
	assert.Contains(t, truncated, "omitted")

	short := "<html></html>"
	assert.Equal(t, short, truncateForContext(short))
}

func TestHasRootMarker(t *testing.T) {
	assert.True(t, hasRootMarker("<!DOCTYPE html><html></html>"))
	assert.True(t, hasRootMarker("<HTML lang=\"en\">"))
	assert.False(t, hasRootMarker("<div>fragment</div>"))
}
