// Package fetch provides URL fetching and HTML-to-text processing for the
// research crawler.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 20 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; Pagesmith/1.0)"

// Result holds the raw and processed content from a URL fetch.
type Result struct {
	URL        string
	HTML       string
	Text       string
	Title      string
	StatusCode int
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Page retrieves a URL and extracts its title and main text.
func Page(ctx context.Context, urlStr string) (*Result, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	client := &http.Client{Timeout: DefaultTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to read response body", Cause: err}
	}

	result := &Result{URL: urlStr, HTML: string(body), StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return result, &Error{URL: urlStr, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	result.Title, result.Text, err = ExtractMainText(result.HTML)
	if err != nil {
		return result, &Error{URL: urlStr, Message: "failed to extract text", Cause: err}
	}
	return result, nil
}

// landingSelectors are tried in order to locate the meaningful content of a
// marketing page before falling back to the whole body.
var landingSelectors = []string{
	"main",
	"article",
	".hero",
	"#hero",
	".landing",
	".content",
	"#content",
}

// ExtractMainText parses HTML and returns the page title and its main body
// text with navigation, scripts and other noise removed.
func ExtractMainText(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("nav, footer, header, script, style, noscript, .ad, .ads, .cookie-banner, .popup, .modal").Remove()

	var main *goquery.Selection
	for _, selector := range landingSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			main = sel.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	return title, cleanWhitespace(main.Text()), nil
}

// cleanWhitespace collapses blank lines and trims each remaining one.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
