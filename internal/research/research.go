// Package research gathers web material about a business and its market for
// the research step.
package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/mateo/pagesmith/internal/fetch"
)

// maxSourceText caps how much extracted text we keep per source before it is
// handed to the model.
const maxSourceText = 6000

// resultsPerQuery is how many search hits we take from each query.
const resultsPerQuery = 3

// SearchResult is a single web search hit.
type SearchResult struct {
	Title string
	Link  string
}

// Searcher abstracts the web search backend.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]SearchResult, error)
}

// GoogleSearcher implements Searcher over the Google Custom Search API.
type GoogleSearcher struct {
	svc *customsearch.Service
	cx  string
}

// NewGoogleSearcher creates a search client.
func NewGoogleSearcher(ctx context.Context, apiKey, cx string) (*GoogleSearcher, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &GoogleSearcher{svc: svc, cx: cx}, nil
}

func (g *GoogleSearcher) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	resp, err := g.svc.Cse.List().Context(ctx).Cx(g.cx).Q(query).Num(int64(n)).Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, SearchResult{Title: item.Title, Link: item.Link})
	}
	return results, nil
}

// Source is a fetched and processed research page.
type Source struct {
	URL   string
	Title string
	Text  string
}

// Service runs search queries and fetches the resulting pages.
type Service struct {
	searcher    Searcher
	logger      *zap.Logger
	concurrency int
	fetchPage   func(ctx context.Context, url string) (*fetch.Result, error)
}

// NewService creates a research service.
func NewService(searcher Searcher, logger *zap.Logger) *Service {
	return &Service{
		searcher:    searcher,
		logger:      logger,
		concurrency: 4,
		fetchPage:   fetch.Page,
	}
}

// Queries builds the search queries for a business.
func Queries(businessName, industry string, competitors []string) []string {
	queries := []string{
		fmt.Sprintf("%s official website", businessName),
		fmt.Sprintf("%s customer reviews", businessName),
		fmt.Sprintf("%s industry target audience", industry),
	}
	for _, c := range competitors {
		queries = append(queries, fmt.Sprintf("%s landing page", c))
	}
	return queries
}

// Gather searches for a business and fetches the top result pages. Failed
// queries and unfetchable pages are skipped, not fatal; an empty result set
// only occurs when every source failed.
func (s *Service) Gather(ctx context.Context, businessName, industry string, competitors []string) ([]Source, error) {
	var links []SearchResult
	seen := make(map[string]bool)
	for _, q := range Queries(businessName, industry, competitors) {
		results, err := s.searcher.Search(ctx, q, resultsPerQuery)
		if err != nil {
			s.logger.Warn("search query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		for _, r := range results {
			if !seen[r.Link] {
				links = append(links, r)
				seen[r.Link] = true
			}
		}
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("no search results for %q", businessName)
	}

	var mu sync.Mutex
	var sources []Source
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, link := range links {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, 30*time.Second)
			defer cancel()

			result, err := s.fetchPage(fctx, link.Link)
			if err != nil {
				s.logger.Warn("failed to fetch source", zap.String("url", link.Link), zap.Error(err))
				return nil
			}
			text := result.Text
			if fetch.NeedsBrowser(text) {
				if html, berr := fetch.WithBrowser(fctx, link.Link, 25*time.Second); berr == nil {
					if _, rendered, eerr := fetch.ExtractMainText(html); eerr == nil {
						text = rendered
					}
				}
			}
			if strings.TrimSpace(text) == "" {
				return nil
			}
			if len(text) > maxSourceText {
				text = text[:maxSourceText]
			}

			title := result.Title
			if title == "" {
				title = link.Title
			}
			mu.Lock()
			sources = append(sources, Source{URL: link.Link, Title: title, Text: text})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("all research sources failed to fetch")
	}
	return sources, nil
}

// Digest formats sources into a prompt-ready block.
func Digest(sources []Source) string {
	var sb strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&sb, "--- Source %d: %s (%s) ---\n%s\n\n", i+1, src.Title, src.URL, src.Text)
	}
	return sb.String()
}
