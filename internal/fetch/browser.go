package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// minContentLength is the minimum extracted text length to consider a plain
// HTTP fetch successful. Shorter content usually means a JS-rendered page.
const minContentLength = 400

// NeedsBrowser reports whether the extracted text is too short, indicating
// the page is likely a JavaScript-rendered SPA.
func NeedsBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < minContentLength
}

// WithBrowser renders a page in a headless browser and returns the rendered
// HTML. Requires Chrome/Chromium on the host.
func WithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	return html, nil
}
