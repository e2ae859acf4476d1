// Package chromedp_extractor discovers businesses by rendering a maps search
// in headless Chrome and parsing the result feed.
package chromedp_extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

const (
	searchURL   = "https://www.google.com/maps/search/"
	scrollPause = 1500 * time.Millisecond
	// maxIdleScrolls stops scrolling once the feed stops growing.
	maxIdleScrolls = 3
)

type ChromedpExtractor struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
}

// NewChromedpExtractor creates an extractor backed by a shared headless
// Chrome allocator. Call Close to release it.
func NewChromedpExtractor(pageLoadTimeout time.Duration, userAgent string) *ChromedpExtractor {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "pl-PL"),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpExtractor{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     pageLoadTimeout,
	}
}

var _ repository.Extractor = (*ChromedpExtractor)(nil)

func (c *ChromedpExtractor) Close() {
	c.cancelAlloc()
}

// Extract runs the search and scrolls the result feed until maxResults cards
// are loaded or the feed stops growing.
func (c *ChromedpExtractor) Extract(ctx context.Context, query string, maxResults int, progress repository.ProgressFunc) ([]entity.Lead, error) {
	taskCtx, cancel := chromedp.NewContext(c.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))
	defer cancel()

	// The browser context is not derived from ctx, so tie them together.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	taskCtx, cancel = context.WithTimeout(taskCtx, c.timeout)
	defer cancel()

	startTime := time.Now()
	target := searchURL + url.PathEscape(query)

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitVisible(feedSelector, chromedp.ByQuery),
	); err != nil {
		return nil, c.wrap(ctx, query, err)
	}

	loaded, idle := 0, 0
	for loaded < maxResults && idle < maxIdleScrolls {
		var count int
		err := chromedp.Run(taskCtx,
			chromedp.Evaluate(fmt.Sprintf(`(() => {
				const feed = document.querySelector('%s');
				if (feed) { feed.scrollTop = feed.scrollHeight; }
				return document.querySelectorAll('%s %s').length;
			})()`, feedSelector, feedSelector, cardSelector), &count),
			chromedp.Sleep(scrollPause),
		)
		if err != nil {
			return nil, c.wrap(ctx, query, err)
		}

		if count > loaded {
			loaded, idle = count, 0
		} else {
			idle++
		}
		if progress != nil {
			progress(min(loaded, maxResults), maxResults)
		}
	}

	var htmlContent string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML(feedSelector, &htmlContent, chromedp.ByQuery)); err != nil {
		return nil, c.wrap(ctx, query, err)
	}

	leads, err := ParseResults(htmlContent, maxResults)
	if err != nil {
		return nil, fmt.Errorf("could not parse result feed: %w", err)
	}

	slog.Info("Extraction finished", "query", query, "leads", len(leads), "duration_ms", time.Since(startTime).Milliseconds())
	return leads, nil
}

func (c *ChromedpExtractor) wrap(ctx context.Context, query string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	slog.Error("Failed to extract results", "query", query, "error", err)
	return fmt.Errorf("search %q: %w", query, err)
}
