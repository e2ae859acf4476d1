// Package httpenricher looks up contact details on lead websites.
package httpenricher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
	"github.com/user/leadflow-service/pkg/metrics"
	"github.com/user/leadflow-service/pkg/utils"
)

const (
	contactPath = "/kontakt"
	maxBodySize = 2 << 20
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	phoneRegex = regexp.MustCompile(`(?:\+48|0048)?[\s-]?\d{3}[\s-]?\d{3}[\s-]?\d{3}`)

	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// Options tune the enricher. Zero values fall back to defaults.
type Options struct {
	Concurrency int
	RPS         float64
	Burst       int
	Timeout     time.Duration
	UserAgent   string
}

type HTTPEnricher struct {
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	userAgent   string
}

func NewHTTPEnricher(opts Options) *HTTPEnricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.RPS <= 0 {
		opts.RPS = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.Concurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "LeadFlowBot/1.0"
	}

	return &HTTPEnricher{
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		concurrency: opts.Concurrency,
		userAgent:   opts.UserAgent,
	}
}

var _ repository.Enricher = (*HTTPEnricher)(nil)

// Enrich visits every lead website concurrently. A site that cannot be
// fetched leaves its lead unchanged; only cancellation aborts the batch.
func (e *HTTPEnricher) Enrich(ctx context.Context, leads []entity.Lead, progress repository.ProgressFunc) ([]entity.Lead, error) {
	out := make([]entity.Lead, len(leads))
	copy(out, leads)

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, lead := range leads {
		g.Go(func() error {
			email, phone, err := e.lookup(gctx, lead.Website)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				metrics.EnrichedLeads.WithLabelValues("error").Inc()
				slog.Warn("Failed to enrich lead", "lead_id", lead.ID, "website", lead.Website, "error", err)
			} else if email == "" && phone == "" {
				metrics.EnrichedLeads.WithLabelValues("empty").Inc()
			} else {
				metrics.EnrichedLeads.WithLabelValues("found").Inc()
			}
			out[i] = lead.WithContacts(email, phone)

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(leads))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// lookup checks the homepage first and the contact page when the homepage
// has no email address.
func (e *HTTPEnricher) lookup(ctx context.Context, website string) (string, string, error) {
	if !strings.HasPrefix(website, "http") {
		return "", "", nil
	}
	base, err := url.Parse(website)
	if err != nil {
		return "", "", err
	}

	email, phone, err := e.scan(ctx, website)
	if err != nil {
		return "", "", err
	}
	if email != "" {
		return email, phone, nil
	}

	contactURL, err := utils.ToAbsoluteURL(base, contactPath)
	if err != nil {
		return "", phone, nil
	}
	kEmail, kPhone, err := e.scan(ctx, contactURL)
	if err != nil {
		slog.Debug("Contact page unavailable", "url", contactURL, "error", err)
		return "", phone, nil
	}
	if phone == "" {
		phone = kPhone
	}
	return kEmail, phone, nil
}

func (e *HTTPEnricher) scan(ctx context.Context, pageURL string) (string, string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", "", err
	}
	email, phone := ExtractContacts(doc)
	return email, phone, nil
}

// ExtractContacts prefers mailto: and tel: links and falls back to matching
// the visible page text.
func ExtractContacts(doc *goquery.Document) (email, phone string) {
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		addr := strings.TrimPrefix(s.AttrOr("href", ""), "mailto:")
		addr, _, _ = strings.Cut(addr, "?")
		if addr = strings.TrimSpace(addr); emailRegex.MatchString(addr) {
			email = addr
			return false
		}
		return true
	})
	doc.Find(`a[href^="tel:"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		phone = strings.TrimSpace(strings.TrimPrefix(s.AttrOr("href", ""), "tel:"))
		return phone == ""
	})
	if email != "" && phone != "" {
		return email, phone
	}

	doc.Find("script, style").Remove()
	text := doc.Find("body").Text()

	if email == "" {
		for _, m := range emailRegex.FindAllString(text, -1) {
			if !isAsset(m) {
				email = m
				break
			}
		}
	}
	if phone == "" {
		phone = strings.TrimSpace(phoneRegex.FindString(text))
	}
	return email, phone
}

func isAsset(match string) bool {
	lower := strings.ToLower(match)
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
