package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/pkg/httpclient"
	"github.com/samvad-hq/samvad-news-feed/pkg/providers"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
)

// Scraper fetches article pages and fills missing image and body text from OG tags.
type Scraper struct {
	client httpclient.Client
}

// NewScraper constructs a scraper with the provided HTTP client (or default).
func NewScraper(client httpclient.Client) *Scraper {
	if client == nil {
		client = providers.DefaultHTTPClient()
	}
	return &Scraper{client: client}
}

// Enrich visits the external page of every article missing an image or body text. Titles are
// never replaced. Page fetches are throttled by the provider request delay.
func (s *Scraper) Enrich(ctx context.Context, cfg providers.Provider, articles []domain.RawArticle) []domain.RawArticle {
	delay := cfg.RequestDelay()
	out := append([]domain.RawArticle(nil), articles...)

	visited := 0
	for i, art := range articles {
		if !needsEnrichment(art) {
			continue
		}

		if visited > 0 && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return out
		}
		visited++

		enriched, err := s.fetchAndParse(ctx, cfg, art)
		if err != nil {
			logger.WarnObj("article metadata scrape failed", "metadata_error", map[string]any{
				"provider_id": cfg.ID,
				"url":         art.ExternalURL,
				"error":       err.Error(),
			})
			continue
		}
		out[i] = enriched
	}

	return out
}

func needsEnrichment(art domain.RawArticle) bool {
	return art.ExternalURL != "" && (art.ImageURL == "" || art.BodyText == "")
}

func (s *Scraper) fetchAndParse(ctx context.Context, cfg providers.Provider, art domain.RawArticle) (domain.RawArticle, error) {
	headers := providers.Headers(cfg)

	resp, err := s.client.Get(ctx, art.ExternalURL, headers)
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}

	if resp.StatusCode() != 200 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	meta, err := parseMeta(body)
	if err != nil {
		return art, err
	}
	updated := art
	if updated.BodyText == "" && meta.Description != "" {
		updated.BodyText = meta.Description
	}
	if updated.ImageURL == "" {
		updated.ImageURL = resolveURL(meta.ImageURL, art.ExternalURL)
	}

	return updated, nil
}

func parseMeta(body []byte) (pageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}, fmt.Errorf("parse html: %w", err)
	}

	pm := pageMeta{}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm.Description = firstNonEmpty(
		extract(`meta[property="og:description"]`),
		extract(`meta[name="description"]`),
	)
	pm.ImageURL = firstNonEmpty(
		extract(`meta[property="og:image"]`),
		extract(`meta[name="twitter:image"]`),
	)

	return pm, nil
}

type pageMeta struct {
	Description string
	ImageURL    string
}

// resolveURL makes ref absolute against base; unparsable input yields "".
func resolveURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
