// Package crawler walks the provider partition matrix and collects raw articles.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/pkg/providers"
)

const defaultPartitionTimeout = 20 * time.Second

// Options tunes a Service.
type Options struct {
	PartitionTimeout time.Duration
	// Scraper is optional; nil disables metadata enrichment.
	Scraper ArticleScraper
}

// Service coordinates fetching across providers and their partitions.
type Service struct {
	providers        []providers.Provider
	registry         providers.FetcherRegistry
	scraper          ArticleScraper
	partitionTimeout time.Duration
}

// NewService wires a crawler with providers and the fetcher registry.
func NewService(cfgs []providers.Provider, reg providers.FetcherRegistry, opts Options) *Service {
	if opts.PartitionTimeout <= 0 {
		opts.PartitionTimeout = defaultPartitionTimeout
	}
	return &Service{
		providers:        cfgs,
		registry:         reg,
		scraper:          opts.Scraper,
		partitionTimeout: opts.PartitionTimeout,
	}
}

// FetchAll walks every provider's category x country matrix in declaration order. Partition
// failures are collected and never abort the walk; a missing credential or a cancelled
// context does.
func (s *Service) FetchAll(ctx context.Context) (domain.FetchResult, error) {
	if s == nil || s.registry == nil {
		return domain.FetchResult{}, fmt.Errorf("crawler service is not initialized")
	}
	if len(s.providers) == 0 {
		return domain.FetchResult{}, fmt.Errorf("no providers configured for crawling")
	}

	var res domain.FetchResult
	for _, cfg := range s.providers {
		if err := s.fetchProvider(ctx, cfg, &res); err != nil {
			return res, err
		}
	}

	if len(res.PartitionErrors) > 0 {
		errs := make([]error, 0, len(res.PartitionErrors))
		for _, pe := range res.PartitionErrors {
			errs = append(errs, pe)
		}
		logger.WarnObj("fetch completed with partition failures", "fetch_result", map[string]any{
			"records":            len(res.Records),
			"partitions_failed":  len(res.PartitionErrors),
			"partition_failures": errors.Join(errs...).Error(),
		})
	}
	return res, nil
}

func (s *Service) fetchProvider(ctx context.Context, cfg providers.Provider, res *domain.FetchResult) error {
	parts := cfg.Partitions()

	fetcher, err := s.registry.FetcherFor(cfg)
	if err != nil {
		for _, p := range parts {
			res.PartitionErrors = append(res.PartitionErrors, partitionError(cfg, p, err))
		}
		logger.ErrorObj("resolve fetcher failed", "provider_error", map[string]any{
			"provider_id": cfg.ID,
			"error":       err.Error(),
		})
		return nil
	}

	collected := 0
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch %s interrupted: %w", cfg.ID, err)
		}

		articles, err := s.fetchPartition(ctx, fetcher, cfg, part)
		if errors.Is(err, domain.ErrProviderCredentialMissing) {
			return fmt.Errorf("fetch %s: %w", cfg.ID, err)
		}
		if err != nil {
			res.PartitionErrors = append(res.PartitionErrors, partitionError(cfg, part, err))
			logger.WarnObj("partition fetch failed", "partition_error", map[string]any{
				"provider_id": cfg.ID,
				"category":    part.Category,
				"country":     part.Country,
				"error":       err.Error(),
			})
			continue
		}

		for i := range articles {
			articles[i].Category = part.Category
			articles[i].Country = part.Country
			if articles[i].Language == "" {
				articles[i].Language = cfg.Language
			}
		}
		if s.scraper != nil {
			articles = s.scraper.Enrich(ctx, cfg, articles)
		}

		res.Records = append(res.Records, articles...)
		collected += len(articles)
		logger.DebugObj("partition fetched", "partition_result", map[string]any{
			"provider_id": cfg.ID,
			"category":    part.Category,
			"country":     part.Country,
			"records":     len(articles),
		})
	}

	logger.InfoObj("provider fetch completed", "provider_result", map[string]any{
		"provider_id":        cfg.ID,
		"partitions":         len(parts),
		"articles_collected": collected,
	})
	return nil
}

// fetchPartition bounds one provider call with its own timeout.
func (s *Service) fetchPartition(ctx context.Context, f providers.Fetcher, cfg providers.Provider, part domain.Partition) ([]domain.RawArticle, error) {
	timeout := s.partitionTimeout
	if t := cfg.Timeout(); t > 0 {
		timeout = t
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	articles, err := f.Fetch(pctx, cfg, part)
	if err != nil && pctx.Err() != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: partition timed out after %s: %w", domain.ErrProviderUnavailable, timeout, err)
	}
	return articles, err
}

func partitionError(cfg providers.Provider, part domain.Partition, err error) domain.PartitionError {
	return domain.PartitionError{
		ProviderID: cfg.ID,
		Category:   part.Category,
		Country:    part.Country,
		Err:        err,
	}
}
