// Package refresh keeps the record store fresh from the upstream providers.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/identity"
	"github.com/samvad-hq/samvad-news-feed/internal/logger"
	"github.com/samvad-hq/samvad-news-feed/internal/metrics"
	"github.com/samvad-hq/samvad-news-feed/internal/storage"
	"github.com/samvad-hq/samvad-news-feed/pkg/publishers"
)

// Triggers describe why a run started.
const (
	TriggerReadSync       = "read-sync"
	TriggerReadBackground = "read-background"
	TriggerManual         = "manual"
	TriggerSchedule       = "schedule"
)

const publishTimeout = 10 * time.Second

// Fetcher returns every raw article across the partition matrix.
type Fetcher interface {
	FetchAll(ctx context.Context) (domain.FetchResult, error)
}

// IdentityResolver derives record ids.
type IdentityResolver interface {
	Resolve(raw domain.RawArticle) (string, identity.Source)
}

// EventPublisher publishes refresh events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// SyncerOptions carries the optional collaborators of a Syncer.
type SyncerOptions struct {
	Resolver  IdentityResolver
	Publisher EventPublisher
	Metrics   *metrics.Recorder
	Logger    logger.Logger
	Now       func() time.Time
}

// Syncer runs the fetch-and-store sequence.
type Syncer struct {
	fetcher   Fetcher
	store     storage.Store
	resolver  IdentityResolver
	publisher EventPublisher
	metrics   *metrics.Recorder
	log       logger.Logger
	now       func() time.Time
}

// NewSyncer wires a Syncer.
func NewSyncer(fetcher Fetcher, store storage.Store, opts SyncerOptions) *Syncer {
	if opts.Resolver == nil {
		opts.Resolver = identity.NewResolver()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{
		fetcher:   fetcher,
		store:     store,
		resolver:  opts.Resolver,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		log:       logger.Ensure(opts.Logger),
		now:       opts.Now,
	}
}

// Run fetches every partition and upserts the results in provider order. Normalization failures
// are counted as skipped; a store failure aborts the run and returns the partial stats.
func (s *Syncer) Run(ctx context.Context, trigger string) (domain.RefreshStats, error) {
	started := s.now()
	s.metrics.RefreshStarted()

	res, stats, err := s.run(ctx)
	stats.Duration = s.now().Sub(started)

	s.metrics.RefreshFinished(trigger, stats.Duration, err)
	for _, pe := range res.PartitionErrors {
		s.metrics.PartitionFailed(pe.ProviderID, pe.Category, pe.Country)
	}

	summary := map[string]any{
		"trigger":          trigger,
		"saved":            stats.Saved,
		"updated":          stats.Updated,
		"skipped":          stats.Skipped,
		"total":            stats.Total,
		"partition_errors": stats.PartitionErrors,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if err != nil {
		summary["error"] = err.Error()
		s.log.ErrorObj("refresh run failed", "refresh_result", summary)
	} else {
		s.log.InfoObj("refresh run completed", "refresh_result", summary)
	}

	s.publish(ctx, publishers.NewRefreshEvent(trigger, stats, res.PartitionErrors, err, started))
	return stats, err
}

func (s *Syncer) run(ctx context.Context) (domain.FetchResult, domain.RefreshStats, error) {
	var stats domain.RefreshStats
	if s.fetcher == nil || s.store == nil {
		return domain.FetchResult{}, stats, fmt.Errorf("syncer is not initialized")
	}

	res, err := s.fetcher.FetchAll(ctx)
	stats.PartitionErrors = len(res.PartitionErrors)
	if err != nil {
		return res, stats, fmt.Errorf("fetch articles: %w", err)
	}

	for _, raw := range res.Records {
		if err := ctx.Err(); err != nil {
			return res, stats, fmt.Errorf("refresh interrupted: %w", err)
		}
		stats.Total++

		rec, err := Normalize(raw, s.now())
		if err != nil {
			stats.Skipped++
			s.metrics.Article(metrics.OutcomeSkipped)
			s.log.DebugObj("article skipped", "normalize_skip", map[string]any{
				"native_id": raw.NativeID,
				"category":  raw.Category,
				"country":   raw.Country,
				"reason":    err.Error(),
			})
			continue
		}

		var source identity.Source
		rec.ID, source = s.resolver.Resolve(raw)
		s.metrics.Identity(string(source))

		created, err := s.store.Upsert(ctx, rec)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return res, stats, fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
		if err != nil {
			stats.Skipped++
			s.metrics.Article(metrics.OutcomeSkipped)
			s.log.WarnObj("article rejected by store", "upsert_skip", map[string]any{
				"id":    rec.ID,
				"error": err.Error(),
			})
			continue
		}

		if created {
			stats.Saved++
			s.metrics.Article(metrics.OutcomeSaved)
		} else {
			stats.Updated++
			s.metrics.Article(metrics.OutcomeUpdated)
		}
	}
	return res, stats, nil
}

// publish delivers the run event even when the triggering context has ended.
func (s *Syncer) publish(ctx context.Context, evt publishers.Event) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if _, err := s.publisher.Publish(pctx, evt); err != nil {
		s.log.WarnObj("refresh event publish failed", "publish_error", map[string]any{
			"event_id": evt.ID,
			"error":    err.Error(),
		})
	}
}
