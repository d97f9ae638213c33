package crawler

import (
	"context"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/pkg/providers"
)

// ArticleScraper fills missing metadata on fetched articles (e.g., OG tags).
type ArticleScraper interface {
	Enrich(ctx context.Context, cfg providers.Provider, articles []domain.RawArticle) []domain.RawArticle
}
