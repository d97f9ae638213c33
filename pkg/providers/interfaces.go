package providers

import (
	"context"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/pkg/httpclient"
)

// Fetcher retrieves raw articles for one partition of a provider.
// Concrete implementations live in provider-specific files (e.g., rapidapi.go).
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, cfg Provider, part domain.Partition) ([]domain.RawArticle, error)
}

// FetcherRegistry resolves the fetcher implementation for a given provider config.
type FetcherRegistry interface {
	FetcherFor(cfg Provider) (Fetcher, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within providers.
type HTTPClient = httpclient.Client
