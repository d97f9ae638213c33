package providers

import (
	"context"
	"testing"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

type stubFetcher struct{ id string }

func (s stubFetcher) ID() string { return s.id }
func (s stubFetcher) Fetch(context.Context, Provider, domain.Partition) ([]domain.RawArticle, error) {
	return nil, nil
}

func TestFetcherRegistryPrefersIDOverType(t *testing.T) {
	byType := stubFetcher{id: "type"}
	byID := stubFetcher{id: "special"}
	reg := NewTypeFetcherRegistry(map[string]Fetcher{ProviderTypeRapidAPINews: byType}, byID)

	f, err := reg.FetcherFor(Provider{ID: "Special", Type: ProviderTypeRapidAPINews})
	if err != nil || f.ID() != "special" {
		t.Fatalf("expected id match, got %v err=%v", f, err)
	}
	f, err = reg.FetcherFor(Provider{ID: "other", Type: "RAPIDAPI_IMDB_NEWS"})
	if err != nil || f.ID() != "type" {
		t.Fatalf("expected type match, got %v err=%v", f, err)
	}
	if _, err := reg.FetcherFor(Provider{ID: "other", Type: "rss"}); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestDefaultFetcherRegistryResolvesRapidAPI(t *testing.T) {
	reg := DefaultFetcherRegistry(&fakeHTTPClient{}, Credentials{APIKey: "k"})
	f, err := reg.FetcherFor(DefaultProvider(testDefaults))
	if err != nil {
		t.Fatalf("FetcherFor: %v", err)
	}
	if f.ID() != ProviderTypeRapidAPINews {
		t.Fatalf("unexpected fetcher %q", f.ID())
	}
}
