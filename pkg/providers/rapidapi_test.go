package providers

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/pkg/httpclient"
)

type fakeResponse struct {
	body   []byte
	status int
}

func (r fakeResponse) Body() []byte    { return r.body }
func (r fakeResponse) StatusCode() int { return r.status }

type fakeHTTPClient struct {
	resp     fakeResponse
	err      error
	gotURL   string
	gotHeads map[string]string
}

func (f *fakeHTTPClient) Get(_ context.Context, u string, headers map[string]string) (httpclient.Response, error) {
	f.gotURL = u
	f.gotHeads = headers
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

const sampleEnvelope = `{
  "data": {"news": {"edges": [
    {"node": {
      "id": "ni64426453",
      "articleTitle": {"plainText": "Dune: Part Two box office"},
      "text": {"plainText": "Body text"},
      "image": {"url": "https://m.media-amazon.com/images/a.jpg"},
      "byline": "Variety",
      "date": "2024-03-04T18:30:00Z",
      "externalUrl": "https://variety.com/dune"
    }},
    {"node": {"articleTitle": {"plainText": "No id here"}, "date": "not a date"}},
    {"node": null}
  ]}}
}`

func testProvider() Provider {
	p := DefaultProvider(testDefaults)
	return sanitizeProvider(p, testDefaults)
}

func TestRapidAPIFetcherDecodesEnvelope(t *testing.T) {
	client := &fakeHTTPClient{resp: fakeResponse{status: 200, body: []byte(sampleEnvelope)}}
	f := NewRapidAPIFetcher(client, Credentials{APIKey: "key-123"})

	got, err := f.Fetch(context.Background(), testProvider(), domain.Partition{Category: "MOVIE", Country: "GB"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	first := got[0]
	if first.NativeID != "ni64426453" || first.Title != "Dune: Part Two box office" {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.ImageURL == "" || first.Byline != "Variety" || first.ExternalURL != "https://variety.com/dune" {
		t.Fatalf("optional fields not mapped: %+v", first)
	}
	if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
		t.Fatalf("date not parsed: %v", first.PublishedAt)
	}
	if first.Language != "en-US" || len(first.Payload) == 0 {
		t.Fatalf("language/payload missing: %+v", first)
	}
	if got[1].NativeID != "" || got[1].PublishedAt != nil {
		t.Fatalf("second record should have no id and no date: %+v", got[1])
	}

	u, err := url.Parse(client.gotURL)
	if err != nil {
		t.Fatalf("parse request url: %v", err)
	}
	q := u.Query()
	if q.Get("category") != "MOVIE" || q.Get("country") != "GB" || q.Get("language") != "en-US" || q.Get("first") != "1000" {
		t.Fatalf("unexpected query: %s", u.RawQuery)
	}
	if client.gotHeads["x-rapidapi-key"] != "key-123" || client.gotHeads["x-rapidapi-host"] != "imdb8.p.rapidapi.com" {
		t.Fatalf("unexpected headers: %v", client.gotHeads)
	}
}

func TestRapidAPIFetcherMissingKey(t *testing.T) {
	client := &fakeHTTPClient{resp: fakeResponse{status: 200, body: []byte(sampleEnvelope)}}
	f := NewRapidAPIFetcher(client, Credentials{APIKey: "  "})

	_, err := f.Fetch(context.Background(), testProvider(), domain.Partition{Category: "TV", Country: "US"})
	if !errors.Is(err, domain.ErrProviderCredentialMissing) {
		t.Fatalf("expected ErrProviderCredentialMissing, got %v", err)
	}
	if client.gotURL != "" {
		t.Fatalf("no request should be sent without credentials")
	}
}

func TestRapidAPIFetcherFailuresAreProviderUnavailable(t *testing.T) {
	cases := map[string]*fakeHTTPClient{
		"status":    {resp: fakeResponse{status: 500, body: []byte("boom")}},
		"transport": {err: errors.New("dial tcp: timeout")},
		"malformed": {resp: fakeResponse{status: 200, body: []byte(`{"data":{}}`)}},
		"not json":  {resp: fakeResponse{status: 200, body: []byte(`<html>`)}},
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			f := NewRapidAPIFetcher(client, Credentials{APIKey: "k"})
			_, err := f.Fetch(context.Background(), testProvider(), domain.Partition{Category: "TV", Country: "GB"})
			if !errors.Is(err, domain.ErrProviderUnavailable) {
				t.Fatalf("expected ErrProviderUnavailable, got %v", err)
			}
		})
	}
}

func TestRapidAPIFetcherEmptyEdges(t *testing.T) {
	client := &fakeHTTPClient{resp: fakeResponse{status: 200, body: []byte(`{"data":{"news":{"edges":[]}}}`)}}
	f := NewRapidAPIFetcher(client, Credentials{APIKey: "k"})

	got, err := f.Fetch(context.Background(), testProvider(), domain.Partition{Category: "TV", Country: "GB"})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v err=%v", got, err)
	}
}

func TestRapidAPIFetcherRejectsOtherTypes(t *testing.T) {
	f := NewRapidAPIFetcher(&fakeHTTPClient{}, Credentials{APIKey: "k"})
	p := testProvider()
	p.Type = "rss"
	if _, err := f.Fetch(context.Background(), p, domain.Partition{}); err == nil {
		t.Fatalf("expected incompatible type error")
	}
}

const looseEnvelope = `{
  "data": {"news": {"edges": [
    {"node": {"id": "ni1", "articleTitle": {"plainText": "String id"}, "date": "2024-03-04T18:30:00Z"}},
    {"node": {"id": 12345, "articleTitle": {"plainText": "Numeric id"}}},
    {"node": {"id": "ni3", "articleTitle": {"plainText": "Epoch date"}, "date": 1709577000000}},
    {"node": {"id": "ni4", "articleTitle": "not an object"}}
  ]}}
}`

func TestRapidAPIFetcherKeepsLooselyTypedNodes(t *testing.T) {
	client := &fakeHTTPClient{resp: fakeResponse{status: 200, body: []byte(looseEnvelope)}}
	f := NewRapidAPIFetcher(client, Credentials{APIKey: "k"})

	got, err := f.Fetch(context.Background(), testProvider(), domain.Partition{Category: "MOVIE", Country: "US"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected every edge to be returned, got %d", len(got))
	}
	if got[1].NativeID != "12345" || got[1].Title != "Numeric id" {
		t.Fatalf("numeric id not kept: %+v", got[1])
	}
	want := time.Date(2024, 3, 4, 18, 30, 0, 0, time.UTC)
	if got[2].PublishedAt == nil || !got[2].PublishedAt.Equal(want) {
		t.Fatalf("epoch date = %v, want %v", got[2].PublishedAt, want)
	}
	if got[3].Title != "" || len(got[3].Payload) == 0 || got[3].Language != "en-US" {
		t.Fatalf("undecodable node should come back untitled with its payload: %+v", got[3])
	}
}
