package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/refresh"
	"github.com/samvad-hq/samvad-news-feed/internal/storage"
)

type fakeRefresher struct {
	filters   []domain.Filter
	ensureErr error
	triggers  []string
	stats     domain.RefreshStats
	runErr    error
}

func (f *fakeRefresher) EnsureFresh(_ context.Context, flt domain.Filter) (refresh.Decision, error) {
	f.filters = append(f.filters, flt)
	return refresh.DecisionFresh, f.ensureErr
}

func (f *fakeRefresher) RefreshNow(_ context.Context, trigger string) (domain.RefreshStats, error) {
	f.triggers = append(f.triggers, trigger)
	return f.stats, f.runErr
}

func (f *fakeRefresher) Snapshot() refresh.State {
	return refresh.State{LastAttempt: time.Unix(0, 0).UTC()}
}

type downStore struct{ storage.Store }

func (downStore) Ping(context.Context) error {
	return errors.Join(domain.ErrStoreUnavailable, errors.New("connection refused"))
}

func strPtr(s string) *string { return &s }

// seededStore stores three records created one minute apart: m-us (oldest), t-gb, t-us (newest).
func seededStore(t *testing.T) storage.Store {
	t.Helper()
	clock := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore(storage.Options{Now: func() time.Time { return clock }})

	published := time.Date(2025, 6, 30, 8, 0, 0, 0, time.UTC)
	recs := []domain.ArticleRecord{
		{ID: "m-us", Title: "Movie US", BodyText: "body", Category: "MOVIE", Country: "US", Language: "en-US",
			ImageURL: strPtr("https://img/1.jpg"), PublishedAt: &published},
		{ID: "t-gb", Title: "TV GB", Category: "TV", Country: "GB", Language: "en-US"},
		{ID: "t-us", Title: "TV US", Category: "TV", Country: "US", Language: "en-US",
			Byline: strPtr("Staff"), ExternalURL: strPtr("https://example.com/t")},
	}
	for _, rec := range recs {
		_, err := store.Upsert(context.Background(), rec)
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
	}
	return store
}

func newTestServer(store Reader, ref Refresher) *Server {
	return New(Config{
		Addr:        ":0",
		Categories:  []string{"MOVIE", "TV"},
		Countries:   []string{"US", "GB"},
		Environment: Environment{HasRapidAPIKey: true, StorageType: "memory", AppEnv: "test"},
	}, store, ref, http.NotFoundHandler(), nil)
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decodeNews(t *testing.T, rec *httptest.ResponseRecorder) []newsNode {
	t.Helper()
	var body newsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	out := make([]newsNode, 0, len(body.Data.News.Edges))
	for _, e := range body.Data.News.Edges {
		out = append(out, e.Node)
	}
	return out
}

func TestListNewsReturnsNewestFirstInEnvelope(t *testing.T) {
	ref := &fakeRefresher{}
	s := newTestServer(seededStore(t), ref)

	rec := do(t, s, http.MethodGet, "/api/news")
	require.Equal(t, http.StatusOK, rec.Code)

	nodes := decodeNews(t, rec)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{"t-us", "t-gb", "m-us"}, []string{nodes[0].ID, nodes[1].ID, nodes[2].ID})
	assert.Equal(t, "TV US", nodes[0].ArticleTitle.PlainText)
	assert.Equal(t, "Staff", *nodes[0].Byline)
	assert.Nil(t, nodes[1].Image.URL)
	assert.Equal(t, time.Date(2025, 6, 30, 8, 0, 0, 0, time.UTC), nodes[2].Date.UTC())
	assert.Equal(t, time.Date(2025, 7, 1, 10, 1, 0, 0, time.UTC), nodes[1].Date.UTC())
	assert.Equal(t, []domain.Filter{{}}, ref.filters)
}

func TestListNewsFiltersAndLimits(t *testing.T) {
	ref := &fakeRefresher{}
	s := newTestServer(seededStore(t), ref)

	nodes := decodeNews(t, do(t, s, http.MethodGet, "/api/news?category=tv&country=ALL&first=1"))
	require.Len(t, nodes, 1)
	assert.Equal(t, "t-us", nodes[0].ID)
	assert.Equal(t, domain.Filter{Category: "TV"}, ref.filters[0])

	nodes = decodeNews(t, do(t, s, http.MethodGet, "/api/news?category=ALL&country=us&first=abc"))
	assert.Len(t, nodes, 2)
	assert.Equal(t, domain.Filter{Country: "US"}, ref.filters[1])

	nodes = decodeNews(t, do(t, s, http.MethodGet, "/api/news?first=-4"))
	assert.Len(t, nodes, 3)
}

func TestListNewsEmptyViewReturnsEmptyEdges(t *testing.T) {
	s := newTestServer(seededStore(t), &fakeRefresher{})

	rec := do(t, s, http.MethodGet, "/api/news?category=DOCUMENTARY")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"news":{"edges":[]}}}`, rec.Body.String())
}

func TestListNewsFailureEnvelope(t *testing.T) {
	ref := &fakeRefresher{ensureErr: refresh.ErrNothingFetched}
	s := newTestServer(storage.NewMemoryStore(storage.Options{}), ref)

	rec := do(t, s, http.MethodGet, "/api/news")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Failed to fetch news", body["error"])
	assert.Contains(t, body["details"], "no articles fetched")
}

func TestFetchNewsReportsStats(t *testing.T) {
	ref := &fakeRefresher{stats: domain.RefreshStats{Saved: 2, Updated: 1, Skipped: 1, Total: 4}}
	s := newTestServer(seededStore(t), ref)

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := do(t, s, method, "/api/news/fetch")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"message":"News fetched and stored successfully",
			"stats":{"saved":2,"updated":1,"skipped":1,"total":4,"partitionErrors":0}}`, rec.Body.String())
	}
	assert.Equal(t, []string{refresh.TriggerManual, refresh.TriggerManual}, ref.triggers)
}

func TestFetchNewsConflictAndFailure(t *testing.T) {
	ref := &fakeRefresher{runErr: refresh.ErrRefreshInProgress}
	s := newTestServer(seededStore(t), ref)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/news/fetch").Code)

	ref.runErr = domain.ErrProviderCredentialMissing
	rec := do(t, s, http.MethodPost, "/api/news/fetch")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body fetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Failed to fetch and store news", body.Error)
	assert.Contains(t, body.Details, "credential")
}

func TestDebugSummarizesStore(t *testing.T) {
	s := newTestServer(seededStore(t), &fakeRefresher{})

	rec := do(t, s, http.MethodGet, "/api/news/debug")
	require.Equal(t, http.StatusOK, rec.Code)

	var body debugResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.Database.TotalArticles)
	assert.Equal(t, map[string]int{"MOVIE": 1, "TV": 2}, body.Database.ByCategory)
	assert.Equal(t, map[string]int{"US": 2, "GB": 1}, body.Database.ByCountry)
	require.NotNil(t, body.Database.MostRecent)
	assert.Equal(t, "t-us", body.Database.MostRecent.ID)
	require.NotNil(t, body.Database.LastFetchedAt)
	assert.Len(t, body.Database.SampleArticles, 3)
	assert.True(t, body.Environment.HasRapidAPIKey)
	assert.Equal(t, "memory", body.Environment.StorageType)
}

func TestHealthReflectsStorePing(t *testing.T) {
	s := newTestServer(seededStore(t), &fakeRefresher{})
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz").Code)

	down := newTestServer(downStore{Store: storage.NewMemoryStore(storage.Options{})}, &fakeRefresher{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/healthz").Code)
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{"": 0, "10": 10, " 7 ": 7, "0": 0, "-1": 0, "x": 0}
	for in, want := range cases {
		assert.Equal(t, want, parseLimit(in), "input %q", in)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, seededStore(t), &fakeRefresher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
