package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

var testDefaults = Defaults{
	Host:       "imdb8.p.rapidapi.com",
	Categories: []string{"MOVIE", "TV"},
	Countries:  []string{"US", "GB"},
	Language:   "en-US",
	ResultCap:  1000,
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write providers file: %v", err)
	}
	return file
}

func TestLoadRegistryYAML(t *testing.T) {
	file := writeFile(t, "providers.yaml", `
providers:
  - id: imdb-news
    name: IMDb News
    type: rapidapi_imdb_news
    host: imdb8.p.rapidapi.com
    categories: [movie]
    countries: [us, in]
    request_delay_ms: 750
    timeout_seconds: 5
`)

	reg, err := LoadRegistry(file, testDefaults)
	if err != nil {
		t.Fatalf("LoadRegistry returned error: %v", err)
	}

	p, ok := reg.ByID("imdb-news")
	if !ok {
		t.Fatalf("expected provider id imdb-news to be loaded")
	}
	if p.SourceURL != "https://imdb8.p.rapidapi.com/news/v2/get-by-category" {
		t.Fatalf("unexpected source_url: %s", p.SourceURL)
	}
	if p.Language != "en-US" || p.ResultCap != 1000 {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.RequestDelay() != 750*time.Millisecond || p.Timeout() != 5*time.Second {
		t.Fatalf("unexpected delay/timeout: %v %v", p.RequestDelay(), p.Timeout())
	}

	want := []domain.Partition{{Category: "MOVIE", Country: "US"}, {Category: "MOVIE", Country: "IN"}}
	got := p.Partitions()
	if len(got) != len(want) {
		t.Fatalf("partitions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("partition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	file := writeFile(t, "providers.json", `{"providers":[{"id":"a","type":"rapidapi_imdb_news","source_url":"https://x.example/news"}]}`)

	reg, err := LoadRegistry(file, testDefaults)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	all := reg.All()
	if len(all) != 1 || len(all[0].Partitions()) != 4 {
		t.Fatalf("unexpected registry: %+v", all)
	}
}

func TestLoadRegistryMissingFileUsesDefaultProvider(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml"), testDefaults)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	all := reg.All()
	if len(all) != 1 {
		t.Fatalf("expected default provider, got %d", len(all))
	}
	p := all[0]
	if p.ID != DefaultProviderID || p.Type != ProviderTypeRapidAPINews {
		t.Fatalf("unexpected default provider: %+v", p)
	}

	want := []domain.Partition{
		{Category: "MOVIE", Country: "US"},
		{Category: "MOVIE", Country: "GB"},
		{Category: "TV", Country: "US"},
		{Category: "TV", Country: "GB"},
	}
	got := p.Partitions()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("partition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadRegistryDuplicateID(t *testing.T) {
	file := writeFile(t, "providers.yaml", `
providers:
  - id: duplicate
    type: rapidapi_imdb_news
    source_url: https://p1.example
  - id: duplicate
    type: rapidapi_imdb_news
    source_url: https://p2.example
`)

	if _, err := LoadRegistry(file, testDefaults); err == nil {
		t.Fatalf("expected duplicate provider error, got nil")
	}
}

func TestLoadRegistryRejectsEmptyFile(t *testing.T) {
	file := writeFile(t, "providers.yaml", "providers: []\n")
	if _, err := LoadRegistry(file, testDefaults); err == nil {
		t.Fatalf("expected empty registry error")
	}
}

func TestNewRegistryRequiresMatrix(t *testing.T) {
	_, err := NewRegistry(Defaults{}, Provider{ID: "x", Type: "rapidapi_imdb_news", SourceURL: "https://x.example"})
	if err == nil {
		t.Fatalf("expected error when no categories/countries are known")
	}
}
