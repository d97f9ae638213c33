package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Domain contains core models shared by the store, fetcher and refresher.

// DefaultLanguage is the locale stamped on records whose source omits it.
const DefaultLanguage = "en-US"

// ArticleRecord is the persisted, deduplicated unit served to readers.
type ArticleRecord struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	BodyText      string          `json:"bodyText"`
	ImageURL      *string         `json:"imageUrl,omitempty"`
	Byline        *string         `json:"byline,omitempty"`
	ExternalURL   *string         `json:"externalUrl,omitempty"`
	PublishedAt   *time.Time      `json:"publishedAt,omitempty"`
	Category      string          `json:"category"`
	Country       string          `json:"country"`
	Language      string          `json:"language"`
	RawSource     json.RawMessage `json:"rawSource,omitempty"`
	LastFetchedAt time.Time       `json:"lastFetchedAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DisplayDate is the publication date when known, otherwise the creation time.
func (r ArticleRecord) DisplayDate() time.Time {
	if r.PublishedAt != nil && !r.PublishedAt.IsZero() {
		return *r.PublishedAt
	}
	return r.CreatedAt
}

// RawArticle is a provider record validated at the fetch boundary. Empty strings mean absent.
type RawArticle struct {
	NativeID    string
	Title       string
	BodyText    string
	ImageURL    string
	Byline      string
	ExternalURL string
	PublishedAt *time.Time
	Category    string
	Country     string
	Language    string
	Payload     json.RawMessage
}

// Filter narrows store reads. Empty fields do not constrain.
type Filter struct {
	Category string
	Country  string
	Language string
}

// Matches reports whether rec satisfies every non-empty constraint.
func (f Filter) Matches(rec ArticleRecord) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, rec.Category) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(f.Country, rec.Country) {
		return false
	}
	if f.Language != "" && !strings.EqualFold(f.Language, rec.Language) {
		return false
	}
	return true
}

// IsZero is true when the filter selects every record.
func (f Filter) IsZero() bool {
	return f.Category == "" && f.Country == "" && f.Language == ""
}

// Partition is one (category, country) pair driving one provider call.
type Partition struct {
	Category string `json:"category"`
	Country  string `json:"country"`
}

// PartitionError records a provider failure for a single partition.
type PartitionError struct {
	ProviderID string `json:"providerId"`
	Category   string `json:"category"`
	Country    string `json:"country"`
	Err        error  `json:"-"`
}

func (e PartitionError) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return e.ProviderID + " " + e.Category + "/" + e.Country + ": " + msg
}

func (e PartitionError) Unwrap() error { return e.Err }

// FetchResult is the outcome of one pass over the partition matrix.
type FetchResult struct {
	Records         []RawArticle
	PartitionErrors []PartitionError
}

// RefreshStats summarizes one fetch-and-store run.
type RefreshStats struct {
	Saved           int           `json:"saved"`
	Updated         int           `json:"updated"`
	Skipped         int           `json:"skipped"`
	Total           int           `json:"total"`
	PartitionErrors int           `json:"partitionErrors"`
	Duration        time.Duration `json:"-"`
}
