package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// Credentials authenticate against RapidAPI-hosted providers.
type Credentials struct {
	APIKey string
}

const (
	headerRapidAPIKey  = "x-rapidapi-key"
	headerRapidAPIHost = "x-rapidapi-host"
)

// rapidAPIFetcher implements Fetcher for the IMDb news-by-category endpoint.
type rapidAPIFetcher struct {
	client HTTPClient
	creds  Credentials
}

// NewRapidAPIFetcher builds the RapidAPI IMDb news fetcher.
func NewRapidAPIFetcher(client HTTPClient, creds Credentials) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	return &rapidAPIFetcher{client: client, creds: creds}
}

func (f *rapidAPIFetcher) ID() string {
	return ProviderTypeRapidAPINews
}

func (f *rapidAPIFetcher) Fetch(ctx context.Context, cfg Provider, part domain.Partition) ([]domain.RawArticle, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeRapidAPINews) {
		return nil, fmt.Errorf("rapidapi fetcher received incompatible provider type %q", cfg.Type)
	}
	if f.creds.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.ID, domain.ErrProviderCredentialMissing)
	}

	endpoint, err := partitionURL(cfg, part)
	if err != nil {
		return nil, err
	}

	headers := Headers(cfg)
	headers[headerRapidAPIKey] = f.creds.APIKey
	headers[headerRapidAPIHost] = rapidAPIHost(cfg)

	resp, err := f.client.Get(ctx, endpoint, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s %s/%s: %w", domain.ErrProviderUnavailable, cfg.ID, part.Category, part.Country, err)
	}
	if err := checkStatus(cfg.ID, resp.StatusCode(), resp.Body()); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	nodes, err := decodeEnvelope(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, cfg.ID, err)
	}

	out := make([]domain.RawArticle, 0, len(nodes))
	for _, raw := range nodes {
		var node newsNode
		if err := json.Unmarshal(raw, &node); err != nil {
			// kept without content so the refresh counts it as skipped
			out = append(out, domain.RawArticle{Language: cfg.Language, Payload: raw})
			continue
		}
		out = append(out, node.rawArticle(raw, cfg.Language))
	}
	return out, nil
}

func partitionURL(cfg Provider, part domain.Partition) (string, error) {
	u, err := url.Parse(cfg.SourceURL)
	if err != nil {
		return "", fmt.Errorf("provider %q source_url: %w", cfg.ID, err)
	}
	q := u.Query()
	q.Set("category", part.Category)
	q.Set("country", part.Country)
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.ResultCap > 0 {
		q.Set("first", strconv.Itoa(cfg.ResultCap))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func rapidAPIHost(cfg Provider) string {
	if cfg.Host != "" {
		return cfg.Host
	}
	if u, err := url.Parse(cfg.SourceURL); err == nil {
		return u.Host
	}
	return ""
}

type newsEnvelope struct {
	Data *struct {
		News *struct {
			Edges []struct {
				Node json.RawMessage `json:"node"`
			} `json:"edges"`
		} `json:"news"`
	} `json:"data"`
}

// decodeEnvelope returns the raw node payloads; a body without data.news is malformed.
func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var env newsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode news envelope: %w", err)
	}
	if env.Data == nil || env.Data.News == nil {
		return nil, fmt.Errorf("news envelope missing data.news")
	}
	out := make([]json.RawMessage, 0, len(env.Data.News.Edges))
	for _, edge := range env.Data.News.Edges {
		if len(edge.Node) == 0 || string(edge.Node) == "null" {
			continue
		}
		out = append(out, edge.Node)
	}
	return out, nil
}

type plainTextField struct {
	PlainText string `json:"plainText"`
}

type newsNode struct {
	ID           json.RawMessage `json:"id"`
	ArticleTitle *plainTextField `json:"articleTitle"`
	Text         *plainTextField `json:"text"`
	Image        *struct {
		URL string `json:"url"`
	} `json:"image"`
	Byline      string          `json:"byline"`
	Date        json.RawMessage `json:"date"`
	ExternalURL string          `json:"externalUrl"`
}

func (n newsNode) rawArticle(payload json.RawMessage, language string) domain.RawArticle {
	art := domain.RawArticle{
		NativeID:    scalarText(n.ID),
		Byline:      strings.TrimSpace(n.Byline),
		ExternalURL: strings.TrimSpace(n.ExternalURL),
		PublishedAt: parseNewsDate(n.Date),
		Language:    language,
		Payload:     payload,
	}
	if n.ArticleTitle != nil {
		art.Title = strings.TrimSpace(n.ArticleTitle.PlainText)
	}
	if n.Text != nil {
		art.BodyText = strings.TrimSpace(n.Text.PlainText)
	}
	if n.Image != nil {
		art.ImageURL = strings.TrimSpace(n.Image.URL)
	}
	return art
}

var newsDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// scalarText renders a JSON string or number as trimmed text. Other values yield "".
func scalarText(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

// parseNewsDate accepts a date string or epoch milliseconds. It returns nil for absent or
// unparsable dates.
func parseNewsDate(raw json.RawMessage) *time.Time {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		ms, err := num.Int64()
		if err != nil {
			f, ferr := num.Float64()
			if ferr != nil {
				return nil
			}
			ms = int64(f)
		}
		t := time.UnixMilli(ms).UTC()
		return &t
	}

	text := scalarText(raw)
	if text == "" {
		return nil
	}
	for _, layout := range newsDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
