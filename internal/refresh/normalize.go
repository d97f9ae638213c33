package refresh

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// Normalize turns a raw article into a record without an id. A missing title skips the article.
func Normalize(raw domain.RawArticle, fetchedAt time.Time) (domain.ArticleRecord, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return domain.ArticleRecord{}, fmt.Errorf("%w: missing title", domain.ErrNormalizationSkipped)
	}

	rec := domain.ArticleRecord{
		Title:         title,
		BodyText:      strings.TrimSpace(raw.BodyText),
		ImageURL:      optional(raw.ImageURL),
		Byline:        optional(raw.Byline),
		ExternalURL:   optional(raw.ExternalURL),
		Category:      strings.ToUpper(strings.TrimSpace(raw.Category)),
		Country:       strings.ToUpper(strings.TrimSpace(raw.Country)),
		Language:      strings.TrimSpace(raw.Language),
		LastFetchedAt: fetchedAt,
	}
	if rec.Language == "" {
		rec.Language = domain.DefaultLanguage
	}
	if raw.PublishedAt != nil && !raw.PublishedAt.IsZero() {
		published := raw.PublishedAt.UTC()
		rec.PublishedAt = &published
	}
	if len(raw.Payload) > 0 && json.Valid(raw.Payload) {
		rec.RawSource = append(json.RawMessage(nil), raw.Payload...)
	}
	return rec, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
