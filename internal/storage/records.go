package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// merge applies an incoming record over the stored one. CreatedAt is preserved and
// LastFetchedAt never moves backwards.
func merge(existing *domain.ArticleRecord, incoming domain.ArticleRecord, now time.Time) domain.ArticleRecord {
	out := incoming
	out.UpdatedAt = now
	if out.LastFetchedAt.IsZero() {
		out.LastFetchedAt = now
	}
	if existing == nil {
		out.CreatedAt = now
		return out
	}
	out.CreatedAt = existing.CreatedAt
	if existing.LastFetchedAt.After(out.LastFetchedAt) {
		out.LastFetchedAt = existing.LastFetchedAt
	}
	return out
}

func validateRecord(rec domain.ArticleRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("record id is empty")
	}
	return nil
}

// sortByRecency orders records newest CreatedAt first, id ascending on ties.
func sortByRecency(recs []domain.ArticleRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

func applyLimit(recs []domain.ArticleRecord, limit int) []domain.ArticleRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}

// expired reports whether rec has not been fetched within the retention window.
func expired(rec domain.ArticleRecord, retention time.Duration, now time.Time) bool {
	if retention <= 0 {
		return false
	}
	return rec.LastFetchedAt.Before(now.Add(-retention))
}
