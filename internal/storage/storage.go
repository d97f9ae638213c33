// Package storage persists deduplicated article records.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// Store upserts records by id and serves recency-sorted reads.
type Store interface {
	// Upsert inserts rec when its id is unknown, otherwise overwrites it. It reports whether
	// the record was newly created.
	Upsert(ctx context.Context, rec domain.ArticleRecord) (bool, error)
	// Query returns matching records, newest CreatedAt first. limit <= 0 means unbounded.
	Query(ctx context.Context, f domain.Filter, limit int) ([]domain.ArticleRecord, error)
	// MostRecentFetch returns the latest LastFetchedAt among matching records.
	MostRecentFetch(ctx context.Context, f domain.Filter) (time.Time, bool, error)
	Count(ctx context.Context, f domain.Filter) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Supported storage types.
const (
	TypeMemory = "memory"
	TypeBBolt  = "bbolt"
	TypeMongo  = "mongo"
)

// Options controls backend location and retention.
type Options struct {
	BBoltPath       string
	MongoURI        string
	MongoDatabase   string
	Retention       time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

const (
	defaultCleanupInterval = 12 * time.Hour
	defaultMongoDatabase   = "plotwist"
)

// NewStore creates the configured storage backend.
func NewStore(typ string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case TypeMemory:
		return newMemoryStore(opts), nil
	case "", TypeBBolt:
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BBoltPath, opts)
	case TypeMongo, "mongodb":
		if strings.TrimSpace(opts.MongoURI) == "" {
			return nil, fmt.Errorf("mongo storage requires a uri")
		}
		return newMongoStore(opts), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Retention < 0 {
		opts.Retention = 0
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if strings.TrimSpace(opts.MongoDatabase) == "" {
		opts.MongoDatabase = defaultMongoDatabase
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// unavailable wraps an engine failure into the store taxonomy.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}
