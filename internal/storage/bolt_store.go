package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

const articleBucket = "articles"

var errBucketMissing = fmt.Errorf("article bucket missing")

// boltStore implements a Store backed by BoltDB. Values are JSON-encoded records keyed by id.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	retention       time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, unavailable("open bbolt db", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(articleBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	opts = normalizeOptions(opts)
	store := &boltStore{
		db:              db,
		retention:       opts.Retention,
		cleanupInterval: opts.CleanupInterval,
		now:             opts.Now,
	}
	store.lastCleanup.Store(opts.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) Ping(context.Context) error {
	if b == nil || b.db == nil {
		return unavailable("ping", fmt.Errorf("bbolt store is not open"))
	}
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(articleBucket)) == nil {
			return unavailable("ping", errBucketMissing)
		}
		return nil
	})
}

// Upsert merges rec into the bucket inside a single write transaction.
func (b *boltStore) Upsert(_ context.Context, rec domain.ArticleRecord) (bool, error) {
	if err := validateRecord(rec); err != nil {
		return false, err
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	created := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return errBucketMissing
		}

		key := []byte(rec.ID)
		var existing *domain.ArticleRecord
		if raw := bucket.Get(key); raw != nil {
			var stored domain.ArticleRecord
			if err := json.Unmarshal(raw, &stored); err != nil {
				return fmt.Errorf("decode record %s: %w", rec.ID, err)
			}
			existing = &stored
		}
		created = existing == nil

		buf, err := json.Marshal(merge(existing, rec, now))
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		return bucket.Put(key, buf)
	})
	if err != nil {
		return false, unavailable("upsert", err)
	}
	return created, nil
}

func (b *boltStore) Query(_ context.Context, f domain.Filter, limit int) ([]domain.ArticleRecord, error) {
	var out []domain.ArticleRecord
	err := b.scan(func(rec domain.ArticleRecord) {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, unavailable("query", err)
	}

	sortByRecency(out)
	return applyLimit(out, limit), nil
}

func (b *boltStore) MostRecentFetch(_ context.Context, f domain.Filter) (time.Time, bool, error) {
	var latest time.Time
	found := false
	err := b.scan(func(rec domain.ArticleRecord) {
		if !f.Matches(rec) || rec.LastFetchedAt.IsZero() {
			return
		}
		if !found || rec.LastFetchedAt.After(latest) {
			latest = rec.LastFetchedAt
			found = true
		}
	})
	if err != nil {
		return time.Time{}, false, unavailable("most recent fetch", err)
	}
	return latest, found, nil
}

func (b *boltStore) Count(_ context.Context, f domain.Filter) (int, error) {
	if f.IsZero() {
		n := 0
		err := b.db.View(func(tx *bolt.Tx) error {
			bucket := tx.Bucket([]byte(articleBucket))
			if bucket == nil {
				return errBucketMissing
			}
			n = bucket.Stats().KeyN
			return nil
		})
		if err != nil {
			return 0, unavailable("count", err)
		}
		return n, nil
	}

	n := 0
	err := b.scan(func(rec domain.ArticleRecord) {
		if f.Matches(rec) {
			n++
		}
	})
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// scan decodes every stored record in key order.
func (b *boltStore) scan(fn func(domain.ArticleRecord)) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("bbolt store is not open")
	}
	return b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return errBucketMissing
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rec domain.ArticleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			fn(rec)
			return nil
		})
	})
}

// maybeCleanupExpired removes records outside the retention window on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil || b.retention <= 0 {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return errBucketMissing
		}

		var stale [][]byte
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var rec domain.ArticleRecord
			if err := json.Unmarshal(v, &rec); err != nil || expired(rec, b.retention, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		// deleting through the cursor while iterating skips keys
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("cleanup", err)
	}
	b.lastCleanup.Store(now.Unix())
	return nil
}
