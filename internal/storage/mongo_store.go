package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// newsCollection matches the collection the web front end already reads.
const (
	newsCollection        = "newsarticles"
	mongoSelectionTimeout = 5 * time.Second
)

// articleDocument is the persisted shape; field names follow the existing collection schema.
type articleDocument struct {
	ArticleID    string     `bson:"articleId"`
	ArticleTitle plainText  `bson:"articleTitle"`
	Text         plainText  `bson:"text"`
	Image        imageRef   `bson:"image"`
	Byline       *string    `bson:"byline"`
	Date         *time.Time `bson:"date"`
	ExternalURL  *string    `bson:"externalUrl"`
	Category     string     `bson:"category"`
	Country      string     `bson:"country"`
	Language     string     `bson:"language"`
	RawData      bson.Raw   `bson:"rawData,omitempty"`
	LastFetched  time.Time  `bson:"lastFetched"`
	CreatedAt    time.Time  `bson:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt"`
}

type plainText struct {
	PlainText string `bson:"plainText"`
}

type imageRef struct {
	URL *string `bson:"url"`
}

// mongoStore connects on first use and reuses the client afterwards.
type mongoStore struct {
	uri    string
	dbName string
	now    func() time.Time

	mu     sync.Mutex
	client *mongo.Client
	coll   *mongo.Collection
}

func newMongoStore(opts Options) *mongoStore {
	opts = normalizeOptions(opts)
	return &mongoStore{
		uri:    opts.MongoURI,
		dbName: opts.MongoDatabase,
		now:    opts.Now,
	}
}

// filterCollation compares strings ignoring case so language tags match the way
// domain.Filter.Matches does on the other backends.
var filterCollation = &options.Collation{Locale: "en", Strength: 2}

func queryOptions(limit int) *options.FindOptions {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "articleId", Value: 1}}).
		SetCollation(filterCollation)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func recencyOptions() *options.FindOneOptions {
	return options.FindOne().
		SetSort(bson.D{{Key: "lastFetched", Value: -1}}).
		SetProjection(bson.M{"lastFetched": 1}).
		SetCollation(filterCollation)
}

func countOptions() *options.CountOptions {
	return options.Count().SetCollation(filterCollation)
}

func (m *mongoStore) collection(ctx context.Context) (*mongo.Collection, error) {
	_, coll, err := m.connect(ctx)
	return coll, err
}

// connect dials once and returns the client and collection captured under the lock.
func (m *mongoStore) connect(ctx context.Context) (*mongo.Client, *mongo.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.coll != nil {
		return m.client, m.coll, nil
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(m.uri).
		SetServerSelectionTimeout(mongoSelectionTimeout))
	if err != nil {
		return nil, nil, unavailable("connect", err)
	}

	coll := client.Database(m.dbName).Collection(newsCollection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "articleId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "lastFetched", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, unavailable("ensure indexes", err)
	}

	m.client = client
	m.coll = coll
	return client, coll, nil
}

func (m *mongoStore) Upsert(ctx context.Context, rec domain.ArticleRecord) (bool, error) {
	if err := validateRecord(rec); err != nil {
		return false, err
	}
	coll, err := m.collection(ctx)
	if err != nil {
		return false, err
	}

	now := m.now()
	lastFetched := rec.LastFetchedAt
	if lastFetched.IsZero() {
		lastFetched = now
	}

	set := bson.M{
		"articleTitle": plainText{PlainText: rec.Title},
		"text":         plainText{PlainText: rec.BodyText},
		"image":        imageRef{URL: rec.ImageURL},
		"byline":       rec.Byline,
		"date":         rec.PublishedAt,
		"externalUrl":  rec.ExternalURL,
		"category":     rec.Category,
		"country":      rec.Country,
		"language":     rec.Language,
		"updatedAt":    now,
	}
	if raw := rawToBSON(rec.RawSource); raw != nil {
		set["rawData"] = raw
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
		"$max":         bson.M{"lastFetched": lastFetched},
	}

	res, err := coll.UpdateOne(ctx, bson.M{"articleId": rec.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, unavailable("upsert", err)
	}
	return res.UpsertedCount > 0, nil
}

func (m *mongoStore) Query(ctx context.Context, f domain.Filter, limit int) ([]domain.ArticleRecord, error) {
	coll, err := m.collection(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find(ctx, filterDocument(f), queryOptions(limit))
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer cur.Close(ctx)

	var docs []articleDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("decode query", err)
	}

	out := make([]domain.ArticleRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.record())
	}
	return out, nil
}

func (m *mongoStore) MostRecentFetch(ctx context.Context, f domain.Filter) (time.Time, bool, error) {
	coll, err := m.collection(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	var doc struct {
		LastFetched time.Time `bson:"lastFetched"`
	}
	err = coll.FindOne(ctx, filterDocument(f), recencyOptions()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, unavailable("most recent fetch", err)
	}
	if doc.LastFetched.IsZero() {
		return time.Time{}, false, nil
	}
	return doc.LastFetched, true, nil
}

func (m *mongoStore) Count(ctx context.Context, f domain.Filter) (int, error) {
	coll, err := m.collection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, filterDocument(f), countOptions())
	if err != nil {
		return 0, unavailable("count", err)
	}
	return int(n), nil
}

func (m *mongoStore) Ping(ctx context.Context) error {
	client, _, err := m.connect(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (m *mongoStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoSelectionTimeout)
	defer cancel()
	err := m.client.Disconnect(ctx)
	m.client, m.coll = nil, nil
	if err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func filterDocument(f domain.Filter) bson.M {
	doc := bson.M{}
	if f.Category != "" {
		doc["category"] = f.Category
	}
	if f.Country != "" {
		doc["country"] = f.Country
	}
	if f.Language != "" {
		doc["language"] = f.Language
	}
	return doc
}

func (d articleDocument) record() domain.ArticleRecord {
	rec := domain.ArticleRecord{
		ID:            d.ArticleID,
		Title:         d.ArticleTitle.PlainText,
		BodyText:      d.Text.PlainText,
		ImageURL:      d.Image.URL,
		Byline:        d.Byline,
		ExternalURL:   d.ExternalURL,
		PublishedAt:   d.Date,
		Category:      d.Category,
		Country:       d.Country,
		Language:      d.Language,
		LastFetchedAt: d.LastFetched,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if len(d.RawData) > 0 {
		if raw, err := bson.MarshalExtJSON(d.RawData, false, false); err == nil {
			rec.RawSource = json.RawMessage(raw)
		}
	}
	return rec
}

// rawToBSON converts the provider payload into a document; non-object payloads are dropped.
func rawToBSON(raw json.RawMessage) bson.M {
	if len(raw) == 0 {
		return nil
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil
	}
	return doc
}
