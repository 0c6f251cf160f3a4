package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pagewarden/dispatch/internal/model"
)

const settingsDocID = "singleton"

// MongoStore implements Store over go.mongodb.org/mongo-driver, the
// teacher repo's own storage dependency. Collections: domains, pages,
// workers, limiters, settings, counters (auto-increment ids).
type MongoStore struct {
	client    *mongo.Client
	domains   *mongo.Collection
	pages     *mongo.Collection
	workers   *mongo.Collection
	limiters  *mongo.Collection
	settings  *mongo.Collection
	counters  *mongo.Collection
	logger    *slog.Logger
}

// NewMongoStore connects to uri and returns a Store backed by database.
func NewMongoStore(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		domains:  db.Collection("domains"),
		pages:    db.Collection("pages"),
		workers:  db.Collection("workers"),
		limiters: db.Collection("limiters"),
		settings: db.Collection("settings"),
		counters: db.Collection("counters"),
		logger:   logger.With("component", "catalog_store"),
	}
	return s, nil
}

// EnsureIndexes creates the unique/descending indexes §6 requires. Call
// once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.pages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create url_hash index: %w", err)
	}
	if _, err := s.pages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "domain_id", Value: 1}, {Key: "score", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create score index: %w", err)
	}
	if _, err := s.domains.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create domain name index: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) nextSequence(ctx context.Context, name string) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return out.Seq, nil
}

func (s *MongoStore) ActiveDomains(ctx context.Context) ([]model.Domain, error) {
	cur, err := s.domains.Find(ctx, bson.M{"is_active": true}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: active domains: %v", model.ErrCatalogUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []model.Domain
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: decode active domains: %v", model.ErrCatalogUnavailable, err)
	}
	return out, nil
}

func (s *MongoStore) TopPagesForDomain(ctx context.Context, domainID int64, limit int) ([]model.Page, error) {
	cur, err := s.pages.Find(ctx,
		bson.M{"domain_id": domainID},
		options.Find().
			SetSort(bson.D{{Key: "score", Value: -1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: top pages: %v", model.ErrCatalogUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []model.Page
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: decode top pages: %v", model.ErrCatalogUnavailable, err)
	}
	return out, nil
}

func (s *MongoStore) PageByURLHash(ctx context.Context, hash string) (*model.Page, error) {
	var p model.Page
	err := s.pages.FindOne(ctx, bson.M{"url_hash": hash}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: page by hash: %v", model.ErrCatalogUnavailable, err)
	}
	return &p, nil
}

func (s *MongoStore) DomainByNames(ctx context.Context, names []string) (*model.Domain, error) {
	var d model.Domain
	err := s.domains.FindOne(ctx, bson.M{"name": bson.M{"$in": names}}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: domain by name: %v", model.ErrCatalogUnavailable, err)
	}
	return &d, nil
}

func (s *MongoStore) InsertDomain(ctx context.Context, d *model.Domain) error {
	return withRetry(ctx, func(ctx context.Context) error {
		id, err := s.nextSequence(ctx, "domains")
		if err != nil {
			return err
		}
		d.ID = id
		_, err = s.domains.InsertOne(ctx, d)
		return err
	})
}

func (s *MongoStore) InsertPage(ctx context.Context, p *model.Page) error {
	return withRetry(ctx, func(ctx context.Context) error {
		id, err := s.nextSequence(ctx, "pages")
		if err != nil {
			return err
		}
		p.ID = id
		_, err = s.pages.InsertOne(ctx, p)
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrDuplicate
		}
		return err
	})
}

func (s *MongoStore) AddToPageScore(ctx context.Context, pageID int64, delta float64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pages.UpdateOne(ctx,
			bson.M{"_id": pageID},
			bson.M{"$inc": bson.M{"score": delta}},
		)
		return err
	})
}

func (s *MongoStore) AddToAllPageScores(ctx context.Context, delta float64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.pages.UpdateMany(ctx, bson.M{}, bson.M{"$inc": bson.M{"score": delta}})
		return err
	})
}

func (s *MongoStore) PageCount(ctx context.Context) (int64, error) {
	n, err := s.pages.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("%w: page count: %v", model.ErrCatalogUnavailable, err)
	}
	return n, nil
}

func (s *MongoStore) activeDomainIDs(ctx context.Context) ([]int64, error) {
	domains, err := s.ActiveDomains(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(domains))
	for i, d := range domains {
		ids[i] = d.ID
	}
	return ids, nil
}

func (s *MongoStore) ActiveDomainPageCount(ctx context.Context) (int64, error) {
	ids, err := s.activeDomainIDs(ctx)
	if err != nil {
		return 0, err
	}
	n, err := s.pages.CountDocuments(ctx, bson.M{"domain_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("%w: active domain page count: %v", model.ErrCatalogUnavailable, err)
	}
	return n, nil
}

func (s *MongoStore) PagesForActiveDomains(ctx context.Context, offset, limit int) ([]model.Page, error) {
	ids, err := s.activeDomainIDs(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := s.pages.Find(ctx,
		bson.M{"domain_id": bson.M{"$in": ids}},
		options.Find().
			SetSort(bson.D{{Key: "score", Value: -1}}).
			SetSkip(int64(offset)).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: pages for active domains: %v", model.ErrCatalogUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []model.Page
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: decode pages for active domains: %v", model.ErrCatalogUnavailable, err)
	}
	return out, nil
}

func (s *MongoStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	cur, err := s.workers.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("%w: list workers: %v", model.ErrCatalogUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []model.Worker
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: decode workers: %v", model.ErrCatalogUnavailable, err)
	}
	return out, nil
}

func (s *MongoStore) LimiterFor(ctx context.Context, domainURL string) (*model.Limiter, error) {
	var l model.Limiter
	err := s.limiters.FindOne(ctx, bson.M{"domain_url": domainURL}).Decode(&l)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: limiter for domain: %v", model.ErrCatalogUnavailable, err)
	}
	return &l, nil
}

func (s *MongoStore) UpsertLimiter(ctx context.Context, domainURL string, value int) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.limiters.UpdateOne(ctx,
			bson.M{"domain_url": domainURL},
			bson.M{"$set": bson.M{"value": value}},
			options.Update().SetUpsert(true),
		)
		return err
	})
}

func (s *MongoStore) LoadSettings(ctx context.Context) (*model.Settings, error) {
	var st model.Settings
	err := s.settings.FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&st)
	if err == mongo.ErrNoDocuments {
		return &model.Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load settings: %v", model.ErrCatalogUnavailable, err)
	}
	return &st, nil
}

func (s *MongoStore) SetLambdaScore(ctx context.Context, value float64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := s.settings.UpdateOne(ctx,
			bson.M{"_id": settingsDocID},
			bson.M{"$set": bson.M{"lambda_score": value}},
			options.Update().SetUpsert(true),
		)
		return err
	})
}
