package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainrating "stayrate/internal/domain/rating"
	"stayrate/internal/domain/shared/version"
	"stayrate/internal/infra/obs"
)

type AggregateRepository struct {
	col *mongo.Collection
}

func NewAggregateRepository(db *mongo.Database) *AggregateRepository {
	return &AggregateRepository{col: db.Collection("agg_rating")}
}

// Get returns the stored aggregate, or the empty version-0 aggregate for an
// entity nobody has rated yet.
func (r *AggregateRepository) Get(ctx context.Context, entity domainrating.EntityRef) (domainrating.Aggregate, error) {
	var doc aggregateDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": entity.Key()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainrating.NewAggregate(entity), nil
		}
		return domainrating.Aggregate{}, err
	}
	return doc.toAggregate(), nil
}

// Save expects the version already advanced by Apply or Recomputed and writes
// only when the stored document is still one version behind.
func (r *AggregateRepository) Save(ctx context.Context, agg domainrating.Aggregate) error {
	doc := newAggregateDocument(agg)
	filter := bson.M{"_id": doc.ID, "version": agg.Version - 1}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			obs.ObserveVersionConflict("rating")
			return version.ErrConflict
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		obs.ObserveVersionConflict("rating")
		return version.ErrConflict
	}
	return nil
}

type aggregateDocument struct {
	ID         string   `bson:"_id"`
	TargetKind string   `bson:"target_kind"`
	TargetID   string   `bson:"target_id"`
	Buckets    [5]int64 `bson:"buckets"`
	Count      int64    `bson:"count"`
	Average    float64  `bson:"average"`
	Version    int64    `bson:"version"`
}

func newAggregateDocument(agg domainrating.Aggregate) aggregateDocument {
	return aggregateDocument{
		ID:         agg.Entity.Key(),
		TargetKind: string(agg.Entity.Kind),
		TargetID:   agg.Entity.ID,
		Buckets:    agg.Buckets,
		Count:      agg.Count,
		Average:    agg.Average,
		Version:    agg.Version,
	}
}

func (d aggregateDocument) toAggregate() domainrating.Aggregate {
	return domainrating.Aggregate{
		Entity:  domainrating.EntityRef{Kind: domainrating.EntityKind(d.TargetKind), ID: d.TargetID},
		Buckets: d.Buckets,
		Count:   d.Count,
		Average: d.Average,
		Version: d.Version,
	}
}
