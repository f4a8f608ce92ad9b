package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainrating "stayrate/internal/domain/rating"
)

// DirtyStore persists reconciliation flags. One document per entity keyed by
// the entity key, so repeated marks collapse into a single pending repair.
type DirtyStore struct {
	col *mongo.Collection
}

func NewDirtyStore(db *mongo.Database) *DirtyStore {
	col := db.Collection("app_dirty")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "marked_at", Value: 1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &DirtyStore{col: col}
}

func (s *DirtyStore) MarkDirty(ctx context.Context, entity domainrating.EntityRef, reason string) error {
	doc := dirtyDocument{
		ID:         entity.Key(),
		TargetKind: string(entity.Kind),
		TargetID:   entity.ID,
		Reason:     reason,
		MarkedAt:   time.Now().UTC(),
	}
	_, err := s.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

// ListDirty returns the oldest pending entities first so long-flagged drift is
// repaired ahead of fresh flags.
func (s *DirtyStore) ListDirty(ctx context.Context, limit int) ([]domainrating.EntityRef, error) {
	opts := options.Find().SetSort(bson.D{{Key: "marked_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []domainrating.EntityRef
	for cur.Next(ctx) {
		var doc dirtyDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, domainrating.EntityRef{Kind: domainrating.EntityKind(doc.TargetKind), ID: doc.TargetID})
	}
	return out, cur.Err()
}

func (s *DirtyStore) ClearDirty(ctx context.Context, entity domainrating.EntityRef) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": entity.Key()})
	return err
}

type dirtyDocument struct {
	ID         string    `bson:"_id"`
	TargetKind string    `bson:"target_kind"`
	TargetID   string    `bson:"target_id"`
	Reason     string    `bson:"reason"`
	MarkedAt   time.Time `bson:"marked_at"`
}
