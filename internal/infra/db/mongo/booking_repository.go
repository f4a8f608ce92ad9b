package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	"stayrate/internal/domain/shared/version"
	"stayrate/internal/infra/obs"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	col := db.Collection("agg_booking")
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "review_id", Value: 1}},
		Options: options.Index().SetSparse(true),
	}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &BookingRepository{col: col}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) ByReviewID(ctx context.Context, reviewID string) (*domainbooking.Booking, error) {
	var doc bookingDocument
	filter := bson.M{"has_review": true, "review_id": reviewID}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save writes conditionally on the version the caller loaded. A stale write
// matches nothing and is rejected with version.ErrConflict.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			obs.ObserveVersionConflict("booking")
			return version.ErrConflict
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		obs.ObserveVersionConflict("booking")
		return version.ErrConflict
	}
	b.Version = doc.Version
	return nil
}

type bookingDocument struct {
	ID         string `bson:"_id"`
	UserID     string `bson:"user_id"`
	TargetKind string `bson:"target_kind"`
	TargetID   string `bson:"target_id"`
	Status     string `bson:"status"`
	HasReview  bool   `bson:"has_review"`
	ReviewID   string `bson:"review_id,omitempty"`
	CreatedAt  int64  `bson:"created_at"`
	UpdatedAt  int64  `bson:"updated_at"`
	Version    int64  `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:         string(b.ID),
		UserID:     b.UserID,
		TargetKind: string(b.Target.Kind),
		TargetID:   b.Target.ID,
		Status:     string(b.Status),
		HasReview:  b.HasReview,
		ReviewID:   b.ReviewID,
		CreatedAt:  b.CreatedAt.UnixMilli(),
		UpdatedAt:  b.UpdatedAt.UnixMilli(),
		Version:    b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:        domainbooking.BookingID(d.ID),
		UserID:    d.UserID,
		Target:    domainrating.EntityRef{Kind: domainrating.EntityKind(d.TargetKind), ID: d.TargetID},
		Status:    domainbooking.Status(d.Status),
		HasReview: d.HasReview,
		ReviewID:  d.ReviewID,
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
		Version:   d.Version,
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
