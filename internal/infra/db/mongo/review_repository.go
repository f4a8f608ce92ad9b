package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/version"
	"stayrate/internal/infra/obs"
)

type ReviewRepository struct {
	col *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	col := db.Collection("agg_review")
	// One review per booking, enforced at the storage layer so the constraint
	// holds even when two creates race past the application check.
	unique := mongo.IndexModel{
		Keys:    bson.D{{Key: "booking_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	byEntity := mongo.IndexModel{
		Keys: bson.D{{Key: "target_kind", Value: 1}, {Key: "target_id", Value: 1}, {Key: "created_at", Value: -1}},
	}
	_, _ = col.Indexes().CreateOne(context.Background(), unique)
	_, _ = col.Indexes().CreateOne(context.Background(), byEntity)
	return &ReviewRepository{col: col}
}

func (r *ReviewRepository) ByID(ctx context.Context, id domainreviews.ReviewID) (*domainreviews.Review, error) {
	var doc reviewDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainreviews.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReviewRepository) ByBooking(ctx context.Context, bookingID domainbooking.BookingID) (*domainreviews.Review, error) {
	var doc reviewDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": string(bookingID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainreviews.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReviewRepository) ListByEntity(ctx context.Context, entity domainrating.EntityRef, limit, offset int) ([]*domainreviews.Review, int, error) {
	filter := entityFilter(entity)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out, err := decodeReviews(ctx, cur)
	if err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *ReviewRepository) ActiveByEntity(ctx context.Context, entity domainrating.EntityRef) ([]*domainreviews.Review, error) {
	cur, err := r.col.Find(ctx, entityFilter(entity))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	return decodeReviews(ctx, cur)
}

// Save follows the conditional-write discipline of the booking store. The
// unique booking index turns a racing duplicate insert into ErrAlreadyReviewed.
func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	doc := newReviewDocument(review)
	filter := bson.M{"_id": doc.ID, "version": review.Version}
	doc.Version = review.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if review.Version == 0 {
				return domainreviews.ErrAlreadyReviewed
			}
			obs.ObserveVersionConflict("review")
			return version.ErrConflict
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		obs.ObserveVersionConflict("review")
		return version.ErrConflict
	}
	review.Version = doc.Version
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id domainreviews.ReviewID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainreviews.ErrNotFound
	}
	return nil
}

func entityFilter(entity domainrating.EntityRef) bson.M {
	return bson.M{
		"target_kind": string(entity.Kind),
		"target_id":   entity.ID,
		"status":      string(domainreviews.StatusActive),
	}
}

func decodeReviews(ctx context.Context, cur *mongo.Cursor) ([]*domainreviews.Review, error) {
	var out []*domainreviews.Review
	for cur.Next(ctx) {
		var doc reviewDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

type reviewDocument struct {
	ID            string                 `bson:"_id"`
	BookingID     string                 `bson:"booking_id"`
	AuthorID      string                 `bson:"author_id"`
	TargetKind    string                 `bson:"target_kind"`
	TargetID      string                 `bson:"target_id"`
	Rating        int                    `bson:"rating"`
	Title         string                 `bson:"title,omitempty"`
	Content       string                 `bson:"content"`
	HelpfulVoters []string               `bson:"helpful_voters,omitempty"`
	AdminResponse *adminResponseDocument `bson:"admin_response,omitempty"`
	Status        string                 `bson:"status"`
	IsEdited      bool                   `bson:"is_edited"`
	EditedAt      int64                  `bson:"edited_at,omitempty"`
	CreatedAt     int64                  `bson:"created_at"`
	UpdatedAt     int64                  `bson:"updated_at"`
	Version       int64                  `bson:"version"`
}

type adminResponseDocument struct {
	Content     string `bson:"content"`
	RespondedBy string `bson:"responded_by"`
	RespondedAt int64  `bson:"responded_at"`
}

func newReviewDocument(review *domainreviews.Review) reviewDocument {
	voters := make([]string, 0, len(review.HelpfulVoters))
	for voter := range review.HelpfulVoters {
		voters = append(voters, voter)
	}
	doc := reviewDocument{
		ID:            string(review.ID),
		BookingID:     string(review.BookingID),
		AuthorID:      review.AuthorID,
		TargetKind:    string(review.Target.Kind),
		TargetID:      review.Target.ID,
		Rating:        review.Rating,
		Title:         review.Title,
		Content:       review.Content,
		HelpfulVoters: voters,
		Status:        string(review.Status),
		IsEdited:      review.IsEdited,
		CreatedAt:     review.CreatedAt.UnixMilli(),
		UpdatedAt:     review.UpdatedAt.UnixMilli(),
		Version:       review.Version,
	}
	if !review.EditedAt.IsZero() {
		doc.EditedAt = review.EditedAt.UnixMilli()
	}
	if review.AdminResponse != nil {
		doc.AdminResponse = &adminResponseDocument{
			Content:     review.AdminResponse.Content,
			RespondedBy: review.AdminResponse.RespondedBy,
			RespondedAt: review.AdminResponse.RespondedAt.UnixMilli(),
		}
	}
	return doc
}

func (d reviewDocument) toAggregate() *domainreviews.Review {
	voters := make(map[string]struct{}, len(d.HelpfulVoters))
	for _, voter := range d.HelpfulVoters {
		voters[voter] = struct{}{}
	}
	review := &domainreviews.Review{
		ID:            domainreviews.ReviewID(d.ID),
		BookingID:     domainbooking.BookingID(d.BookingID),
		AuthorID:      d.AuthorID,
		Target:        domainrating.EntityRef{Kind: domainrating.EntityKind(d.TargetKind), ID: d.TargetID},
		Rating:        d.Rating,
		Title:         d.Title,
		Content:       d.Content,
		HelpfulVoters: voters,
		Status:        domainreviews.Status(d.Status),
		IsEdited:      d.IsEdited,
		CreatedAt:     timestampToTime(d.CreatedAt),
		UpdatedAt:     timestampToTime(d.UpdatedAt),
		Version:       d.Version,
	}
	if d.EditedAt != 0 {
		review.EditedAt = timestampToTime(d.EditedAt)
	}
	if d.AdminResponse != nil {
		review.AdminResponse = &domainreviews.AdminResponse{
			Content:     d.AdminResponse.Content,
			RespondedBy: d.AdminResponse.RespondedBy,
			RespondedAt: timestampToTime(d.AdminResponse.RespondedAt),
		}
	}
	return review
}
