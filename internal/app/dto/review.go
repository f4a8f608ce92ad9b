package dto

import (
	"time"

	domainreviews "stayrate/internal/domain/reviews"
)

// Review is the public review payload.
type Review struct {
	ID            string         `json:"id"`
	BookingID     string         `json:"booking_id"`
	AuthorID      string         `json:"author_id"`
	TargetKind    string         `json:"target_kind"`
	TargetID      string         `json:"target_id"`
	Rating        int            `json:"rating"`
	Title         string         `json:"title,omitempty"`
	Content       string         `json:"content"`
	HelpfulCount  int            `json:"helpful_count"`
	AdminResponse *AdminResponse `json:"admin_response,omitempty"`
	Status        string         `json:"status"`
	IsEdited      bool           `json:"is_edited"`
	EditedAt      *time.Time     `json:"edited_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type AdminResponse struct {
	Content     string    `json:"content"`
	RespondedBy string    `json:"responded_by"`
	RespondedAt time.Time `json:"responded_at"`
}

type ReviewCollection struct {
	Items []Review `json:"items"`
	Total int      `json:"total"`
}

// MapReview builds a DTO from a domain review.
func MapReview(review *domainreviews.Review) Review {
	if review == nil {
		return Review{}
	}
	out := Review{
		ID:           string(review.ID),
		BookingID:    string(review.BookingID),
		AuthorID:     review.AuthorID,
		TargetKind:   string(review.Target.Kind),
		TargetID:     review.Target.ID,
		Rating:       review.Rating,
		Title:        review.Title,
		Content:      review.Content,
		HelpfulCount: review.HelpfulCount(),
		Status:       string(review.Status),
		IsEdited:     review.IsEdited,
		CreatedAt:    review.CreatedAt,
	}
	if review.IsEdited {
		edited := review.EditedAt
		out.EditedAt = &edited
	}
	if review.AdminResponse != nil {
		out.AdminResponse = &AdminResponse{
			Content:     review.AdminResponse.Content,
			RespondedBy: review.AdminResponse.RespondedBy,
			RespondedAt: review.AdminResponse.RespondedAt,
		}
	}
	return out
}

// MapReviews converts a page of domain reviews.
func MapReviews(items []*domainreviews.Review, total int) ReviewCollection {
	out := ReviewCollection{Items: make([]Review, 0, len(items)), Total: total}
	for _, r := range items {
		out.Items = append(out.Items, MapReview(r))
	}
	return out
}
