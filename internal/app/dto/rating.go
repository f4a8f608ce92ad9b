package dto

import (
	"time"

	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
)

// Aggregate is the public rating summary payload. The histogram always
// carries all five buckets.
type Aggregate struct {
	TargetKind string           `json:"target_kind"`
	TargetID   string           `json:"target_id"`
	Histogram  map[string]int64 `json:"histogram"`
	Count      int64            `json:"count"`
	Average    float64          `json:"average"`
	Version    int64            `json:"version"`
}

// MapAggregate builds a DTO from a domain aggregate.
func MapAggregate(agg domainrating.Aggregate) Aggregate {
	hist := make(map[string]int64, 5)
	for r := 1; r <= 5; r++ {
		hist[ratingKeys[r-1]] = agg.Bucket(r)
	}
	return Aggregate{
		TargetKind: string(agg.Entity.Kind),
		TargetID:   agg.Entity.ID,
		Histogram:  hist,
		Count:      agg.Count,
		Average:    agg.Average,
		Version:    agg.Version,
	}
}

var ratingKeys = [5]string{"1", "2", "3", "4", "5"}

// Eligibility is the answer to "may this user review this booking".
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Reason   string   `json:"reason,omitempty"`
	Booking  *Booking `json:"booking,omitempty"`
}

// Booking is the snapshot returned alongside a positive eligibility answer so
// the caller does not need to re-fetch it.
type Booking struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
	Status     string `json:"status"`
	HasReview  bool   `json:"has_review"`
	ReviewID   string `json:"review_id,omitempty"`
}

// MapBooking builds the snapshot DTO.
func MapBooking(b *domainbooking.Booking) *Booking {
	if b == nil {
		return nil
	}
	return &Booking{
		ID:         string(b.ID),
		UserID:     b.UserID,
		TargetKind: string(b.Target.Kind),
		TargetID:   b.Target.ID,
		Status:     string(b.Status),
		HasReview:  b.HasReview,
		ReviewID:   b.ReviewID,
	}
}

// BackrefReport describes one booking back-reference check.
type BackrefReport struct {
	ReviewID   string `json:"review_id"`
	BookingID  string `json:"booking_id,omitempty"`
	Consistent bool   `json:"consistent"`
	Repaired   bool   `json:"repaired"`
	Action     string `json:"action,omitempty"`
}

// RepairReport describes one verify-and-repair pass over an entity.
type RepairReport struct {
	TargetKind    string    `json:"target_kind"`
	TargetID      string    `json:"target_id"`
	Consistent    bool      `json:"consistent"`
	Repaired      bool      `json:"repaired"`
	Discrepancies []string  `json:"discrepancies,omitempty"`
	Stored        Aggregate `json:"stored"`
	Computed      Aggregate `json:"computed"`
	CheckedAt     time.Time `json:"checked_at"`
}
