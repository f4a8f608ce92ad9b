package rating

import "time"

// AggregateRepaired is recorded when reconciliation replaced a drifted
// aggregate with one rebuilt from the review ledger.
type AggregateRepaired struct {
	Entity     EntityRef
	OldCount   int64
	NewCount   int64
	NewAverage float64
	At         time.Time
}

func (e AggregateRepaired) EventName() string     { return "rating.repaired" }
func (e AggregateRepaired) AggregateID() string   { return e.Entity.Key() }
func (e AggregateRepaired) OccurredAt() time.Time { return e.At }
