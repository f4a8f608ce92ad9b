package policies

import (
	"context"

	"stayrate/internal/domain/rating"
)

// DirtyMarker flags entities whose aggregate may have drifted, typically
// because a mutation could not confirm its delta landed. The reconciliation
// sweep drains the flagged set.
type DirtyMarker interface {
	MarkDirty(ctx context.Context, entity rating.EntityRef, reason string) error
}

// DirtyQueue is the full reconciliation queue used by the sweep.
type DirtyQueue interface {
	DirtyMarker
	ListDirty(ctx context.Context, limit int) ([]rating.EntityRef, error)
	ClearDirty(ctx context.Context, entity rating.EntityRef) error
}
