package memory

import (
	"context"
	"sync"

	"stayrate/internal/app/policies"
	domainrating "stayrate/internal/domain/rating"
)

// DirtyQueue tracks entities flagged for reconciliation. Marking is
// idempotent; the latest reason wins.
type DirtyQueue struct {
	mu      sync.Mutex
	reasons map[domainrating.EntityRef]string
}

func NewDirtyQueue() *DirtyQueue {
	return &DirtyQueue{reasons: make(map[domainrating.EntityRef]string)}
}

func (q *DirtyQueue) MarkDirty(ctx context.Context, entity domainrating.EntityRef, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reasons[entity] = reason
	return nil
}

func (q *DirtyQueue) ListDirty(ctx context.Context, limit int) ([]domainrating.EntityRef, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domainrating.EntityRef, 0, len(q.reasons))
	for entity := range q.reasons {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, entity)
	}
	return out, nil
}

func (q *DirtyQueue) ClearDirty(ctx context.Context, entity domainrating.EntityRef) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.reasons, entity)
	return nil
}

var _ policies.DirtyQueue = (*DirtyQueue)(nil)
