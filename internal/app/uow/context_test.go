package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
)

type stubUnit struct {
	committed  bool
	rolledBack bool
}

func (u *stubUnit) Bookings() domainbooking.Repository  { return nil }
func (u *stubUnit) Reviews() domainreviews.Repository   { return nil }
func (u *stubUnit) Aggregates() domainrating.Repository { return nil }
func (u *stubUnit) Commit(ctx context.Context) error    { u.committed = true; return nil }
func (u *stubUnit) Rollback(ctx context.Context) error  { u.rolledBack = true; return nil }

type sessionKey struct{}

type sessionUnit struct {
	stubUnit
	injections int
}

func (u *sessionUnit) InjectContext(ctx context.Context) context.Context {
	u.injections++
	return context.WithValue(ctx, sessionKey{}, "open")
}

type stubFactory struct {
	unit UnitOfWork
	err  error
}

func (f stubFactory) Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error) {
	return f.unit, f.err
}

func TestEnsureThreadsUnitSessionContext(t *testing.T) {
	unit := &sessionUnit{}
	got, ctx, finish, err := Ensure(context.Background(), stubFactory{unit: unit})
	require.NoError(t, err)
	assert.Same(t, unit, got)

	// Repository calls made with the returned context must see the session
	// the unit opened, or its transaction covers nothing.
	assert.Equal(t, "open", ctx.Value(sessionKey{}))
	assert.Equal(t, 1, unit.injections)

	bound, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, unit, bound)

	require.NoError(t, finish(nil))
	assert.True(t, unit.committed)
	assert.False(t, unit.rolledBack)
}

func TestEnsureRollsBackOnError(t *testing.T) {
	unit := &sessionUnit{}
	_, _, finish, err := Ensure(context.Background(), stubFactory{unit: unit})
	require.NoError(t, err)

	boom := errors.New("attach failed")
	assert.ErrorIs(t, finish(boom), boom)
	assert.True(t, unit.rolledBack)
	assert.False(t, unit.committed)
}

func TestEnsureInheritsOpenUnit(t *testing.T) {
	outer := &sessionUnit{}
	ctx := outer.InjectContext(context.Background())
	ctx = ContextWithUnitOfWork(ctx, outer)

	got, innerCtx, finish, err := Ensure(ctx, stubFactory{unit: &sessionUnit{}})
	require.NoError(t, err)
	assert.Same(t, outer, got)
	assert.Equal(t, ctx, innerCtx)
	assert.Equal(t, 1, outer.injections)

	// The outer owner controls the boundary; finishing the inner scope must
	// not commit or roll back.
	require.NoError(t, finish(nil))
	assert.False(t, outer.committed)
	assert.False(t, outer.rolledBack)
}

func TestEnsureWithoutUnitOrFactory(t *testing.T) {
	_, _, _, err := Ensure(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnitOfWorkMissing)
}

func TestEnsureWorksWithoutInjector(t *testing.T) {
	unit := &stubUnit{}
	got, ctx, finish, err := Ensure(context.Background(), stubFactory{unit: unit})
	require.NoError(t, err)
	assert.Same(t, unit, got)

	bound, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, unit, bound)
	require.NoError(t, finish(nil))
	assert.True(t, unit.committed)
}
