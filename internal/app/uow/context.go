package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

// ContextWithUnitOfWork stores the provided unit of work in context.
func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

// FromContext retrieves a unit of work from context if present.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	val := ctx.Value(ctxKey{})
	if val == nil {
		return nil, false
	}
	unit, ok := val.(UnitOfWork)
	return unit, ok
}

// ContextInjector is implemented by units that must decorate the request
// context before repository calls, for example to carry a database session so
// the stores participate in the unit's transaction.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

// Ensure returns the unit bound to the context, or begins a new one from the
// factory. The finish func commits on nil error and rolls back otherwise; for
// an inherited unit both are no-ops because the outer owner controls the
// boundary.
func Ensure(ctx context.Context, factory Factory) (UnitOfWork, context.Context, func(error) error, error) {
	if unit, ok := FromContext(ctx); ok {
		return unit, ctx, func(err error) error { return err }, nil
	}
	if factory == nil {
		return nil, ctx, nil, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, TxOptions{})
	if err != nil {
		return nil, ctx, nil, err
	}
	if injector, ok := unit.(ContextInjector); ok {
		ctx = injector.InjectContext(ctx)
	}
	ctx = ContextWithUnitOfWork(ctx, unit)
	finish := func(err error) error {
		if err != nil {
			_ = unit.Rollback(ctx)
			return err
		}
		return unit.Commit(ctx)
	}
	return unit, ctx, finish, nil
}
