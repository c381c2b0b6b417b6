// Package bus holds the business logic for the persisted user state.
package bus

import (
	"context"
	"errors"
	"fmt"
)

var ErrStateNotFound = errors.New("user state not found")

type store interface {
	Create(ctx context.Context, st State) error
	Update(ctx context.Context, st State) error
	Delete(ctx context.Context, employeeNumber string) error
	QueryByEmployeeNumber(ctx context.Context, employeeNumber string) (State, error)
	QueryByUserName(ctx context.Context, userName string) (State, error)
	QueryAll(ctx context.Context) ([]State, error)
	Count(ctx context.Context) (int, error)
}

type Bus struct {
	store store
}

func New(store store) *Bus {
	return &Bus{store: store}
}

func (b *Bus) Create(ctx context.Context, st State) error {
	if st.EmployeeNumber == "" {
		return fmt.Errorf("employee number is required")
	}

	if err := b.store.Create(ctx, st); err != nil {
		return fmt.Errorf("create: %w", err)
	}

	return nil
}

func (b *Bus) Update(ctx context.Context, st State) error {
	if err := b.store.Update(ctx, st); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	return nil
}

// Delete removes one row so that user is reprocessed on the next run.
func (b *Bus) Delete(ctx context.Context, employeeNumber string) error {
	if err := b.store.Delete(ctx, employeeNumber); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

func (b *Bus) QueryByEmployeeNumber(ctx context.Context, employeeNumber string) (State, error) {
	st, err := b.store.QueryByEmployeeNumber(ctx, employeeNumber)
	if err != nil {
		return State{}, fmt.Errorf("queryByEmployeeNumber: %w", err)
	}

	return st, nil
}

func (b *Bus) QueryByUserName(ctx context.Context, userName string) (State, error) {
	st, err := b.store.QueryByUserName(ctx, userName)
	if err != nil {
		return State{}, fmt.Errorf("queryByUserName: %w", err)
	}

	return st, nil
}

func (b *Bus) QueryAll(ctx context.Context) ([]State, error) {
	sts, err := b.store.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("queryAll: %w", err)
	}

	return sts, nil
}

func (b *Bus) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}
