// Package statedb implements the user-state store on top of the local sqlite
// database.
package statedb

import (
	"context"
	"fmt"

	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/trace"
)

type Store struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewStore(db *sqlx.DB, tracer trace.Tracer) *Store {
	return &Store{
		db:     db,
		tracer: tracer,
	}
}

func (s *Store) Create(ctx context.Context, st stateBus.State) error {
	const q = `
	INSERT INTO user_state (employee_number,user_name,secondary_email,phone_number,home_phone_number,directory_id,directory_created_at,last_updated)
	VALUES (:employee_number,:user_name,:secondary_email,:phone_number,:home_phone_number,:directory_id,:directory_created_at,:last_updated)
	`

	ctx, span := s.tracer.Start(ctx, "userstate.store.create")
	defer span.End()

	if _, err := s.db.NamedExecContext(ctx, q, fromBusState(st)); err != nil {
		return fmt.Errorf("namedExecContext: %w", err)
	}

	return nil
}

func (s *Store) Update(ctx context.Context, st stateBus.State) error {
	const q = `
	UPDATE user_state
	SET
		user_name = :user_name,
		secondary_email = :secondary_email,
		phone_number = :phone_number,
		home_phone_number = :home_phone_number,
		directory_id = :directory_id,
		directory_created_at = :directory_created_at,
		last_updated = :last_updated
	WHERE
		employee_number = :employee_number;
	`

	ctx, span := s.tracer.Start(ctx, "userstate.store.update")
	defer span.End()

	if _, err := s.db.NamedExecContext(ctx, q, fromBusState(st)); err != nil {
		return fmt.Errorf("namedExecContext: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, employeeNumber string) error {
	const q = `DELETE FROM user_state WHERE employee_number = :employee_number;`

	ctx, span := s.tracer.Start(ctx, "userstate.store.delete")
	defer span.End()

	data := map[string]any{
		"employee_number": employeeNumber,
	}

	if _, err := s.db.NamedExecContext(ctx, q, data); err != nil {
		return fmt.Errorf("namedExecContext: %w", err)
	}

	return nil
}

func (s *Store) QueryByEmployeeNumber(ctx context.Context, employeeNumber string) (stateBus.State, error) {
	data := map[string]any{
		"employee_number": employeeNumber,
	}

	const q = `SELECT * FROM user_state WHERE employee_number = :employee_number;`

	ctx, span := s.tracer.Start(ctx, "userstate.store.queryByEmployeeNumber")
	defer span.End()

	rows, err := s.db.NamedQueryContext(ctx, q, data)
	if err != nil {
		return stateBus.State{}, fmt.Errorf("namedQueryContext: %w", err)
	}

	defer rows.Close()

	if !rows.Next() {
		return stateBus.State{}, stateBus.ErrStateNotFound
	}

	var st userState
	if err := rows.StructScan(&st); err != nil {
		return stateBus.State{}, fmt.Errorf("structScan: %w", err)
	}

	return toBusState(st), nil
}

func (s *Store) QueryByUserName(ctx context.Context, userName string) (stateBus.State, error) {
	data := map[string]any{
		"user_name": userName,
	}

	const q = `SELECT * FROM user_state WHERE user_name = :user_name;`

	ctx, span := s.tracer.Start(ctx, "userstate.store.queryByUserName")
	defer span.End()

	rows, err := s.db.NamedQueryContext(ctx, q, data)
	if err != nil {
		return stateBus.State{}, fmt.Errorf("namedQueryContext: %w", err)
	}

	defer rows.Close()

	if !rows.Next() {
		return stateBus.State{}, stateBus.ErrStateNotFound
	}

	var st userState
	if err := rows.StructScan(&st); err != nil {
		return stateBus.State{}, fmt.Errorf("structScan: %w", err)
	}

	return toBusState(st), nil
}

func (s *Store) QueryAll(ctx context.Context) ([]stateBus.State, error) {
	const q = `SELECT * FROM user_state ORDER BY employee_number;`

	ctx, span := s.tracer.Start(ctx, "userstate.store.queryAll")
	defer span.End()

	var sts []userState
	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("namedQueryContext: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var st userState
		if err := rows.StructScan(&st); err != nil {
			return nil, fmt.Errorf("structScan: %w", err)
		}
		sts = append(sts, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("preparing next row to scan: %w", err)
	}

	busStates := make([]stateBus.State, len(sts))
	for i, st := range sts {
		busStates[i] = toBusState(st)
	}

	return busStates, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(1) AS count FROM user_state;`

	ctx, span := s.tracer.Start(ctx, "userstate.store.count")
	defer span.End()

	var count struct {
		Count int `db:"count"`
	}

	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("namedQueryContext: %w", err)
	}

	defer rows.Close()

	if !rows.Next() {
		return 0, fmt.Errorf("moving cursor to next row")
	}

	if err := rows.StructScan(&count); err != nil {
		return 0, fmt.Errorf("structScan: %w", err)
	}

	return count.Count, nil
}
