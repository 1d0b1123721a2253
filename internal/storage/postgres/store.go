// Package postgres provides a pgx-backed store that satisfies the repository
// and writer interfaces of the trip, expense and balance services.
//
// Schema migrations live in migrations/ and are embedded; see Migrate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
	"github.com/tinoosan/tripsettle/internal/meta"
	"github.com/tinoosan/tripsettle/internal/slug"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// SeedDev inserts a demo trip with three participants for local testing.
func (s *Store) SeedDev(ctx context.Context) (ledger.Trip, error) {
	t := ledger.Trip{
		ID:           uuid.New(),
		Name:         "Demo trip",
		OwnerID:      "alice",
		Participants: []string{"alice", "bob", "carol"},
		Metadata:     meta.Metadata{},
		CreatedAt:    time.Now().UTC(),
	}
	t.Slug = slug.ForTrip(t.Name, t.ID)
	return s.CreateTrip(ctx, t)
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", errs.ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", errs.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func metadataJSON(m meta.Metadata) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m.MarshalJSON()
}

func decodeMetadata(b []byte) meta.Metadata {
	m := meta.Metadata{}
	if len(b) > 0 {
		_ = m.UnmarshalJSON(b)
	}
	return m
}

// --- Trips ---

func (s *Store) CreateTrip(ctx context.Context, t ledger.Trip) (ledger.Trip, error) {
	md, err := metadataJSON(t.Metadata)
	if err != nil {
		return ledger.Trip{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Trip{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `
        insert into trips (id, name, slug, owner_id, metadata, created_at)
        values ($1,$2,$3,$4,$5,$6)
    `, t.ID, t.Name, t.Slug, t.OwnerID, md, t.CreatedAt); err != nil {
		return ledger.Trip{}, mapErr(err)
	}
	if err := insertParticipants(ctx, tx, t.ID, t.Participants); err != nil {
		return ledger.Trip{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Trip{}, err
	}
	return t, nil
}

// UpdateTrip rewrites the mutable trip fields and its participant list.
func (s *Store) UpdateTrip(ctx context.Context, t ledger.Trip) (ledger.Trip, error) {
	md, err := metadataJSON(t.Metadata)
	if err != nil {
		return ledger.Trip{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Trip{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	ct, err := tx.Exec(ctx, `update trips set name=$1, metadata=$2 where id=$3`, t.Name, md, t.ID)
	if err != nil {
		return ledger.Trip{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Trip{}, errs.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `delete from trip_participants where trip_id=$1`, t.ID); err != nil {
		return ledger.Trip{}, err
	}
	if err := insertParticipants(ctx, tx, t.ID, t.Participants); err != nil {
		return ledger.Trip{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Trip{}, err
	}
	return t, nil
}

func insertParticipants(ctx context.Context, q querier, tripID uuid.UUID, ids []string) error {
	for i, p := range ids {
		if _, err := q.Exec(ctx, `
            insert into trip_participants (trip_id, participant_id, position) values ($1,$2,$3)
        `, tripID, p, i); err != nil {
			return fmt.Errorf("insert participant: %w", mapErr(err))
		}
	}
	return nil
}

func (s *Store) GetTrip(ctx context.Context, id uuid.UUID) (ledger.Trip, error) {
	var t ledger.Trip
	var md []byte
	err := s.pool.QueryRow(ctx, `
        select id, name, slug, owner_id, metadata, created_at from trips where id = $1
    `, id).Scan(&t.ID, &t.Name, &t.Slug, &t.OwnerID, &md, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Trip{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Trip{}, err
	}
	t.Metadata = decodeMetadata(md)
	parts, err := s.participants(ctx, []uuid.UUID{t.ID})
	if err != nil {
		return ledger.Trip{}, err
	}
	t.Participants = parts[t.ID]
	return t, nil
}

func (s *Store) ListTrips(ctx context.Context, ownerID string) ([]ledger.Trip, error) {
	rows, err := s.pool.Query(ctx, `
        select id, name, slug, owner_id, metadata, created_at
        from trips
        where owner_id = $1
        order by created_at asc, id asc
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Trip, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var t ledger.Trip
		var md []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.OwnerID, &md, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Metadata = decodeMetadata(md)
		out = append(out, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	parts, err := s.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Participants = parts[out[i].ID]
	}
	return out, nil
}

func (s *Store) participants(ctx context.Context, tripIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	rows, err := s.pool.Query(ctx, `
        select trip_id, participant_id from trip_participants
        where trip_id = any($1)
        order by trip_id, position
    `, tripIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]string, len(tripIDs))
	for rows.Next() {
		var tripID uuid.UUID
		var p string
		if err := rows.Scan(&tripID, &p); err != nil {
			return nil, err
		}
		out[tripID] = append(out[tripID], p)
	}
	return out, rows.Err()
}

// --- Expenses ---

const expenseColumns = `id, trip_id, description, category, amount_minor, currency, installments, start_date, payer_id, split_type, metadata, created_at`

func scanExpense(row pgx.Row) (ledger.Expense, error) {
	var e ledger.Expense
	var minor int64
	var currency string
	var md []byte
	if err := row.Scan(&e.ID, &e.TripID, &e.Description, &e.Category, &minor, &currency, &e.Installments, &e.StartDate, &e.PayerID, &e.SplitType, &md, &e.CreatedAt); err != nil {
		return ledger.Expense{}, err
	}
	amt, err := money.NewAmountFromMinorUnits(strings.TrimSpace(currency), minor)
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("expense %s amount: %w", e.ID, err)
	}
	e.Amount = amt
	e.StartDate = e.StartDate.UTC()
	e.Metadata = decodeMetadata(md)
	return e, nil
}

func (s *Store) GetExpense(ctx context.Context, tripID, expenseID uuid.UUID) (ledger.Expense, error) {
	e, err := scanExpense(s.pool.QueryRow(ctx, `select `+expenseColumns+` from expenses where id = $1 and trip_id = $2`, expenseID, tripID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Expense{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Expense{}, err
	}
	list := []ledger.Expense{e}
	if err := s.loadInvolved(ctx, list); err != nil {
		return ledger.Expense{}, err
	}
	return list[0], nil
}

// ListExpenses returns a trip's expenses ordered by (start_date, id).
func (s *Store) ListExpenses(ctx context.Context, tripID uuid.UUID) ([]ledger.Expense, error) {
	rows, err := s.pool.Query(ctx, `
        select `+expenseColumns+`
        from expenses
        where trip_id = $1
        order by start_date asc, id asc
    `, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadInvolved(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadInvolved fills InvolvedUserIDs and SplitRatios in place.
func (s *Store) loadInvolved(ctx context.Context, es []ledger.Expense) error {
	if len(es) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(es))
	idx := make(map[uuid.UUID]*ledger.Expense, len(es))
	for i := range es {
		ids[i] = es[i].ID
		idx[es[i].ID] = &es[i]
	}
	rows, err := s.pool.Query(ctx, `
        select expense_id, participant_id, ratio
        from expense_participants
        where expense_id = any($1)
        order by expense_id, position
    `, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var expenseID uuid.UUID
		var p string
		var ratio *string
		if err := rows.Scan(&expenseID, &p, &ratio); err != nil {
			return err
		}
		e := idx[expenseID]
		if e == nil {
			continue
		}
		e.InvolvedUserIDs = append(e.InvolvedUserIDs, p)
		if ratio != nil {
			d, err := decimal.Parse(*ratio)
			if err != nil {
				return fmt.Errorf("expense %s ratio: %w", expenseID, err)
			}
			if e.SplitRatios == nil {
				e.SplitRatios = map[string]decimal.Decimal{}
			}
			e.SplitRatios[p] = d
		}
	}
	return rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return ledger.Expense{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.CreateExpense(ctx, e); err != nil {
		return ledger.Expense{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Expense{}, err
	}
	return e, nil
}

// CreateExpenses inserts all expenses in one transaction.
func (s *Store) CreateExpenses(ctx context.Context, es []ledger.Expense) ([]ledger.Expense, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, e := range es {
		if _, err := tx.CreateExpense(ctx, e); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return es, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	md, err := metadataJSON(e.Metadata)
	if err != nil {
		return ledger.Expense{}, err
	}
	minor, _ := e.Amount.MinorUnits()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Expense{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	ct, err := tx.Exec(ctx, `
        update expenses
        set description=$1, category=$2, amount_minor=$3, currency=$4, installments=$5,
            start_date=$6, payer_id=$7, split_type=$8, metadata=$9
        where id=$10 and trip_id=$11
    `, e.Description, e.Category, minor, e.Currency(), e.Installments, e.StartDate, e.PayerID, e.SplitType, md, e.ID, e.TripID)
	if err != nil {
		return ledger.Expense{}, mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ledger.Expense{}, errs.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `delete from expense_participants where expense_id=$1`, e.ID); err != nil {
		return ledger.Expense{}, err
	}
	if err := insertInvolved(ctx, tx, e); err != nil {
		return ledger.Expense{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Expense{}, err
	}
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, tripID, expenseID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from expenses where id=$1 and trip_id=$2`, expenseID, tripID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Idempotency ---

func (s *Store) ExpenseByIdempotencyKey(ctx context.Context, tripID uuid.UUID, key string) (ledger.Expense, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
        select expense_id from expense_idempotency where trip_id=$1 and key=$2
    `, tripID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Expense{}, false, nil
	}
	if err != nil {
		return ledger.Expense{}, false, err
	}
	e, err := s.GetExpense(ctx, tripID, id)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Expense{}, false, nil
	}
	if err != nil {
		return ledger.Expense{}, false, err
	}
	return e, true, nil
}

func (s *Store) SaveIdempotencyKey(ctx context.Context, tripID uuid.UUID, key string, expenseID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
        insert into expense_idempotency (trip_id, key, expense_id)
        values ($1,$2,$3)
        on conflict (trip_id, key) do nothing
    `, tripID, key, expenseID)
	return err
}

// --- Transactions ---

// BeginTx starts a transaction for multi-row writes.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx.Tx with the writes used by batch imports.
type Tx struct{ tx pgx.Tx }

func (t *Tx) CreateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	if err := insertExpense(ctx, t.tx, e); err != nil {
		return ledger.Expense{}, err
	}
	return e, nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func insertExpense(ctx context.Context, q querier, e ledger.Expense) error {
	md, err := metadataJSON(e.Metadata)
	if err != nil {
		return err
	}
	minor, _ := e.Amount.MinorUnits()
	if _, err := q.Exec(ctx, `
        insert into expenses (`+expenseColumns+`)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    `, e.ID, e.TripID, e.Description, e.Category, minor, e.Currency(), e.Installments, e.StartDate, e.PayerID, e.SplitType, md, e.CreatedAt); err != nil {
		return fmt.Errorf("insert expense: %w", mapErr(err))
	}
	return insertInvolved(ctx, q, e)
}

func insertInvolved(ctx context.Context, q querier, e ledger.Expense) error {
	for i, p := range e.InvolvedUserIDs {
		var ratio *string
		if r, ok := e.SplitRatios[p]; ok {
			v := r.String()
			ratio = &v
		}
		if _, err := q.Exec(ctx, `
            insert into expense_participants (expense_id, participant_id, position, ratio)
            values ($1,$2,$3,$4)
        `, e.ID, p, i, ratio); err != nil {
			return fmt.Errorf("insert involved participant: %w", mapErr(err))
		}
	}
	return nil
}
