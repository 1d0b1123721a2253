// Package memory provides an in-memory store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/tripsettle/internal/errs"
	"github.com/tinoosan/tripsettle/internal/ledger"
)

// expenseKey orders a trip's expenses asc by (StartDate, ID).
type expenseKey struct {
	Date time.Time
	ID   uuid.UUID
}

func (k expenseKey) after(o expenseKey) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.After(o.Date)
	}
	return k.ID.String() > o.ID.String()
}

// Store keeps trips and expenses in maps guarded by an RWMutex.
// Values are copied on the way in and out so callers never share state.
type Store struct {
	mu       sync.RWMutex
	trips    map[uuid.UUID]ledger.Trip
	expenses map[uuid.UUID]ledger.Expense
	// Per-trip sorted index of expenses for ordered listing
	keysByTrip map[uuid.UUID][]expenseKey
	// Idempotency: tripID -> key -> expenseID
	idem map[uuid.UUID]map[string]uuid.UUID
}

func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.trips = map[uuid.UUID]ledger.Trip{}
	s.expenses = map[uuid.UUID]ledger.Expense{}
	s.keysByTrip = map[uuid.UUID][]expenseKey{}
	s.idem = map[uuid.UUID]map[string]uuid.UUID{}
	s.mu.Unlock()
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// Seed helpers for local dev/tests.
func (s *Store) SeedTrip(t ledger.Trip) {
	s.mu.Lock()
	s.trips[t.ID] = t.Clone()
	s.mu.Unlock()
}

func (s *Store) SeedExpense(e ledger.Expense) {
	s.mu.Lock()
	s.putExpenseLocked(e)
	s.mu.Unlock()
}

// --- Trips ---

func (s *Store) CreateTrip(_ context.Context, t ledger.Trip) (ledger.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trips[t.ID]; exists {
		return ledger.Trip{}, errs.ErrConflict
	}
	s.trips[t.ID] = t.Clone()
	return t.Clone(), nil
}

func (s *Store) UpdateTrip(_ context.Context, t ledger.Trip) (ledger.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[t.ID]; !ok {
		return ledger.Trip{}, errs.ErrNotFound
	}
	s.trips[t.ID] = t.Clone()
	return t.Clone(), nil
}

func (s *Store) GetTrip(_ context.Context, id uuid.UUID) (ledger.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return ledger.Trip{}, errs.ErrNotFound
	}
	return t.Clone(), nil
}

// ListTrips returns the trips an owner created, oldest first.
func (s *Store) ListTrips(_ context.Context, ownerID string) ([]ledger.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Trip, 0)
	for _, t := range s.trips {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// --- Expenses ---

func (s *Store) CreateExpense(_ context.Context, e ledger.Expense) (ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkNewExpenseLocked(e); err != nil {
		return ledger.Expense{}, err
	}
	s.putExpenseLocked(e)
	return e.Clone(), nil
}

// CreateExpenses stores all expenses under one lock, or none if any fails.
func (s *Store) CreateExpenses(_ context.Context, es []ledger.Expense) ([]ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[uuid.UUID]struct{}, len(es))
	for _, e := range es {
		if err := s.checkNewExpenseLocked(e); err != nil {
			return nil, err
		}
		if _, dup := ids[e.ID]; dup {
			return nil, errs.ErrConflict
		}
		ids[e.ID] = struct{}{}
	}
	out := make([]ledger.Expense, 0, len(es))
	for _, e := range es {
		s.putExpenseLocked(e)
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, e ledger.Expense) (ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[e.ID]
	if !ok || cur.TripID != e.TripID {
		return ledger.Expense{}, errs.ErrNotFound
	}
	s.removeIndexLocked(cur.TripID, expenseKey{Date: cur.StartDate, ID: cur.ID})
	s.putExpenseLocked(e)
	return e.Clone(), nil
}

func (s *Store) DeleteExpense(_ context.Context, tripID, expenseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.expenses[expenseID]
	if !ok || cur.TripID != tripID {
		return errs.ErrNotFound
	}
	delete(s.expenses, expenseID)
	s.removeIndexLocked(tripID, expenseKey{Date: cur.StartDate, ID: cur.ID})
	for key, id := range s.idem[tripID] {
		if id == expenseID {
			delete(s.idem[tripID], key)
		}
	}
	return nil
}

func (s *Store) GetExpense(_ context.Context, tripID, expenseID uuid.UUID) (ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[expenseID]
	if !ok || e.TripID != tripID {
		return ledger.Expense{}, errs.ErrNotFound
	}
	return e.Clone(), nil
}

// ListExpenses returns a trip's expenses ordered by (StartDate, ID).
func (s *Store) ListExpenses(_ context.Context, tripID uuid.UUID) ([]ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.keysByTrip[tripID]
	out := make([]ledger.Expense, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.expenses[k.ID]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// --- Idempotency ---

func (s *Store) ExpenseByIdempotencyKey(_ context.Context, tripID uuid.UUID, key string) (ledger.Expense, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.idem[tripID][key]; ok {
		if e, ok := s.expenses[id]; ok {
			return e.Clone(), true, nil
		}
	}
	return ledger.Expense{}, false, nil
}

// SaveIdempotencyKey keeps the first mapping for a key.
func (s *Store) SaveIdempotencyKey(_ context.Context, tripID uuid.UUID, key string, expenseID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.idem[tripID]
	if !ok {
		m = make(map[string]uuid.UUID)
		s.idem[tripID] = m
	}
	if _, exists := m[key]; !exists {
		m[key] = expenseID
	}
	return nil
}

// caller must hold s.mu (write lock)
func (s *Store) checkNewExpenseLocked(e ledger.Expense) error {
	if _, ok := s.trips[e.TripID]; !ok {
		return errs.ErrNotFound
	}
	if _, exists := s.expenses[e.ID]; exists {
		return errs.ErrConflict
	}
	return nil
}

// caller must hold s.mu (write lock)
func (s *Store) putExpenseLocked(e ledger.Expense) {
	s.expenses[e.ID] = e.Clone()
	s.insertIndexLocked(e.TripID, expenseKey{Date: e.StartDate, ID: e.ID})
}

// insertIndexLocked keeps the per-trip index sorted; equal keys insert after.
func (s *Store) insertIndexLocked(tripID uuid.UUID, k expenseKey) {
	keys := s.keysByTrip[tripID]
	i := sort.Search(len(keys), func(i int) bool { return keys[i].after(k) })
	keys = append(keys, expenseKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	s.keysByTrip[tripID] = keys
}

func (s *Store) removeIndexLocked(tripID uuid.UUID, k expenseKey) {
	keys := s.keysByTrip[tripID]
	for i := range keys {
		if keys[i].ID == k.ID {
			s.keysByTrip[tripID] = append(keys[:i], keys[i+1:]...)
			return
		}
	}
}
